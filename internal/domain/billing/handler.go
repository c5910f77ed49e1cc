package billing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleProfessional, auth.RoleFinancial))
	read.GET("/services", h.ListServices)
	read.GET("/services/:id", h.GetService)
	read.GET("/price-tables", h.ListPriceTables)
	read.GET("/price-tables/:id", h.GetPriceTable)
	read.GET("/payment-methods", h.ListPaymentMethods)
	read.GET("/pricing/quote", h.GetQuote)

	write := api.Group("", auth.RequireRole(auth.RoleFinancial))
	write.POST("/services", h.CreateService)
	write.POST("/price-tables", h.CreatePriceTable)
	write.PUT("/price-tables/:id/entries", h.ReplacePriceEntries)
	write.POST("/payment-methods", h.CreatePaymentMethod)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateService(c echo.Context) error {
	var cs ClinicService
	if err := c.Bind(&cs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cs.Active = true
	if err := h.svc.CreateService(c.Request().Context(), &cs); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cs)
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cs, err := h.svc.GetService(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) ListServices(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListServices(c.Request().Context(), c.QueryParam("active") == "true", pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreatePriceTable(c echo.Context) error {
	var t PriceTable
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.Active = true
	if err := h.svc.CreatePriceTable(c.Request().Context(), &t); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetPriceTable(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetPriceTable(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListPriceTables(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPriceTables(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ReplacePriceEntries(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Entries []PriceEntry `json:"entries"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ReplacePriceEntries(c.Request().Context(), id, body.Entries); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreatePaymentMethod(c echo.Context) error {
	var m PaymentMethod
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.Active = true
	if err := h.svc.CreatePaymentMethod(c.Request().Context(), &m); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListPaymentMethods(c echo.Context) error {
	items, err := h.svc.ListPaymentMethods(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func optionalDecimal(c echo.Context, name string) (*decimal.Decimal, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &d, nil
}

// GetQuote answers /pricing/quote?patient_id&service_id&discount|discount_pct&addition.
func (h *Handler) GetQuote(c echo.Context) error {
	serviceID, err := uuid.Parse(c.QueryParam("service_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid service_id")
	}
	var patientID uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		if patientID, err = uuid.Parse(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}

	var adj Adjustments
	for name, dst := range map[string]**decimal.Decimal{
		"price":        &adj.Price,
		"discount":     &adj.Discount,
		"discount_pct": &adj.DiscountPct,
		"addition":     &adj.Addition,
	} {
		if *dst, err = optionalDecimal(c, name); err != nil {
			return err
		}
	}

	q, err := h.svc.Quote(c.Request().Context(), patientID, serviceID, adj)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, q)
}
