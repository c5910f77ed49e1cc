package scheduling

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/middleware"
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
	read.GET("/appointments", h.ListAppointments)
	read.GET("/appointments/:id", h.GetAppointment)
	read.GET("/professionals/:id/availability", h.GetAvailability)
	read.GET("/holidays", h.ListHolidays)

	write := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleProfessional))
	write.POST("/appointments", h.Book)
	write.POST("/appointments/check", h.Check)
	write.PATCH("/appointments/:id", h.UpdateAppointment)
	write.PUT("/appointments/:id/status", h.UpdateStatus)
	write.DELETE("/appointments/:id", h.DeleteAppointment)

	manage := api.Group("", auth.RequireRole(auth.RoleReception))
	manage.PUT("/professionals/:id/availability", h.ReplaceAvailability)
	manage.POST("/holidays", h.CreateHoliday)
	manage.DELETE("/holidays/:id", h.DeleteHoliday)
}

// respondError writes the structured bodies for warnings and recurrence
// configuration errors and maps everything else to an HTTP status.
func respondError(c echo.Context, err error) error {
	var we *WarningError
	if errors.As(err, &we) {
		return c.JSON(http.StatusConflict, map[string]any{"warning": we.Warning})
	}
	var rce *RecurrenceConfigError
	if errors.As(err, &rce) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": rce.Error(), "type": "recurrence_config"})
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, auth.ErrPasswordRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidPassword):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSlotTaken):
		return echo.NewHTTPError(http.StatusConflict, "slot_taken: the professional already has an appointment at this time")
	case errors.Is(err, ErrStatusChanged):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Booking --

func (h *Handler) Book(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if c.QueryParam("force") == "true" {
		req.Force = true
	}
	res, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	if req.Force && res.Created > 0 {
		c.Set(middleware.ForcedKey, true)
	}
	if req.Recurrence == nil {
		return c.JSON(http.StatusCreated, res.Occurrences[0].Appointment)
	}
	status := http.StatusCreated
	if res.Created == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

func (h *Handler) Check(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Check(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Appointments --

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := AppointmentFilter{Status: Status(c.QueryParam("status")), Limit: pg.Limit, Offset: pg.Offset}
	for name, dst := range map[string]**uuid.UUID{
		"professional_id": &f.ProfessionalID,
		"patient_id":      &f.PatientID,
	} {
		if raw := c.QueryParam(name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
			}
			*dst = &id
		}
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if raw := c.QueryParam(name); raw != "" {
			t, err := parseBound(raw, h.svc.Location())
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": use YYYY-MM-DD or RFC 3339")
			}
			*dst = &t
		}
	}
	items, total, err := h.svc.ListAppointments(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return pagination.Respond(c, pg, items, total)
}

func parseBound(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch AppointmentPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if c.QueryParam("force") == "true" {
		patch.Force = true
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, patch)
	if err != nil {
		return respondError(c, err)
	}
	if patch.Force {
		c.Set(middleware.ForcedKey, true)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Status Status `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateStatus(c.Request().Context(), id, body.Status); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAppointment reads {"password": "..."} from the body. The password is
// only needed for completed appointments.
func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteAppointment(ctx, id, auth.UserIDFromContext(ctx), body.Password); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Availability --

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	slots, err := h.svc.ListAvailability(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	if slots == nil {
		slots = []AvailabilitySlot{}
	}
	return c.JSON(http.StatusOK, slots)
}

func (h *Handler) ReplaceAvailability(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Slots []AvailabilitySlot `json:"slots"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ReplaceAvailability(c.Request().Context(), id, body.Slots); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, body.Slots)
}

// -- Holidays --

func (h *Handler) ListHolidays(c echo.Context) error {
	items, err := h.svc.ListHolidays(c.Request().Context(), c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []Holiday{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateHoliday(c echo.Context) error {
	var hol Holiday
	if err := c.Bind(&hol); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateHoliday(c.Request().Context(), &hol); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, hol)
}

func (h *Handler) DeleteHoliday(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteHoliday(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
