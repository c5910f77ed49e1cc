package campaign

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/websocket"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc          *Service
	hub          *websocket.Hub
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewHandler(svc *Service, hub *websocket.Hub, pollInterval, maxWait time.Duration) *Handler {
	return &Handler{svc: svc, hub: hub, pollInterval: pollInterval, maxWait: maxWait}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/campaigns", auth.RequireRole(auth.RoleReception, auth.RoleFinancial))
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/launch", h.Launch)
	g.GET("/:id/progress", h.Progress)
}

// RegisterStreamRoutes mounts the websocket progress stream. It must sit
// outside the request timeout.
func (h *Handler) RegisterStreamRoutes(ws *echo.Group) {
	ws.GET("/campaigns/:id", h.Stream, auth.RequireRole(auth.RoleReception, auth.RoleFinancial))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoRecipients):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotDraft):
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

func (h *Handler) Create(c echo.Context) error {
	var cp Campaign
	if err := c.Bind(&cp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &cp); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cp)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return pagination.Respond(c, pg, items, total)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cp)
}

func (h *Handler) Launch(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cp, err := h.svc.Launch(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, cp)
}

// Progress returns the current progress. With ?wait=true it long-polls until
// the campaign is terminal and answers 202 if it is still running when the
// wait runs out.
func (h *Handler) Progress(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if c.QueryParam("wait") != "true" {
		p, err := h.svc.Progress(ctx, id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, p)
	}

	wait := h.maxWait
	if dl, ok := ctx.Deadline(); ok {
		// Leave room to answer before the request timeout fires.
		wait = min(wait, time.Until(dl)-500*time.Millisecond)
	}
	p, err := h.svc.WaitForTerminal(ctx, id, h.pollInterval, max(wait, h.pollInterval))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, p)
	case IsTimeout(err) && p.ID != uuid.Nil:
		return c.JSON(http.StatusAccepted, p)
	default:
		return httpError(err)
	}
}

// Stream upgrades to a websocket and sends one campaign.progress frame per
// poll, closing after the terminal frame. Between polls the client also gets
// the worker's per-batch frames through RelayProgress. Every frame is a full
// snapshot.
func (h *Handler) Stream(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.Get(c.Request().Context(), id); err != nil {
		return httpError(err)
	}

	client, err := h.hub.Serve(c, topic(id))
	if err != nil {
		return err
	}
	defer h.hub.Unregister(client)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()
	go func() {
		select {
		case <-client.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	_, err = h.svc.Watch(ctx, id, h.pollInterval, h.maxWait, func(p Progress) {
		if ev, err := websocket.NewEvent(topic(id), "campaign.progress", p); err == nil {
			h.hub.SendTo(client, ev)
		}
	})
	if err != nil && !IsTimeout(err) && !errors.Is(err, context.Canceled) {
		h.svc.logger.Error().Err(err).Str("campaign_id", id.String()).Msg("progress stream")
	}
	return nil
}
