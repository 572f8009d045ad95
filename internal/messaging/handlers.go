package messaging

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
)

type Handler struct {
	svc         *Service
	hub         *Hub
	currentUser marketplace.CurrentUserFunc
	log         *logger.Logger
}

func NewHandler(svc *Service, hub *Hub, currentUser marketplace.CurrentUserFunc, log *logger.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, currentUser: currentUser, log: log.With("component", "messaging")}
}

// Mount registers the thread routes, each behind requireAuth.
func (h *Handler) Mount(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.GET("/services/:id/messages", h.List, requireAuth)
	g.POST("/services/:id/messages", h.Send, requireAuth)
	g.GET("/services/:id/ws", h.Subscribe, requireAuth)
}

// Send - client or provider posts a message in a service request thread
func (h *Handler) Send(c echo.Context) error {
	actor, err := h.currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	msg, err := h.svc.Send(c.Request().Context(), c.Param("id"), actor, body.Content)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// List - get the conversation for a service request
func (h *Handler) List(c echo.Context) error {
	actor, err := h.currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	// Optional since filter for incremental fetches
	var since time.Time
	if s := c.QueryParam("since"); s != "" {
		since, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid since timestamp, use RFC3339"})
		}
	}

	msgs, err := h.svc.List(c.Request().Context(), c.Param("id"), actor, since)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// Subscribe - websocket for realtime updates on a service request thread
func (h *Handler) Subscribe(c echo.Context) error {
	actor, err := h.currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	serviceID := c.Param("id")
	if _, err := h.svc.Authorize(c.Request().Context(), serviceID, actor); err != nil {
		return h.fail(c, err)
	}
	return h.hub.Serve(c.Response(), c.Request(), serviceID, actor.ID)
}

func (h *Handler) fail(c echo.Context, err error) error {
	code := marketplace.StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("messaging request failed", "path", c.Path(), "error", err)
	}
	return c.JSON(code, echo.Map{"error": err.Error()})
}
