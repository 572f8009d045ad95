package auth

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
	log      *logger.Logger
}

func NewHandler(svc *Service, validate *validator.Validate, log *logger.Logger) *Handler {
	return &Handler{svc: svc, validate: validate, log: log.With("component", "auth")}
}

// ===== Register =====
func (h *Handler) Register(c echo.Context) error {
	req := new(RegisterRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	session, err := h.svc.Register(c.Request().Context(), *req)
	if err != nil {
		if code := marketplace.StatusCode(err); code >= http.StatusInternalServerError {
			h.log.Error("register failed", "error", err)
		}
		return c.JSON(marketplace.StatusCode(err), echo.Map{"error": err.Error()})
	}
	h.log.Info("user registered", "user_id", session.User.ID, "role", session.User.Role)
	return c.JSON(http.StatusCreated, session)
}

// ===== Login =====
func (h *Handler) Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	session, err := h.svc.Login(c.Request().Context(), *req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		h.log.Error("login failed", "error", err)
		return c.JSON(marketplace.StatusCode(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, session)
}
