package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/freehub/internal/marketplace"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// JWTMiddleware verifies the bearer token and stores user_id and role on the
// echo context.
func JWTMiddleware(tokens *Tokens) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			// Browsers cannot set headers on a websocket handshake.
			if authHeader == "" && c.IsWebSocket() && c.QueryParam("token") != "" {
				authHeader = "Bearer " + c.QueryParam("token")
			}
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing Authorization header"})
			}

			const prefix = "Bearer "
			if len(authHeader) <= len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid Authorization format"})
			}

			actor, err := tokens.Parse(authHeader[len(prefix):])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			c.Set("user_id", actor.ID)
			c.Set("role", string(actor.Role))
			return next(c)
		}
	}
}

// CurrentUser returns the caller set by JWTMiddleware.
func CurrentUser(c echo.Context) (marketplace.Actor, error) {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return marketplace.Actor{}, ErrUnauthenticated
	}
	role, _ := c.Get("role").(string)
	return marketplace.Actor{ID: userID, Role: marketplace.Role(role)}, nil
}

// Me returns the currently authenticated user's profile
func (h *Handler) Me(c echo.Context) error {
	actor, err := CurrentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	user, err := h.svc.Me(c.Request().Context(), actor)
	if err != nil {
		return c.JSON(marketplace.StatusCode(err), echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, user)
}
