package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sudo-init-do/freehub/internal/auth"
	"github.com/sudo-init-do/freehub/internal/marketplace"
	"github.com/sudo-init-do/freehub/internal/messaging"
	"github.com/sudo-init-do/freehub/internal/metrics"
	mware "github.com/sudo-init-do/freehub/internal/middleware"
	"github.com/sudo-init-do/freehub/internal/user"
)

type routes struct {
	store    marketplace.Store
	tokens   *auth.Tokens
	metrics  *metrics.Metrics
	auth     *auth.Handler
	market   *marketplace.Handler
	messages *messaging.Handler
	profiles *user.Profiles
}

// register mounts every route on e. Authentication is attached per route so
// unknown paths still fall through to echo's 404.
func (r routes) register(e *echo.Echo) {
	// Health and ops routes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := r.store.Ping(pingCtx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(r.metrics.Handler()))

	requireAuth := auth.JWTMiddleware(r.tokens)

	// Auth routes with per-IP rate limiting to protect register/login from abuse
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/register", r.auth.Register)
	authGroup.POST("/login", r.auth.Login)
	authGroup.GET("/me", r.auth.Me, requireAuth)

	root := e.Group("")
	root.GET("/users/:id/profile", r.profiles.GetPublicProfile)
	r.market.Mount(root, requireAuth, mware.RequireRoles(marketplace.RoleProvider))
	r.messages.Mount(root, requireAuth)
}
