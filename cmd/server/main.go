package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sudo-init-do/freehub/internal/alerts"
	"github.com/sudo-init-do/freehub/internal/auth"
	"github.com/sudo-init-do/freehub/internal/config"
	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
	"github.com/sudo-init-do/freehub/internal/messaging"
	"github.com/sudo-init-do/freehub/internal/metrics"
	"github.com/sudo-init-do/freehub/internal/store"
	"github.com/sudo-init-do/freehub/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer closeStore()

	m := metrics.New()
	hub := messaging.NewHub(log)

	// Lifecycle notices go to the live thread and, when Redis is configured,
	// to the alerts queue.
	notifiers := marketplace.Notifiers{hub}
	if cfg.AlertsEnabled() {
		queue := alerts.NewQueue(cfg.RedisAddr, log)
		defer queue.Close()
		notifiers = append(notifiers, queue)

		processor := alerts.NewProcessor(cfg.RedisAddr, log)
		if err := processor.Start(); err != nil {
			log.Fatal("failed to start alerts processor", "error", err)
		}
		defer processor.Shutdown()
		log.Info("alerts enabled", "redis_addr", cfg.RedisAddr)
	} else {
		log.Info("alerts disabled; REDIS_ADDR not set")
	}

	validate := validator.New()
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	engine := marketplace.NewEngine(st)
	negotiator := marketplace.NewNegotiator(engine,
		marketplace.WithNotifier(notifiers),
		marketplace.WithObserver(m),
		marketplace.WithLogger(log.With("component", "negotiation")),
	)
	projection := marketplace.NewProjection(st)
	reviews := marketplace.NewReviews(st)

	authHandler := auth.NewHandler(auth.NewService(st, tokens), validate, log)
	marketHandler := marketplace.NewHandler(engine, negotiator, projection, reviews, validate, auth.CurrentUser, log)
	msgHandler := messaging.NewHandler(messaging.NewService(st, hub), hub, auth.CurrentUser, log)
	profiles := user.NewProfiles(st, projection, reviews)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency.String(), "remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				log.Error("request", append(fields, "error", v.Error.Error())...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	e.Use(m.Middleware())

	routes{
		store:    st,
		tokens:   tokens,
		metrics:  m,
		auth:     authHandler,
		market:   marketHandler,
		messages: msgHandler,
		profiles: profiles,
	}.register(e)

	go func() {
		log.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
	log.Info("server stopped")
}
