// Package store opens the marketplace.Store selected by configuration.
package store

import (
	"context"
	"fmt"

	"github.com/sudo-init-do/freehub/internal/config"
	"github.com/sudo-init-do/freehub/internal/db"
	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
	"github.com/sudo-init-do/freehub/internal/store/memory"
	"github.com/sudo-init-do/freehub/internal/store/postgres"
	"github.com/sudo-init-do/freehub/internal/store/sqlite"
)

// Open returns the configured store and a function releasing it.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (marketplace.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("connected to postgres")
		return postgres.New(pool), pool.Close, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("opened sqlite database", "path", cfg.SQLitePath)
		return s, func() { _ = s.Close() }, nil

	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on exit")
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
