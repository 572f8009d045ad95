package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/freehub/internal/logger"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the marketplace tables when missing and backfills
// columns older deployments lack. It is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	steps := []struct {
		name string
		fn   func(context.Context, *pgxpool.Pool) error
	}{
		{"users", ensureUsersTable},
		{"service_requests", ensureServiceRequestsTable},
		{"service_requests columns", ensureServiceRequestColumns},
		{"messages", ensureMessagesTable},
		{"reviews", ensureReviewsTable},
	}
	for _, s := range steps {
		if err := s.fn(ctx, pool); err != nil {
			return fmt.Errorf("ensuring %s: %w", s.name, err)
		}
		log.Debug("schema ensured", "step", s.name)
	}
	return nil
}

func ensureUsersTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('client','provider')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	return err
}

func ensureServiceRequestsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS service_requests (
            id UUID PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT NOT NULL,
            price NUMERIC(12,2) NOT NULL CHECK (price > 0),
            budget NUMERIC(12,2),
            status TEXT NOT NULL DEFAULT 'open',
            client_id UUID NOT NULL REFERENCES users(id),
            provider_id UUID NULL REFERENCES users(id),
            location TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            version BIGINT NOT NULL DEFAULT 1
        );
        CREATE INDEX IF NOT EXISTS idx_service_requests_status_created ON service_requests(status, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_service_requests_provider ON service_requests(provider_id);
        CREATE INDEX IF NOT EXISTS idx_service_requests_client ON service_requests(client_id);
    `)
	return err
}

// ensureServiceRequestColumns adds budget and version to tables created
// before negotiation reverted prices and writes were versioned.
func ensureServiceRequestColumns(ctx context.Context, pool *pgxpool.Pool) error {
	var budgetExists bool
	if err := pool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.columns
            WHERE table_schema = 'public' AND table_name = 'service_requests' AND column_name = 'budget'
        )`).Scan(&budgetExists); err != nil {
		return err
	}
	if !budgetExists {
		if _, err := pool.Exec(ctx, `ALTER TABLE service_requests ADD COLUMN IF NOT EXISTS budget NUMERIC(12,2)`); err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, `UPDATE service_requests SET budget = price WHERE budget IS NULL`); err != nil {
			return err
		}
	}

	_, err := pool.Exec(ctx, `ALTER TABLE service_requests ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1`)
	return err
}

func ensureMessagesTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            service_id UUID NOT NULL REFERENCES service_requests(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id),
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_messages_service_created ON messages(service_id, created_at);
    `)
	return err
}

func ensureReviewsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS reviews (
            id UUID PRIMARY KEY,
            service_id UUID NOT NULL UNIQUE REFERENCES service_requests(id) ON DELETE CASCADE,
            client_id UUID NOT NULL REFERENCES users(id),
            provider_id UUID NOT NULL REFERENCES users(id),
            rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_reviews_provider ON reviews(provider_id, created_at DESC);
    `)
	return err
}
