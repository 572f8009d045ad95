package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/freehub/internal/marketplace"
)

const requestColumns = `id::text, title, description, price::text, COALESCE(budget, price)::text, status,
    client_id::text, COALESCE(provider_id::text, ''), location, image_url, created_at, updated_at, version`

const uniqueViolation = "23505"

// Store is the Postgres marketplace.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ marketplace.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ids are UUID columns; anything else can never match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, marketplace.ErrDuplicate)
	}
	return err
}

// Users ----------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u marketplace.User) (marketplace.User, error) {
	err := s.pool.QueryRow(ctx, `
        INSERT INTO users (id, name, email, password, role, created_at)
        VALUES ($1, $2, LOWER($3), $4, $5, $6)
        RETURNING email`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	).Scan(&u.Email)
	if err != nil {
		return marketplace.User{}, translate(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (marketplace.User, error) {
	if !validID(id) {
		return marketplace.User{}, marketplace.ErrNotFound
	}
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (marketplace.User, error) {
	return s.getUser(ctx, `WHERE email = LOWER($1)`, email)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (marketplace.User, error) {
	var u marketplace.User
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, email, password, role, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		return marketplace.User{}, translate(err)
	}
	u.Role = marketplace.Role(role)
	return u, nil
}

// Service requests -----------------------------------------------------------

func scanRequest(row pgx.Row) (marketplace.ServiceRequest, error) {
	var (
		r             marketplace.ServiceRequest
		price, budget string
		status        string
	)
	err := row.Scan(&r.ID, &r.Title, &r.Description, &price, &budget, &status,
		&r.ClientID, &r.ProviderID, &r.Location, &r.ImageURL, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return marketplace.ServiceRequest{}, translate(err)
	}
	if r.Price, err = decimal.NewFromString(price); err != nil {
		return marketplace.ServiceRequest{}, fmt.Errorf("parsing price %q: %w", price, err)
	}
	if r.Budget, err = decimal.NewFromString(budget); err != nil {
		return marketplace.ServiceRequest{}, fmt.Errorf("parsing budget %q: %w", budget, err)
	}
	st, ok := marketplace.ParseStatus(status)
	if !ok {
		return marketplace.ServiceRequest{}, fmt.Errorf("unknown status %q on service request %s", status, r.ID)
	}
	r.Status = st
	return r, nil
}

func (s *Store) CreateServiceRequest(ctx context.Context, req marketplace.ServiceRequest) (marketplace.ServiceRequest, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO service_requests
            (id, title, description, price, budget, status, client_id, provider_id, location, image_url, created_at, updated_at, version)
        VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, NULLIF($8, '')::uuid, $9, $10, $11, $12, 1)
        RETURNING `+requestColumns,
		req.ID, req.Title, req.Description, req.Price.String(), req.Budget.String(), string(req.Status),
		req.ClientID, req.ProviderID, req.Location, req.ImageURL, req.CreatedAt, req.UpdatedAt,
	)
	return scanRequest(row)
}

func (s *Store) GetServiceRequest(ctx context.Context, id string) (marketplace.ServiceRequest, error) {
	if !validID(id) {
		return marketplace.ServiceRequest{}, marketplace.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id)
	return scanRequest(row)
}

func (s *Store) ListServiceRequests(ctx context.Context, f marketplace.RequestFilter) ([]marketplace.ServiceRequest, error) {
	var (
		conds []string
		args  []any
	)
	if f.ClientID != "" {
		if !validID(f.ClientID) {
			return []marketplace.ServiceRequest{}, nil
		}
		args = append(args, f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.ProviderID != "" {
		if !validID(f.ProviderID) {
			return []marketplace.ServiceRequest{}, nil
		}
		args = append(args, f.ProviderID)
		conds = append(conds, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + requestColumns + ` FROM service_requests`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing service requests: %w", err)
	}
	defer rows.Close()

	out := make([]marketplace.ServiceRequest, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating service requests: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateServiceRequest(ctx context.Context, req marketplace.ServiceRequest) (marketplace.ServiceRequest, error) {
	if !validID(req.ID) {
		return marketplace.ServiceRequest{}, marketplace.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `
        UPDATE service_requests
        SET status = $1, provider_id = NULLIF($2, '')::uuid, price = $3::numeric, updated_at = $4, version = version + 1
        WHERE id = $5 AND version = $6
        RETURNING `+requestColumns,
		string(req.Status), req.ProviderID, req.Price.String(), req.UpdatedAt, req.ID, req.Version,
	)
	updated, err := scanRequest(row)
	if !errors.Is(err, marketplace.ErrNotFound) {
		return updated, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM service_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
		return marketplace.ServiceRequest{}, err
	}
	if exists {
		return marketplace.ServiceRequest{}, marketplace.ErrStaleWrite
	}
	return marketplace.ServiceRequest{}, marketplace.ErrNotFound
}

// Messages -------------------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, m marketplace.Message) (marketplace.Message, error) {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO messages (id, service_id, sender_id, content, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ServiceID, m.SenderID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return marketplace.Message{}, translate(err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, serviceID string, since time.Time) ([]marketplace.Message, error) {
	out := make([]marketplace.Message, 0)
	if !validID(serviceID) {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
        SELECT id::text, service_id::text, sender_id::text, content, created_at
        FROM messages WHERE service_id = $1 AND created_at > $2
        ORDER BY created_at ASC`, serviceID, since)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m marketplace.Message
		if err := rows.Scan(&m.ID, &m.ServiceID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Reviews --------------------------------------------------------------------

func (s *Store) CreateReview(ctx context.Context, r marketplace.Review) (marketplace.Review, error) {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO reviews (id, service_id, client_id, provider_id, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ServiceID, r.ClientID, r.ProviderID, r.Rating, r.Comment, r.CreatedAt,
	)
	if err != nil {
		return marketplace.Review{}, translate(err)
	}
	return r, nil
}

const reviewColumns = `id::text, service_id::text, client_id::text, provider_id::text, rating, comment, created_at`

func scanReview(row pgx.Row) (marketplace.Review, error) {
	var r marketplace.Review
	if err := row.Scan(&r.ID, &r.ServiceID, &r.ClientID, &r.ProviderID, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
		return marketplace.Review{}, translate(err)
	}
	return r, nil
}

func (s *Store) GetReviewByService(ctx context.Context, serviceID string) (marketplace.Review, error) {
	if !validID(serviceID) {
		return marketplace.Review{}, marketplace.ErrNotFound
	}
	return scanReview(s.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE service_id = $1`, serviceID))
}

func (s *Store) ListReviewsByProvider(ctx context.Context, providerID string) ([]marketplace.Review, error) {
	out := make([]marketplace.Review, 0)
	if !validID(providerID) {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE provider_id = $1 ORDER BY created_at DESC`, providerID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
