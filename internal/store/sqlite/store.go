// Package sqlite is a GORM-backed marketplace.Store on a local SQLite file,
// used for single-node deployments and development.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
)

type userRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	Role      string `gorm:"not null"`
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type requestRow struct {
	ID          string          `gorm:"primaryKey"`
	Title       string          `gorm:"not null"`
	Description string          `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:text;not null"`
	Budget      decimal.Decimal `gorm:"type:text;not null"`
	Status      string          `gorm:"index;not null"`
	ClientID    string          `gorm:"index;not null"`
	ProviderID  string          `gorm:"index"`
	Location    string
	ImageURL    string
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	Version     int64 `gorm:"not null;default:1"`
}

func (requestRow) TableName() string { return "service_requests" }

type messageRow struct {
	ID        string    `gorm:"primaryKey"`
	ServiceID string    `gorm:"index:idx_messages_service_created,priority:1;not null"`
	SenderID  string    `gorm:"not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"index:idx_messages_service_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

type reviewRow struct {
	ID         string `gorm:"primaryKey"`
	ServiceID  string `gorm:"uniqueIndex;not null"`
	ClientID   string `gorm:"not null"`
	ProviderID string `gorm:"index;not null"`
	Rating     int    `gorm:"not null"`
	Comment    string
	CreatedAt  time.Time
}

func (reviewRow) TableName() string { return "reviews" }

// Store is the SQLite marketplace.Store.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

var _ marketplace.Store = (*Store)(nil)

// Open opens (or creates) the database at path and migrates it.
func Open(path string, log *logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql handle: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if err := db.Exec(p).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
	}

	if err := db.AutoMigrate(&userRow{}, &requestRow{}, &messageRow{}, &reviewRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, log: log.With("store", "sqlite")}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return marketplace.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%v: %w", err, marketplace.ErrDuplicate)
	}
	return err
}

// Users ----------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u marketplace.User) (marketplace.User, error) {
	row := userRow{
		ID:        u.ID,
		Name:      u.Name,
		Email:     normalizeEmail(u.Email),
		Password:  u.PasswordHash,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return marketplace.User{}, translate(err)
	}
	return row.toUser(), nil
}

func (s *Store) GetUser(ctx context.Context, id string) (marketplace.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return marketplace.User{}, translate(err)
	}
	return row.toUser(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (marketplace.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&row).Error; err != nil {
		return marketplace.User{}, translate(err)
	}
	return row.toUser(), nil
}

// Service requests -----------------------------------------------------------

func (s *Store) CreateServiceRequest(ctx context.Context, req marketplace.ServiceRequest) (marketplace.ServiceRequest, error) {
	row := fromRequest(req)
	row.Version = 1
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return marketplace.ServiceRequest{}, translate(err)
	}
	return row.toRequest()
}

func (s *Store) GetServiceRequest(ctx context.Context, id string) (marketplace.ServiceRequest, error) {
	var row requestRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return marketplace.ServiceRequest{}, translate(err)
	}
	return row.toRequest()
}

func (s *Store) ListServiceRequests(ctx context.Context, f marketplace.RequestFilter) ([]marketplace.ServiceRequest, error) {
	q := s.db.WithContext(ctx).Model(&requestRow{})
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.ProviderID != "" {
		q = q.Where("provider_id = ?", f.ProviderID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}

	var rows []requestRow
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing service requests: %w", err)
	}

	out := make([]marketplace.ServiceRequest, 0, len(rows))
	for _, row := range rows {
		r, err := row.toRequest()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) UpdateServiceRequest(ctx context.Context, req marketplace.ServiceRequest) (marketplace.ServiceRequest, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&requestRow{}).
		Where("id = ? AND version = ?", req.ID, req.Version).
		Updates(map[string]any{
			"status":      string(req.Status),
			"provider_id": req.ProviderID,
			"price":       req.Price,
			"updated_at":  req.UpdatedAt.UTC(),
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return marketplace.ServiceRequest{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&requestRow{}).Where("id = ?", req.ID).Count(&count).Error; err != nil {
			return marketplace.ServiceRequest{}, err
		}
		if count > 0 {
			return marketplace.ServiceRequest{}, marketplace.ErrStaleWrite
		}
		return marketplace.ServiceRequest{}, marketplace.ErrNotFound
	}
	return s.GetServiceRequest(ctx, req.ID)
}

// Messages -------------------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, m marketplace.Message) (marketplace.Message, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&requestRow{}).Where("id = ?", m.ServiceID).Count(&count).Error; err != nil {
		return marketplace.Message{}, err
	}
	if count == 0 {
		return marketplace.Message{}, marketplace.ErrNotFound
	}

	row := messageRow{ID: m.ID, ServiceID: m.ServiceID, SenderID: m.SenderID, Content: m.Content, CreatedAt: m.CreatedAt.UTC()}
	if err := db.Create(&row).Error; err != nil {
		return marketplace.Message{}, translate(err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, serviceID string, since time.Time) ([]marketplace.Message, error) {
	q := s.db.WithContext(ctx).Where("service_id = ?", serviceID)
	if !since.IsZero() {
		// Times are stored as UTC text, so the bound must be UTC too.
		q = q.Where("created_at > ?", since.UTC())
	}
	var rows []messageRow
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	out := make([]marketplace.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, marketplace.Message{
			ID:        row.ID,
			ServiceID: row.ServiceID,
			SenderID:  row.SenderID,
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// Reviews --------------------------------------------------------------------

func (s *Store) CreateReview(ctx context.Context, r marketplace.Review) (marketplace.Review, error) {
	row := reviewRow{
		ID:         r.ID,
		ServiceID:  r.ServiceID,
		ClientID:   r.ClientID,
		ProviderID: r.ProviderID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return marketplace.Review{}, translate(err)
	}
	return r, nil
}

func (s *Store) GetReviewByService(ctx context.Context, serviceID string) (marketplace.Review, error) {
	var row reviewRow
	if err := s.db.WithContext(ctx).Where("service_id = ?", serviceID).First(&row).Error; err != nil {
		return marketplace.Review{}, translate(err)
	}
	return row.toReview(), nil
}

func (s *Store) ListReviewsByProvider(ctx context.Context, providerID string) ([]marketplace.Review, error) {
	var rows []reviewRow
	if err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	out := make([]marketplace.Review, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toReview())
	}
	return out, nil
}
