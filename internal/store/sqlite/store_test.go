package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "freehub.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRequest(t *testing.T, s *Store, clientID string, created time.Time) marketplace.ServiceRequest {
	t.Helper()
	req, err := s.CreateServiceRequest(context.Background(), marketplace.ServiceRequest{
		ID:          uuid.NewString(),
		Title:       "Paint fence",
		Description: "Two coats",
		Price:       decimal.RequireFromString("80.25"),
		Budget:      decimal.RequireFromString("80.25"),
		Status:      marketplace.StatusOpen,
		ClientID:    clientID,
		CreatedAt:   created,
		UpdatedAt:   created,
	})
	require.NoError(t, err)
	return req
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, marketplace.User{
		ID: uuid.NewString(), Name: "Ana", Email: "Ana@Example.com", PasswordHash: "hash",
		Role: marketplace.RoleClient, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)

	got, err := s.GetUserByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, marketplace.RoleClient, got.Role)

	_, err = s.CreateUser(ctx, marketplace.User{
		ID: uuid.NewString(), Name: "Other", Email: "ana@example.com", PasswordHash: "hash",
		Role: marketplace.RoleProvider, CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, marketplace.ErrDuplicate)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, marketplace.ErrNotFound)
}

func TestServiceRequestRoundTripAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older := seedRequest(t, s, "client-1", base)
	newer := seedRequest(t, s, "client-1", base.Add(time.Hour))
	seedRequest(t, s, "client-2", base.Add(2*time.Hour))

	got, err := s.GetServiceRequest(ctx, older.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("80.25")))
	assert.Equal(t, marketplace.StatusOpen, got.Status)
	assert.Equal(t, int64(1), got.Version)

	list, err := s.ListServiceRequests(ctx, marketplace.RequestFilter{ClientID: "client-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	none, err := s.ListServiceRequests(ctx, marketplace.RequestFilter{Statuses: []marketplace.Status{marketplace.StatusFinished}})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdateServiceRequestVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req := seedRequest(t, s, "client-1", time.Now().UTC())

	next := req
	next.Status = marketplace.StatusPendingApproval
	next.ProviderID = "provider-1"
	next.Price = decimal.RequireFromString("95")
	updated, err := s.UpdateServiceRequest(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "provider-1", updated.ProviderID)
	assert.True(t, updated.Price.Equal(decimal.NewFromInt(95)))
	assert.True(t, updated.Budget.Equal(decimal.RequireFromString("80.25")))

	_, err = s.UpdateServiceRequest(ctx, next)
	assert.ErrorIs(t, err, marketplace.ErrStaleWrite)

	next.ID = "missing"
	_, err = s.UpdateServiceRequest(ctx, next)
	assert.ErrorIs(t, err, marketplace.ErrNotFound)
}

func TestConcurrentUpdatesOnlyOneWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req := seedRequest(t, s, "client-1", time.Now().UTC())

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := req
			next.Status = marketplace.StatusAccepted
			next.ProviderID = uuid.NewString()
			if _, err := s.UpdateServiceRequest(ctx, next); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMessagesAndReviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	req := seedRequest(t, s, "client-1", time.Now().UTC())
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.CreateMessage(ctx, marketplace.Message{ID: uuid.NewString(), ServiceID: "missing", SenderID: "client-1", Content: "x", CreatedAt: base})
	assert.ErrorIs(t, err, marketplace.ErrNotFound)

	for i, content := range []string{"first", "second", "third"} {
		_, err := s.CreateMessage(ctx, marketplace.Message{
			ID: uuid.NewString(), ServiceID: req.ID, SenderID: "client-1",
			Content: content, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	all, err := s.ListMessages(ctx, req.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Content)

	later, err := s.ListMessages(ctx, req.ID, base)
	require.NoError(t, err)
	require.Len(t, later, 2)
	assert.Equal(t, "second", later[0].Content)

	// same instant as base, written with a +02:00 offset
	plusTwo := base.In(time.FixedZone("UTC+2", 2*60*60))
	later, err = s.ListMessages(ctx, req.ID, plusTwo)
	require.NoError(t, err)
	require.Len(t, later, 2)
	assert.Equal(t, "second", later[0].Content)

	// and one a little behind UTC still bounds on the instant
	minusFive := base.Add(90 * time.Second).In(time.FixedZone("UTC-5", -5*60*60))
	later, err = s.ListMessages(ctx, req.ID, minusFive)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, "third", later[0].Content)

	review := marketplace.Review{
		ID: uuid.NewString(), ServiceID: req.ID, ClientID: "client-1", ProviderID: "provider-1",
		Rating: 4, Comment: "solid", CreatedAt: base,
	}
	_, err = s.CreateReview(ctx, review)
	require.NoError(t, err)

	review.ID = uuid.NewString()
	_, err = s.CreateReview(ctx, review)
	assert.ErrorIs(t, err, marketplace.ErrDuplicate)

	got, err := s.GetReviewByService(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)

	byProvider, err := s.ListReviewsByProvider(ctx, "provider-1")
	require.NoError(t, err)
	assert.Len(t, byProvider, 1)
}
