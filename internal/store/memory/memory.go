package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sudo-init-do/freehub/internal/marketplace"
)

// Store is an in-memory marketplace.Store. It is safe for concurrent use and
// is intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	users    map[string]marketplace.User
	byEmail  map[string]string
	requests map[string]marketplace.ServiceRequest
	messages map[string][]marketplace.Message
	reviews  map[string]marketplace.Review // keyed by service id
}

var _ marketplace.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]marketplace.User),
		byEmail:  make(map[string]string),
		requests: make(map[string]marketplace.ServiceRequest),
		messages: make(map[string][]marketplace.Message),
		reviews:  make(map[string]marketplace.Review),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// Users ----------------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u marketplace.User) (marketplace.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := s.byEmail[email]; exists {
		return marketplace.User{}, fmt.Errorf("email %s: %w", u.Email, marketplace.ErrDuplicate)
	}
	if _, exists := s.users[u.ID]; exists {
		return marketplace.User{}, fmt.Errorf("user %s: %w", u.ID, marketplace.ErrDuplicate)
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (marketplace.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return marketplace.User{}, marketplace.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (marketplace.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return marketplace.User{}, marketplace.ErrNotFound
	}
	return s.users[id], nil
}

// Service requests -----------------------------------------------------------

func (s *Store) CreateServiceRequest(_ context.Context, req marketplace.ServiceRequest) (marketplace.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return marketplace.ServiceRequest{}, fmt.Errorf("service request %s: %w", req.ID, marketplace.ErrDuplicate)
	}
	if req.Version == 0 {
		req.Version = 1
	}
	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) GetServiceRequest(_ context.Context, id string) (marketplace.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return marketplace.ServiceRequest{}, marketplace.ErrNotFound
	}
	return req, nil
}

func (s *Store) ListServiceRequests(_ context.Context, f marketplace.RequestFilter) ([]marketplace.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]marketplace.ServiceRequest, 0)
	for _, req := range s.requests {
		if f.Match(req) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateServiceRequest(_ context.Context, req marketplace.ServiceRequest) (marketplace.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requests[req.ID]
	if !ok {
		return marketplace.ServiceRequest{}, marketplace.ErrNotFound
	}
	if current.Version != req.Version {
		return marketplace.ServiceRequest{}, marketplace.ErrStaleWrite
	}
	current.Status = req.Status
	current.ProviderID = req.ProviderID
	current.Price = req.Price
	current.UpdatedAt = req.UpdatedAt
	current.Version++
	s.requests[req.ID] = current
	return current, nil
}

// Messages -------------------------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, m marketplace.Message) (marketplace.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[m.ServiceID]; !ok {
		return marketplace.Message{}, marketplace.ErrNotFound
	}
	s.messages[m.ServiceID] = append(s.messages[m.ServiceID], m)
	return m, nil
}

func (s *Store) ListMessages(_ context.Context, serviceID string, since time.Time) ([]marketplace.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]marketplace.Message, 0, len(s.messages[serviceID]))
	for _, m := range s.messages[serviceID] {
		if !since.IsZero() && !m.CreatedAt.After(since) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Reviews --------------------------------------------------------------------

func (s *Store) CreateReview(_ context.Context, r marketplace.Review) (marketplace.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reviews[r.ServiceID]; exists {
		return marketplace.Review{}, marketplace.ErrDuplicate
	}
	s.reviews[r.ServiceID] = r
	return r, nil
}

func (s *Store) GetReviewByService(_ context.Context, serviceID string) (marketplace.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reviews[serviceID]
	if !ok {
		return marketplace.Review{}, marketplace.ErrNotFound
	}
	return r, nil
}

func (s *Store) ListReviewsByProvider(_ context.Context, providerID string) ([]marketplace.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]marketplace.Review, 0)
	for _, r := range s.reviews {
		if r.ProviderID == providerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
