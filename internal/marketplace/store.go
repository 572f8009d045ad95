package marketplace

import (
	"context"
	"time"
)

// RequestFilter selects service requests. Empty fields match everything.
type RequestFilter struct {
	Statuses   []Status
	ClientID   string
	ProviderID string
}

// Match reports whether r satisfies the filter.
func (f RequestFilter) Match(r ServiceRequest) bool {
	if f.ClientID != "" && r.ClientID != f.ClientID {
		return false
	}
	if f.ProviderID != "" && r.ProviderID != f.ProviderID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// Store persists users, service requests and their messages and reviews.
//
// UpdateServiceRequest is a compare-and-swap: it writes the mutable fields of
// req only if the stored version still equals req.Version, and returns the
// row with its version incremented. A mismatch yields ErrStaleWrite.
// List methods return service requests and reviews newest first and
// messages oldest first.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	CreateServiceRequest(ctx context.Context, req ServiceRequest) (ServiceRequest, error)
	GetServiceRequest(ctx context.Context, id string) (ServiceRequest, error)
	ListServiceRequests(ctx context.Context, f RequestFilter) ([]ServiceRequest, error)
	UpdateServiceRequest(ctx context.Context, req ServiceRequest) (ServiceRequest, error)

	CreateMessage(ctx context.Context, m Message) (Message, error)
	ListMessages(ctx context.Context, serviceID string, since time.Time) ([]Message, error)

	CreateReview(ctx context.Context, r Review) (Review, error)
	GetReviewByService(ctx context.Context, serviceID string) (Review, error)
	ListReviewsByProvider(ctx context.Context, providerID string) ([]Review, error)

	Ping(ctx context.Context) error
}
