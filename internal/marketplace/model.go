package marketplace

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a service request.
type Status string

const (
	StatusOpen            Status = "open"
	StatusPendingApproval Status = "pending_approval"
	StatusAccepted        Status = "accepted"
	StatusFinished        Status = "finished"
)

// legacy spellings still found in older rows and clients
var statusAliases = map[string]Status{
	"open":             StatusOpen,
	"aberto":           StatusOpen,
	"pending_approval": StatusPendingApproval,
	"analise":          StatusPendingApproval,
	"pending":          StatusPendingApproval,
	"accepted":         StatusAccepted,
	"em_andamento":     StatusAccepted,
	"in_progress":      StatusAccepted,
	"finished":         StatusFinished,
	"concluido":        StatusFinished,
	"completed":        StatusFinished,
}

// ParseStatus maps a canonical or legacy status name onto a Status.
func ParseStatus(s string) (Status, bool) {
	st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPendingApproval, StatusAccepted, StatusFinished:
		return true
	}
	return false
}

// Role is fixed at registration.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleProvider
}

// ParseRole accepts the canonical role names and the legacy CLIENTE/PRESTADOR.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client", "cliente":
		return RoleClient, true
	case "provider", "prestador":
		return RoleProvider, true
	}
	return "", false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// User is a registered client or provider.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// ServiceRequest is a unit of work posted by a client.
type ServiceRequest struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Budget      decimal.Decimal `json:"budget"`
	Status      Status          `json:"status"`
	ClientID    string          `json:"client_id"`
	ProviderID  string          `json:"provider_id,omitempty"`
	Location    string          `json:"location,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int64           `json:"version"`
}

// Message is one entry in a service request's conversation.
type Message struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Review is the client's rating of a finished service request.
type Review struct {
	ID         string    `json:"id"`
	ServiceID  string    `json:"service_id"`
	ClientID   string    `json:"client_id"`
	ProviderID string    `json:"provider_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RatingSummary aggregates the reviews of a provider.
type RatingSummary struct {
	ProviderID    string  `json:"provider_id"`
	TotalReviews  int     `json:"total_reviews"`
	AverageRating float64 `json:"average_rating"`
	RatingCounts  [5]int  `json:"rating_counts"` // index 0 is one star
}

// Earnings is a provider's income from finished requests.
type Earnings struct {
	Total   decimal.Decimal  `json:"total"`
	Count   int              `json:"count"`
	History []ServiceRequest `json:"history"`
}

// CreateRequest is the validated command for posting a service request.
type CreateRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"required,max=5000"`
	Price       decimal.Decimal `json:"price"`
	Location    string          `json:"location" validate:"max=200"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
}

// CounterOffer is the validated command for proposing a new price.
type CounterOffer struct {
	Price decimal.Decimal `json:"new_price"`
}

// CreateReviewRequest is the payload for reviewing a finished request.
type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}
