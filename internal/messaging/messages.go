package messaging

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sudo-init-do/freehub/internal/marketplace"
)

const maxContentLength = 4000

// Broadcaster pushes events to the subscribers of a service request thread.
type Broadcaster interface {
	Broadcast(serviceID string, evt Event)
}

// Service keeps the per-request conversation between a client and the
// provider working on it.
type Service struct {
	store marketplace.Store
	hub   Broadcaster
	now   func() time.Time
	newID func() string
}

func NewService(store marketplace.Store, hub Broadcaster) *Service {
	return &Service{
		store: store,
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// Authorize loads the request and checks the actor is one of its parties.
func (s *Service) Authorize(ctx context.Context, serviceID string, actor marketplace.Actor) (marketplace.ServiceRequest, error) {
	req, err := s.store.GetServiceRequest(ctx, serviceID)
	if err != nil {
		return marketplace.ServiceRequest{}, storeErr("load service request", serviceID, err)
	}
	if actor.ID == "" || (actor.ID != req.ClientID && actor.ID != req.ProviderID) {
		return marketplace.ServiceRequest{}, marketplace.UnauthorizedError{
			ActorID: actor.ID,
			Reason:  "not a participant in this service request",
		}
	}
	return req, nil
}

// Send appends a message to the thread and pushes it to live subscribers.
func (s *Service) Send(ctx context.Context, serviceID string, actor marketplace.Actor, content string) (marketplace.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return marketplace.Message{}, marketplace.ValidationError{Field: "content", Msg: "is required"}
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return marketplace.Message{}, marketplace.ValidationError{Field: "content", Msg: "too long (max 4000 characters)"}
	}
	if _, err := s.Authorize(ctx, serviceID, actor); err != nil {
		return marketplace.Message{}, err
	}

	msg, err := s.store.CreateMessage(ctx, marketplace.Message{
		ID:        s.newID(),
		ServiceID: serviceID,
		SenderID:  actor.ID,
		Content:   content,
		CreatedAt: s.now(),
	})
	if err != nil {
		return marketplace.Message{}, storeErr("create message", serviceID, err)
	}
	if s.hub != nil {
		s.hub.Broadcast(serviceID, Event{Type: EventMessageNew, Data: msg})
	}
	return msg, nil
}

// List returns the thread oldest first. A zero since returns everything.
func (s *Service) List(ctx context.Context, serviceID string, actor marketplace.Actor, since time.Time) ([]marketplace.Message, error) {
	if _, err := s.Authorize(ctx, serviceID, actor); err != nil {
		return nil, err
	}
	if !since.IsZero() {
		since = since.UTC()
	}
	msgs, err := s.store.ListMessages(ctx, serviceID, since)
	if err != nil {
		return nil, marketplace.StoreUnavailableError{Op: "list messages", Err: err}
	}
	if msgs == nil {
		msgs = []marketplace.Message{}
	}
	return msgs, nil
}

func storeErr(op, serviceID string, err error) error {
	if errors.Is(err, marketplace.ErrNotFound) {
		return marketplace.NotFoundError{Resource: "service request", ID: serviceID}
	}
	return marketplace.StoreUnavailableError{Op: op, Err: err}
}
