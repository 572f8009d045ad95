package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is a lifecycle command applied to a service request.
type Event string

const (
	EventAccept              Event = "accept"
	EventProposeCounterOffer Event = "propose_counter_offer"
	EventApproveProposal     Event = "approve_proposal"
	EventRejectProposal      Event = "reject_proposal"
	EventFinish              Event = "finish"
)

// Transition is an event plus its payload. Price is only read by
// EventProposeCounterOffer.
type Transition struct {
	Event Event
	Price decimal.Decimal
}

type rule struct {
	from []Status
	to   Status
	// authorize returns a non-empty reason when the actor may not fire the event.
	authorize func(r ServiceRequest, a Actor) string
	apply     func(r *ServiceRequest, a Actor, t Transition)
}

func (rl rule) allows(s Status) bool {
	for _, f := range rl.from {
		if f == s {
			return true
		}
	}
	return false
}

var lifecycle = map[Event]rule{
	EventAccept: {
		from:      []Status{StatusOpen},
		to:        StatusAccepted,
		authorize: providerOtherThanClient,
		apply:     bindProvider,
	},
	EventProposeCounterOffer: {
		from:      []Status{StatusOpen, StatusPendingApproval},
		to:        StatusPendingApproval,
		authorize: proposingProvider,
		apply:     applyCounterOffer,
	},
	EventApproveProposal: {
		from:      []Status{StatusPendingApproval},
		to:        StatusAccepted,
		authorize: owningClient,
		apply:     keep,
	},
	EventRejectProposal: {
		from:      []Status{StatusPendingApproval},
		to:        StatusOpen,
		authorize: owningClient,
		apply:     releaseProvider,
	},
	EventFinish: {
		from:      []Status{StatusAccepted},
		to:        StatusFinished,
		authorize: clientOrBoundProvider,
		apply:     keep,
	},
}

func providerOtherThanClient(r ServiceRequest, a Actor) string {
	if a.Role != RoleProvider {
		return "only providers can take on service requests"
	}
	if a.ID == r.ClientID {
		return "cannot take on your own service request"
	}
	return ""
}

func proposingProvider(r ServiceRequest, a Actor) string {
	if reason := providerOtherThanClient(r, a); reason != "" {
		return reason
	}
	if r.Status == StatusPendingApproval && r.ProviderID != a.ID {
		return "another provider's proposal is awaiting approval"
	}
	return ""
}

func owningClient(r ServiceRequest, a Actor) string {
	if a.ID != r.ClientID {
		return "only the client who posted the request can do this"
	}
	return ""
}

func clientOrBoundProvider(r ServiceRequest, a Actor) string {
	if a.ID == r.ClientID || (r.ProviderID != "" && a.ID == r.ProviderID) {
		return ""
	}
	return "only the client or the engaged provider can finish the request"
}

// Engine owns the service request state machine.
type Engine struct {
	store Store
	now   func() time.Time
	newID func() string
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// maxPrice is the first amount that no longer fits NUMERIC(12,2).
var maxPrice = decimal.New(1, 10)

// validPrice accepts positive amounts in whole cents that the stores can hold
// without rounding.
func validPrice(field string, p decimal.Decimal) error {
	switch {
	case !p.IsPositive():
		return ValidationError{Field: field, Msg: "must be greater than zero"}
	case !p.Equal(p.Truncate(2)):
		return ValidationError{Field: field, Msg: "must have at most 2 decimal places"}
	case p.GreaterThanOrEqual(maxPrice):
		return ValidationError{Field: field, Msg: "must be less than " + maxPrice.String()}
	}
	return nil
}

// CreateServiceRequest posts a new request in status open on behalf of a client.
func (e *Engine) CreateServiceRequest(ctx context.Context, actor Actor, cmd CreateRequest) (ServiceRequest, error) {
	if actor.Role != RoleClient {
		return ServiceRequest{}, UnauthorizedError{ActorID: actor.ID, Reason: "only clients can post service requests"}
	}
	title := strings.TrimSpace(cmd.Title)
	description := strings.TrimSpace(cmd.Description)
	switch {
	case title == "":
		return ServiceRequest{}, ValidationError{Field: "title", Msg: "is required"}
	case description == "":
		return ServiceRequest{}, ValidationError{Field: "description", Msg: "is required"}
	}
	if err := validPrice("price", cmd.Price); err != nil {
		return ServiceRequest{}, err
	}

	now := e.now()
	req := ServiceRequest{
		ID:          e.newID(),
		Title:       title,
		Description: description,
		Price:       cmd.Price,
		Budget:      cmd.Price,
		Status:      StatusOpen,
		ClientID:    actor.ID,
		Location:    strings.TrimSpace(cmd.Location),
		ImageURL:    strings.TrimSpace(cmd.ImageURL),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	created, err := e.store.CreateServiceRequest(ctx, req)
	if err != nil {
		return ServiceRequest{}, StoreUnavailableError{Op: "create service request", Err: err}
	}
	return created, nil
}

// ApplyTransition fires t against the service request and returns the
// updated request.
func (e *Engine) ApplyTransition(ctx context.Context, serviceID string, actor Actor, t Transition) (ServiceRequest, error) {
	_, after, err := e.apply(ctx, serviceID, actor, t)
	return after, err
}

// apply returns the request as it was read and as it was written.
func (e *Engine) apply(ctx context.Context, serviceID string, actor Actor, t Transition) (ServiceRequest, ServiceRequest, error) {
	rl, ok := lifecycle[t.Event]
	if !ok {
		return ServiceRequest{}, ServiceRequest{}, ValidationError{Field: "event", Msg: "unknown event " + string(t.Event)}
	}
	if t.Event == EventProposeCounterOffer {
		if err := validPrice("new_price", t.Price); err != nil {
			return ServiceRequest{}, ServiceRequest{}, err
		}
	}

	before, err := e.store.GetServiceRequest(ctx, serviceID)
	if err != nil {
		return ServiceRequest{}, ServiceRequest{}, storeErr("load service request", "service request", serviceID, err)
	}
	if err := check(rl, before, actor, t.Event); err != nil {
		return before, before, err
	}

	next := before
	rl.apply(&next, actor, t)
	next.Status = rl.to
	next.UpdatedAt = e.now()

	after, err := e.store.UpdateServiceRequest(ctx, next)
	if err == nil {
		return before, after, nil
	}
	if !errors.Is(err, ErrStaleWrite) {
		return before, before, storeErr("update service request", "service request", serviceID, err)
	}

	// Lost a race: the guard decides whether the caller can still win.
	latest, gerr := e.store.GetServiceRequest(ctx, serviceID)
	if gerr != nil {
		return before, before, storeErr("reload service request", "service request", serviceID, gerr)
	}
	if err := check(rl, latest, actor, t.Event); err != nil {
		return latest, latest, err
	}
	return latest, latest, ConflictError{Resource: "service request", Msg: "modified concurrently, retry"}
}

func check(rl rule, r ServiceRequest, actor Actor, ev Event) error {
	if reason := rl.authorize(r, actor); reason != "" {
		return UnauthorizedError{ActorID: actor.ID, Event: ev, Reason: reason}
	}
	if !rl.allows(r.Status) {
		return InvalidTransitionError{From: r.Status, Event: ev}
	}
	return nil
}
