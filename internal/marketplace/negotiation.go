package marketplace

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/freehub/internal/logger"
)

// Effects of the negotiation events on the request being transitioned.

func bindProvider(r *ServiceRequest, a Actor, _ Transition) {
	r.ProviderID = a.ID
}

// applyCounterOffer replaces any pending price. A re-proposal by the bound
// provider leaves the binding as it was.
func applyCounterOffer(r *ServiceRequest, a Actor, t Transition) {
	r.ProviderID = a.ID
	r.Price = t.Price
}

// releaseProvider returns the request to the open pool at the client's
// original budget.
func releaseProvider(r *ServiceRequest, _ Actor, _ Transition) {
	r.ProviderID = ""
	if r.Budget.IsPositive() {
		r.Price = r.Budget
	}
}

func keep(*ServiceRequest, Actor, Transition) {}

// Notification tells the counterparty of a transition what happened.
type Notification struct {
	Event       Event           `json:"event"`
	ServiceID   string          `json:"service_id"`
	Title       string          `json:"title"`
	ActorID     string          `json:"actor_id"`
	RecipientID string          `json:"recipient_id"`
	Status      Status          `json:"status"`
	Price       decimal.Decimal `json:"price"`
}

// Notifier delivers notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range ns {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TransitionObserver records the outcome of every negotiation command.
type TransitionObserver interface {
	ObserveTransition(event, outcome string)
}

type Option func(*Negotiator)

func WithNotifier(n Notifier) Option {
	return func(ng *Negotiator) { ng.notifier = n }
}

func WithObserver(o TransitionObserver) Option {
	return func(ng *Negotiator) { ng.observer = o }
}

func WithLogger(l *logger.Logger) Option {
	return func(ng *Negotiator) { ng.log = l }
}

// Negotiator translates negotiation intents into lifecycle events.
type Negotiator struct {
	engine   *Engine
	notifier Notifier
	observer TransitionObserver
	log      *logger.Logger
}

func NewNegotiator(engine *Engine, opts ...Option) *Negotiator {
	ng := &Negotiator{engine: engine, log: logger.Nop()}
	for _, opt := range opts {
		opt(ng)
	}
	return ng
}

// Accept binds the provider at the listed price.
func (ng *Negotiator) Accept(ctx context.Context, serviceID string, provider Actor) (ServiceRequest, error) {
	return ng.fire(ctx, serviceID, provider, Transition{Event: EventAccept})
}

// ProposeCounterOffer asks the client to approve a different price.
func (ng *Negotiator) ProposeCounterOffer(ctx context.Context, serviceID string, provider Actor, price decimal.Decimal) (ServiceRequest, error) {
	return ng.fire(ctx, serviceID, provider, Transition{Event: EventProposeCounterOffer, Price: price})
}

func (ng *Negotiator) ApproveProposal(ctx context.Context, serviceID string, client Actor) (ServiceRequest, error) {
	return ng.fire(ctx, serviceID, client, Transition{Event: EventApproveProposal})
}

func (ng *Negotiator) RejectProposal(ctx context.Context, serviceID string, client Actor) (ServiceRequest, error) {
	return ng.fire(ctx, serviceID, client, Transition{Event: EventRejectProposal})
}

func (ng *Negotiator) Finish(ctx context.Context, serviceID string, actor Actor) (ServiceRequest, error) {
	return ng.fire(ctx, serviceID, actor, Transition{Event: EventFinish})
}

func (ng *Negotiator) fire(ctx context.Context, serviceID string, actor Actor, t Transition) (ServiceRequest, error) {
	before, after, err := ng.engine.apply(ctx, serviceID, actor, t)
	if ng.observer != nil {
		ng.observer.ObserveTransition(string(t.Event), outcome(err))
	}
	if err != nil {
		ng.log.Debug("transition refused", "service_id", serviceID, "event", t.Event, "actor_id", actor.ID, "error", err)
		return ServiceRequest{}, err
	}
	ng.log.Info("transition applied",
		"service_id", serviceID, "event", t.Event, "actor_id", actor.ID,
		"from", before.Status, "to", after.Status, "version", after.Version)
	ng.notify(ctx, before, after, actor, t.Event)
	return after, nil
}

func (ng *Negotiator) notify(ctx context.Context, before, after ServiceRequest, actor Actor, ev Event) {
	if ng.notifier == nil {
		return
	}
	recipient := after.ClientID
	if actor.ID == after.ClientID {
		// rejection has already unbound the provider
		recipient = before.ProviderID
	}
	if recipient == "" {
		return
	}
	n := Notification{
		Event:       ev,
		ServiceID:   after.ID,
		Title:       after.Title,
		ActorID:     actor.ID,
		RecipientID: recipient,
		Status:      after.Status,
		Price:       after.Price,
	}
	if err := ng.notifier.Notify(ctx, n); err != nil {
		ng.log.Warn("notification failed", "service_id", after.ID, "event", ev, "error", err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch StatusCode(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusForbidden:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "rejected"
	default:
		return "error"
	}
}
