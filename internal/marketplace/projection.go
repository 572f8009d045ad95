package marketplace

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Projection builds the read-side views. Every call reads the store afresh.
type Projection struct {
	store Store
}

func NewProjection(store Store) *Projection {
	return &Projection{store: store}
}

// ListOpenRequests returns requests still available to providers, newest first.
func (p *Projection) ListOpenRequests(ctx context.Context) ([]ServiceRequest, error) {
	return p.list(ctx, "list open requests", RequestFilter{
		Statuses: []Status{StatusOpen, StatusPendingApproval},
	})
}

// FeedQuery narrows the open feed. Zero values do not filter.
type FeedQuery struct {
	Search   string
	MinPrice decimal.NullDecimal
	MaxPrice decimal.NullDecimal
	Limit    int
	Offset   int
}

func (q FeedQuery) match(r ServiceRequest) bool {
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(r.Title), needle) &&
			!strings.Contains(strings.ToLower(r.Description), needle) {
			return false
		}
	}
	if q.MinPrice.Valid && r.Price.LessThan(q.MinPrice.Decimal) {
		return false
	}
	if q.MaxPrice.Valid && r.Price.GreaterThan(q.MaxPrice.Decimal) {
		return false
	}
	return true
}

// SearchOpenRequests is ListOpenRequests filtered and paged by q.
func (p *Projection) SearchOpenRequests(ctx context.Context, q FeedQuery) ([]ServiceRequest, error) {
	all, err := p.ListOpenRequests(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ServiceRequest, 0, len(all))
	for _, r := range all {
		if q.match(r) {
			out = append(out, r)
		}
	}
	if q.Offset >= len(out) {
		return []ServiceRequest{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// ListProviderProjects returns the provider's accepted and finished work.
func (p *Projection) ListProviderProjects(ctx context.Context, providerID string) ([]ServiceRequest, error) {
	return p.list(ctx, "list provider projects", RequestFilter{
		ProviderID: providerID,
		Statuses:   []Status{StatusAccepted, StatusFinished},
	})
}

// ListClientRequests returns every request the client posted.
func (p *Projection) ListClientRequests(ctx context.Context, clientID string) ([]ServiceRequest, error) {
	return p.list(ctx, "list client requests", RequestFilter{ClientID: clientID})
}

func (p *Projection) GetServiceRequest(ctx context.Context, id string) (ServiceRequest, error) {
	req, err := p.store.GetServiceRequest(ctx, id)
	if err != nil {
		return ServiceRequest{}, storeErr("get service request", "service request", id, err)
	}
	return req, nil
}

// EarningsSummary sums the price of every finished request bound to the provider.
func (p *Projection) EarningsSummary(ctx context.Context, providerID string) (Earnings, error) {
	finished, err := p.list(ctx, "earnings summary", RequestFilter{
		ProviderID: providerID,
		Statuses:   []Status{StatusFinished},
	})
	if err != nil {
		return Earnings{}, err
	}
	total := decimal.Zero
	for _, r := range finished {
		total = total.Add(r.Price)
	}
	return Earnings{Total: total, Count: len(finished), History: finished}, nil
}

func (p *Projection) list(ctx context.Context, op string, f RequestFilter) ([]ServiceRequest, error) {
	reqs, err := p.store.ListServiceRequests(ctx, f)
	if err != nil {
		return nil, StoreUnavailableError{Op: op, Err: err}
	}
	if reqs == nil {
		reqs = []ServiceRequest{}
	}
	return reqs, nil
}
