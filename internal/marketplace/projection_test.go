package marketplace_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/freehub/internal/marketplace"
	"github.com/sudo-init-do/freehub/internal/store/memory"
)

// seed stores requests directly so creation times are deterministic.
func seed(t *testing.T, st *memory.Store, reqs ...marketplace.ServiceRequest) {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, r := range reqs {
		if r.Budget.IsZero() {
			r.Budget = r.Price
		}
		if r.Description == "" {
			r.Description = "details"
		}
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		r.UpdatedAt = r.CreatedAt
		r.Version = 1
		_, err := st.CreateServiceRequest(context.Background(), r)
		require.NoError(t, err)
	}
}

func ids(reqs []marketplace.ServiceRequest) []string {
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.ID)
	}
	return out
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestListOpenRequests(t *testing.T) {
	st := memory.New()
	seed(t, st,
		marketplace.ServiceRequest{ID: "r1", Title: "Fix sink", Price: price(100), Status: marketplace.StatusOpen, ClientID: "c1"},
		marketplace.ServiceRequest{ID: "r2", Title: "Mow lawn", Price: price(40), Status: marketplace.StatusAccepted, ClientID: "c1", ProviderID: "p1"},
		marketplace.ServiceRequest{ID: "r3", Title: "Paint wall", Price: price(80), Status: marketplace.StatusPendingApproval, ClientID: "c2", ProviderID: "p2"},
		marketplace.ServiceRequest{ID: "r4", Title: "Tile floor", Price: price(300), Status: marketplace.StatusFinished, ClientID: "c2", ProviderID: "p1"},
	)
	p := marketplace.NewProjection(st)

	open, err := p.ListOpenRequests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r1"}, ids(open), "open and pending, newest first")
}

func TestSearchOpenRequests(t *testing.T) {
	st := memory.New()
	seed(t, st,
		marketplace.ServiceRequest{ID: "r1", Title: "Fix kitchen sink", Price: price(100), Status: marketplace.StatusOpen, ClientID: "c1"},
		marketplace.ServiceRequest{ID: "r2", Title: "Garden work", Description: "prune the hedge by the SINK", Price: price(40), Status: marketplace.StatusOpen, ClientID: "c1"},
		marketplace.ServiceRequest{ID: "r3", Title: "Paint wall", Price: price(250), Status: marketplace.StatusOpen, ClientID: "c2"},
		marketplace.ServiceRequest{ID: "r4", Title: "Sink install", Price: price(500), Status: marketplace.StatusAccepted, ClientID: "c2", ProviderID: "p1"},
	)
	p := marketplace.NewProjection(st)
	ctx := context.Background()

	tests := []struct {
		name string
		q    marketplace.FeedQuery
		want []string
	}{
		{"no filter", marketplace.FeedQuery{}, []string{"r3", "r2", "r1"}},
		{"search title and description", marketplace.FeedQuery{Search: "sink"}, []string{"r2", "r1"}},
		{"min price", marketplace.FeedQuery{MinPrice: decimal.NewNullDecimal(price(100))}, []string{"r3", "r1"}},
		{"max price", marketplace.FeedQuery{MaxPrice: decimal.NewNullDecimal(price(100))}, []string{"r2", "r1"}},
		{"price window", marketplace.FeedQuery{
			MinPrice: decimal.NewNullDecimal(price(50)),
			MaxPrice: decimal.NewNullDecimal(price(200)),
		}, []string{"r1"}},
		{"limit", marketplace.FeedQuery{Limit: 2}, []string{"r3", "r2"}},
		{"offset", marketplace.FeedQuery{Limit: 2, Offset: 2}, []string{"r1"}},
		{"offset past end", marketplace.FeedQuery{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.SearchOpenRequests(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestProviderAndClientViews(t *testing.T) {
	st := memory.New()
	seed(t, st,
		marketplace.ServiceRequest{ID: "r1", Title: "a", Price: price(100), Status: marketplace.StatusOpen, ClientID: "c1"},
		marketplace.ServiceRequest{ID: "r2", Title: "b", Price: price(40), Status: marketplace.StatusAccepted, ClientID: "c1", ProviderID: "p1"},
		marketplace.ServiceRequest{ID: "r3", Title: "c", Price: price(80), Status: marketplace.StatusPendingApproval, ClientID: "c2", ProviderID: "p1"},
		marketplace.ServiceRequest{ID: "r4", Title: "d", Price: price(300), Status: marketplace.StatusFinished, ClientID: "c2", ProviderID: "p1"},
		marketplace.ServiceRequest{ID: "r5", Title: "e", Price: price(25), Status: marketplace.StatusFinished, ClientID: "c1", ProviderID: "p2"},
	)
	p := marketplace.NewProjection(st)
	ctx := context.Background()

	projects, err := p.ListProviderProjects(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r4", "r2"}, ids(projects), "pending proposals are not projects yet")

	mine, err := p.ListClientRequests(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r5", "r2", "r1"}, ids(mine))

	none, err := p.ListClientRequests(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = p.GetServiceRequest(ctx, "missing")
	var nf marketplace.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestEarningsSummary(t *testing.T) {
	st := memory.New()
	seed(t, st,
		marketplace.ServiceRequest{ID: "r1", Title: "a", Price: decimal.RequireFromString("100.50"), Status: marketplace.StatusFinished, ClientID: "c1", ProviderID: "p1"},
		marketplace.ServiceRequest{ID: "r2", Title: "b", Price: price(40), Status: marketplace.StatusAccepted, ClientID: "c1", ProviderID: "p1"},
		marketplace.ServiceRequest{ID: "r3", Title: "c", Price: decimal.RequireFromString("0.25"), Status: marketplace.StatusFinished, ClientID: "c2", ProviderID: "p1"},
		marketplace.ServiceRequest{ID: "r4", Title: "d", Price: price(999), Status: marketplace.StatusFinished, ClientID: "c2", ProviderID: "p2"},
	)
	p := marketplace.NewProjection(st)
	ctx := context.Background()

	e, err := p.EarningsSummary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "100.75", e.Total.StringFixed(2))
	assert.Equal(t, 2, e.Count)
	assert.Equal(t, []string{"r3", "r1"}, ids(e.History))

	zero, err := p.EarningsSummary(ctx, "p-new")
	require.NoError(t, err)
	assert.True(t, zero.Total.IsZero())
	assert.Equal(t, 0, zero.Count)
	require.NotNil(t, zero.History)
	assert.Empty(t, zero.History)
}
