package marketplace_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/freehub/internal/marketplace"
	"github.com/sudo-init-do/freehub/internal/store/memory"
)

var (
	client    = marketplace.Actor{ID: "client-1", Role: marketplace.RoleClient}
	provider1 = marketplace.Actor{ID: "provider-1", Role: marketplace.RoleProvider}
	provider2 = marketplace.Actor{ID: "provider-2", Role: marketplace.RoleProvider}
)

type fixture struct {
	store      *memory.Store
	engine     *marketplace.Engine
	negotiator *marketplace.Negotiator
	projection *marketplace.Projection
}

func newFixture(opts ...marketplace.Option) *fixture {
	st := memory.New()
	engine := marketplace.NewEngine(st)
	return &fixture{
		store:      st,
		engine:     engine,
		negotiator: marketplace.NewNegotiator(engine, opts...),
		projection: marketplace.NewProjection(st),
	}
}

func (f *fixture) create(t *testing.T, title string, price int64) marketplace.ServiceRequest {
	t.Helper()
	req, err := f.engine.CreateServiceRequest(context.Background(), client, marketplace.CreateRequest{
		Title:       title,
		Description: "details for " + title,
		Price:       decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	return req
}

// requestIn drives a fresh request at price 100 into the given status. Pending
// and later states are bound to provider1; pending carries a proposal of 80.
func (f *fixture) requestIn(t *testing.T, status marketplace.Status) marketplace.ServiceRequest {
	t.Helper()
	ctx := context.Background()
	req := f.create(t, "Fix sink", 100)
	var err error
	switch status {
	case marketplace.StatusOpen:
	case marketplace.StatusPendingApproval:
		req, err = f.negotiator.ProposeCounterOffer(ctx, req.ID, provider1, decimal.NewFromInt(80))
	case marketplace.StatusAccepted:
		req, err = f.negotiator.Accept(ctx, req.ID, provider1)
	case marketplace.StatusFinished:
		req, err = f.negotiator.Accept(ctx, req.ID, provider1)
		require.NoError(t, err)
		req, err = f.negotiator.Finish(ctx, req.ID, client)
	}
	require.NoError(t, err)
	require.Equal(t, status, req.Status)
	return req
}

func assertInvariant(t *testing.T, r marketplace.ServiceRequest) {
	t.Helper()
	if r.Status == marketplace.StatusOpen {
		assert.Empty(t, r.ProviderID, "open request must not be bound")
	} else {
		assert.NotEmpty(t, r.ProviderID, "%s request must be bound", r.Status)
	}
	assert.True(t, r.Price.IsPositive(), "price must stay positive")
}

func TestCreateServiceRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := f.create(t, "  Fix sink  ", 100)
	assert.Equal(t, "Fix sink", req.Title)
	assert.Equal(t, marketplace.StatusOpen, req.Status)
	assert.Empty(t, req.ProviderID)
	assert.Equal(t, client.ID, req.ClientID)
	assert.True(t, req.Budget.Equal(req.Price))

	tests := []struct {
		name  string
		actor marketplace.Actor
		cmd   marketplace.CreateRequest
		check func(t *testing.T, err error)
	}{
		{"provider cannot post", provider1, marketplace.CreateRequest{Title: "t", Description: "d", Price: decimal.NewFromInt(1)}, func(t *testing.T, err error) {
			var ue marketplace.UnauthorizedError
			assert.ErrorAs(t, err, &ue)
		}},
		{"blank title", client, marketplace.CreateRequest{Title: "  ", Description: "d", Price: decimal.NewFromInt(1)}, func(t *testing.T, err error) {
			var ve marketplace.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "title", ve.Field)
		}},
		{"zero price", client, marketplace.CreateRequest{Title: "t", Description: "d"}, func(t *testing.T, err error) {
			var ve marketplace.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "price", ve.Field)
		}},
		{"negative price", client, marketplace.CreateRequest{Title: "t", Description: "d", Price: decimal.NewFromInt(-5)}, func(t *testing.T, err error) {
			var ve marketplace.ValidationError
			assert.ErrorAs(t, err, &ve)
		}},
		{"sub-cent price", client, marketplace.CreateRequest{Title: "t", Description: "d", Price: decimal.RequireFromString("0.001")}, func(t *testing.T, err error) {
			var ve marketplace.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "price", ve.Field)
		}},
		{"fractional cents", client, marketplace.CreateRequest{Title: "t", Description: "d", Price: decimal.RequireFromString("80.005")}, func(t *testing.T, err error) {
			var ve marketplace.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "price", ve.Field)
		}},
		{"price too large", client, marketplace.CreateRequest{Title: "t", Description: "d", Price: decimal.RequireFromString("10000000000")}, func(t *testing.T, err error) {
			var ve marketplace.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "price", ve.Field)
		}},
		{"largest storable price", client, marketplace.CreateRequest{Title: "t", Description: "d", Price: decimal.RequireFromString("9999999999.99")}, func(t *testing.T, err error) {
			assert.NoError(t, err)
		}},
		{"cents kept", client, marketplace.CreateRequest{Title: "t", Description: "d", Price: decimal.RequireFromString("80.50")}, func(t *testing.T, err error) {
			assert.NoError(t, err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateServiceRequest(ctx, tt.actor, tt.cmd)
			tt.check(t, err)
		})
	}
}

type outcomeKind int

const (
	wantOK outcomeKind = iota
	wantInvalid
	wantUnauthorized
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name   string
		from   marketplace.Status
		event  marketplace.Event
		actor  marketplace.Actor
		price  int64
		want   outcomeKind
		to     marketplace.Status
		verify func(t *testing.T, r marketplace.ServiceRequest)
	}{
		{name: "accept open", from: marketplace.StatusOpen, event: marketplace.EventAccept, actor: provider1, want: wantOK, to: marketplace.StatusAccepted,
			verify: func(t *testing.T, r marketplace.ServiceRequest) {
				assert.Equal(t, provider1.ID, r.ProviderID)
				assert.True(t, r.Price.Equal(decimal.NewFromInt(100)))
			}},
		{name: "accept by client", from: marketplace.StatusOpen, event: marketplace.EventAccept, actor: client, want: wantUnauthorized},
		{name: "accept pending", from: marketplace.StatusPendingApproval, event: marketplace.EventAccept, actor: provider2, want: wantInvalid},
		{name: "accept accepted", from: marketplace.StatusAccepted, event: marketplace.EventAccept, actor: provider2, want: wantInvalid},
		{name: "accept finished", from: marketplace.StatusFinished, event: marketplace.EventAccept, actor: provider1, want: wantInvalid},

		{name: "propose on open", from: marketplace.StatusOpen, event: marketplace.EventProposeCounterOffer, actor: provider1, price: 80, want: wantOK, to: marketplace.StatusPendingApproval,
			verify: func(t *testing.T, r marketplace.ServiceRequest) {
				assert.Equal(t, provider1.ID, r.ProviderID)
				assert.True(t, r.Price.Equal(decimal.NewFromInt(80)))
				assert.True(t, r.Budget.Equal(decimal.NewFromInt(100)))
			}},
		{name: "re-propose by same provider", from: marketplace.StatusPendingApproval, event: marketplace.EventProposeCounterOffer, actor: provider1, price: 90, want: wantOK, to: marketplace.StatusPendingApproval,
			verify: func(t *testing.T, r marketplace.ServiceRequest) {
				assert.True(t, r.Price.Equal(decimal.NewFromInt(90)))
			}},
		{name: "propose over another provider", from: marketplace.StatusPendingApproval, event: marketplace.EventProposeCounterOffer, actor: provider2, price: 70, want: wantUnauthorized},
		{name: "propose on accepted", from: marketplace.StatusAccepted, event: marketplace.EventProposeCounterOffer, actor: provider1, price: 70, want: wantInvalid},
		{name: "propose on finished", from: marketplace.StatusFinished, event: marketplace.EventProposeCounterOffer, actor: provider1, price: 70, want: wantInvalid},

		{name: "approve pending", from: marketplace.StatusPendingApproval, event: marketplace.EventApproveProposal, actor: client, want: wantOK, to: marketplace.StatusAccepted,
			verify: func(t *testing.T, r marketplace.ServiceRequest) {
				assert.Equal(t, provider1.ID, r.ProviderID)
				assert.True(t, r.Price.Equal(decimal.NewFromInt(80)))
			}},
		{name: "approve by provider", from: marketplace.StatusPendingApproval, event: marketplace.EventApproveProposal, actor: provider1, want: wantUnauthorized},
		{name: "approve open", from: marketplace.StatusOpen, event: marketplace.EventApproveProposal, actor: client, want: wantInvalid},
		{name: "approve accepted", from: marketplace.StatusAccepted, event: marketplace.EventApproveProposal, actor: client, want: wantInvalid},

		{name: "reject pending", from: marketplace.StatusPendingApproval, event: marketplace.EventRejectProposal, actor: client, want: wantOK, to: marketplace.StatusOpen,
			verify: func(t *testing.T, r marketplace.ServiceRequest) {
				assert.Empty(t, r.ProviderID)
				assert.True(t, r.Price.Equal(decimal.NewFromInt(100)))
			}},
		{name: "reject by other provider", from: marketplace.StatusPendingApproval, event: marketplace.EventRejectProposal, actor: provider2, want: wantUnauthorized},
		{name: "reject open", from: marketplace.StatusOpen, event: marketplace.EventRejectProposal, actor: client, want: wantInvalid},
		{name: "reject accepted", from: marketplace.StatusAccepted, event: marketplace.EventRejectProposal, actor: client, want: wantInvalid},

		{name: "finish by client", from: marketplace.StatusAccepted, event: marketplace.EventFinish, actor: client, want: wantOK, to: marketplace.StatusFinished},
		{name: "finish by bound provider", from: marketplace.StatusAccepted, event: marketplace.EventFinish, actor: provider1, want: wantOK, to: marketplace.StatusFinished},
		{name: "finish by stranger", from: marketplace.StatusAccepted, event: marketplace.EventFinish, actor: provider2, want: wantUnauthorized},
		{name: "finish open", from: marketplace.StatusOpen, event: marketplace.EventFinish, actor: client, want: wantInvalid},
		{name: "finish pending", from: marketplace.StatusPendingApproval, event: marketplace.EventFinish, actor: client, want: wantInvalid},
		{name: "finish finished", from: marketplace.StatusFinished, event: marketplace.EventFinish, actor: client, want: wantInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			before := f.requestIn(t, tt.from)

			got, err := f.engine.ApplyTransition(ctx, before.ID, tt.actor, marketplace.Transition{
				Event: tt.event,
				Price: decimal.NewFromInt(tt.price),
			})

			stored, gerr := f.store.GetServiceRequest(ctx, before.ID)
			require.NoError(t, gerr)
			assertInvariant(t, stored)

			switch tt.want {
			case wantOK:
				require.NoError(t, err)
				assert.Equal(t, tt.to, got.Status)
				assert.Equal(t, before.Version+1, stored.Version)
				assert.Equal(t, got, stored)
				if tt.verify != nil {
					tt.verify(t, got)
				}
			case wantInvalid:
				var ite marketplace.InvalidTransitionError
				require.ErrorAs(t, err, &ite)
				assert.Equal(t, tt.from, ite.From)
				assert.Equal(t, tt.event, ite.Event)
				assert.Equal(t, before, stored, "state must be unchanged")
			case wantUnauthorized:
				var ue marketplace.UnauthorizedError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, tt.actor.ID, ue.ActorID)
				assert.Equal(t, before, stored, "state must be unchanged")
			}
		})
	}
}

func TestApplyTransitionErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, "Fix sink", 100)

	_, err := f.engine.ApplyTransition(ctx, "missing", provider1, marketplace.Transition{Event: marketplace.EventAccept})
	var nf marketplace.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = f.engine.ApplyTransition(ctx, req.ID, provider1, marketplace.Transition{Event: "teleport"})
	var ve marketplace.ValidationError
	assert.ErrorAs(t, err, &ve)

	for _, p := range []string{"0", "0.001", "80.005", "10000000000"} {
		_, err = f.engine.ApplyTransition(ctx, req.ID, provider1, marketplace.Transition{
			Event: marketplace.EventProposeCounterOffer, Price: decimal.RequireFromString(p),
		})
		require.ErrorAs(t, err, &ve, "new price %s", p)
		assert.Equal(t, "new_price", ve.Field)
	}
	stored, err := f.store.GetServiceRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusOpen, stored.Status, "rejected offers leave the request untouched")

	// the client cannot take on their own request even with a provider role
	self := marketplace.Actor{ID: client.ID, Role: marketplace.RoleProvider}
	_, err = f.engine.ApplyTransition(ctx, req.ID, self, marketplace.Transition{Event: marketplace.EventAccept})
	var ue marketplace.UnauthorizedError
	assert.ErrorAs(t, err, &ue)

	offered, err := f.engine.ApplyTransition(ctx, req.ID, provider1, marketplace.Transition{
		Event: marketplace.EventProposeCounterOffer, Price: decimal.RequireFromString("80.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "80.50", offered.Price.StringFixed(2))
}

func TestScenarioAcceptFinishEarnings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := f.create(t, "Fix sink", 100)
	assert.Equal(t, marketplace.StatusOpen, req.Status)
	assert.Empty(t, req.ProviderID)

	req, err := f.negotiator.Accept(ctx, req.ID, provider1)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusAccepted, req.Status)
	assert.Equal(t, provider1.ID, req.ProviderID)

	req, err = f.negotiator.Finish(ctx, req.ID, client)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusFinished, req.Status)

	earnings, err := f.projection.EarningsSummary(ctx, provider1.ID)
	require.NoError(t, err)
	assert.True(t, earnings.Total.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, earnings.Count)
	require.Len(t, earnings.History, 1)
	assert.Equal(t, req.ID, earnings.History[0].ID)
}

func TestScenarioProposeThenReject(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	req := f.create(t, "Fix sink", 100)

	req, err := f.negotiator.ProposeCounterOffer(ctx, req.ID, provider1, decimal.NewFromInt(80))
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusPendingApproval, req.Status)
	assert.True(t, req.Price.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, provider1.ID, req.ProviderID)

	req, err = f.negotiator.RejectProposal(ctx, req.ID, client)
	require.NoError(t, err)
	assert.Equal(t, marketplace.StatusOpen, req.Status)
	assert.Empty(t, req.ProviderID)
	assert.True(t, req.Price.Equal(decimal.NewFromInt(100)))

	// rejecting again finds the request already open
	_, err = f.negotiator.RejectProposal(ctx, req.ID, client)
	var ite marketplace.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, marketplace.StatusOpen, ite.From)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture()
		req := f.create(t, "Fix sink", 100)

		providers := []marketplace.Actor{
			provider1,
			provider2,
			{ID: "provider-3", Role: marketplace.RoleProvider},
			{ID: "provider-4", Role: marketplace.RoleProvider},
		}
		errs := make([]error, len(providers))

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i, p := range providers {
			wg.Add(1)
			go func(i int, p marketplace.Actor) {
				defer wg.Done()
				<-start
				_, errs[i] = f.negotiator.Accept(context.Background(), req.ID, p)
			}(i, p)
		}
		close(start)
		wg.Wait()

		winners := 0
		winner := ""
		for i, err := range errs {
			if err == nil {
				winners++
				winner = providers[i].ID
				continue
			}
			var ite marketplace.InvalidTransitionError
			require.ErrorAs(t, err, &ite, "losers must observe InvalidTransition")
			assert.Equal(t, marketplace.StatusAccepted, ite.From)
		}
		require.Equal(t, 1, winners)

		stored, err := f.store.GetServiceRequest(context.Background(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, winner, stored.ProviderID)
		assert.Equal(t, int64(2), stored.Version)
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]marketplace.Status{
		"open":             marketplace.StatusOpen,
		"ABERTO":           marketplace.StatusOpen,
		"pending_approval": marketplace.StatusPendingApproval,
		"ANALISE":          marketplace.StatusPendingApproval,
		"EM_ANDAMENTO":     marketplace.StatusAccepted,
		"in_progress":      marketplace.StatusAccepted,
		" CONCLUIDO ":      marketplace.StatusFinished,
		"completed":        marketplace.StatusFinished,
	}
	for in, want := range tests {
		got, ok := marketplace.ParseStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
		assert.True(t, got.Valid())
	}

	_, ok := marketplace.ParseStatus("cancelled")
	assert.False(t, ok)
	assert.False(t, marketplace.Status("ABERTO").Valid())
}

func TestParseRole(t *testing.T) {
	r, ok := marketplace.ParseRole("PRESTADOR")
	assert.True(t, ok)
	assert.Equal(t, marketplace.RoleProvider, r)

	r, ok = marketplace.ParseRole("cliente")
	assert.True(t, ok)
	assert.Equal(t, marketplace.RoleClient, r)

	_, ok = marketplace.ParseRole("admin")
	assert.False(t, ok)
}
