package cyclebill_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/store/memory"
	"github.com/xraph/cyclebill/subscription"
	"github.com/xraph/cyclebill/types"
)

func cop(cents int64) types.Money { return types.New(cents, "cop") }

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *cyclebill.Engine
	now    time.Time
}

func newFixture(t *testing.T, opts ...cyclebill.Option) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.New(),
		now:   time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	f.engine = f.newEngine(f.store, opts...)
	return f
}

func (f *fixture) newEngine(s store.Store, opts ...cyclebill.Option) *cyclebill.Engine {
	base := []cyclebill.Option{
		cyclebill.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		cyclebill.WithClock(func() time.Time { return f.now }),
	}
	return cyclebill.New(s, append(base, opts...)...)
}

func (f *fixture) today() time.Time { return cycle.Day(f.now) }

func (f *fixture) plan(price int64, products ...plan.Product) *plan.Plan {
	f.t.Helper()
	p := &plan.Plan{
		Name:      "Weekly water",
		Slug:      "weekly-water-" + id.NewPlanID().String(),
		Currency:  "cop",
		Price:     cop(price),
		CycleDays: 30,
		TermDays:  5,
		Products:  products,
	}
	require.NoError(f.t, f.engine.CreatePlan(f.ctx, p))
	return p
}

func (f *fixture) subscribe(p *plan.Plan) *subscription.Subscription {
	f.t.Helper()
	sub, err := f.engine.CreateSubscription(f.ctx, id.NewCustomerID(), p.ID)
	require.NoError(f.t, err)
	return sub
}

// seedCycle stores a cycle directly, bypassing the engine.
func (f *fixture) seedCycle(sub *subscription.Subscription, startOffset, days int, pending, paid, credit int64) *cycle.Cycle {
	f.t.Helper()
	start := f.today().AddDate(0, 0, startOffset)
	c := &cycle.Cycle{
		Entity:         types.NewEntityAt(f.now),
		ID:             id.NewCycleID(),
		SubscriptionID: sub.ID,
		Currency:       "cop",
		Start:          start,
		End:            start.AddDate(0, 0, days),
		DueDate:        start.AddDate(0, 0, days),
		TotalAmount:    cop(pending + paid),
		PaidAmount:     cop(paid),
		PendingBalance: cop(pending),
		CreditBalance:  cop(credit),
		Status:         cycle.StatusPending,
	}
	c.RecomputeStatus()
	require.NoError(f.t, f.store.Cycles().Create(f.ctx, c))
	return c
}

func (f *fixture) cycle(cycleID id.CycleID) *cycle.Cycle {
	f.t.Helper()
	c, err := f.store.Cycles().Get(f.ctx, cycleID)
	require.NoError(f.t, err)
	return c
}
