// Package storetest holds the behaviour every store.Store backend must share.
//
// Backends call Run from their own tests. The memory store always runs it;
// the PostgreSQL and MongoDB stores run it when a server is configured.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/subscription"
	"github.com/xraph/cyclebill/types"
)

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// Run exercises s. The store must be migrated; each call seeds its own
// plan and subscription, so a shared database is fine.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	t.Run("lookups miss with not found", func(t *testing.T) { missing(t, s) })
	t.Run("active cycle bounds", func(t *testing.T) { activeBounds(t, s) })
	t.Run("duplicate cycle start conflicts", func(t *testing.T) { duplicateStart(t, s) })
	t.Run("failed transaction writes nothing", func(t *testing.T) { rollback(t, s) })
}

// Seed stores an active plan and subscription and returns the subscription.
func Seed(t *testing.T, s store.Store, products ...plan.Product) *subscription.Subscription {
	t.Helper()
	ctx := context.Background()

	p := &plan.Plan{
		Entity:    types.NewEntityAt(day0),
		ID:        id.NewPlanID(),
		Name:      "Contract plan",
		Currency:  "cop",
		Status:    plan.StatusActive,
		Price:     types.New(1000000, "cop"),
		CycleDays: 30,
		Products:  products,
	}
	require.NoError(t, s.Plans().Create(ctx, p))

	sub := &subscription.Subscription{
		Entity:     types.NewEntityAt(day0),
		ID:         id.NewSubscriptionID(),
		CustomerID: id.NewCustomerID(),
		PlanID:     p.ID,
		Status:     subscription.StatusActive,
		StartedAt:  day0,
	}
	require.NoError(t, s.Subscriptions().Create(ctx, sub))
	return sub
}

// NewCycle builds a 30-day cycle of subID starting on start with one detail
// row per product.
func NewCycle(subID id.SubscriptionID, start time.Time, products ...id.ProductID) *cycle.Cycle {
	c := &cycle.Cycle{
		Entity:         types.NewEntityAt(start),
		ID:             id.NewCycleID(),
		SubscriptionID: subID,
		Currency:       "cop",
		Start:          start,
		End:            start.AddDate(0, 0, 30),
		DueDate:        start.AddDate(0, 0, 5),
		TotalAmount:    types.New(1000000, "cop"),
		PaidAmount:     types.Zero("cop"),
		PendingBalance: types.New(1000000, "cop"),
		CreditBalance:  types.Zero("cop"),
		Status:         cycle.StatusPending,
	}
	for _, pid := range products {
		c.Details = append(c.Details, cycle.Detail{
			Entity:           types.NewEntityAt(start),
			ID:               id.NewCycleDetailID(),
			CycleID:          c.ID,
			ProductID:        pid,
			PlannedQuantity:  10,
			RemainingBalance: 10,
		})
	}
	return c
}

func missing(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := Seed(t, s)

	_, err := s.Cycles().GetActive(ctx, sub.ID, day0)
	assert.ErrorIs(t, err, cyclebill.ErrCycleNotFound)
	assert.True(t, cyclebill.IsNotFound(err))

	err = s.Transact(ctx, func(ctx context.Context, tx store.Repositories) error {
		_, err := tx.Cycles().GetActive(ctx, sub.ID, day0)
		return err
	})
	assert.ErrorIs(t, err, cyclebill.ErrCycleNotFound)

	_, err = s.Cycles().Get(ctx, id.NewCycleID())
	assert.ErrorIs(t, err, cyclebill.ErrCycleNotFound)

	_, err = s.Subscriptions().Get(ctx, id.NewSubscriptionID())
	assert.ErrorIs(t, err, cyclebill.ErrSubscriptionNotFound)

	_, err = s.Plans().Get(ctx, id.NewPlanID())
	assert.ErrorIs(t, err, cyclebill.ErrPlanNotFound)

	_, err = s.Payments().GetByReference(ctx, id.NewCycleID(), "TRX-1")
	assert.ErrorIs(t, err, cyclebill.ErrPaymentNotFound)
}

func activeBounds(t *testing.T, s store.Store) {
	ctx := context.Background()
	pid := id.NewProductID()
	sub := Seed(t, s, plan.Product{ProductID: pid, Name: "20L bottle", Quantity: 10})
	c := NewCycle(sub.ID, day0, pid)
	require.NoError(t, s.Cycles().Create(ctx, c))

	for _, day := range []time.Time{c.Start, c.Start.Add(23 * time.Hour), c.End, c.End.Add(23 * time.Hour)} {
		got, err := s.Cycles().GetActive(ctx, sub.ID, day)
		require.NoError(t, err, day)
		assert.Equal(t, c.ID, got.ID)
		require.Len(t, got.Details, 1)
		assert.Equal(t, pid, got.Details[0].ProductID)
	}

	_, err := s.Cycles().GetActive(ctx, sub.ID, c.End.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, cyclebill.ErrCycleNotFound)
	_, err = s.Cycles().GetActive(ctx, sub.ID, c.Start.Add(-time.Hour))
	assert.ErrorIs(t, err, cyclebill.ErrCycleNotFound)
}

func duplicateStart(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := Seed(t, s)
	require.NoError(t, s.Cycles().Create(ctx, NewCycle(sub.ID, day0)))

	err := s.Cycles().Create(ctx, NewCycle(sub.ID, day0))
	require.Error(t, err)
	assert.True(t, cyclebill.IsRetryable(err), "got %v", err)

	cycles, err := s.Cycles().ListBySubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}

func rollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := Seed(t, s)
	c := NewCycle(sub.ID, day0)
	boom := errors.New("boom")

	err := s.Transact(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := tx.Cycles().Create(ctx, c); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Cycles().Get(ctx, c.ID)
	assert.ErrorIs(t, err, cyclebill.ErrCycleNotFound)
}
