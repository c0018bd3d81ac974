package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill"
	audithook "github.com/xraph/cyclebill/audit_hook"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/store/memory"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *memRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type setup struct {
	ctx    context.Context
	engine *cyclebill.Engine
	water  id.ProductID
	subID  id.SubscriptionID
}

func newSetup(t *testing.T, ext *audithook.Extension) *setup {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	engine := cyclebill.New(memory.New(),
		cyclebill.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		cyclebill.WithClock(func() time.Time { return now }),
		cyclebill.WithPlugin(ext),
	)

	water := id.NewProductID()
	p := &plan.Plan{
		Name:      "Home water",
		Slug:      "home-water",
		Currency:  "cop",
		Price:     cyclebill.NewMoney(2000000, "cop"),
		CycleDays: 30,
		TermDays:  5,
		Products:  []plan.Product{{ProductID: water, Name: "20L bottle", Quantity: 10}},
	}
	require.NoError(t, engine.CreatePlan(ctx, p))
	sub, err := engine.CreateSubscription(ctx, id.NewCustomerID(), p.ID)
	require.NoError(t, err)

	return &setup{ctx: ctx, engine: engine, water: water, subID: sub.ID}
}

func TestAuditTrail(t *testing.T) {
	rec := &memRecorder{}
	s := newSetup(t, audithook.New(rec))

	b, err := s.engine.ValidateQuotas(s.ctx, s.subID, []quota.Item{{ProductID: s.water, Quantity: 12}})
	require.NoError(t, err)
	require.NoError(t, s.engine.ApplyDelivery(s.ctx, s.subID, []quota.Item{{ProductID: s.water, Quantity: 2}}))

	p, err := s.engine.RegisterPayment(s.ctx, cyclebill.PaymentInput{
		CycleID:   b.CycleID,
		Amount:    cyclebill.NewMoney(2500000, "cop"),
		Reference: "bank-0001",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		audithook.ActionCycleProvisioned,
		audithook.ActionQuotaExceeded,
		audithook.ActionDeliveryApplied,
		audithook.ActionPaymentRegistered,
	}, rec.actions())

	exceeded := rec.events[1]
	assert.Equal(t, audithook.OutcomePartial, exceeded.Outcome)
	assert.Equal(t, 10, exceeded.Metadata["covered"])
	assert.Equal(t, 2, exceeded.Metadata["additional"])

	paid := rec.events[3]
	assert.Equal(t, p.ID.String(), paid.ResourceID)
	assert.Equal(t, audithook.ResourcePayment, paid.Resource)
	assert.Equal(t, "bank-0001", paid.Metadata["reference"])
	assert.Equal(t, string(cycle.StatusCredited), paid.Metadata["payment_status"])
	assert.Equal(t, "5000.00 COP", paid.Metadata["credit_balance"])
}

func TestAuditCoveredOrderIsNotRecorded(t *testing.T) {
	rec := &memRecorder{}
	s := newSetup(t, audithook.New(rec, audithook.WithDisabledActions(audithook.ActionCycleProvisioned)))

	_, err := s.engine.ValidateQuotas(s.ctx, s.subID, []quota.Item{{ProductID: s.water, Quantity: 3}})
	require.NoError(t, err)

	assert.Empty(t, rec.actions())
}

func TestAuditEnabledActions(t *testing.T) {
	rec := &memRecorder{}
	s := newSetup(t, audithook.New(rec, audithook.WithEnabledActions(audithook.ActionDeliveryRolledBack)))

	_, err := s.engine.EnsureCycle(s.ctx, s.subID)
	require.NoError(t, err)

	items := []quota.Item{{ProductID: s.water, Quantity: 2}}
	require.NoError(t, s.engine.ApplyDelivery(s.ctx, s.subID, items))
	require.NoError(t, s.engine.RollbackDelivery(s.ctx, s.subID, items))

	assert.Equal(t, []string{audithook.ActionDeliveryRolledBack}, rec.actions())
}

func TestAuditRecorderFailureIsSwallowed(t *testing.T) {
	calls := 0
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		calls++
		return errors.New("audit backend down")
	}), audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	c := &cycle.Cycle{ID: id.NewCycleID(), SubscriptionID: id.NewSubscriptionID()}
	err := ext.OnDeliveryApplied(context.Background(), c, []quota.Item{{ProductID: id.NewProductID(), Quantity: 1}})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}
