package cyclebill_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/types"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnPaymentRegistered(context.Context, *cycle.Cycle, *payment.Payment) error {
	return r.record("payment")
}

func (r *recorder) OnSurchargeApplied(context.Context, *cycle.Cycle, *payment.Payment) error {
	return r.record("surcharge")
}

func (r *recorder) OnCreditTransferred(context.Context, *cycle.Cycle, *cycle.Cycle, types.Money) error {
	return r.record("credit_transferred")
}

func (r *recorder) OnCreditApplied(context.Context, id.SubscriptionID, types.Money, []*payment.Payment) error {
	return r.record("credit_applied")
}

func (r *recorder) OnCycleProvisioned(context.Context, *cycle.Cycle) error {
	return r.record("cycle")
}

func (r *recorder) OnQuotaValidated(context.Context, id.SubscriptionID, *quota.Breakdown) error {
	return r.record("quota_validated")
}

func (r *recorder) OnQuotaReserved(context.Context, id.SubscriptionID, *quota.Breakdown) error {
	return r.record("quota_reserved")
}

func (r *recorder) OnQuotaReleased(context.Context, *cycle.Cycle, []quota.Item) error {
	return r.record("quota_released")
}

func (r *recorder) OnDeliveryApplied(context.Context, *cycle.Cycle, []quota.Item) error {
	return r.record("delivery")
}

func (r *recorder) OnDeliveryRolledBack(context.Context, *cycle.Cycle, []quota.Item) error {
	return r.record("rollback")
}

func TestPluginsReceiveEvents(t *testing.T) {
	rec := &recorder{}
	f := newFixture(t, cyclebill.WithPlugin(rec))
	pid, prod := water()
	sub := f.subscribe(f.plan(500000, prod))
	closed := f.seedCycle(sub, -40, 30, 500000, 0, 200000)

	_, err := f.engine.RegisterPayment(f.ctx, cyclebill.PaymentInput{CycleID: closed.ID, Amount: cop(100000)})
	require.NoError(t, err)
	assert.Equal(t, []string{"payment", "surcharge"}, rec.seen())

	items := []quota.Item{{ProductID: pid, Quantity: 2}}
	_, err = f.engine.ReserveQuotas(f.ctx, sub.ID, items)
	require.NoError(t, err)
	require.NoError(t, f.engine.ReleaseQuotas(f.ctx, sub.ID, items))
	require.NoError(t, f.engine.ApplyDelivery(f.ctx, sub.ID, items))
	require.NoError(t, f.engine.RollbackDelivery(f.ctx, sub.ID, items))
	_, err = f.engine.ValidateQuotas(f.ctx, sub.ID, items)
	require.NoError(t, err)
	_, err = f.engine.ApplyCreditsToOutstandingDebt(f.ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"payment", "surcharge",
		"cycle", "credit_transferred", "quota_reserved",
		"quota_released",
		"delivery",
		"rollback",
		"quota_validated",
		"credit_applied",
	}, rec.seen())
}

func TestPluginFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, cyclebill.WithPlugin(failing{}))
	sub := f.subscribe(f.plan(500000))
	c := f.seedCycle(sub, 0, 30, 500000, 0, 0)

	_, err := f.engine.RegisterPayment(f.ctx, cyclebill.PaymentInput{CycleID: c.ID, Amount: cop(500000)})
	require.NoError(t, err)
	assert.Equal(t, cycle.StatusPaid, f.cycle(c.ID).Status)
}

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) OnPaymentRegistered(context.Context, *cycle.Cycle, *payment.Payment) error {
	panic("boom")
}
