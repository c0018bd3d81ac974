package cyclebill_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/store/memory"
)

func TestRegisterPaymentOverpaymentBecomesCredit(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(2000000))
	c := f.seedCycle(sub, 0, 30, 2000000, 0, 0)

	p, err := f.engine.RegisterPayment(f.ctx, cyclebill.PaymentInput{
		CycleID: c.ID,
		Amount:  cop(2500000),
		Method:  payment.MethodTransfer,
		ActorID: "clerk-1",
	})
	require.NoError(t, err)
	assert.Equal(t, payment.KindPayment, p.Kind)
	assert.Equal(t, f.now, p.PaidAt)

	summary, err := f.engine.GetCycleSummary(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cop(0), summary.PendingBalance)
	assert.Equal(t, cop(2000000), summary.PaidAmount)
	assert.Equal(t, cop(500000), summary.CreditBalance)
	assert.Equal(t, cop(2000000), summary.TotalAmount)
	assert.Equal(t, cycle.StatusCredited, summary.Status)
	require.Len(t, summary.Payments, 1)
	assert.Equal(t, p.ID, summary.Payments[0].ID)
	assert.Equal(t, "clerk-1", summary.Payments[0].ActorID)
}

func TestRegisterPaymentLateFee(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(500000))
	c := f.seedCycle(sub, -40, 30, 500000, 0, 0) // due 10 days ago

	_, err := f.engine.RegisterPayment(f.ctx, cyclebill.PaymentInput{CycleID: c.ID, Amount: cop(500000)})
	require.NoError(t, err)

	got := f.cycle(c.ID)
	assert.Equal(t, cop(70000), got.PendingBalance)
	assert.Equal(t, cop(500000), got.PaidAmount)
	assert.Equal(t, cop(570000), got.TotalAmount)
	assert.Equal(t, cop(0), got.CreditBalance)
	assert.Equal(t, cycle.StatusPartial, got.Status)

	entries, err := f.engine.ListPayments(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	kinds := []payment.Kind{entries[0].Kind, entries[1].Kind}
	assert.ElementsMatch(t, []payment.Kind{payment.KindPayment, payment.KindSurcharge}, kinds)
	for _, e := range entries {
		if e.Kind == payment.KindSurcharge {
			assert.Equal(t, cop(70000), e.Amount)
			assert.Equal(t, payment.MethodSystem, e.Method)
		}
	}
}

func TestRegisterPaymentWithinGraceHasNoFee(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(500000))
	c := f.seedCycle(sub, -33, 30, 500000, 0, 0) // due 3 days ago

	_, err := f.engine.RegisterPayment(f.ctx, cyclebill.PaymentInput{CycleID: c.ID, Amount: cop(100000)})
	require.NoError(t, err)

	got := f.cycle(c.ID)
	assert.Equal(t, cop(400000), got.PendingBalance)
	assert.Equal(t, cop(500000), got.TotalAmount)
	assert.Equal(t, cycle.StatusPartial, got.Status)
}

func TestRegisterPaymentValidation(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(500000))
	c := f.seedCycle(sub, 0, 30, 500000, 0, 0)

	tests := []struct {
		name  string
		in    cyclebill.PaymentInput
		check func(error) bool
		want  error
	}{
		{"zero amount", cyclebill.PaymentInput{CycleID: c.ID, Amount: cop(0)}, cyclebill.IsInvalidArgument, cyclebill.ErrInvalidAmount},
		{"negative amount", cyclebill.PaymentInput{CycleID: c.ID, Amount: cop(-1)}, cyclebill.IsInvalidArgument, cyclebill.ErrInvalidAmount},
		{"other currency", cyclebill.PaymentInput{CycleID: c.ID, Amount: cyclebill.NewMoney(100, "usd")}, cyclebill.IsInvalidArgument, cyclebill.ErrCurrencyMismatch},
		{"unknown cycle", cyclebill.PaymentInput{CycleID: id.NewCycleID(), Amount: cop(100)}, cyclebill.IsNotFound, cyclebill.ErrCycleNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RegisterPayment(f.ctx, tt.in)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected class: %v", err)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	got := f.cycle(c.ID)
	assert.Equal(t, cop(500000), got.PendingBalance)
	entries, err := f.engine.ListPayments(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegisterPaymentDuplicateReference(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(500000))
	c := f.seedCycle(sub, 0, 30, 500000, 0, 0)
	in := cyclebill.PaymentInput{CycleID: c.ID, Amount: cop(100000), Reference: "TX-1"}

	_, err := f.engine.RegisterPayment(f.ctx, in)
	require.NoError(t, err)

	_, err = f.engine.RegisterPayment(f.ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, cyclebill.ErrDuplicatePayment)
	assert.True(t, cyclebill.IsBadState(err))

	assert.Equal(t, cop(400000), f.cycle(c.ID).PendingBalance)
}

func TestGetCycleSummaryNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.GetCycleSummary(f.ctx, id.NewCycleID())
	assert.True(t, cyclebill.IsNotFound(err))
}

// failingStore fails every cycle update made inside a transaction.
type failingStore struct {
	*memory.Store
}

type failingRepos struct {
	store.Repositories
}

type failingCycles struct {
	cycle.Store
}

var errDiskFull = errors.New("disk full")

func (s failingStore) Transact(ctx context.Context, fn store.TxFunc) error {
	return s.Store.Transact(ctx, func(ctx context.Context, tx store.Repositories) error {
		return fn(ctx, failingRepos{tx})
	})
}

func (r failingRepos) Cycles() cycle.Store { return failingCycles{r.Repositories.Cycles()} }

func (failingCycles) Update(context.Context, *cycle.Cycle) error { return errDiskFull }

func TestRegisterPaymentRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(500000))
	c := f.seedCycle(sub, -40, 30, 500000, 0, 0)

	engine := f.newEngine(failingStore{f.store})
	_, err := engine.RegisterPayment(f.ctx, cyclebill.PaymentInput{CycleID: c.ID, Amount: cop(100000)})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.True(t, errors.Is(err, cyclebill.ErrInternal))
	assert.False(t, cyclebill.IsRetryable(err))

	entries, err := f.engine.ListPayments(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, entries, "payment and surcharge rows must roll back with the cycle update")
	assert.Equal(t, cop(500000), f.cycle(c.ID).PendingBalance)
}

func TestRegisterPaymentConcurrentWritersSerialize(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(1000000))
	c := f.seedCycle(sub, 0, 30, 1000000, 0, 0)

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RegisterPayment(f.ctx, cyclebill.PaymentInput{
				CycleID: c.ID,
				Amount:  cop(10000),
				Method:  payment.MethodCash,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	summary, err := f.engine.GetCycleSummary(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, cop(500000), summary.PendingBalance)
	assert.Equal(t, cop(500000), summary.PaidAmount)
	assert.Equal(t, cop(1000000), summary.TotalAmount)
	assert.Equal(t, cycle.StatusPartial, summary.Status)
	assert.Len(t, summary.Payments, writers)
}
