package cyclebill_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
)

func TestApplyCreditsSettlesOlderDebt(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	older := f.seedCycle(sub, -60, 30, 300000, 0, 0)
	newer := f.seedCycle(sub, -29, 30, 0, 0, 500000)

	res, err := f.engine.ApplyCreditsToOutstandingDebt(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, cop(300000), res.Applied)
	require.Len(t, res.Entries, 2)

	debt := f.cycle(older.ID)
	assert.Equal(t, cop(0), debt.PendingBalance)
	assert.Equal(t, cop(300000), debt.PaidAmount)
	assert.Equal(t, cycle.StatusPaid, debt.Status)

	holder := f.cycle(newer.ID)
	assert.Equal(t, cop(200000), holder.CreditBalance)
	assert.Equal(t, cycle.StatusCredited, holder.Status)

	debtRows, err := f.engine.ListPayments(f.ctx, older.ID)
	require.NoError(t, err)
	require.Len(t, debtRows, 1)
	assert.Equal(t, payment.KindCreditApplication, debtRows[0].Kind)
	assert.Equal(t, newer.ID.String(), debtRows[0].RelatedCycleID.String())

	holderRows, err := f.engine.ListPayments(f.ctx, newer.ID)
	require.NoError(t, err)
	require.Len(t, holderRows, 1)
	assert.Equal(t, payment.KindCreditRelease, holderRows[0].Kind)
	assert.Equal(t, cop(300000), holderRows[0].Amount)
}

func TestApplyCreditsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	older := f.seedCycle(sub, -60, 30, 300000, 0, 0)
	newer := f.seedCycle(sub, -29, 30, 0, 0, 500000)

	_, err := f.engine.ApplyCreditsToOutstandingDebt(f.ctx, sub.ID)
	require.NoError(t, err)
	first := []*cycle.Cycle{f.cycle(older.ID), f.cycle(newer.ID)}

	res, err := f.engine.ApplyCreditsToOutstandingDebt(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied.IsZero())
	assert.Empty(t, res.Entries)

	for _, before := range first {
		after := f.cycle(before.ID)
		assert.Equal(t, before.PendingBalance, after.PendingBalance)
		assert.Equal(t, before.CreditBalance, after.CreditBalance)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	}
	rows, err := f.engine.ListPayments(f.ctx, older.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestApplyCreditsWalksDebtsOldestFirst(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	first := f.seedCycle(sub, -90, 30, 300000, 0, 0)
	second := f.seedCycle(sub, -60, 30, 300000, 0, 0)
	holder := f.seedCycle(sub, -29, 30, 0, 0, 400000)

	res, err := f.engine.ApplyCreditsToOutstandingDebt(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, cop(400000), res.Applied)

	assert.Equal(t, cop(0), f.cycle(first.ID).PendingBalance)
	got := f.cycle(second.ID)
	assert.Equal(t, cop(200000), got.PendingBalance)
	assert.Equal(t, cop(100000), got.PaidAmount)
	assert.Equal(t, cycle.StatusPartial, got.Status)
	assert.Equal(t, cop(0), f.cycle(holder.ID).CreditBalance)
}

func TestApplyCreditsDrainsHoldersInOrder(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	oldCredit := f.seedCycle(sub, -90, 30, 0, 0, 100000)
	newCredit := f.seedCycle(sub, -60, 30, 0, 0, 400000)
	debt := f.seedCycle(sub, -29, 30, 300000, 0, 0)

	_, err := f.engine.ApplyCreditsToOutstandingDebt(f.ctx, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, cop(0), f.cycle(debt.ID).PendingBalance)
	assert.Equal(t, cop(0), f.cycle(oldCredit.ID).CreditBalance)
	assert.Equal(t, cycle.StatusPaid, f.cycle(oldCredit.ID).Status)
	assert.Equal(t, cop(200000), f.cycle(newCredit.ID).CreditBalance)
}

func TestApplyCreditsWithoutCredit(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	c := f.seedCycle(sub, 0, 30, 300000, 0, 0)

	res, err := f.engine.ApplyCreditsToOutstandingDebt(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, res.Applied.IsZero())
	assert.Equal(t, cop(300000), f.cycle(c.ID).PendingBalance)
}

func TestApplyCreditsUnknownSubscription(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ApplyCreditsToOutstandingDebt(f.ctx, id.NewSubscriptionID())
	require.Error(t, err)
	assert.True(t, cyclebill.IsNotFound(err))
	assert.ErrorIs(t, err, cyclebill.ErrSubscriptionNotFound)
}

func TestTransferCreditIsAdditive(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	closed := f.seedCycle(sub, -60, 30, 0, 0, 500000)
	current := f.seedCycle(sub, -1, 30, 0, 300000, 100000)

	require.NoError(t, f.engine.TransferCredit(f.ctx, sub.ID, current.ID))

	src := f.cycle(closed.ID)
	assert.Equal(t, cop(0), src.CreditBalance)
	assert.Equal(t, cycle.StatusPaid, src.Status)

	dst := f.cycle(current.ID)
	assert.Equal(t, cop(600000), dst.CreditBalance)
	assert.Equal(t, cycle.StatusCredited, dst.Status)

	rows, err := f.engine.ListPayments(f.ctx, current.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, payment.KindCreditTransfer, rows[0].Kind)
	assert.Equal(t, cop(500000), rows[0].Amount)
	assert.Equal(t, closed.ID.String(), rows[0].RelatedCycleID.String())

	rows, err = f.engine.ListPayments(f.ctx, closed.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, payment.KindCreditRelease, rows[0].Kind)
}

func TestTransferCreditPicksLatestClosedCycle(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	oldest := f.seedCycle(sub, -90, 30, 0, 0, 100000)
	latest := f.seedCycle(sub, -60, 30, 0, 0, 200000)
	current := f.seedCycle(sub, -1, 30, 300000, 0, 0)

	require.NoError(t, f.engine.TransferCredit(f.ctx, sub.ID, current.ID))

	assert.Equal(t, cop(100000), f.cycle(oldest.ID).CreditBalance)
	assert.Equal(t, cop(0), f.cycle(latest.ID).CreditBalance)
	assert.Equal(t, cop(200000), f.cycle(current.ID).CreditBalance)
	assert.Equal(t, cop(300000), f.cycle(current.ID).PendingBalance)
}

func TestTransferCreditNothingToMove(t *testing.T) {
	f := newFixture(t)
	sub := f.subscribe(f.plan(300000))
	current := f.seedCycle(sub, -1, 30, 300000, 0, 0)

	require.NoError(t, f.engine.TransferCredit(f.ctx, sub.ID, current.ID))

	rows, err := f.engine.ListPayments(f.ctx, current.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTransferCreditErrors(t *testing.T) {
	f := newFixture(t)
	p := f.plan(300000)
	sub := f.subscribe(p)
	other := f.subscribe(p)
	foreign := f.seedCycle(other, -1, 30, 300000, 0, 0)

	err := f.engine.TransferCredit(f.ctx, sub.ID, foreign.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, cyclebill.ErrCycleMismatch)
	assert.True(t, cyclebill.IsInvalidArgument(err))

	err = f.engine.TransferCredit(f.ctx, sub.ID, id.NewCycleID())
	require.Error(t, err)
	assert.True(t, cyclebill.IsNotFound(err))
}
