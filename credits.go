package cyclebill

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/types"
)

// ──────────────────────────────────────────────────
// Credit transfer and application
// ──────────────────────────────────────────────────

// CreditTransfer describes credit moved between two cycles.
type CreditTransfer struct {
	From   *cycle.Cycle
	To     *cycle.Cycle
	Amount types.Money
}

// CreditApplication is the outcome of a credit sweep.
type CreditApplication struct {
	SubscriptionID id.SubscriptionID  `json:"subscription_id"`
	Applied        types.Money        `json:"applied"`
	Entries        []*payment.Payment `json:"entries"`
}

// TransferCredit moves the credit of the most recently closed cycle of the
// subscription into targetCycleID. Credit already held by the target is
// kept. It is a no-op when no closed cycle holds credit.
func (e *Engine) TransferCredit(ctx context.Context, subID id.SubscriptionID, targetCycleID id.CycleID) error {
	var moved *CreditTransfer
	err := e.transact(ctx, "transfer credit", func(ctx context.Context, tx store.Repositories) error {
		target, err := tx.Cycles().Get(ctx, targetCycleID)
		if err != nil {
			return err
		}
		if target.SubscriptionID.String() != subID.String() {
			return errors.Wrapf(ErrCycleMismatch, "cycle %s, subscription %s", targetCycleID, subID)
		}
		moved, err = e.transferInto(ctx, tx, target, e.now(), "")
		return err
	})
	if err != nil {
		return err
	}

	e.afterTransfer(ctx, subID, moved)
	return nil
}

// transferInto moves credit from the latest closed cycle into target inside
// an open transaction. It returns nil when there was nothing to move.
func (e *Engine) transferInto(ctx context.Context, tx store.Repositories, target *cycle.Cycle, now time.Time, actorID string) (*CreditTransfer, error) {
	cycles, err := tx.Cycles().ListBySubscription(ctx, target.SubscriptionID)
	if err != nil {
		return nil, err
	}

	var source *cycle.Cycle
	for _, c := range cycles {
		if c.ID.String() == target.ID.String() || !c.EndedBefore(now) || !c.CreditBalance.IsPositive() {
			continue
		}
		if source == nil || c.End.After(source.End) {
			source = c
		}
	}
	if source == nil {
		return nil, nil
	}
	if source.Currency != target.Currency {
		return nil, errors.Wrapf(ErrCurrencyMismatch, "cycle %s in %q, cycle %s in %q",
			source.ID, source.Currency, target.ID, target.Currency)
	}

	amount := source.ReleaseCredit(source.CreditBalance)
	target.AddCredit(amount)
	source.Touch(now)
	target.Touch(now)

	entries := []*payment.Payment{
		creditEntry(now, target.ID, source.ID, payment.KindCreditTransfer, amount, actorID),
		creditEntry(now, source.ID, target.ID, payment.KindCreditRelease, amount, actorID),
	}
	for _, p := range entries {
		if err := tx.Payments().Create(ctx, p); err != nil {
			return nil, err
		}
	}
	if err := tx.Cycles().Update(ctx, source); err != nil {
		return nil, err
	}
	if err := tx.Cycles().Update(ctx, target); err != nil {
		return nil, err
	}

	return &CreditTransfer{From: source, To: target, Amount: amount}, nil
}

func (e *Engine) afterTransfer(ctx context.Context, subID id.SubscriptionID, moved *CreditTransfer) {
	if moved == nil {
		e.logger.Debug("no credit to transfer", "subscription_id", subID.String())
		return
	}
	e.logger.Info("credit transferred",
		"subscription_id", subID.String(),
		"from_cycle", moved.From.ID.String(),
		"to_cycle", moved.To.ID.String(),
		"amount", moved.Amount.String(),
	)
	e.plugins.EmitCreditTransferred(ctx, moved.From, moved.To, moved.Amount)
}

// ApplyCreditsToOutstandingDebt settles pending balances of the
// subscription's cycles with the credit held by its cycles, oldest debt and
// oldest credit first. Running it again without new payments changes
// nothing.
func (e *Engine) ApplyCreditsToOutstandingDebt(ctx context.Context, subID id.SubscriptionID) (*CreditApplication, error) {
	var result *CreditApplication
	err := e.transact(ctx, "apply credits", func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Subscriptions().Get(ctx, subID); err != nil {
			return err
		}
		cycles, err := tx.Cycles().ListBySubscription(ctx, subID)
		if err != nil {
			return err
		}
		result, err = e.sweepCredit(ctx, tx, subID, cycles)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(result.Entries) == 0 {
		e.logger.Debug("no credit applied", "subscription_id", subID.String())
		return result, nil
	}

	e.logger.Info("credit applied to debt",
		"subscription_id", subID.String(),
		"applied", result.Applied.String(),
		"entries", len(result.Entries),
	)
	e.plugins.EmitCreditApplied(ctx, subID, result.Applied, result.Entries)
	return result, nil
}

// sweepCredit pairs debts with credit holders, both in cycle start order.
// cycles must be ordered by Start ascending.
func (e *Engine) sweepCredit(ctx context.Context, tx store.Repositories, subID id.SubscriptionID, cycles []*cycle.Cycle) (*CreditApplication, error) {
	var debts, holders []*cycle.Cycle
	for _, c := range cycles {
		if c.PendingBalance.IsPositive() {
			debts = append(debts, c)
		}
		if c.CreditBalance.IsPositive() {
			holders = append(holders, c)
		}
	}

	result := &CreditApplication{SubscriptionID: subID}
	if len(debts) == 0 || len(holders) == 0 {
		if len(cycles) > 0 {
			result.Applied = types.Zero(cycles[0].Currency)
		}
		return result, nil
	}

	now := e.now()
	result.Applied = types.Zero(debts[0].Currency)
	touched := make(map[string]bool)

	h := 0
	for _, debt := range debts {
		for debt.PendingBalance.IsPositive() && h < len(holders) {
			holder := holders[h]
			if !holder.CreditBalance.IsPositive() {
				h++
				continue
			}
			if holder.Currency != debt.Currency {
				return nil, errors.Wrapf(ErrCurrencyMismatch, "cycle %s in %q, cycle %s in %q",
					holder.ID, holder.Currency, debt.ID, debt.Currency)
			}

			applied := debt.ApplyCredit(holder.CreditBalance)
			holder.ReleaseCredit(applied)
			debt.Touch(now)
			holder.Touch(now)
			touched[debt.ID.String()] = true
			touched[holder.ID.String()] = true

			result.Applied = result.Applied.Add(applied)
			result.Entries = append(result.Entries,
				creditEntry(now, debt.ID, holder.ID, payment.KindCreditApplication, applied, ""),
				creditEntry(now, holder.ID, debt.ID, payment.KindCreditRelease, applied, ""),
			)
		}
	}

	for _, p := range result.Entries {
		if err := tx.Payments().Create(ctx, p); err != nil {
			return nil, err
		}
	}
	for _, c := range cycles {
		if touched[c.ID.String()] {
			if err := tx.Cycles().Update(ctx, c); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func creditEntry(now time.Time, cycleID, relatedID id.CycleID, kind payment.Kind, amount types.Money, actorID string) *payment.Payment {
	return &payment.Payment{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewPaymentID(),
		CycleID:        cycleID,
		Kind:           kind,
		Amount:         amount,
		Method:         payment.MethodCredit,
		PaidAt:         now,
		ActorID:        actorID,
		RelatedCycleID: relatedID,
	}
}
