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
// Payment ledger
// ──────────────────────────────────────────────────

// PaymentInput describes a cash payment against one cycle.
type PaymentInput struct {
	CycleID   id.CycleID
	Amount    types.Money
	Method    payment.Method
	Date      time.Time // defaults to now
	Reference string    // optional, unique per cycle when set
	Notes     string
	ActorID   string
}

// CycleSummary is a cycle with its ledger.
type CycleSummary struct {
	*cycle.Cycle
	Payments []*payment.Payment `json:"payments"`
}

// RegisterPayment records a payment against a cycle. A late fee is computed
// on the balance pending before the payment and added after it. Overpayment
// becomes credit. The payment row, the optional surcharge row and the cycle
// update are committed together.
func (e *Engine) RegisterPayment(ctx context.Context, in PaymentInput) (*payment.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Method == "" {
		in.Method = payment.MethodCash
	}

	now := e.now()
	paidAt := now
	if !in.Date.IsZero() {
		paidAt = in.Date.UTC()
	}

	var (
		result    *cycle.Cycle
		entry     *payment.Payment
		surcharge *payment.Payment
	)
	err := e.transact(ctx, "register payment", func(ctx context.Context, tx store.Repositories) error {
		c, err := tx.Cycles().Get(ctx, in.CycleID)
		if err != nil {
			return err
		}
		if c.Currency != in.Amount.Currency {
			return errors.Wrapf(ErrCurrencyMismatch, "payment in %q, cycle in %q", in.Amount.Currency, c.Currency)
		}
		if in.Reference != "" {
			_, err := tx.Payments().GetByReference(ctx, c.ID, in.Reference)
			if err == nil {
				return errors.Wrapf(ErrDuplicatePayment, "reference %q", in.Reference)
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		fee := e.lateFees.Compute(now, c.DueDate, c.PendingBalance, c.Status)
		alloc := c.ApplyPayment(in.Amount, fee)
		c.Touch(now)

		entry = &payment.Payment{
			Entity:    types.NewEntityAt(now),
			ID:        id.NewPaymentID(),
			CycleID:   c.ID,
			Kind:      payment.KindPayment,
			Amount:    in.Amount,
			Method:    in.Method,
			PaidAt:    paidAt,
			Reference: in.Reference,
			Notes:     in.Notes,
			ActorID:   in.ActorID,
		}
		if err := tx.Payments().Create(ctx, entry); err != nil {
			return err
		}

		if alloc.Fee.IsPositive() {
			surcharge = &payment.Payment{
				Entity:  types.NewEntityAt(now),
				ID:      id.NewPaymentID(),
				CycleID: c.ID,
				Kind:    payment.KindSurcharge,
				Amount:  alloc.Fee,
				Method:  payment.MethodSystem,
				PaidAt:  now,
				Notes:   "late payment surcharge",
				ActorID: in.ActorID,
			}
			if err := tx.Payments().Create(ctx, surcharge); err != nil {
				return err
			}
		}

		if err := tx.Cycles().Update(ctx, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment registered",
		"cycle_id", result.ID.String(),
		"payment_id", entry.ID.String(),
		"amount", entry.Amount.String(),
		"pending", result.PendingBalance.String(),
		"credit", result.CreditBalance.String(),
		"status", string(result.Status),
	)

	e.plugins.EmitPaymentRegistered(ctx, result, entry)
	if surcharge != nil {
		e.logger.Info("late fee applied",
			"cycle_id", result.ID.String(),
			"fee", surcharge.Amount.String(),
		)
		e.plugins.EmitSurchargeApplied(ctx, result, surcharge)
	}

	return entry, nil
}

// GetCycleSummary returns a cycle with its ledger entries.
func (e *Engine) GetCycleSummary(ctx context.Context, cycleID id.CycleID) (*CycleSummary, error) {
	c, err := e.store.Cycles().Get(ctx, cycleID)
	if err != nil {
		return nil, Internal(err, "get cycle")
	}
	payments, err := e.store.Payments().ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, Internal(err, "list payments")
	}
	return &CycleSummary{Cycle: c, Payments: payments}, nil
}

// ListPayments returns the ledger entries of a cycle in date order.
func (e *Engine) ListPayments(ctx context.Context, cycleID id.CycleID) ([]*payment.Payment, error) {
	if _, err := e.store.Cycles().Get(ctx, cycleID); err != nil {
		return nil, Internal(err, "get cycle")
	}
	payments, err := e.store.Payments().ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, Internal(err, "list payments")
	}
	return payments, nil
}
