package cycle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/cyclebill/types"
)

// Default late fee parameters.
const (
	DefaultGraceDays = 3
	DefaultDailyRate = "0.02"
	DefaultMaxRate   = "0.30"
)

// LateFeePolicy computes surcharges for payments made after the due date.
// The fee grows by DailyRate for every day past GraceDays and is capped at
// MaxRate of the pending balance.
type LateFeePolicy struct {
	GraceDays int
	DailyRate decimal.Decimal
	MaxRate   decimal.Decimal
}

// DefaultLateFeePolicy returns a 3 day grace, 2% per day, 30% cap policy.
func DefaultLateFeePolicy() LateFeePolicy {
	return LateFeePolicy{
		GraceDays: DefaultGraceDays,
		DailyRate: decimal.RequireFromString(DefaultDailyRate),
		MaxRate:   decimal.RequireFromString(DefaultMaxRate),
	}
}

// DaysLate returns the number of whole days now is past due, or 0.
func DaysLate(now, due time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / (24 * time.Hour))
}

// Rate returns the surcharge rate for the given lateness.
func (p LateFeePolicy) Rate(daysLate int) decimal.Decimal {
	if daysLate <= p.GraceDays {
		return decimal.Zero
	}
	rate := decimal.NewFromInt(int64(daysLate - p.GraceDays)).Mul(p.DailyRate)
	return decimal.Min(rate, p.MaxRate)
}

// Compute returns the late fee owed on pending at time now. Paid cycles and
// cycles not yet due never accrue a fee.
func (p LateFeePolicy) Compute(now, due time.Time, pending types.Money, status PaymentStatus) types.Money {
	if status == StatusPaid || !pending.IsPositive() {
		return types.Zero(pending.Currency)
	}
	rate := p.Rate(DaysLate(now, due))
	if rate.IsZero() {
		return types.Zero(pending.Currency)
	}
	return pending.MulRate(rate)
}
