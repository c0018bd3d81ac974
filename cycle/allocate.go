package cycle

import "github.com/xraph/cyclebill/types"

// Allocation is the outcome of applying one payment to a cycle.
type Allocation struct {
	Applied types.Money // portion that reduced the pending balance
	Credit  types.Money // overpayment moved to the credit balance
	Fee     types.Money // late fee added after the payment
}

// ApplyPayment settles amount against the pending balance, moves any excess
// to credit, then adds fee to both the pending balance and the total amount.
// The status is recomputed afterwards.
func (c *Cycle) ApplyPayment(amount, fee types.Money) Allocation {
	applied := amount.Min(c.PendingBalance.ClampZero())
	excess := amount.Subtract(applied)

	c.PendingBalance = c.PendingBalance.Subtract(applied)
	c.PaidAmount = c.PaidAmount.Add(applied)
	c.CreditBalance = c.CreditBalance.Add(excess)

	if fee.IsPositive() {
		c.PendingBalance = c.PendingBalance.Add(fee)
		c.TotalAmount = c.TotalAmount.Add(fee)
	}

	c.RecomputeStatus()
	return Allocation{Applied: applied, Credit: excess, Fee: fee.ClampZero()}
}

// ApplyCredit settles up to amount of the pending balance with credit held
// elsewhere and returns the portion applied.
func (c *Cycle) ApplyCredit(amount types.Money) types.Money {
	applied := amount.Min(c.PendingBalance.ClampZero())
	c.PendingBalance = c.PendingBalance.Subtract(applied)
	c.PaidAmount = c.PaidAmount.Add(applied)
	c.RecomputeStatus()
	return applied
}

// AddCredit increases the credit balance.
func (c *Cycle) AddCredit(amount types.Money) {
	c.CreditBalance = c.CreditBalance.Add(amount)
	c.RecomputeStatus()
}

// ReleaseCredit removes up to amount from the credit balance and returns
// the portion removed.
func (c *Cycle) ReleaseCredit(amount types.Money) types.Money {
	released := amount.Min(c.CreditBalance.ClampZero())
	c.CreditBalance = c.CreditBalance.Subtract(released)
	c.RecomputeStatus()
	return released
}

// RecomputeStatus derives the payment status from the balances. A cycle
// with nothing paid and something pending keeps its current status.
func (c *Cycle) RecomputeStatus() {
	switch {
	case !c.PendingBalance.IsPositive() && c.CreditBalance.IsPositive():
		c.Status = StatusCredited
	case !c.PendingBalance.IsPositive():
		c.Status = StatusPaid
	case c.PaidAmount.IsPositive():
		c.Status = StatusPartial
	}
}
