// Package cycle models billing cycles: one billing period of one
// subscription, its balances, and its per-product delivery quotas.
package cycle

import (
	"time"

	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/types"
)

// PaymentStatus is the settlement state of a cycle.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "PENDING"
	StatusPartial  PaymentStatus = "PARTIAL"
	StatusPaid     PaymentStatus = "PAID"
	StatusOverdue  PaymentStatus = "OVERDUE"
	StatusCredited PaymentStatus = "CREDITED"
)

// Cycle is one billing period of one subscription.
//
// PendingBalance and CreditBalance are never negative, and TotalAmount is
// the plan price plus every surcharge applied to the cycle.
type Cycle struct {
	types.Entity
	ID             id.CycleID        `json:"id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Currency       string            `json:"currency"`
	Start          time.Time         `json:"cycle_start"`
	End            time.Time         `json:"cycle_end"`
	DueDate        time.Time         `json:"payment_due_date"`
	TotalAmount    types.Money       `json:"total_amount"`
	PaidAmount     types.Money       `json:"paid_amount"`
	PendingBalance types.Money       `json:"pending_balance"`
	CreditBalance  types.Money       `json:"credit_balance"`
	Status         PaymentStatus     `json:"payment_status"`
	Details        []Detail          `json:"details,omitempty"`
}

// Detail is the per-product entitlement row of a cycle.
//
// RemainingBalance is always max(0, PlannedQuantity - DeliveredQuantity).
// ReservedQuantity counts units promised to orders not yet delivered.
type Detail struct {
	types.Entity
	ID                id.CycleDetailID `json:"id"`
	CycleID           id.CycleID       `json:"cycle_id"`
	ProductID         id.ProductID     `json:"product_id"`
	PlannedQuantity   int              `json:"planned_quantity"`
	DeliveredQuantity int              `json:"delivered_quantity"`
	RemainingBalance  int              `json:"remaining_balance"`
	ReservedQuantity  int              `json:"reserved_quantity"`
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether the calendar day of t falls within
// [Start, End], both ends inclusive.
func (c *Cycle) Contains(t time.Time) bool {
	day := Day(t)
	return !day.Before(Day(c.Start)) && !day.After(Day(c.End))
}

// EndedBefore reports whether the cycle closed before the calendar day of t.
func (c *Cycle) EndedBefore(t time.Time) bool {
	return Day(c.End).Before(Day(t))
}

// FindDetail returns the detail row for productID, or nil.
func (c *Cycle) FindDetail(productID id.ProductID) *Detail {
	for i := range c.Details {
		if c.Details[i].ProductID.String() == productID.String() {
			return &c.Details[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the cycle.
func (c *Cycle) Clone() *Cycle {
	out := *c
	if c.Details != nil {
		out.Details = make([]Detail, len(c.Details))
		copy(out.Details, c.Details)
	}
	return &out
}

// Available returns the units that can still be promised to a new order.
func (d *Detail) Available() int {
	return max(0, d.RemainingBalance-d.ReservedQuantity)
}

// Deliver records qty delivered units and consumes up to qty reserved units.
// The row does not know which order holds a reservation; any delivery
// draws the reservation down.
func (d *Detail) Deliver(qty int) {
	d.DeliveredQuantity += qty
	d.RemainingBalance = max(0, d.PlannedQuantity-d.DeliveredQuantity)
	d.ReservedQuantity -= min(d.ReservedQuantity, qty)
}

// Rollback reverts up to qty delivered units. The reservation stays
// consumed: a rolled-back order has to reserve again.
func (d *Detail) Rollback(qty int) {
	d.DeliveredQuantity = max(0, d.DeliveredQuantity-qty)
	d.RemainingBalance = max(0, d.PlannedQuantity-d.DeliveredQuantity)
}

// Reserve promises qty units to an order.
func (d *Detail) Reserve(qty int) {
	d.ReservedQuantity += qty
}

// Release returns up to qty reserved units.
func (d *Detail) Release(qty int) {
	d.ReservedQuantity -= min(d.ReservedQuantity, qty)
}
