// Package payment models the append-only ledger of a billing cycle.
package payment

import (
	"time"

	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/types"
)

// Kind states the effect an entry has on the cycle that owns it. Amounts
// are always positive magnitudes.
type Kind string

const (
	// KindPayment is cash received, split between debt and credit.
	KindPayment Kind = "payment"
	// KindSurcharge is a late fee added to the pending balance and total.
	KindSurcharge Kind = "surcharge"
	// KindCreditTransfer is credit moved in from RelatedCycleID.
	KindCreditTransfer Kind = "credit_transfer"
	// KindCreditRelease is credit moved out to, or consumed by, RelatedCycleID.
	KindCreditRelease Kind = "credit_release"
	// KindCreditApplication is debt settled with credit held by RelatedCycleID.
	KindCreditApplication Kind = "credit_application"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPayment, KindSurcharge, KindCreditTransfer, KindCreditRelease, KindCreditApplication:
		return true
	}
	return false
}

// Method is how a cash payment was made.
type Method string

const (
	MethodCash     Method = "cash"
	MethodTransfer Method = "transfer"
	MethodCard     Method = "card"
	MethodOther    Method = "other"

	// MethodCredit marks entries produced by credit movements.
	MethodCredit Method = "credit"
	// MethodSystem marks entries produced by the billing engine itself.
	MethodSystem Method = "system"
)

// Payment is one ledger entry of a cycle.
type Payment struct {
	types.Entity
	ID             id.PaymentID `json:"id"`
	CycleID        id.CycleID   `json:"cycle_id"`
	Kind           Kind         `json:"kind"`
	Amount         types.Money  `json:"amount"`
	Method         Method       `json:"method"`
	PaidAt         time.Time    `json:"payment_date"`
	Reference      string       `json:"reference,omitempty"`
	Notes          string       `json:"notes,omitempty"`
	ActorID        string       `json:"actor_id,omitempty"`
	RelatedCycleID id.CycleID   `json:"related_cycle_id,omitzero"`
}
