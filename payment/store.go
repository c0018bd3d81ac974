package payment

import (
	"context"

	"github.com/xraph/cyclebill/id"
)

// Store persists ledger entries. Entries are never updated or deleted.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	// ListByCycle returns the entries of a cycle ordered by PaidAt, then ID.
	ListByCycle(ctx context.Context, cycleID id.CycleID) ([]*Payment, error)
	// GetByReference returns the KindPayment entry of cycleID recorded with
	// reference.
	GetByReference(ctx context.Context, cycleID id.CycleID, reference string) (*Payment, error)
}
