// Package store defines the persistence contract of cyclebill.
package store

import (
	"context"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/subscription"
)

// Repositories groups the per-entity stores. Inside Transact the same
// interface is bound to the running transaction.
type Repositories interface {
	Cycles() cycle.Store
	Payments() payment.Store
	Subscriptions() subscription.Store
	Plans() plan.Store
}

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is the unified storage interface for all cyclebill entities.
//
// Transact runs fn as one serializable unit of work. Reads made through tx
// see the transaction's own writes, and cycles read through tx are locked
// until the transaction ends. If fn returns an error nothing it wrote is
// observable.
type Store interface {
	Repositories

	Transact(ctx context.Context, fn TxFunc) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
