// Package plugin provides an extensible plugin system for cyclebill.
// Plugins can hook into billing and quota events to extend functionality.
// Every hook runs after the operation's transaction has committed.
package plugin

import (
	"context"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Payment ledger hooks
// ──────────────────────────────────────────────────

// OnPaymentRegistered is called after a cash payment is recorded. c is the
// cycle state after the payment.
type OnPaymentRegistered interface {
	Plugin
	OnPaymentRegistered(ctx context.Context, c *cycle.Cycle, p *payment.Payment) error
}

// OnSurchargeApplied is called after a late fee is added to a cycle.
type OnSurchargeApplied interface {
	Plugin
	OnSurchargeApplied(ctx context.Context, c *cycle.Cycle, fee *payment.Payment) error
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditTransferred is called after credit moves from one cycle to another.
type OnCreditTransferred interface {
	Plugin
	OnCreditTransferred(ctx context.Context, from, to *cycle.Cycle, amount types.Money) error
}

// OnCreditApplied is called after a credit sweep settled some debt.
// entries holds every ledger row the sweep wrote.
type OnCreditApplied interface {
	Plugin
	OnCreditApplied(ctx context.Context, subID id.SubscriptionID, applied types.Money, entries []*payment.Payment) error
}

// ──────────────────────────────────────────────────
// Cycle and quota hooks
// ──────────────────────────────────────────────────

// OnCycleProvisioned is called after a new cycle is created.
type OnCycleProvisioned interface {
	Plugin
	OnCycleProvisioned(ctx context.Context, c *cycle.Cycle) error
}

// OnQuotaValidated is called after an order's coverage is computed.
type OnQuotaValidated interface {
	Plugin
	OnQuotaValidated(ctx context.Context, subID id.SubscriptionID, b *quota.Breakdown) error
}

// OnQuotaReserved is called after covered units are reserved for an order.
type OnQuotaReserved interface {
	Plugin
	OnQuotaReserved(ctx context.Context, subID id.SubscriptionID, b *quota.Breakdown) error
}

// OnQuotaReleased is called after reserved units are returned.
type OnQuotaReleased interface {
	Plugin
	OnQuotaReleased(ctx context.Context, c *cycle.Cycle, items []quota.Item) error
}

// OnDeliveryApplied is called after delivered quantities are recorded.
type OnDeliveryApplied interface {
	Plugin
	OnDeliveryApplied(ctx context.Context, c *cycle.Cycle, items []quota.Item) error
}

// OnDeliveryRolledBack is called after delivered quantities are reverted.
type OnDeliveryRolledBack interface {
	Plugin
	OnDeliveryRolledBack(ctx context.Context, c *cycle.Cycle, items []quota.Item) error
}
