// Package audithook bridges cyclebill billing events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plugin"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnPaymentRegistered  = (*Extension)(nil)
	_ plugin.OnSurchargeApplied   = (*Extension)(nil)
	_ plugin.OnCreditTransferred  = (*Extension)(nil)
	_ plugin.OnCreditApplied      = (*Extension)(nil)
	_ plugin.OnCycleProvisioned   = (*Extension)(nil)
	_ plugin.OnQuotaValidated     = (*Extension)(nil)
	_ plugin.OnQuotaReserved      = (*Extension)(nil)
	_ plugin.OnQuotaReleased      = (*Extension)(nil)
	_ plugin.OnDeliveryApplied    = (*Extension)(nil)
	_ plugin.OnDeliveryRolledBack = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges cyclebill events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRegistered implements plugin.OnPaymentRegistered.
func (e *Extension) OnPaymentRegistered(ctx context.Context, c *cycle.Cycle, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentRegistered, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"cycle_id", c.ID.String(),
		"amount", p.Amount.String(),
		"method", string(p.Method),
		"reference", p.Reference,
		"pending_balance", c.PendingBalance.String(),
		"credit_balance", c.CreditBalance.String(),
		"payment_status", string(c.Status),
	)
}

// OnSurchargeApplied implements plugin.OnSurchargeApplied.
func (e *Extension) OnSurchargeApplied(ctx context.Context, c *cycle.Cycle, fee *payment.Payment) error {
	return e.record(ctx, ActionSurchargeApplied, SeverityWarning, OutcomeSuccess,
		ResourcePayment, fee.ID.String(), CategoryBilling, nil,
		"cycle_id", c.ID.String(),
		"amount", fee.Amount.String(),
		"due_date", c.DueDate,
	)
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditTransferred implements plugin.OnCreditTransferred.
func (e *Extension) OnCreditTransferred(ctx context.Context, from, to *cycle.Cycle, amount types.Money) error {
	return e.record(ctx, ActionCreditTransferred, SeverityInfo, OutcomeSuccess,
		ResourceCycle, to.ID.String(), CategoryCredit, nil,
		"from_cycle_id", from.ID.String(),
		"amount", amount.String(),
	)
}

// OnCreditApplied implements plugin.OnCreditApplied.
func (e *Extension) OnCreditApplied(ctx context.Context, subID id.SubscriptionID, applied types.Money, entries []*payment.Payment) error {
	return e.record(ctx, ActionCreditApplied, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID.String(), CategoryCredit, nil,
		"amount", applied.String(),
		"entries", len(entries),
	)
}

// OnCycleProvisioned implements plugin.OnCycleProvisioned.
func (e *Extension) OnCycleProvisioned(ctx context.Context, c *cycle.Cycle) error {
	return e.record(ctx, ActionCycleProvisioned, SeverityInfo, OutcomeSuccess,
		ResourceCycle, c.ID.String(), CategoryBilling, nil,
		"subscription_id", c.SubscriptionID.String(),
		"cycle_start", c.Start,
		"cycle_end", c.End,
		"total", c.TotalAmount.String(),
	)
}

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnQuotaValidated implements plugin.OnQuotaValidated. Only orders that
// exceed the entitlement are audited.
func (e *Extension) OnQuotaValidated(ctx context.Context, subID id.SubscriptionID, b *quota.Breakdown) error {
	if b.TotalAdditional() == 0 {
		return nil
	}
	return e.record(ctx, ActionQuotaExceeded, SeverityWarning, OutcomePartial,
		ResourceSubscription, subID.String(), CategoryQuota, nil,
		"cycle_id", b.CycleID.String(),
		"covered", b.TotalCovered(),
		"additional", b.TotalAdditional(),
	)
}

// OnQuotaReserved implements plugin.OnQuotaReserved.
func (e *Extension) OnQuotaReserved(ctx context.Context, subID id.SubscriptionID, b *quota.Breakdown) error {
	return e.record(ctx, ActionQuotaReserved, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID.String(), CategoryQuota, nil,
		"cycle_id", b.CycleID.String(),
		"covered", b.TotalCovered(),
		"additional", b.TotalAdditional(),
	)
}

// OnQuotaReleased implements plugin.OnQuotaReleased.
func (e *Extension) OnQuotaReleased(ctx context.Context, c *cycle.Cycle, items []quota.Item) error {
	return e.record(ctx, ActionQuotaReleased, SeverityInfo, OutcomeSuccess,
		ResourceCycle, c.ID.String(), CategoryQuota, nil,
		"items", len(items),
	)
}

// OnDeliveryApplied implements plugin.OnDeliveryApplied.
func (e *Extension) OnDeliveryApplied(ctx context.Context, c *cycle.Cycle, items []quota.Item) error {
	return e.record(ctx, ActionDeliveryApplied, SeverityInfo, OutcomeSuccess,
		ResourceCycle, c.ID.String(), CategoryDelivery, nil,
		"subscription_id", c.SubscriptionID.String(),
		"items", len(items),
	)
}

// OnDeliveryRolledBack implements plugin.OnDeliveryRolledBack.
func (e *Extension) OnDeliveryRolledBack(ctx context.Context, c *cycle.Cycle, items []quota.Item) error {
	return e.record(ctx, ActionDeliveryRolledBack, SeverityWarning, OutcomeSuccess,
		ResourceCycle, c.ID.String(), CategoryDelivery, nil,
		"subscription_id", c.SubscriptionID.String(),
		"items", len(items),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
