package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/types"
)

// DefaultTimeout bounds every plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so dispatch never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit               []OnInit
	onShutdown           []OnShutdown
	onPaymentRegistered  []OnPaymentRegistered
	onSurchargeApplied   []OnSurchargeApplied
	onCreditTransferred  []OnCreditTransferred
	onCreditApplied      []OnCreditApplied
	onCycleProvisioned   []OnCycleProvisioned
	onQuotaValidated     []OnQuotaValidated
	onQuotaReserved      []OnQuotaReserved
	onQuotaReleased      []OnQuotaReleased
	onDeliveryApplied    []OnDeliveryApplied
	onDeliveryRolledBack []OnDeliveryRolledBack
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnPaymentRegistered); ok {
		r.onPaymentRegistered = append(r.onPaymentRegistered, v)
		hooks = append(hooks, "OnPaymentRegistered")
	}
	if v, ok := p.(OnSurchargeApplied); ok {
		r.onSurchargeApplied = append(r.onSurchargeApplied, v)
		hooks = append(hooks, "OnSurchargeApplied")
	}
	if v, ok := p.(OnCreditTransferred); ok {
		r.onCreditTransferred = append(r.onCreditTransferred, v)
		hooks = append(hooks, "OnCreditTransferred")
	}
	if v, ok := p.(OnCreditApplied); ok {
		r.onCreditApplied = append(r.onCreditApplied, v)
		hooks = append(hooks, "OnCreditApplied")
	}
	if v, ok := p.(OnCycleProvisioned); ok {
		r.onCycleProvisioned = append(r.onCycleProvisioned, v)
		hooks = append(hooks, "OnCycleProvisioned")
	}
	if v, ok := p.(OnQuotaValidated); ok {
		r.onQuotaValidated = append(r.onQuotaValidated, v)
		hooks = append(hooks, "OnQuotaValidated")
	}
	if v, ok := p.(OnQuotaReserved); ok {
		r.onQuotaReserved = append(r.onQuotaReserved, v)
		hooks = append(hooks, "OnQuotaReserved")
	}
	if v, ok := p.(OnQuotaReleased); ok {
		r.onQuotaReleased = append(r.onQuotaReleased, v)
		hooks = append(hooks, "OnQuotaReleased")
	}
	if v, ok := p.(OnDeliveryApplied); ok {
		r.onDeliveryApplied = append(r.onDeliveryApplied, v)
		hooks = append(hooks, "OnDeliveryApplied")
	}
	if v, ok := p.(OnDeliveryRolledBack); ok {
		r.onDeliveryRolledBack = append(r.onDeliveryRolledBack, v)
		hooks = append(hooks, "OnDeliveryRolledBack")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in the snapshot taken by list. Failures
// are logged and never returned to the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitPaymentRegistered emits a payment registered event.
func (r *Registry) EmitPaymentRegistered(ctx context.Context, c *cycle.Cycle, p *payment.Payment) {
	emit(ctx, r, "OnPaymentRegistered", func() []OnPaymentRegistered { return r.onPaymentRegistered }, func(h OnPaymentRegistered) error {
		return h.OnPaymentRegistered(ctx, c, p)
	})
}

// EmitSurchargeApplied emits a surcharge applied event.
func (r *Registry) EmitSurchargeApplied(ctx context.Context, c *cycle.Cycle, fee *payment.Payment) {
	emit(ctx, r, "OnSurchargeApplied", func() []OnSurchargeApplied { return r.onSurchargeApplied }, func(h OnSurchargeApplied) error {
		return h.OnSurchargeApplied(ctx, c, fee)
	})
}

// EmitCreditTransferred emits a credit transferred event.
func (r *Registry) EmitCreditTransferred(ctx context.Context, from, to *cycle.Cycle, amount types.Money) {
	emit(ctx, r, "OnCreditTransferred", func() []OnCreditTransferred { return r.onCreditTransferred }, func(h OnCreditTransferred) error {
		return h.OnCreditTransferred(ctx, from, to, amount)
	})
}

// EmitCreditApplied emits a credit applied event.
func (r *Registry) EmitCreditApplied(ctx context.Context, subID id.SubscriptionID, applied types.Money, entries []*payment.Payment) {
	emit(ctx, r, "OnCreditApplied", func() []OnCreditApplied { return r.onCreditApplied }, func(h OnCreditApplied) error {
		return h.OnCreditApplied(ctx, subID, applied, entries)
	})
}

// EmitCycleProvisioned emits a cycle provisioned event.
func (r *Registry) EmitCycleProvisioned(ctx context.Context, c *cycle.Cycle) {
	emit(ctx, r, "OnCycleProvisioned", func() []OnCycleProvisioned { return r.onCycleProvisioned }, func(h OnCycleProvisioned) error {
		return h.OnCycleProvisioned(ctx, c)
	})
}

// EmitQuotaValidated emits a quota validated event.
func (r *Registry) EmitQuotaValidated(ctx context.Context, subID id.SubscriptionID, b *quota.Breakdown) {
	emit(ctx, r, "OnQuotaValidated", func() []OnQuotaValidated { return r.onQuotaValidated }, func(h OnQuotaValidated) error {
		return h.OnQuotaValidated(ctx, subID, b)
	})
}

// EmitQuotaReserved emits a quota reserved event.
func (r *Registry) EmitQuotaReserved(ctx context.Context, subID id.SubscriptionID, b *quota.Breakdown) {
	emit(ctx, r, "OnQuotaReserved", func() []OnQuotaReserved { return r.onQuotaReserved }, func(h OnQuotaReserved) error {
		return h.OnQuotaReserved(ctx, subID, b)
	})
}

// EmitQuotaReleased emits a quota released event.
func (r *Registry) EmitQuotaReleased(ctx context.Context, c *cycle.Cycle, items []quota.Item) {
	emit(ctx, r, "OnQuotaReleased", func() []OnQuotaReleased { return r.onQuotaReleased }, func(h OnQuotaReleased) error {
		return h.OnQuotaReleased(ctx, c, items)
	})
}

// EmitDeliveryApplied emits a delivery applied event.
func (r *Registry) EmitDeliveryApplied(ctx context.Context, c *cycle.Cycle, items []quota.Item) {
	emit(ctx, r, "OnDeliveryApplied", func() []OnDeliveryApplied { return r.onDeliveryApplied }, func(h OnDeliveryApplied) error {
		return h.OnDeliveryApplied(ctx, c, items)
	})
}

// EmitDeliveryRolledBack emits a delivery rolled back event.
func (r *Registry) EmitDeliveryRolledBack(ctx context.Context, c *cycle.Cycle, items []quota.Item) {
	emit(ctx, r, "OnDeliveryRolledBack", func() []OnDeliveryRolledBack { return r.onDeliveryRolledBack }, func(h OnDeliveryRolledBack) error {
		return h.OnDeliveryRolledBack(ctx, c, items)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
