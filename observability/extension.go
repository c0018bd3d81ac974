// Package observability provides a metrics plugin for cyclebill that records
// billing and quota event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plugin"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRegistered  = (*MetricsExtension)(nil)
	_ plugin.OnSurchargeApplied   = (*MetricsExtension)(nil)
	_ plugin.OnCreditTransferred  = (*MetricsExtension)(nil)
	_ plugin.OnCreditApplied      = (*MetricsExtension)(nil)
	_ plugin.OnCycleProvisioned   = (*MetricsExtension)(nil)
	_ plugin.OnQuotaValidated     = (*MetricsExtension)(nil)
	_ plugin.OnQuotaReserved      = (*MetricsExtension)(nil)
	_ plugin.OnQuotaReleased      = (*MetricsExtension)(nil)
	_ plugin.OnDeliveryApplied    = (*MetricsExtension)(nil)
	_ plugin.OnDeliveryRolledBack = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records billing and quota metrics.
// Register it as a cyclebill plugin to track them automatically.
type MetricsExtension struct {
	// Payment metrics
	PaymentRegistered Counter
	PaymentAmount     Histogram
	SurchargeApplied  Counter
	SurchargeAmount   Histogram

	// Credit metrics
	CreditTransferred       Counter
	CreditTransferredAmount Histogram
	CreditApplied           Counter
	CreditAppliedAmount     Histogram

	// Cycle metrics
	CycleProvisioned Counter

	// Quota metrics
	QuotaValidated       Counter
	QuotaCoveredUnits    Counter
	QuotaAdditionalUnits Counter
	QuotaReserved        Counter
	QuotaReleased        Counter

	// Delivery metrics
	DeliveryApplied    Counter
	DeliveredUnits     Counter
	DeliveryRolledBack Counter
	RolledBackUnits    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory for a Prometheus registry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		// Payment metrics
		PaymentRegistered: factory.Counter("cyclebill.payment.registered"),
		PaymentAmount:     factory.Histogram("cyclebill.payment.amount"),
		SurchargeApplied:  factory.Counter("cyclebill.surcharge.applied"),
		SurchargeAmount:   factory.Histogram("cyclebill.surcharge.amount"),

		// Credit metrics
		CreditTransferred:       factory.Counter("cyclebill.credit.transferred"),
		CreditTransferredAmount: factory.Histogram("cyclebill.credit.transferred.amount"),
		CreditApplied:           factory.Counter("cyclebill.credit.applied"),
		CreditAppliedAmount:     factory.Histogram("cyclebill.credit.applied.amount"),

		// Cycle metrics
		CycleProvisioned: factory.Counter("cyclebill.cycle.provisioned"),

		// Quota metrics
		QuotaValidated:       factory.Counter("cyclebill.quota.validated"),
		QuotaCoveredUnits:    factory.Counter("cyclebill.quota.covered.units"),
		QuotaAdditionalUnits: factory.Counter("cyclebill.quota.additional.units"),
		QuotaReserved:        factory.Counter("cyclebill.quota.reserved"),
		QuotaReleased:        factory.Counter("cyclebill.quota.released"),

		// Delivery metrics
		DeliveryApplied:    factory.Counter("cyclebill.delivery.applied"),
		DeliveredUnits:     factory.Counter("cyclebill.delivery.units"),
		DeliveryRolledBack: factory.Counter("cyclebill.delivery.rolled_back"),
		RolledBackUnits:    factory.Counter("cyclebill.delivery.rolled_back.units"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRegistered implements plugin.OnPaymentRegistered.
func (m *MetricsExtension) OnPaymentRegistered(_ context.Context, _ *cycle.Cycle, p *payment.Payment) error {
	m.PaymentRegistered.Inc()
	m.PaymentAmount.Observe(major(p.Amount))
	return nil
}

// OnSurchargeApplied implements plugin.OnSurchargeApplied.
func (m *MetricsExtension) OnSurchargeApplied(_ context.Context, _ *cycle.Cycle, fee *payment.Payment) error {
	m.SurchargeApplied.Inc()
	m.SurchargeAmount.Observe(major(fee.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditTransferred implements plugin.OnCreditTransferred.
func (m *MetricsExtension) OnCreditTransferred(_ context.Context, _, _ *cycle.Cycle, amount types.Money) error {
	m.CreditTransferred.Inc()
	m.CreditTransferredAmount.Observe(major(amount))
	return nil
}

// OnCreditApplied implements plugin.OnCreditApplied.
func (m *MetricsExtension) OnCreditApplied(_ context.Context, _ id.SubscriptionID, applied types.Money, _ []*payment.Payment) error {
	m.CreditApplied.Inc()
	m.CreditAppliedAmount.Observe(major(applied))
	return nil
}

// OnCycleProvisioned implements plugin.OnCycleProvisioned.
func (m *MetricsExtension) OnCycleProvisioned(_ context.Context, _ *cycle.Cycle) error {
	m.CycleProvisioned.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Quota hooks
// ──────────────────────────────────────────────────

// OnQuotaValidated implements plugin.OnQuotaValidated.
func (m *MetricsExtension) OnQuotaValidated(_ context.Context, _ id.SubscriptionID, b *quota.Breakdown) error {
	m.QuotaValidated.Inc()
	m.QuotaCoveredUnits.Add(float64(b.TotalCovered()))
	m.QuotaAdditionalUnits.Add(float64(b.TotalAdditional()))
	return nil
}

// OnQuotaReserved implements plugin.OnQuotaReserved.
func (m *MetricsExtension) OnQuotaReserved(_ context.Context, _ id.SubscriptionID, _ *quota.Breakdown) error {
	m.QuotaReserved.Inc()
	return nil
}

// OnQuotaReleased implements plugin.OnQuotaReleased.
func (m *MetricsExtension) OnQuotaReleased(_ context.Context, _ *cycle.Cycle, _ []quota.Item) error {
	m.QuotaReleased.Inc()
	return nil
}

// OnDeliveryApplied implements plugin.OnDeliveryApplied.
func (m *MetricsExtension) OnDeliveryApplied(_ context.Context, _ *cycle.Cycle, items []quota.Item) error {
	m.DeliveryApplied.Inc()
	m.DeliveredUnits.Add(float64(units(items)))
	return nil
}

// OnDeliveryRolledBack implements plugin.OnDeliveryRolledBack.
func (m *MetricsExtension) OnDeliveryRolledBack(_ context.Context, _ *cycle.Cycle, items []quota.Item) error {
	m.DeliveryRolledBack.Inc()
	m.RolledBackUnits.Add(float64(units(items)))
	return nil
}

func major(m types.Money) float64 {
	return m.Decimal().InexactFloat64()
}

func units(items []quota.Item) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
