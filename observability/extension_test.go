package observability_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/observability"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/store/memory"
)

func TestPrometheusFactory(t *testing.T) {
	t.Run("exports dotted names with underscores", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		f := observability.NewPrometheusFactory(reg)

		f.Counter("cyclebill.payment.registered").Add(2)

		expected := `
# HELP cyclebill_payment_registered_total Total number of cyclebill.payment.registered events
# TYPE cyclebill_payment_registered_total counter
cyclebill_payment_registered_total 2
`
		err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "cyclebill_payment_registered_total")
		assert.NoError(t, err)
	})

	t.Run("returns the same metric for the same name", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		f := observability.NewPrometheusFactory(reg)

		a := f.Counter("cyclebill.cycle.provisioned")
		b := f.Counter("cyclebill.cycle.provisioned")
		a.Inc()
		b.Inc()

		assert.InDelta(t, 2, testutil.ToFloat64(a.(prometheus.Counter)), 0)
		assert.NotPanics(t, func() { f.Histogram("cyclebill.payment.amount") })
		assert.NotPanics(t, func() { f.Histogram("cyclebill.payment.amount") })
	})
}

func TestMetricsExtensionRecordsEngineEvents(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))

	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	engine := cyclebill.New(memory.New(),
		cyclebill.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		cyclebill.WithClock(func() time.Time { return now }),
		cyclebill.WithPlugin(metrics),
	)

	water := id.NewProductID()
	p := &plan.Plan{
		Name:      "Home water",
		Slug:      "home-water",
		Currency:  "cop",
		Price:     cyclebill.NewMoney(2000000, "cop"),
		CycleDays: 30,
		TermDays:  5,
		Products:  []plan.Product{{ProductID: water, Name: "20L bottle", Quantity: 10}},
	}
	require.NoError(t, engine.CreatePlan(ctx, p))
	sub, err := engine.CreateSubscription(ctx, id.NewCustomerID(), p.ID)
	require.NoError(t, err)

	items := []quota.Item{{ProductID: water, Quantity: 12}}
	b, err := engine.ValidateQuotas(ctx, sub.ID, items)
	require.NoError(t, err)
	require.NoError(t, engine.ApplyDelivery(ctx, sub.ID, []quota.Item{{ProductID: water, Quantity: 4}}))
	require.NoError(t, engine.RollbackDelivery(ctx, sub.ID, []quota.Item{{ProductID: water, Quantity: 1}}))

	_, err = engine.RegisterPayment(ctx, cyclebill.PaymentInput{
		CycleID:   b.CycleID,
		Amount:    cyclebill.NewMoney(500000, "cop"),
		Reference: "bank-0001",
	})
	require.NoError(t, err)

	value := func(c observability.Counter) float64 {
		return testutil.ToFloat64(c.(prometheus.Counter))
	}
	assert.InDelta(t, 1, value(metrics.CycleProvisioned), 0)
	assert.InDelta(t, 1, value(metrics.QuotaValidated), 0)
	assert.InDelta(t, 10, value(metrics.QuotaCoveredUnits), 0)
	assert.InDelta(t, 2, value(metrics.QuotaAdditionalUnits), 0)
	assert.InDelta(t, 1, value(metrics.DeliveryApplied), 0)
	assert.InDelta(t, 4, value(metrics.DeliveredUnits), 0)
	assert.InDelta(t, 1, value(metrics.RolledBackUnits), 0)
	assert.InDelta(t, 1, value(metrics.PaymentRegistered), 0)
	assert.InDelta(t, 0, value(metrics.SurchargeApplied), 0)

	count, err := testutil.GatherAndCount(reg, "cyclebill_payment_amount")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
