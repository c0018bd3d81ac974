package cyclebill_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/store/memory"
	"github.com/xraph/cyclebill/types"
)

// TestDocumentationExamples verifies that the package documentation examples
// run against the memory store.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for the demo, use postgres.Open in production.
		store := memory.New()

		engine := cyclebill.New(store, cyclebill.WithLogger(slog.Default()))

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		water := id.NewProductID()
		p := &plan.Plan{
			Name:      "Home water",
			Slug:      "home-water",
			Currency:  "cop",
			Price:     cyclebill.NewMoney(2000000, "cop"), // 20,000.00 COP
			CycleDays: 30,
			TermDays:  5,
			Products: []plan.Product{
				{ProductID: water, Name: "20L bottle", Quantity: 10},
			},
		}
		if err := engine.CreatePlan(ctx, p); err != nil {
			t.Fatal(err)
		}

		sub, err := engine.CreateSubscription(ctx, id.NewCustomerID(), p.ID)
		if err != nil {
			t.Fatal(err)
		}

		// Orders are checked against the cycle's entitlement, provisioning
		// the cycle on first use.
		items := []quota.Item{{ProductID: water, Quantity: 12}}
		b, err := engine.ReserveQuotas(ctx, sub.ID, items)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("covered: %d, additional: %d\n", b.TotalCovered(), b.TotalAdditional())

		if err := engine.ApplyDelivery(ctx, sub.ID, items); err != nil {
			t.Fatal(err)
		}

		// Overpayment becomes credit for the next cycle.
		if _, err := engine.RegisterPayment(ctx, cyclebill.PaymentInput{
			CycleID:   b.CycleID,
			Amount:    cyclebill.NewMoney(2500000, "cop"),
			Reference: "bank-0001",
		}); err != nil {
			t.Fatal(err)
		}

		summary, err := engine.GetCycleSummary(ctx, b.CycleID)
		if err != nil {
			t.Fatal(err)
		}
		if summary.Status != "CREDITED" {
			t.Fatalf("status = %s, want CREDITED", summary.Status)
		}
		log.Printf("pending: %s, credit: %s\n", summary.PendingBalance, summary.CreditBalance)
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		m1 := types.New(150000, "cop") // 1,500.00 COP
		m2 := types.Zero("cop")

		_ = m1.Add(m2)
		_ = m1.Subtract(types.New(50000, "cop"))

		if m2.LessThan(m1) {
			// m2 is less than m1
		}

		_ = m1.String()      // "1500.00 COP"
		_ = m1.FormatMajor() // "1500.00"

		if _, err := types.Parse("1500.50", "cop"); err != nil {
			t.Fatal(err)
		}
	})
}
