// Package cyclebill is a subscription billing and delivery quota engine for
// recurring delivery businesses.
//
// cyclebill is a library, not a service. It keeps, per subscription, a
// sequence of billing cycles. Each cycle tracks what is owed, what was paid,
// the credit left over from overpayments and the per-product quantities the
// subscriber may receive. The engine provides:
//
//   - Payment registration with late-payment surcharges
//   - Overpayment credit, carried forward into newer cycles
//   - Credit sweeps that settle the oldest debts first
//   - On-demand cycle provisioning from the subscription's plan
//   - Quota splitting of orders into covered and additional units, with
//     optional reservation so concurrent orders cannot share units
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/cyclebill"
//	    "github.com/xraph/cyclebill/store/postgres"
//	)
//
//	st, err := postgres.Open(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := cyclebill.New(st)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Payments
//
// A payment is applied to the pending balance of one cycle. Anything beyond
// the pending balance becomes credit. When the payment arrives more than
// the grace period after the due date, a surcharge computed on the pending
// balance before the payment is added afterwards:
//
//	p, err := engine.RegisterPayment(ctx, cyclebill.PaymentInput{
//	    CycleID:   cycleID,
//	    Amount:    cyclebill.NewMoney(500000, "cop"),
//	    Method:    payment.MethodTransfer,
//	    Reference: "TX-1029",
//	})
//
// # Quotas
//
// Orders are split against the active cycle before pricing:
//
//	b, err := engine.ReserveQuotas(ctx, subID, []quota.Item{{ProductID: water, Quantity: 5}})
//	// b.Lines[0].Covered units are free, b.Lines[0].Additional are billed.
//
// Deliveries and cancellations are then recorded with ApplyDelivery,
// RollbackDelivery and ReleaseQuotas.
//
// # Consistency
//
// Every mutation runs inside store.Store.Transact. Every balance change
// writes a ledger row with a kind stating its effect, so a cycle's balances
// can always be explained from its payments.
//
// All monetary calculations use integer arithmetic in cents. Rates go
// through shopspring/decimal and are rounded half away from zero.
//
// # TypeID
//
// All entities use TypeID-based identifiers (cyc_, cpay_, sub_, plan_, ...)
// that are K-sortable, globally unique and URL-safe.
package cyclebill
