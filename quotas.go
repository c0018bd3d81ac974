package cyclebill

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/quota"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/subscription"
	"github.com/xraph/cyclebill/types"
)

// ──────────────────────────────────────────────────
// Cycle provisioning
// ──────────────────────────────────────────────────

// provisioned records what ensureCycle did inside a transaction so events
// can be emitted after commit.
type provisioned struct {
	cycle    *cycle.Cycle
	created  bool
	transfer *CreditTransfer
}

// GetCurrentActiveCycle returns the cycle of the subscription whose
// [start, end] days contain today, with its detail rows.
func (e *Engine) GetCurrentActiveCycle(ctx context.Context, subID id.SubscriptionID) (*cycle.Cycle, error) {
	if _, err := e.store.Subscriptions().Get(ctx, subID); err != nil {
		return nil, Internal(err, "get subscription")
	}
	c, err := activeCycle(ctx, e.store, subID, e.now())
	if err != nil {
		return nil, Internal(err, "get active cycle")
	}
	return c, nil
}

// EnsureCycle returns the active cycle of the subscription, provisioning
// one from the plan when none covers today.
func (e *Engine) EnsureCycle(ctx context.Context, subID id.SubscriptionID) (*cycle.Cycle, error) {
	var p provisioned
	err := e.transact(ctx, "ensure cycle", func(ctx context.Context, tx store.Repositories) error {
		var err error
		p, err = e.ensureCycle(ctx, tx, subID, e.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	e.afterProvision(ctx, subID, p)
	return p.cycle, nil
}

func activeCycle(ctx context.Context, repos store.Repositories, subID id.SubscriptionID, now time.Time) (*cycle.Cycle, error) {
	c, err := repos.Cycles().GetActive(ctx, subID, now)
	if errors.Is(err, ErrNotFound) {
		return nil, errors.Wrapf(ErrNoActiveCycle, "subscription %s", subID)
	}
	return c, err
}

func (e *Engine) ensureCycle(ctx context.Context, tx store.Repositories, subID id.SubscriptionID, now time.Time) (provisioned, error) {
	sub, err := tx.Subscriptions().Get(ctx, subID)
	if err != nil {
		return provisioned{}, err
	}
	if !sub.IsActive() {
		return provisioned{}, errors.Wrapf(ErrSubscriptionNotActive, "subscription %s is %s", subID, sub.Status)
	}

	c, err := tx.Cycles().GetActive(ctx, subID, now)
	if err == nil {
		return provisioned{cycle: c}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return provisioned{}, err
	}

	c, err = e.newCycle(ctx, tx, sub, now)
	if err != nil {
		return provisioned{}, err
	}
	if err := tx.Cycles().Create(ctx, c); err != nil {
		return provisioned{}, err
	}

	p := provisioned{cycle: c, created: true}
	if e.autoTransfer {
		if p.transfer, err = e.transferInto(ctx, tx, c, now, ""); err != nil {
			return provisioned{}, err
		}
	}
	return p, nil
}

// newCycle builds a cycle starting today from the subscription's plan.
func (e *Engine) newCycle(ctx context.Context, tx store.Repositories, sub *subscription.Subscription, now time.Time) (*cycle.Cycle, error) {
	pl, err := tx.Plans().Get(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	start := cycle.Day(now)
	end := start.AddDate(0, 0, pl.CycleDays)
	due := end
	if pl.TermDays > 0 {
		due = start.AddDate(0, 0, pl.TermDays)
	}

	c := &cycle.Cycle{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewCycleID(),
		SubscriptionID: sub.ID,
		Currency:       pl.Currency,
		Start:          start,
		End:            end,
		DueDate:        due,
		TotalAmount:    pl.Price,
		PaidAmount:     types.Zero(pl.Currency),
		PendingBalance: pl.Price,
		CreditBalance:  types.Zero(pl.Currency),
		Status:         cycle.StatusPending,
		Details:        make([]cycle.Detail, 0, len(pl.Products)),
	}
	for _, prod := range pl.Products {
		c.Details = append(c.Details, cycle.Detail{
			Entity:           types.NewEntityAt(now),
			ID:               id.NewCycleDetailID(),
			CycleID:          c.ID,
			ProductID:        prod.ProductID,
			PlannedQuantity:  prod.Quantity,
			RemainingBalance: prod.Quantity,
		})
	}
	if !c.PendingBalance.IsPositive() {
		c.RecomputeStatus()
	}
	return c, nil
}

func (e *Engine) afterProvision(ctx context.Context, subID id.SubscriptionID, p provisioned) {
	if !p.created {
		return
	}
	e.logger.Info("cycle provisioned",
		"subscription_id", subID.String(),
		"cycle_id", p.cycle.ID.String(),
		"cycle_start", p.cycle.Start.Format(time.DateOnly),
		"cycle_end", p.cycle.End.Format(time.DateOnly),
		"total", p.cycle.TotalAmount.String(),
	)
	e.plugins.EmitCycleProvisioned(ctx, p.cycle)
	if p.transfer != nil {
		e.afterTransfer(ctx, subID, p.transfer)
	}
}

// ──────────────────────────────────────────────────
// Quota allocation
// ──────────────────────────────────────────────────

func validateItems(items []quota.Item) error {
	for i, item := range items {
		if item.ProductID.IsNil() {
			return errors.Wrapf(ErrInvalidProduct, "item %d", i)
		}
		if item.Quantity <= 0 {
			return errors.Wrapf(ErrInvalidQuantity, "item %d: %d", i, item.Quantity)
		}
	}
	return nil
}

// ValidateQuotas splits the requested quantities into the part covered by
// the active cycle and the part to be billed as additional, provisioning a
// cycle when none is active. Nothing is reserved; use ReserveQuotas when the
// order is being placed.
func (e *Engine) ValidateQuotas(ctx context.Context, subID id.SubscriptionID, items []quota.Item) (*quota.Breakdown, error) {
	return e.splitQuotas(ctx, subID, items, false)
}

// ReserveQuotas is ValidateQuotas that also reserves the covered units, so
// concurrent orders cannot be covered by the same entitlement.
func (e *Engine) ReserveQuotas(ctx context.Context, subID id.SubscriptionID, items []quota.Item) (*quota.Breakdown, error) {
	return e.splitQuotas(ctx, subID, items, true)
}

func (e *Engine) splitQuotas(ctx context.Context, subID id.SubscriptionID, items []quota.Item, reserve bool) (*quota.Breakdown, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var (
		p         provisioned
		breakdown *quota.Breakdown
	)
	err := e.transact(ctx, "split quotas", func(ctx context.Context, tx store.Repositories) error {
		var err error
		if p, err = e.ensureCycle(ctx, tx, subID, e.now()); err != nil {
			return err
		}
		breakdown = quota.Split(p.cycle, items)
		if !reserve {
			return nil
		}

		var touched detailSet
		for _, line := range breakdown.Lines {
			if line.Covered == 0 {
				continue
			}
			d := p.cycle.FindDetail(line.ProductID)
			d.Reserve(line.Covered)
			d.Touch(e.now())
			touched.add(d)
		}
		return touched.save(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	e.afterProvision(ctx, subID, p)
	if reserve {
		e.logger.Info("quota reserved",
			"subscription_id", subID.String(),
			"cycle_id", breakdown.CycleID.String(),
			"covered", breakdown.TotalCovered(),
			"additional", breakdown.TotalAdditional(),
		)
		e.plugins.EmitQuotaReserved(ctx, subID, breakdown)
	} else {
		e.plugins.EmitQuotaValidated(ctx, subID, breakdown)
	}
	return breakdown, nil
}

// ReleaseQuotas returns units reserved by an order that will not be
// delivered.
func (e *Engine) ReleaseQuotas(ctx context.Context, subID id.SubscriptionID, items []quota.Item) error {
	c, err := e.adjustDetails(ctx, subID, items, "release quotas", (*cycle.Detail).Release)
	if err != nil {
		return err
	}
	e.logger.Info("quota released", "subscription_id", subID.String(), "cycle_id", c.ID.String())
	e.plugins.EmitQuotaReleased(ctx, c, items)
	return nil
}

// ApplyDelivery records delivered quantities on the active cycle. Reserved
// units are consumed first. Products without a detail row are ignored.
//
// Reservations are counted per product, not per order. An order delivered
// without a prior ReserveQuotas still consumes units reserved by other
// orders, so callers that reserve for any order must reserve for all of
// them.
func (e *Engine) ApplyDelivery(ctx context.Context, subID id.SubscriptionID, items []quota.Item) error {
	c, err := e.adjustDetails(ctx, subID, items, "apply delivery", (*cycle.Detail).Deliver)
	if err != nil {
		return err
	}
	e.logger.Info("delivery applied", "subscription_id", subID.String(), "cycle_id", c.ID.String())
	e.plugins.EmitDeliveryApplied(ctx, c, items)
	return nil
}

// RollbackDelivery reverts delivered quantities on the active cycle, never
// below zero. Reservations consumed by the delivery are not restored.
func (e *Engine) RollbackDelivery(ctx context.Context, subID id.SubscriptionID, items []quota.Item) error {
	c, err := e.adjustDetails(ctx, subID, items, "rollback delivery", (*cycle.Detail).Rollback)
	if err != nil {
		return err
	}
	e.logger.Info("delivery rolled back", "subscription_id", subID.String(), "cycle_id", c.ID.String())
	e.plugins.EmitDeliveryRolledBack(ctx, c, items)
	return nil
}

// adjustDetails applies fn to the matching detail rows of the active cycle
// in one transaction and returns the updated cycle.
func (e *Engine) adjustDetails(ctx context.Context, subID id.SubscriptionID, items []quota.Item, op string, fn func(*cycle.Detail, int)) (*cycle.Cycle, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var result *cycle.Cycle
	err := e.transact(ctx, op, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Subscriptions().Get(ctx, subID); err != nil {
			return err
		}
		c, err := activeCycle(ctx, tx, subID, e.now())
		if err != nil {
			return err
		}

		var touched detailSet
		for _, item := range items {
			d := c.FindDetail(item.ProductID)
			if d == nil {
				continue
			}
			fn(d, item.Quantity)
			d.Touch(e.now())
			touched.add(d)
		}
		result = c
		return touched.save(ctx, tx)
	})
	return result, err
}

// detailSet collects modified detail rows in first-touch order.
type detailSet struct {
	seen  map[string]bool
	order []*cycle.Detail
}

func (s *detailSet) add(d *cycle.Detail) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if !s.seen[d.ID.String()] {
		s.seen[d.ID.String()] = true
		s.order = append(s.order, d)
	}
}

func (s *detailSet) save(ctx context.Context, tx store.Repositories) error {
	for _, d := range s.order {
		if err := tx.Cycles().UpdateDetail(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
