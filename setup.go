package cyclebill

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/subscription"
	"github.com/xraph/cyclebill/types"
)

// ──────────────────────────────────────────────────
// Plan management
// ──────────────────────────────────────────────────

// CreatePlan validates and stores a delivery plan.
func (e *Engine) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if p.ID.IsNil() {
		p.ID = id.NewPlanID()
	}
	p.Currency = strings.ToLower(p.Currency)
	p.Price = types.New(p.Price.Amount, p.Price.Currency)
	if p.Status == "" {
		p.Status = plan.StatusActive
	}
	if msg := p.Validate(); msg != "" {
		return errors.Wrap(ErrInvalidPlan, msg)
	}
	p.Entity = types.NewEntityAt(e.now())

	if err := e.store.Plans().Create(ctx, p); err != nil {
		return Internal(err, "create plan")
	}

	e.logger.Info("plan created", "plan_id", p.ID.String(), "slug", p.Slug)
	return nil
}

// GetPlan retrieves a plan by ID.
func (e *Engine) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	p, err := e.store.Plans().Get(ctx, planID)
	if err != nil {
		return nil, Internal(err, "get plan")
	}
	return p, nil
}

// ──────────────────────────────────────────────────
// Subscription management
// ──────────────────────────────────────────────────

// CreateSubscription subscribes a customer to an active plan. No cycle is
// provisioned until EnsureCycle or ValidateQuotas is called.
func (e *Engine) CreateSubscription(ctx context.Context, customerID id.CustomerID, planID id.PlanID) (*subscription.Subscription, error) {
	if customerID.IsNil() {
		return nil, errors.Wrap(ErrInvalidArgument, "customer id is required")
	}
	p, err := e.store.Plans().Get(ctx, planID)
	if err != nil {
		return nil, Internal(err, "get plan")
	}
	if p.Status != plan.StatusActive {
		return nil, errors.Wrapf(ErrInvalidPlan, "plan %s is %s", planID, p.Status)
	}

	now := e.now()
	sub := &subscription.Subscription{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewSubscriptionID(),
		CustomerID: customerID,
		PlanID:     planID,
		Status:     subscription.StatusActive,
		StartedAt:  now,
	}
	if err := e.store.Subscriptions().Create(ctx, sub); err != nil {
		return nil, Internal(err, "create subscription")
	}

	e.logger.Info("subscription created",
		"subscription_id", sub.ID.String(),
		"customer_id", customerID.String(),
		"plan_id", planID.String(),
	)
	return sub, nil
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := e.store.Subscriptions().Get(ctx, subID)
	if err != nil {
		return nil, Internal(err, "get subscription")
	}
	return sub, nil
}

// UpdateSubscriptionStatus changes the status of a subscription. Existing
// cycles are untouched; only new provisioning depends on the status.
func (e *Engine) UpdateSubscriptionStatus(ctx context.Context, subID id.SubscriptionID, status subscription.Status) (*subscription.Subscription, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "unknown subscription status %q", status)
	}

	sub, err := e.store.Subscriptions().Get(ctx, subID)
	if err != nil {
		return nil, Internal(err, "get subscription")
	}
	if sub.Status == status {
		return sub, nil
	}

	prev := sub.Status
	sub.Status = status
	sub.Touch(e.now())
	if err := e.store.Subscriptions().Update(ctx, sub); err != nil {
		return nil, Internal(err, "update subscription")
	}

	e.logger.Info("subscription status changed",
		"subscription_id", subID.String(),
		"from", string(prev),
		"to", string(status),
	)
	return sub, nil
}

// ListCycles returns the cycles of a subscription by start date, without
// detail rows.
func (e *Engine) ListCycles(ctx context.Context, subID id.SubscriptionID) ([]*cycle.Cycle, error) {
	if _, err := e.store.Subscriptions().Get(ctx, subID); err != nil {
		return nil, Internal(err, "get subscription")
	}
	cycles, err := e.store.Cycles().ListBySubscription(ctx, subID)
	if err != nil {
		return nil, Internal(err, "list cycles")
	}
	return cycles, nil
}
