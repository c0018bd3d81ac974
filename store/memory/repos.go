package memory

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/subscription"
)

// ──────────────────────────────────────────────────
// Plans
// ──────────────────────────────────────────────────

type planRepo repos

func clonePlan(p *plan.Plan) *plan.Plan {
	out := *p
	out.Products = append([]plan.Product(nil), p.Products...)
	out.Metadata = cloneMeta(p.Metadata)
	return &out
}

func (r planRepo) Create(ctx context.Context, p *plan.Plan) error {
	return r.acc.write(ctx, func(st *state) error {
		if _, exists := st.plans[p.ID.String()]; exists {
			return cyclebill.ErrAlreadyExists
		}
		for _, other := range st.plans {
			if p.Slug != "" && other.Slug == p.Slug {
				return cyclebill.ErrAlreadyExists
			}
		}
		st.plans[p.ID.String()] = clonePlan(p)
		return nil
	})
}

func (r planRepo) Get(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	var out *plan.Plan
	err := r.acc.read(func(st *state) error {
		p, ok := st.plans[planID.String()]
		if !ok {
			return cyclebill.ErrPlanNotFound
		}
		out = clonePlan(p)
		return nil
	})
	return out, err
}

func (r planRepo) GetBySlug(_ context.Context, slug string) (*plan.Plan, error) {
	var out *plan.Plan
	err := r.acc.read(func(st *state) error {
		for _, p := range st.plans {
			if p.Slug == slug {
				out = clonePlan(p)
				return nil
			}
		}
		return cyclebill.ErrPlanNotFound
	})
	return out, err
}

func (r planRepo) List(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var out []*plan.Plan
	err := r.acc.read(func(st *state) error {
		result := make([]*plan.Plan, 0, len(st.plans))
		for _, p := range st.plans {
			if opts.Status == "" || p.Status == opts.Status {
				result = append(result, clonePlan(p))
			}
		}
		sortByID(result, func(p *plan.Plan) string { return p.ID.String() })
		out = page(result, opts.Limit, opts.Offset)
		return nil
	})
	return out, err
}

// ──────────────────────────────────────────────────
// Subscriptions
// ──────────────────────────────────────────────────

type subscriptionRepo repos

func cloneSubscription(s *subscription.Subscription) *subscription.Subscription {
	out := *s
	out.Metadata = cloneMeta(s.Metadata)
	return &out
}

func (r subscriptionRepo) Create(ctx context.Context, sub *subscription.Subscription) error {
	return r.acc.write(ctx, func(st *state) error {
		if _, exists := st.subscriptions[sub.ID.String()]; exists {
			return cyclebill.ErrAlreadyExists
		}
		st.subscriptions[sub.ID.String()] = cloneSubscription(sub)
		return nil
	})
}

func (r subscriptionRepo) Get(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := r.acc.read(func(st *state) error {
		sub, ok := st.subscriptions[subID.String()]
		if !ok {
			return cyclebill.ErrSubscriptionNotFound
		}
		out = cloneSubscription(sub)
		return nil
	})
	return out, err
}

func (r subscriptionRepo) List(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var out []*subscription.Subscription
	err := r.acc.read(func(st *state) error {
		result := make([]*subscription.Subscription, 0)
		for _, sub := range st.subscriptions {
			if !opts.CustomerID.IsNil() && sub.CustomerID.String() != opts.CustomerID.String() {
				continue
			}
			if opts.Status != "" && sub.Status != opts.Status {
				continue
			}
			result = append(result, cloneSubscription(sub))
		}
		sortByID(result, func(s *subscription.Subscription) string { return s.ID.String() })
		out = page(result, opts.Limit, opts.Offset)
		return nil
	})
	return out, err
}

func (r subscriptionRepo) Update(ctx context.Context, sub *subscription.Subscription) error {
	return r.acc.write(ctx, func(st *state) error {
		if _, exists := st.subscriptions[sub.ID.String()]; !exists {
			return cyclebill.ErrSubscriptionNotFound
		}
		st.subscriptions[sub.ID.String()] = cloneSubscription(sub)
		return nil
	})
}

// ──────────────────────────────────────────────────
// Cycles
// ──────────────────────────────────────────────────

type cycleRepo repos

func (r cycleRepo) Create(ctx context.Context, c *cycle.Cycle) error {
	return r.acc.write(ctx, func(st *state) error {
		if _, exists := st.cycles[c.ID.String()]; exists {
			return cyclebill.ErrAlreadyExists
		}
		start := cycle.Day(c.Start)
		for _, other := range st.cycles {
			if other.SubscriptionID.String() == c.SubscriptionID.String() && cycle.Day(other.Start).Equal(start) {
				return errors.Wrapf(cyclebill.ErrTransactionConflict,
					"subscription %s already has a cycle starting %s", c.SubscriptionID, start.Format(time.DateOnly))
			}
		}
		st.cycles[c.ID.String()] = c.Clone()
		return nil
	})
}

func (r cycleRepo) Get(_ context.Context, cycleID id.CycleID) (*cycle.Cycle, error) {
	var out *cycle.Cycle
	err := r.acc.read(func(st *state) error {
		c, ok := st.cycles[cycleID.String()]
		if !ok {
			return cyclebill.ErrCycleNotFound
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

func (r cycleRepo) GetActive(_ context.Context, subID id.SubscriptionID, day time.Time) (*cycle.Cycle, error) {
	var out *cycle.Cycle
	err := r.acc.read(func(st *state) error {
		for _, c := range st.cycles {
			if c.SubscriptionID.String() != subID.String() || !c.Contains(day) {
				continue
			}
			if out == nil || c.Start.After(out.Start) {
				out = c
			}
		}
		if out == nil {
			return cyclebill.ErrCycleNotFound
		}
		out = out.Clone()
		return nil
	})
	return out, err
}

func (r cycleRepo) ListBySubscription(_ context.Context, subID id.SubscriptionID) ([]*cycle.Cycle, error) {
	var out []*cycle.Cycle
	err := r.acc.read(func(st *state) error {
		out = make([]*cycle.Cycle, 0)
		for _, c := range st.cycles {
			if c.SubscriptionID.String() == subID.String() {
				cp := c.Clone()
				cp.Details = nil
				out = append(out, cp)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].Start.Equal(out[j].Start) {
				return out[i].Start.Before(out[j].Start)
			}
			return out[i].ID.String() < out[j].ID.String()
		})
		return nil
	})
	return out, err
}

func (r cycleRepo) Update(ctx context.Context, c *cycle.Cycle) error {
	return r.acc.write(ctx, func(st *state) error {
		stored, ok := st.cycles[c.ID.String()]
		if !ok {
			return cyclebill.ErrCycleNotFound
		}
		next := c.Clone()
		next.Details = stored.Details
		st.cycles[c.ID.String()] = next
		return nil
	})
}

func (r cycleRepo) UpdateDetail(ctx context.Context, d *cycle.Detail) error {
	return r.acc.write(ctx, func(st *state) error {
		stored, ok := st.cycles[d.CycleID.String()]
		if !ok {
			return cyclebill.ErrCycleNotFound
		}
		for i := range stored.Details {
			if stored.Details[i].ID.String() == d.ID.String() {
				stored.Details[i] = *d
				return nil
			}
		}
		return cyclebill.ErrCycleNotFound
	})
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

type paymentRepo repos

func (r paymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	return r.acc.write(ctx, func(st *state) error {
		key := p.CycleID.String()
		for _, existing := range st.payments[key] {
			if existing.ID.String() == p.ID.String() {
				return cyclebill.ErrAlreadyExists
			}
		}
		cp := *p
		st.payments[key] = append(st.payments[key], &cp)
		return nil
	})
}

func (r paymentRepo) ListByCycle(_ context.Context, cycleID id.CycleID) ([]*payment.Payment, error) {
	var out []*payment.Payment
	err := r.acc.read(func(st *state) error {
		entries := st.payments[cycleID.String()]
		out = make([]*payment.Payment, 0, len(entries))
		for _, p := range entries {
			cp := *p
			out = append(out, &cp)
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].PaidAt.Equal(out[j].PaidAt) {
				return out[i].PaidAt.Before(out[j].PaidAt)
			}
			return out[i].ID.String() < out[j].ID.String()
		})
		return nil
	})
	return out, err
}

func (r paymentRepo) GetByReference(_ context.Context, cycleID id.CycleID, reference string) (*payment.Payment, error) {
	var out *payment.Payment
	err := r.acc.read(func(st *state) error {
		for _, p := range st.payments[cycleID.String()] {
			if p.Kind == payment.KindPayment && p.Reference == reference {
				cp := *p
				out = &cp
				return nil
			}
		}
		return cyclebill.ErrPaymentNotFound
	})
	return out, err
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
