package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/subscription"
)

// querier builds queries on the pool (*pgdriver.PgDB) or inside a
// transaction (*pgdriver.PgTx).
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
}

var (
	_ querier = (*pgdriver.PgDB)(nil)
	_ querier = (*pgdriver.PgTx)(nil)
)

// repos binds the repositories to the pool or a transaction. Inside a
// transaction, cycle and detail reads take row locks.
type repos struct {
	q    querier
	lock bool
}

func (r repos) Cycles() cycle.Store               { return cycleRepo(r) }
func (r repos) Payments() payment.Store           { return paymentRepo(r) }
func (r repos) Subscriptions() subscription.Store { return subscriptionRepo(r) }
func (r repos) Plans() plan.Store                 { return planRepo(r) }

func (r repos) selectFor(model any) *pgdriver.SelectQuery {
	q := r.q.NewSelect(model)
	if r.lock {
		q = q.ForUpdate()
	}
	return q
}

// written maps unique violations to ErrAlreadyExists and, when the write
// touched no rows, returns notFound.
func written(res driver.Result, err error, notFound error) error {
	if err != nil {
		if isUniqueViolation(err) {
			return tag(cyclebill.ErrAlreadyExists, err, "cyclebill/postgres: write")
		}
		return err
	}
	if notFound == nil {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func page(q *pgdriver.SelectQuery, limit, offset int) *pgdriver.SelectQuery {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

// ==================== Plan Store ====================

type planRepo repos

func (r planRepo) Create(ctx context.Context, p *plan.Plan) error {
	m, err := toPlanModel(p)
	if err != nil {
		return err
	}
	res, err := r.q.NewInsert(m).Exec(ctx)
	return written(res, err, nil)
}

func (r planRepo) Get(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := r.q.NewSelect(m).
		Where("id = $1", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cyclebill.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (r planRepo) GetBySlug(ctx context.Context, slug string) (*plan.Plan, error) {
	m := new(planModel)
	err := r.q.NewSelect(m).
		Where("slug = $1", slug).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cyclebill.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (r planRepo) List(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	models := make([]planModel, 0)
	if err := planListQuery(r.q, opts, &models).Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func planListQuery(q querier, opts plan.ListOpts, dest *[]planModel) *pgdriver.SelectQuery {
	sel := q.NewSelect(dest)
	if opts.Status != "" {
		sel = sel.Where("status = $1", string(opts.Status))
	}
	return page(sel.OrderExpr("id ASC"), opts.Limit, opts.Offset)
}

// ==================== Subscription Store ====================

type subscriptionRepo repos

func (r subscriptionRepo) Create(ctx context.Context, s *subscription.Subscription) error {
	res, err := r.q.NewInsert(toSubscriptionModel(s)).Exec(ctx)
	return written(res, err, nil)
}

func (r subscriptionRepo) Get(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := r.q.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cyclebill.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (r subscriptionRepo) List(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	models := make([]subscriptionModel, 0)
	if err := subscriptionListQuery(r.q, opts, &models).Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		s, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = s
	}
	return result, nil
}

func subscriptionListQuery(q querier, opts subscription.ListOpts, dest *[]subscriptionModel) *pgdriver.SelectQuery {
	sel := q.NewSelect(dest)

	argIdx := 0
	if !opts.CustomerID.IsNil() {
		argIdx++
		sel = sel.Where(fmt.Sprintf("customer_id = $%d", argIdx), opts.CustomerID.String())
	}
	if opts.Status != "" {
		argIdx++
		sel = sel.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	return page(sel.OrderExpr("id ASC"), opts.Limit, opts.Offset)
}

func (r subscriptionRepo) Update(ctx context.Context, s *subscription.Subscription) error {
	res, err := r.q.NewUpdate(toSubscriptionModel(s)).
		Column("status", "metadata", "updated_at").
		WherePK().
		Exec(ctx)
	return written(res, err, cyclebill.ErrSubscriptionNotFound)
}

// ==================== Cycle Store ====================

type cycleRepo repos

// Create reports a second cycle for the same subscription and start day as
// ErrTransactionConflict: a concurrent transaction provisioned it first, and
// a retry will read it.
func (r cycleRepo) Create(ctx context.Context, c *cycle.Cycle) error {
	if _, err := r.q.NewInsert(toCycleModel(c)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return tag(cyclebill.ErrTransactionConflict, err, "cyclebill/postgres: cycle already provisioned")
		}
		return err
	}
	if len(c.Details) == 0 {
		return nil
	}

	details := make([]detailModel, len(c.Details))
	for i := range c.Details {
		details[i] = *toDetailModel(&c.Details[i])
		details[i].CycleID = c.ID.String()
	}
	res, err := r.q.NewInsert(&details).MultiRow().Exec(ctx)
	return written(res, err, nil)
}

func (r cycleRepo) Get(ctx context.Context, cycleID id.CycleID) (*cycle.Cycle, error) {
	m := new(cycleModel)
	err := repos(r).selectFor(m).
		Where("id = $1", cycleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cyclebill.ErrCycleNotFound
		}
		return nil, err
	}
	return r.withDetails(ctx, m)
}

func (r cycleRepo) GetActive(ctx context.Context, subID id.SubscriptionID, day time.Time) (*cycle.Cycle, error) {
	m := new(cycleModel)
	err := r.activeQuery(m, subID, day).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cyclebill.ErrCycleNotFound
		}
		return nil, err
	}
	return r.withDetails(ctx, m)
}

func (r cycleRepo) activeQuery(m *cycleModel, subID id.SubscriptionID, day time.Time) *pgdriver.SelectQuery {
	d := cycle.Day(day)
	return repos(r).selectFor(m).
		Where("subscription_id = $1", subID.String()).
		Where("cycle_start <= $2", d).
		Where("cycle_end >= $3", d).
		OrderExpr("cycle_start DESC").
		Limit(1)
}

func (r cycleRepo) withDetails(ctx context.Context, m *cycleModel) (*cycle.Cycle, error) {
	c, err := fromCycleModel(m)
	if err != nil {
		return nil, err
	}

	details := make([]detailModel, 0)
	err = repos(r).selectFor(&details).
		Where("cycle_id = $1", m.ID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	c.Details = make([]cycle.Detail, len(details))
	for i := range details {
		if c.Details[i], err = fromDetailModel(&details[i]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (r cycleRepo) ListBySubscription(ctx context.Context, subID id.SubscriptionID) ([]*cycle.Cycle, error) {
	models := make([]cycleModel, 0)
	err := repos(r).selectFor(&models).
		Where("subscription_id = $1", subID.String()).
		OrderExpr("cycle_start ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*cycle.Cycle, len(models))
	for i := range models {
		c, err := fromCycleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (r cycleRepo) Update(ctx context.Context, c *cycle.Cycle) error {
	res, err := cycleUpdate(r.q, c).Exec(ctx)
	return written(res, err, cyclebill.ErrCycleNotFound)
}

// cycleUpdate writes the balance header only; the period is immutable.
func cycleUpdate(q querier, c *cycle.Cycle) *pgdriver.UpdateQuery {
	return q.NewUpdate(toCycleModel(c)).
		Column("payment_due_date", "total_amount", "paid_amount", "pending_balance",
			"credit_balance", "payment_status", "updated_at").
		WherePK()
}

func (r cycleRepo) UpdateDetail(ctx context.Context, d *cycle.Detail) error {
	res, err := detailUpdate(r.q, d).Exec(ctx)
	return written(res, err, cyclebill.ErrCycleNotFound)
}

func detailUpdate(q querier, d *cycle.Detail) *pgdriver.UpdateQuery {
	return q.NewUpdate(toDetailModel(d)).
		Column("delivered_quantity", "remaining_balance", "reserved_quantity", "updated_at").
		WherePK().
		Where("cycle_id = ?", d.CycleID.String())
}

// ==================== Payment Store ====================

type paymentRepo repos

func (r paymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	res, err := r.q.NewInsert(toPaymentModel(p)).Exec(ctx)
	return written(res, err, nil)
}

func (r paymentRepo) ListByCycle(ctx context.Context, cycleID id.CycleID) ([]*payment.Payment, error) {
	models := make([]paymentModel, 0)
	err := r.q.NewSelect(&models).
		Where("cycle_id = $1", cycleID.String()).
		OrderExpr("payment_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (r paymentRepo) GetByReference(ctx context.Context, cycleID id.CycleID, reference string) (*payment.Payment, error) {
	m := new(paymentModel)
	err := r.q.NewSelect(m).
		Where("cycle_id = $1", cycleID.String()).
		Where("reference = $2", reference).
		Where("kind = $3", string(payment.KindPayment)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, cyclebill.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromPaymentModel(m)
}
