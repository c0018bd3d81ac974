// Package mongo implements store.Store on MongoDB through Grove ORM.
//
// Cycle detail rows are embedded in their cycle document. Transact runs its
// body inside a multi-document session transaction; concurrent writers of
// the same cycle collide with a write conflict and the transaction is
// retried by the driver. Two transactions provisioning the same cycle collide
// on the unique (subscription_id, cycle_start) index; the loser is re-run so
// it reads the winner's cycle.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/id"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/subscription"
)

// Collection name constants.
const (
	colPlans         = "cyclebill_plans"
	colSubscriptions = "cyclebill_subscriptions"
	colCycles        = "cyclebill_cycles"
	colPayments      = "cyclebill_payments"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all cyclebill collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return tag(cyclebill.ErrMigrationFailed, err, "cyclebill/mongo: migrate "+col+" indexes")
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Cycles() cycle.Store               { return cycleStore{s.mdb} }
func (s *Store) Payments() payment.Store           { return paymentStore{s.mdb} }
func (s *Store) Subscriptions() subscription.Store { return subscriptionStore{s.mdb} }
func (s *Store) Plans() plan.Store                 { return planStore{s.mdb} }

// ==================== Transactions ====================

// maxProvisionAttempts bounds how often Transact re-runs a transaction that
// lost a cycle provisioning race.
const maxProvisionAttempts = 3

// errCycleExists marks an insert rejected by the unique cycle start index.
var errCycleExists = errors.New("cyclebill/mongo: cycle already provisioned")

// Transact runs fn inside a session transaction. The repositories handed to
// fn are the store's own; operations join the transaction through ctx.
func (s *Store) Transact(ctx context.Context, fn store.TxFunc) error {
	var err error
	for attempt := 1; attempt <= maxProvisionAttempts; attempt++ {
		err = s.transactOnce(ctx, fn)
		if !errors.Is(err, errCycleExists) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Store) transactOnce(ctx context.Context, fn store.TxFunc) error {
	sess, err := s.mdb.Collection(colCycles).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("cyclebill/mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx, s)
	})
	if err != nil && isTransient(err) {
		return tag(cyclebill.ErrTransactionConflict, err, "cyclebill/mongo: transaction")
	}
	return err
}

// ==================== Plan Store ====================

type planStore struct{ mdb *mongodriver.MongoDB }

func (s planStore) Create(ctx context.Context, p *plan.Plan) error {
	_, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx)
	if err != nil {
		return insertErr(err, "cyclebill/mongo: create plan")
	}
	return nil
}

func (s planStore) Get(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return s.findOne(ctx, bson.M{"_id": planID.String()}, "get plan")
}

func (s planStore) GetBySlug(ctx context.Context, slug string) (*plan.Plan, error) {
	return s.findOne(ctx, bson.M{"slug": slug}, "get plan by slug")
}

func (s planStore) findOne(ctx context.Context, filter bson.M, op string) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cyclebill.ErrPlanNotFound
		}
		return nil, fmt.Errorf("cyclebill/mongo: %s: %w", op, err)
	}
	return fromPlanModel(&m)
}

func (s planStore) List(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("cyclebill/mongo: list plans: %w", err)
	}

	plans := make([]*plan.Plan, 0, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// ==================== Subscription Store ====================

type subscriptionStore struct{ mdb *mongodriver.MongoDB }

func (s subscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		return insertErr(err, "cyclebill/mongo: create subscription")
	}
	return nil
}

func (s subscriptionStore) Get(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cyclebill.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("cyclebill/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s subscriptionStore) List(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("cyclebill/mongo: list subscriptions: %w", err)
	}

	subs := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s subscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cyclebill/mongo: update subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return cyclebill.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Cycle Store ====================

type cycleStore struct{ mdb *mongodriver.MongoDB }

func (s cycleStore) Create(ctx context.Context, c *cycle.Cycle) error {
	_, err := s.mdb.NewInsert(toCycleModel(c)).Exec(ctx)
	if err != nil {
		return cycleInsertErr(err)
	}
	return nil
}

func (s cycleStore) Get(ctx context.Context, cycleID id.CycleID) (*cycle.Cycle, error) {
	var m cycleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": cycleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cyclebill.ErrCycleNotFound
		}
		return nil, fmt.Errorf("cyclebill/mongo: get cycle: %w", err)
	}
	return fromCycleModel(&m)
}

// GetActive matches on calendar days; both bounds are inclusive.
func (s cycleStore) GetActive(ctx context.Context, subID id.SubscriptionID, day time.Time) (*cycle.Cycle, error) {
	d := cycle.Day(day)
	var m cycleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"subscription_id": subID.String(),
			"cycle_start":     bson.M{"$lte": d},
			"cycle_end":       bson.M{"$gte": d},
		}).
		Sort(bson.D{{Key: "cycle_start", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cyclebill.ErrCycleNotFound
		}
		return nil, fmt.Errorf("cyclebill/mongo: get active cycle: %w", err)
	}
	return fromCycleModel(&m)
}

func (s cycleStore) ListBySubscription(ctx context.Context, subID id.SubscriptionID) ([]*cycle.Cycle, error) {
	var models []cycleModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"subscription_id": subID.String()}).
		Sort(bson.D{{Key: "cycle_start", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("cyclebill/mongo: list cycles: %w", err)
	}

	cycles := make([]*cycle.Cycle, 0, len(models))
	for i := range models {
		models[i].Details = nil
		c, err := fromCycleModel(&models[i])
		if err != nil {
			return nil, err
		}
		c.Details = nil
		cycles = append(cycles, c)
	}
	return cycles, nil
}

// Update writes the cycle header. Detail rows are left untouched.
func (s cycleStore) Update(ctx context.Context, c *cycle.Cycle) error {
	res, err := s.mdb.NewUpdate((*cycleModel)(nil)).
		Filter(bson.M{"_id": c.ID.String()}).
		Set("payment_due_date", c.DueDate).
		Set("total_amount", toDecimal128(c.TotalAmount)).
		Set("paid_amount", toDecimal128(c.PaidAmount)).
		Set("pending_balance", toDecimal128(c.PendingBalance)).
		Set("credit_balance", toDecimal128(c.CreditBalance)).
		Set("payment_status", string(c.Status)).
		Set("updated_at", c.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cyclebill/mongo: update cycle: %w", err)
	}
	if res.MatchedCount() == 0 {
		return cyclebill.ErrCycleNotFound
	}
	return nil
}

// UpdateDetail rewrites the quantities of one embedded detail row.
func (s cycleStore) UpdateDetail(ctx context.Context, d *cycle.Detail) error {
	res, err := s.mdb.NewUpdate((*cycleModel)(nil)).
		Filter(bson.M{"_id": d.CycleID.String(), "details.id": d.ID.String()}).
		Set("details.$.delivered_quantity", d.DeliveredQuantity).
		Set("details.$.remaining_balance", d.RemainingBalance).
		Set("details.$.reserved_quantity", d.ReservedQuantity).
		Set("details.$.updated_at", d.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cyclebill/mongo: update cycle detail: %w", err)
	}
	if res.MatchedCount() == 0 {
		return cyclebill.ErrCycleNotFound
	}
	return nil
}

// ==================== Payment Store ====================

type paymentStore struct{ mdb *mongodriver.MongoDB }

func (s paymentStore) Create(ctx context.Context, p *payment.Payment) error {
	_, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		return insertErr(err, "cyclebill/mongo: create payment")
	}
	return nil
}

func (s paymentStore) ListByCycle(ctx context.Context, cycleID id.CycleID) ([]*payment.Payment, error) {
	var models []paymentModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"cycle_id": cycleID.String()}).
		Sort(bson.D{{Key: "payment_date", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("cyclebill/mongo: list payments: %w", err)
	}

	payments := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (s paymentStore) GetByReference(ctx context.Context, cycleID id.CycleID, reference string) (*payment.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"cycle_id":  cycleID.String(),
			"reference": reference,
			"kind":      string(payment.KindPayment),
		}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, cyclebill.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("cyclebill/mongo: get payment by reference: %w", err)
	}
	return fromPaymentModel(&m)
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isTransient reports whether the server labelled err as a transaction
// failure that would succeed on retry.
func isTransient(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("UnknownTransactionCommitResult")
}

func insertErr(err error, msg string) error {
	if mongo.IsDuplicateKeyError(err) {
		return tag(cyclebill.ErrAlreadyExists, err, msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// cycleInsertErr reports a duplicate cycle start as a transaction conflict.
// The cycle ids are random, so the only key an insert can collide on is
// (subscription_id, cycle_start).
func cycleInsertErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", errCycleExists,
			tag(cyclebill.ErrTransactionConflict, err, "cyclebill/mongo: create cycle"))
	}
	return fmt.Errorf("cyclebill/mongo: create cycle: %w", err)
}

// tag classifies err as sentinel, keeping the driver error text.
func tag(sentinel, err error, msg string) error {
	return fmt.Errorf("%s: %w: %v", msg, sentinel, err)
}

// migrationIndexes returns the index definitions for all cyclebill collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{
				Keys: bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"slug": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "plan_id", Value: 1}}},
		},
		colCycles: {
			{
				Keys:    bson.D{{Key: "subscription_id", Value: 1}, {Key: "cycle_start", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "cycle_end", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "cycle_id", Value: 1}, {Key: "payment_date", Value: 1}}},
			{
				Keys: bson.D{{Key: "cycle_id", Value: 1}, {Key: "reference", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{
						"kind":      string(payment.KindPayment),
						"reference": bson.M{"$gt": ""},
					}),
			},
		},
	}
}
