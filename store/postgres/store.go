// Package postgres implements store.Store on PostgreSQL through the grove
// pgdriver.
//
// Transactions run at SERIALIZABLE isolation and lock the cycles they read
// with SELECT ... FOR UPDATE. Serialization failures and deadlocks are
// retried with exponential backoff, as is a cycle insert rejected by the
// unique (subscription_id, cycle_start) index. When retries are exhausted
// Transact returns cyclebill.ErrTransactionConflict.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the "pg" migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/payment"
	"github.com/xraph/cyclebill/plan"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/subscription"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// PostgreSQL error codes.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db     *grove.DB
	pg     *pgdriver.PgDB
	logger *slog.Logger

	maxRetries  uint64
	maxElapsed  time.Duration
	initialWait time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for retry messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithRetry bounds how often a conflicting transaction is retried.
func WithRetry(maxRetries uint64, maxElapsed time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = maxRetries
		s.maxElapsed = maxElapsed
	}
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		pg:          pgdriver.Unwrap(db),
		logger:      slog.Default(),
		maxRetries:  5,
		maxElapsed:  2 * time.Second,
		initialWait: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a pgdriver pool for dsn and wraps it in a Store.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, errors.Wrap(err, "cyclebill/postgres: open")
	}
	db, err := grove.Open(pg)
	if err != nil {
		return nil, errors.Wrap(err, "cyclebill/postgres: open")
	}
	return New(db, opts...), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return tag(cyclebill.ErrMigrationFailed, err, "cyclebill/postgres: create migration executor")
	}
	return runMigrations(ctx, executor)
}

func runMigrations(ctx context.Context, executor migrate.Executor) error {
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return tag(cyclebill.ErrMigrationFailed, err, "cyclebill/postgres: migration failed")
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

// ==================== Repositories ====================

func (s *Store) Cycles() cycle.Store               { return repos{q: s.pg}.Cycles() }
func (s *Store) Payments() payment.Store           { return repos{q: s.pg}.Payments() }
func (s *Store) Subscriptions() subscription.Store { return repos{q: s.pg}.Subscriptions() }
func (s *Store) Plans() plan.Store                 { return repos{q: s.pg}.Plans() }

// ==================== Transactions ====================

// Transact runs fn in a serializable transaction, retrying on
// serialization failures and deadlocks.
func (s *Store) Transact(ctx context.Context, fn store.TxFunc) error {
	return s.retry(ctx, func() error { return s.transactOnce(ctx, fn) })
}

// retry runs op until it succeeds, fails with a non-conflict error, or the
// backoff budget is spent.
func (s *Store) retry(ctx context.Context, op func() error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return backoff.Permanent(err)
		}
		s.logger.Warn("cyclebill/postgres: transaction conflict, retrying",
			"attempt", attempt,
			"error", err,
		)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx))
	if err != nil && isConflict(err) {
		return tag(cyclebill.ErrTransactionConflict, err, fmt.Sprintf("cyclebill/postgres: gave up after %d attempts", attempt))
	}
	return err
}

func (s *Store) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialWait
	b.MaxElapsedTime = s.maxElapsed
	return b
}

func (s *Store) transactOnce(ctx context.Context, fn store.TxFunc) (err error) {
	tx, err := s.pg.BeginTxQuery(ctx, &driver.TxOptions{IsolationLevel: driver.LevelSerializable})
	if err != nil {
		return errors.Wrap(err, "cyclebill/postgres: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // the original error is more useful
		}
	}()

	if err = fn(ctx, repos{q: tx, lock: true}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "cyclebill/postgres: commit")
	}
	return nil
}

// ==================== Helpers ====================

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isConflict reports whether err is a retryable PostgreSQL failure or a
// lost cycle provisioning race.
func isConflict(err error) bool {
	code := pgCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected ||
		errors.Is(err, cyclebill.ErrTransactionConflict)
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// tag classifies err as sentinel. The text of err is kept in the message and
// err itself is attached as a secondary error.
func tag(sentinel, err error, msg string) error {
	return errors.WithSecondaryError(errors.Wrapf(sentinel, "%s: %v", msg, err), err)
}
