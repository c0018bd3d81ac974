package cyclebill

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cyclebill/cycle"
	"github.com/xraph/cyclebill/plugin"
	"github.com/xraph/cyclebill/store"
)

// Engine is the billing and quota engine. All methods are safe for
// concurrent use; consistency across records is delegated to the store's
// Transact.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Configuration
	clock        func() time.Time
	lateFees     cycle.LateFeePolicy
	autoTransfer bool
	migrate      bool
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		clock:        time.Now,
		lateFees:     cycle.DefaultLateFeePolicy(),
		autoTransfer: true,
		migrate:      true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithClock sets the time source used for due dates, late fees and cycle
// boundaries.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLateFeePolicy replaces the default 3 day / 2% / 30% late fee policy.
func WithLateFeePolicy(p cycle.LateFeePolicy) Option {
	return func(e *Engine) {
		e.lateFees = p
	}
}

// WithAutoCreditTransfer controls whether EnsureCycle moves credit from the
// latest closed cycle into a newly provisioned one. Enabled by default.
func WithAutoCreditTransfer(enabled bool) Option {
	return func(e *Engine) {
		e.autoTransfer = enabled
	}
}

// WithoutMigrate stops Start from migrating the store.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.migrate = false
	}
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// LateFeePolicy returns the policy used by RegisterPayment.
func (e *Engine) LateFeePolicy() cycle.LateFeePolicy { return e.lateFees }

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if e.migrate {
		if err := e.store.Migrate(ctx); err != nil {
			return Internal(err, "migrate store")
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("cyclebill started",
		"plugins", e.plugins.Count(),
		"grace_days", e.lateFees.GraceDays,
		"daily_rate", e.lateFees.DailyRate.String(),
		"max_rate", e.lateFees.MaxRate.String(),
		"auto_credit_transfer", e.autoTransfer,
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// now returns the current time in UTC.
func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// transact runs fn in a store transaction and classifies any unclassified
// failure as internal.
func (e *Engine) transact(ctx context.Context, op string, fn store.TxFunc) error {
	if err := e.store.Transact(ctx, fn); err != nil {
		return Internal(err, op)
	}
	return nil
}
