package extension

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/grove"

	"github.com/xraph/cyclebill"
	audithook "github.com/xraph/cyclebill/audit_hook"
	"github.com/xraph/cyclebill/observability"
	"github.com/xraph/cyclebill/plugin"
	"github.com/xraph/cyclebill/store"
)

// Option configures the cyclebill Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDatabase backs the engine with the store matching db's driver:
// pgdriver or mongodriver.
func WithGroveDatabase(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEngineOption passes a cyclebill.Option through to the underlying engine.
func WithEngineOption(opt cyclebill.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a cyclebill plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, cyclebill.WithPlugin(p))
	}
}

// WithMetrics registers the metrics plugin on a Prometheus registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)))
}

// WithAudit registers the audit plugin.
func WithAudit(r audithook.Recorder, opts ...audithook.Option) Option {
	return WithPlugin(audithook.New(r, opts...))
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithLateFees sets the late fee grace period and rates.
func WithLateFees(graceDays int, dailyRate, maxRate float64) Option {
	return func(e *Extension) {
		e.config.LateFeeGraceDays = graceDays
		e.config.LateFeeDailyRate = dailyRate
		e.config.LateFeeMaxRate = maxRate
	}
}

// WithDisableCreditTransfer stops automatic credit transfer into new cycles.
func WithDisableCreditTransfer() Option {
	return func(e *Extension) { e.config.DisableCreditTransfer = true }
}

// WithPostgresDSN selects the PostgreSQL store.
func WithPostgresDSN(dsn string) Option {
	return func(e *Extension) { e.config.PostgresDSN = dsn }
}
