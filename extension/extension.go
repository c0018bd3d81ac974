// Package extension provides the Forge extension adapter for cyclebill.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.cyclebill" or
// "cyclebill" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/store"
	"github.com/xraph/cyclebill/store/memory"
	"github.com/xraph/cyclebill/store/mongo"
	"github.com/xraph/cyclebill/store/postgres"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "cyclebill"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscription cycle billing and delivery quota engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts cyclebill as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *cyclebill.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []cyclebill.Option
}

// New creates a new cyclebill Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *cyclebill.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.resolveStore(); err != nil {
		return err
	}

	e.engine = cyclebill.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*cyclebill.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("cyclebill: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("cyclebill: store not initialized")
	}
	return e.store.Ping(ctx)
}

// resolveStore picks the store: a programmatic store first, then a grove
// database (pg or mongo driver), then a PostgreSQL DSN, then the memory
// store.
func (e *Extension) resolveStore() error {
	switch {
	case e.store != nil:
	case e.groveDB != nil:
		switch name := e.groveDB.Driver().Name(); name {
		case "pg":
			e.store = postgres.New(e.groveDB)
		case "mongo":
			e.store = mongo.New(e.groveDB)
		default:
			return fmt.Errorf("cyclebill: unsupported grove driver %q", name)
		}
	case e.config.PostgresDSN != "":
		s, err := postgres.Open(context.Background(), e.config.PostgresDSN)
		if err != nil {
			return err
		}
		e.store = s
	default:
		e.store = memory.New()
	}
	return nil
}

// buildEngineOpts constructs cyclebill.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []cyclebill.Option {
	opts := make([]cyclebill.Option, 0, len(e.engineOpts)+3)

	opts = append(opts,
		cyclebill.WithLateFeePolicy(e.config.LateFeePolicy()),
		cyclebill.WithAutoCreditTransfer(!e.config.DisableCreditTransfer),
	)
	if e.config.DisableMigrate {
		opts = append(opts, cyclebill.WithoutMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("cyclebill: configuration is required but not found in config files; " +
				"ensure 'extensions.cyclebill' or 'cyclebill' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("cyclebill: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("late_fee_grace_days", e.config.LateFeeGraceDays),
		forge.F("late_fee_daily_rate", e.config.LateFeeDailyRate),
		forge.F("late_fee_max_rate", e.config.LateFeeMaxRate),
		forge.F("disable_credit_transfer", e.config.DisableCreditTransfer),
		forge.F("postgres", e.config.PostgresDSN != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.cyclebill" first (namespaced pattern).
	if cm.IsSet("extensions.cyclebill") {
		if err := cm.Bind("extensions.cyclebill", &cfg); err == nil {
			e.Logger().Debug("cyclebill: loaded config from file",
				forge.F("key", "extensions.cyclebill"),
			)
			return cfg, true
		}
		e.Logger().Warn("cyclebill: failed to bind extensions.cyclebill config",
			forge.F("error", "bind failed"),
		)
	}

	// Try top-level "cyclebill" key.
	if cm.IsSet("cyclebill") {
		if err := cm.Bind("cyclebill", &cfg); err == nil {
			e.Logger().Debug("cyclebill: loaded config from file",
				forge.F("key", "cyclebill"),
			)
			return cfg, true
		}
		e.Logger().Warn("cyclebill: failed to bind cyclebill config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.LateFeeGraceDays == 0 {
		cfg.LateFeeGraceDays = defaults.LateFeeGraceDays
	}
	if cfg.LateFeeDailyRate == 0 {
		cfg.LateFeeDailyRate = defaults.LateFeeDailyRate
	}
	if cfg.LateFeeMaxRate == 0 {
		cfg.LateFeeMaxRate = defaults.LateFeeMaxRate
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableCreditTransfer {
		yamlConfig.DisableCreditTransfer = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.PostgresDSN == "" && programmaticConfig.PostgresDSN != "" {
		yamlConfig.PostgresDSN = programmaticConfig.PostgresDSN
	}

	// Numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.LateFeeGraceDays == 0 && programmaticConfig.LateFeeGraceDays != 0 {
		yamlConfig.LateFeeGraceDays = programmaticConfig.LateFeeGraceDays
	}
	if yamlConfig.LateFeeDailyRate == 0 && programmaticConfig.LateFeeDailyRate != 0 {
		yamlConfig.LateFeeDailyRate = programmaticConfig.LateFeeDailyRate
	}
	if yamlConfig.LateFeeMaxRate == 0 && programmaticConfig.LateFeeMaxRate != 0 {
		yamlConfig.LateFeeMaxRate = programmaticConfig.LateFeeMaxRate
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
