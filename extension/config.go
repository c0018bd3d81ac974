package extension

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/cyclebill/cycle"
)

// Config holds the cyclebill extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.cyclebill" or "cyclebill" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// LateFeeGraceDays is the number of days after the due date before a
	// surcharge accrues (default: 3).
	LateFeeGraceDays int `json:"late_fee_grace_days" mapstructure:"late_fee_grace_days" yaml:"late_fee_grace_days"`

	// LateFeeDailyRate is the surcharge rate added per day past the grace
	// period (default: 0.02).
	LateFeeDailyRate float64 `json:"late_fee_daily_rate" mapstructure:"late_fee_daily_rate" yaml:"late_fee_daily_rate"`

	// LateFeeMaxRate caps the surcharge rate (default: 0.30).
	LateFeeMaxRate float64 `json:"late_fee_max_rate" mapstructure:"late_fee_max_rate" yaml:"late_fee_max_rate"`

	// DisableCreditTransfer stops new cycles from inheriting the credit of
	// the latest closed cycle.
	DisableCreditTransfer bool `json:"disable_credit_transfer" mapstructure:"disable_credit_transfer" yaml:"disable_credit_transfer"`

	// PostgresDSN selects the PostgreSQL store when no store was provided
	// programmatically.
	PostgresDSN string `json:"postgres_dsn" mapstructure:"postgres_dsn" yaml:"postgres_dsn"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LateFeeGraceDays: cycle.DefaultGraceDays,
		LateFeeDailyRate: 0.02,
		LateFeeMaxRate:   0.30,
	}
}

// LateFeePolicy converts the late fee fields into a cycle.LateFeePolicy.
func (c Config) LateFeePolicy() cycle.LateFeePolicy {
	return cycle.LateFeePolicy{
		GraceDays: c.LateFeeGraceDays,
		DailyRate: decimal.NewFromFloat(c.LateFeeDailyRate),
		MaxRate:   decimal.NewFromFloat(c.LateFeeMaxRate),
	}
}
