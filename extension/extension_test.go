package extension

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/cyclebill"
	"github.com/xraph/cyclebill/store/memory"
	"github.com/xraph/cyclebill/store/postgres"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{LateFeeMaxRate: 0.5})

	assert.Equal(t, 3, cfg.LateFeeGraceDays)
	assert.InDelta(t, 0.02, cfg.LateFeeDailyRate, 1e-9)
	assert.InDelta(t, 0.5, cfg.LateFeeMaxRate, 1e-9)
	assert.False(t, cfg.DisableCreditTransfer)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{LateFeeGraceDays: 5, PostgresDSN: "postgres://yaml"}
	prog := Config{
		LateFeeGraceDays:      1,
		LateFeeDailyRate:      0.01,
		DisableMigrate:        true,
		DisableCreditTransfer: true,
		PostgresDSN:           "postgres://code",
	}

	cfg := mergeConfigurations(yaml, prog)

	assert.Equal(t, 5, cfg.LateFeeGraceDays)
	assert.InDelta(t, 0.01, cfg.LateFeeDailyRate, 1e-9)
	assert.InDelta(t, 0.30, cfg.LateFeeMaxRate, 1e-9)
	assert.Equal(t, "postgres://yaml", cfg.PostgresDSN)
	assert.True(t, cfg.DisableMigrate)
	assert.True(t, cfg.DisableCreditTransfer)
}

func TestConfigLateFeePolicy(t *testing.T) {
	p := DefaultConfig().LateFeePolicy()

	assert.Equal(t, 3, p.GraceDays)
	assert.True(t, p.DailyRate.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, p.MaxRate.Equal(decimal.RequireFromString("0.3")))
}

func TestBuildEngineOpts(t *testing.T) {
	e := New(WithLateFees(1, 0.05, 0.10), WithDisableCreditTransfer())
	e.config = mergeWithDefaults(e.config)

	eng := cyclebill.New(memory.New(), e.buildEngineOpts()...)

	p := eng.LateFeePolicy()
	assert.Equal(t, 1, p.GraceDays)
	assert.True(t, p.DailyRate.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, p.MaxRate.Equal(decimal.RequireFromString("0.1")))
}

func TestResolveStore(t *testing.T) {
	t.Run("memory by default", func(t *testing.T) {
		e := New()
		require.NoError(t, e.resolveStore())
		assert.IsType(t, &memory.Store{}, e.store)
	})

	t.Run("programmatic store wins", func(t *testing.T) {
		s := memory.New()
		e := New(WithStore(s), WithPostgresDSN("postgres://localhost/cyclebill"))
		require.NoError(t, e.resolveStore())
		assert.Same(t, s, e.store)
	})

	t.Run("grove pg database", func(t *testing.T) {
		db, err := grove.Open(pgdriver.New())
		require.NoError(t, err)
		e := New(WithGroveDatabase(db))
		require.NoError(t, e.resolveStore())
		assert.IsType(t, &postgres.Store{}, e.store)
	})

	t.Run("postgres from dsn", func(t *testing.T) {
		e := New(WithPostgresDSN("postgres://localhost/cyclebill?sslmode=disable"))
		require.NoError(t, e.resolveStore())
		assert.IsType(t, &postgres.Store{}, e.store)
		assert.NoError(t, e.store.Close())
	})
}
