package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/cyclebill/store/postgres"
	"github.com/xraph/cyclebill/store/storetest"
)

// newTestStore opens CYCLEBILL_POSTGRES_DSN and migrates it. The test is
// skipped when the variable is unset.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("CYCLEBILL_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CYCLEBILL_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, newTestStore(t))
}
