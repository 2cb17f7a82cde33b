package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ghlexport/pkg/testutil"
)

// Remote backends run only against live services named by environment
// variables, e.g. GHL_TEST_POSTGRES_DSN=postgres://localhost/ghl_test.

func uniqueTable() string {
	return fmt.Sprintf("ghl_exports_test_%d", time.Now().UnixNano())
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := testutil.RequireBackend(t, testutil.EnvTestPostgresDSN)

	ctx := context.Background()
	table := uniqueTable()
	s, err := NewPostgresStore(ctx, dsn, table, WithClock(steppingClock(epoch)))
	require.NoError(t, err)
	defer func() {
		_, _ = s.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
		_ = s.Close()
	}()

	contract(t, s)
}

func TestMongoStoreContract(t *testing.T) {
	uri := testutil.RequireBackend(t, testutil.EnvTestMongoURI)

	ctx := context.Background()
	s, err := NewMongoStore(ctx, uri, "ghlexport_test", uniqueTable(), WithClock(steppingClock(epoch)))
	require.NoError(t, err)
	defer func() {
		_ = s.collection.Drop(ctx)
		_ = s.Close()
	}()

	contract(t, s)
}
