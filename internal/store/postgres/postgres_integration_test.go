//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/store/storetest"
)

// setupTestDB connects to DATABASE_URL, applies migrations and empties the tables
func setupTestDB(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := Connect(ctx, databaseURL)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	_, err = s.pool.Exec(ctx, `TRUNCATE jobs CASCADE`)
	require.NoError(t, err)
	return s
}

func TestPostgresStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return setupTestDB(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := setupTestDB(t)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Migrate(context.Background()))
}
