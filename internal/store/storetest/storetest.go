// Package storetest provides a migrated Postgres schema for integration
// tests. Tests are skipped when TEST_DATABASE_URL is unset.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartlab/internal/store"
)

// EnvURL names the variable holding the test database connection string.
const EnvURL = "TEST_DATABASE_URL"

// Open returns a pool whose search_path is a fresh schema with every
// migration applied. Each package passes its own schema so packages tested
// in parallel do not truncate each other's rows. The schema is dropped on
// cleanup.
func Open(t *testing.T, schema string) *sql.DB {
	t.Helper()
	dsn := os.Getenv(EnvURL)
	if dsn == "" {
		t.Skipf("%s not set; skipping Postgres integration test", EnvURL)
	}
	ctx := context.Background()

	admin, err := store.NewDB(ctx, dsn)
	require.NoError(t, err)
	quoted := `"` + strings.ReplaceAll(schema, `"`, `""`) + `"`
	_, err = admin.Client.ExecContext(ctx, `DROP SCHEMA IF EXISTS `+quoted+` CASCADE`)
	require.NoError(t, err)
	_, err = admin.Client.ExecContext(ctx, `CREATE SCHEMA `+quoted)
	require.NoError(t, err)

	scoped, err := withSearchPath(dsn, schema)
	require.NoError(t, err)
	db, err := store.NewDB(ctx, scoped)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db.Client, zap.NewNop()))

	t.Cleanup(func() {
		_ = db.Close()
		_, _ = admin.Client.ExecContext(context.Background(), `DROP SCHEMA IF EXISTS `+quoted+` CASCADE`)
		_ = admin.Close()
	})
	return db.Client
}

// withSearchPath adds a search_path runtime parameter to a URL or
// keyword/value connection string.
func withSearchPath(dsn, schema string) (string, error) {
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", EnvURL, err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
