package database

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"testing/fstest"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"migrations/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"migrations/0001_a.down.sql": {Data: []byte("SELECT 0")},
		"migrations/notes.txt":       {Data: []byte("ignore")},
		"migrations/nested/x.up.sql": {Data: []byte("SELECT 3")},
	}

	names, err := ListMigrations(fsys, "migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, names)
}

func TestListMigrations_RepositoryMigrations(t *testing.T) {
	names, err := ListMigrations(os.DirFS("../../migrations"), ".")
	require.NoError(t, err)
	assert.Contains(t, names, "0001_user_progress.up.sql")
}

// Requires LEDGER_TEST_DATABASE_DSN pointing at a disposable database.
func TestMigrator_AppliesOnce(t *testing.T) {
	dsn := os.Getenv("LEDGER_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DATABASE_DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := NewMigrator(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, m.ApplyDir(ctx, "../../migrations"))
	require.NoError(t, m.ApplyDir(ctx, "../../migrations"))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = '0001_user_progress'`).Scan(&count))
	assert.Equal(t, 1, count)
}
