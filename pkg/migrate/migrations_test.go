package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afonso-rickman/newdelivery/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
	require.NoError(t, migrate.Validate(migrate.Embedded()))
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	require.NoError(t, err)
	require.Len(t, embedded, len(onDisk))
	for i, path := range onDisk {
		assert.Equal(t, filepath.Base(path), embedded[i])
	}
}

func TestOrdersMigrationEnforcesInvariants(t *testing.T) {
	content := readMigration(t, "create_orders")
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"version bigint NOT NULL DEFAULT 1",
		"CHECK (total >= 0)",
		"assigned_deliverer_id IS NULL OR delivery_status IN ('delivering', 'delivered')",
		"(delivered_at IS NOT NULL) = (delivery_status = 'delivered')",
		"FOREIGN KEY (tenant_id) REFERENCES tenants(id)",
		"DROP TABLE IF EXISTS orders",
	} {
		assert.Contains(t, content, want)
	}
}

func TestChangeNotifyTrigger(t *testing.T) {
	content := readMigration(t, "orders_change_notify")
	for _, want := range []string{
		"AFTER INSERT OR UPDATE OR DELETE ON orders",
		"INSERT INTO order_change_events",
		"PERFORM pg_notify('order_changes'",
		"'order_created_at', row_data.created_at",
		"DROP TRIGGER IF EXISTS orders_change_notify ON orders",
	} {
		assert.Contains(t, content, want)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))

	dir = t.TempDir()
	body := "-- +goose Up\nCREATE FUNCTION f() RETURNS void AS $$ BEGIN END; $$ LANGUAGE plpgsql;\n-- +goose Down\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_fn.sql"), []byte(body), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))

	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_swapped.sql"), []byte("-- +goose Down\n-- +goose Up\n"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Notes!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_order_notes.sql"))
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestCreateSQLMigrationSortsAfterNewestFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "29991231235959_future.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	path, err := migrate.CreateSQLMigration(dir, "deliverer shifts")
	require.NoError(t, err)
	assert.Equal(t, "29991231235960_deliverer_shifts.sql", filepath.Base(path))

	path, err = migrate.CreateSQLMigration(dir, "deliverer shifts")
	require.NoError(t, err)
	assert.Equal(t, "29991231235961_deliverer_shifts.sql", filepath.Base(path))
	require.NoError(t, migrate.ValidateDir(dir))
}
