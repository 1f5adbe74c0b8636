package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/novabot503/novacat/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %q", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestAutoMigrateCreatesOrdersTable(t *testing.T) {
	conn := dbtest.Open(t)

	require.NoError(t, AutoMigrate(conn))
	assert.True(t, conn.Migrator().HasTable("orders"))
	assert.True(t, conn.Migrator().HasColumn("orders", "qris_string"))
	assert.True(t, conn.Migrator().HasColumn("orders", "provisioning"))

	// idempotent
	require.NoError(t, AutoMigrate(conn))
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
	assert.Error(t, AutoMigrate(nil))
}
