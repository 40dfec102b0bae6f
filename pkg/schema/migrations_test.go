package schema

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/corefacility/pkg/query"
)

func TestRunMigrations(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, db, query.SQLite))

	t.Run("records every version", func(t *testing.T) {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM core_schema_version").Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, len(GetMigrations(query.SQLite)), n)
	})

	t.Run("creates the core tables", func(t *testing.T) {
		for _, table := range []string{
			"core_user", "core_group", "core_groupuser",
			"core_project", "core_accesslevel", "core_projectpermission",
			"core_apppermission", "core_module", "core_entrypoint",
			"core_authentication", "core_cookie", "core_externalauthsession",
			"core_failedauthorizations", "core_log", "core_logrecord",
			"core_projectapplication",
		} {
			var n int
			err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
			assert.NoError(t, err, "table %s should exist", table)
		}
	})

	t.Run("rerun is idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, db, query.SQLite))
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM core_schema_version").Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, len(GetMigrations(query.SQLite)), n)
	})
}

func TestMigrationsAreOrdered(t *testing.T) {
	for _, d := range []query.Dialect{query.SQLite, query.PostgreSQL} {
		prev := 0
		for _, m := range GetMigrations(d) {
			assert.Equal(t, prev+1, m.Version, "versions must be dense and increasing")
			assert.NotEmpty(t, m.Description)
			assert.NotEmpty(t, m.SQL)
			prev = m.Version
		}
	}
}
