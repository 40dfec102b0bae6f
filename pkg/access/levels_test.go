package access

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/schema"
)

// setupAccessDB opens an in-memory database with the full schema and
// the default access levels installed.
func setupAccessDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, schema.RunMigrations(ctx, db, query.SQLite))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	store := NewLevelStore(db, query.SQLite)
	require.NoError(t, store.InstallDefaults(ctx, tx))
	require.NoError(t, tx.Commit())
	return db
}

func TestProperAccessLevel(t *testing.T) {
	tests := []struct {
		name    string
		aliases []string
		want    string
		wantErr bool
	}{
		{name: "single alias passes through", aliases: []string{AliasDataView}, want: AliasDataView},
		{name: "highest weight wins", aliases: []string{AliasDataView, AliasFull, AliasDataAdd}, want: AliasFull},
		{name: "no access loses to anything", aliases: []string{AliasNoAccess, AliasDataView}, want: AliasDataView},
		{name: "empty set fails", aliases: nil, wantErr: true},
		{name: "duplicate weights fail", aliases: []string{AliasDataView, AliasDataView}, wantErr: true},
		{name: "unknown alias fails", aliases: []string{AliasDataView, "made_up"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProperAccessLevel(tt.aliases)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAggregatedLevels(t *testing.T) {
	assert.Nil(t, ParseAggregatedLevels(""))
	assert.Equal(t, []string{"full"}, ParseAggregatedLevels("full"))
	assert.Equal(t, []string{"full", "data_view"}, ParseAggregatedLevels("full,data_view,full"))
	assert.Equal(t, []string{"data_add"}, ParseAggregatedLevels(" data_add , "))
}

func TestLevelStoreInstallDefaults(t *testing.T) {
	db := setupAccessDB(t)
	ctx := context.Background()
	store := NewLevelStore(db, query.SQLite)

	prj, err := store.List(ctx, ProjectLevel)
	require.NoError(t, err)
	assert.Len(t, prj, 6)

	app, err := store.List(ctx, AppLevel)
	require.NoError(t, err)
	assert.Len(t, app, 2)

	t.Run("reinstall keeps existing rows", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, store.InstallDefaults(ctx, tx))
		require.NoError(t, tx.Commit())

		again, err := store.List(ctx, ProjectLevel)
		require.NoError(t, err)
		assert.Equal(t, prj, again)
	})

	t.Run("get by type and alias", func(t *testing.T) {
		l, err := store.Get(ctx, ProjectLevel, AliasFull)
		require.NoError(t, err)
		assert.Equal(t, AliasFull, l.Alias)
		assert.Equal(t, ProjectLevel, l.Type)
		assert.NotZero(t, l.ID)
	})

	t.Run("missing alias", func(t *testing.T) {
		_, err := store.Get(ctx, ProjectLevel, "nope")
		assert.ErrorIs(t, err, entity.ErrEntityNotFound)
	})
}

func TestLevelStoreMutations(t *testing.T) {
	db := setupAccessDB(t)
	ctx := context.Background()
	store := NewLevelStore(db, query.SQLite)

	t.Run("custom app level lifecycle", func(t *testing.T) {
		l := &Level{Type: AppLevel, Alias: "review", Name: "Review results"}
		require.NoError(t, store.Create(ctx, l))
		require.NotZero(t, l.ID)

		require.NoError(t, store.Rename(ctx, *l, "Review"))
		got, err := store.Get(ctx, AppLevel, "review")
		require.NoError(t, err)
		assert.Equal(t, "Review", got.Name)

		require.NoError(t, store.Delete(ctx, got))
		_, err = store.Get(ctx, AppLevel, "review")
		assert.ErrorIs(t, err, entity.ErrEntityNotFound)
	})

	t.Run("project levels are frozen", func(t *testing.T) {
		full, err := store.Get(ctx, ProjectLevel, AliasFull)
		require.NoError(t, err)
		assert.ErrorIs(t, store.Rename(ctx, full, "x"), entity.ErrOperationNotPermitted)
		assert.ErrorIs(t, store.Delete(ctx, full), entity.ErrOperationNotPermitted)
		assert.ErrorIs(t, store.Create(ctx, &Level{Type: ProjectLevel, Alias: "extra"}), entity.ErrOperationNotPermitted)
	})

	t.Run("system app aliases are frozen", func(t *testing.T) {
		add, err := store.Get(ctx, AppLevel, AliasAdd)
		require.NoError(t, err)
		assert.ErrorIs(t, store.Rename(ctx, add, "x"), entity.ErrOperationNotPermitted)
		assert.ErrorIs(t, store.Delete(ctx, add), entity.ErrOperationNotPermitted)
	})
}
