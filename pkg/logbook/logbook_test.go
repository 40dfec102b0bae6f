package logbook

import (
	"context"
	"database/sql"
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/corefacility/pkg/contextkeys"
	"github.com/platinummonkey/corefacility/pkg/entity"
	"github.com/platinummonkey/corefacility/pkg/query"
	"github.com/platinummonkey/corefacility/pkg/schema"
)

func setupStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_fk=1")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, schema.RunMigrations(context.Background(), db, query.SQLite))
	return NewStore(db, query.SQLite), db
}

func TestOpenAndClose(t *testing.T) {
	store, db := setupStore(t)
	userID, err := query.InsertReturningID(context.Background(), db, query.SQLite, "core_user",
		[]string{"login"}, "sergei")
	require.NoError(t, err)

	ctx := contextkeys.WithCurrentUser(context.Background(), userID)
	ctx = contextkeys.WithClientIP(ctx, "10.0.0.7")

	ctx, l, err := store.Open(ctx, "/api/projects/", http.MethodPost, "Project creation")
	require.NoError(t, err)
	require.NotZero(t, l.ID)
	assert.Equal(t, "/api/projects/", l.Address)
	assert.Equal(t, http.MethodPost, l.Method)
	require.NotNil(t, l.UserID)
	assert.Equal(t, userID, *l.UserID)
	assert.Equal(t, "10.0.0.7", l.IP)

	t.Run("the open log travels on the context", func(t *testing.T) {
		id, ok := contextkeys.CurrentLog(ctx)
		require.True(t, ok)
		assert.Equal(t, l.ID, id)
	})

	t.Run("status lands on close", func(t *testing.T) {
		loaded, err := store.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.Nil(t, loaded.ResponseStatus)

		require.NoError(t, store.Close(ctx, l.ID, http.StatusCreated))
		loaded, err = store.Get(ctx, l.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded.ResponseStatus)
		assert.Equal(t, http.StatusCreated, *loaded.ResponseStatus)
	})

	t.Run("anonymous requests store no user", func(t *testing.T) {
		_, anon, err := store.Open(context.Background(), "/api/login/", http.MethodPost, "Authorization")
		require.NoError(t, err)
		assert.Nil(t, anon.UserID)
		assert.Empty(t, anon.IP)
	})

	t.Run("missing log", func(t *testing.T) {
		_, err := store.Get(ctx, 99999)
		assert.ErrorIs(t, err, entity.ErrEntityNotFound)
	})
}

func TestAppend(t *testing.T) {
	store, _ := setupStore(t)

	t.Run("no open log", func(t *testing.T) {
		err := store.Append(context.Background(), LevelInfo, "floating record")
		assert.ErrorIs(t, err, entity.ErrOperationNotPermitted)
	})

	ctx, l, err := store.Open(context.Background(), "/api/users/", http.MethodDelete, "User deletion")
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, LevelInfo, "deletion started"))
	require.NoError(t, store.Append(ctx, LevelWarning, "posix account missing"))
	require.NoError(t, store.Append(ctx, LevelError, "deletion failed"))

	records, err := store.Records(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, LevelInfo, records[0].Level)
	assert.Equal(t, "deletion started", records[0].Message)
	assert.Equal(t, LevelWarning, records[1].Level)
	assert.Equal(t, LevelError, records[2].Level)
	for _, r := range records {
		assert.Equal(t, l.ID, r.LogID)
	}

	t.Run("records of another log stay apart", func(t *testing.T) {
		ctx2, other, err := store.Open(context.Background(), "/api/groups/", http.MethodGet, "Group listing")
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx2, LevelDebug, "cache miss"))

		records, err := store.Records(ctx2, other.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, LevelDebug, records[0].Level)
	})
}

func TestList(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	var ids []int64
	for _, path := range []string{"/a/", "/b/", "/c/"} {
		_, l, err := store.Open(ctx, path, http.MethodGet, "")
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}

	logs, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, ids[2], logs[0].ID)
	assert.Equal(t, ids[1], logs[1].ID)

	logs, err = store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}
