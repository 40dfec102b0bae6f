package query

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/corefacility/pkg/entity"
)

func readerTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE fruits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			weight INTEGER NOT NULL
		);
		INSERT INTO fruits (name, weight) VALUES
			('apple', 150), ('banana', 120), ('cherry', 8),
			('date', 7), ('elderberry', 1);
	`)
	require.NoError(t, err)
	return db
}

func fruitReader(db *sql.DB) *Reader {
	base := NewBuilder(SQLite).
		AddSelectExpression("f.name").
		AddDataSource("fruits", "f").
		AddOrderTerm("f.name", true, NullsDefault)
	return NewReader(db, base)
}

func collectNames(names *[]string) RowScanner {
	return func(rows *sql.Rows) error {
		var n string
		if err := rows.Scan(&n); err != nil {
			return err
		}
		*names = append(*names, n)
		return nil
	}
}

func TestReaderAllAndCount(t *testing.T) {
	db := readerTestDB(t)
	ctx := context.Background()

	t.Run("unfiltered", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		require.NoError(t, r.All(ctx, collectNames(&names)))
		assert.Equal(t, []string{"apple", "banana", "cherry", "date", "elderberry"}, names)

		n, err := r.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("filter narrows both statements", func(t *testing.T) {
		r := fruitReader(db)
		r.ApplyFilter(Where("f.weight >= ?", 100))

		var names []string
		require.NoError(t, r.All(ctx, collectNames(&names)))
		assert.Equal(t, []string{"apple", "banana"}, names)

		n, err := r.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestReaderWindows(t *testing.T) {
	db := readerTestDB(t)
	ctx := context.Background()

	t.Run("at", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		require.NoError(t, r.At(ctx, 2, collectNames(&names)))
		assert.Equal(t, []string{"cherry"}, names)
	})

	t.Run("at out of range", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		assert.ErrorIs(t, r.At(ctx, 99, collectNames(&names)), entity.ErrEntityNotFound)
		assert.ErrorIs(t, r.At(ctx, -1, collectNames(&names)), entity.ErrEntityNotFound)
	})

	t.Run("slice", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		require.NoError(t, r.Slice(ctx, 1, 4, collectNames(&names)))
		assert.Equal(t, []string{"banana", "cherry", "date"}, names)
	})

	t.Run("empty slice past the end is not an error", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		require.NoError(t, r.Slice(ctx, 10, 20, collectNames(&names)))
		assert.Empty(t, names)
	})

	t.Run("invalid slice bounds", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		assert.ErrorIs(t, r.Slice(ctx, 3, 1, collectNames(&names)), entity.ErrEntityNotFound)
	})
}

func TestReaderOne(t *testing.T) {
	db := readerTestDB(t)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		require.NoError(t, r.One(ctx, Where("f.name = ?", "date"), collectNames(&names)))
		assert.Equal(t, []string{"date"}, names)
	})

	t.Run("missing", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		err := r.One(ctx, Where("f.name = ?", "mango"), collectNames(&names))
		assert.ErrorIs(t, err, entity.ErrEntityNotFound)
	})

	t.Run("reader filters stay untouched", func(t *testing.T) {
		r := fruitReader(db)
		var names []string
		require.NoError(t, r.One(ctx, Where("f.name = ?", "date"), collectNames(&names)))

		n, err := r.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})
}

func TestInsertReturningID(t *testing.T) {
	db := readerTestDB(t)
	ctx := context.Background()

	id, err := InsertReturningID(ctx, db, SQLite, "fruits",
		[]string{"name", "weight"}, "fig", 40)
	require.NoError(t, err)
	assert.Equal(t, int64(6), id)

	_, err = InsertReturningID(ctx, db, SQLite, "fruits", []string{"name"}, "x", 1)
	assert.Error(t, err, "column/value arity mismatch must fail")
}
