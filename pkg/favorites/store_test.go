package favorites

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/tollgate/pkg/storage/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(postgres.NewConnectionManagerFromDB(db)), mock
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT tool_id, created_at FROM favorites").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"tool_id", "created_at"}).
			AddRow("slug-generator", created.Add(time.Hour)).
			AddRow("word-counter", created))

	favs, err := store.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, "slug-generator", favs[0].ToolID)
	assert.Equal(t, "word-counter", favs[1].ToolID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Add(t *testing.T) {
	t.Run("inserts idempotently", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO favorites .* ON CONFLICT \\(user_id, tool_id\\) DO NOTHING").
			WithArgs("user-1", "base64").
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, store.Add(context.Background(), "user-1", "base64"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO favorites").WillReturnError(sql.ErrConnDone)

		err := store.Add(context.Background(), "user-1", "base64")
		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}

func TestPostgresStore_Remove(t *testing.T) {
	t.Run("removed", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM favorites").
			WithArgs("user-1", "base64").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Remove(context.Background(), "user-1", "base64"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM favorites").
			WithArgs("user-1", "base64").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Remove(context.Background(), "user-1", "base64"), ErrNotFavorite)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tick := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	favs, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, favs)

	require.NoError(t, store.Add(ctx, "user-1", "word-counter"))
	require.NoError(t, store.Add(ctx, "user-1", "base64"))
	require.NoError(t, store.Add(ctx, "user-1", "word-counter"))
	require.NoError(t, store.Add(ctx, "user-2", "uuid-generator"))

	favs, err = store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, "base64", favs[0].ToolID)
	assert.Equal(t, "word-counter", favs[1].ToolID)

	require.NoError(t, store.Remove(ctx, "user-1", "base64"))
	assert.ErrorIs(t, store.Remove(ctx, "user-1", "base64"), ErrNotFavorite)
	assert.ErrorIs(t, store.Remove(ctx, "user-3", "base64"), ErrNotFavorite)

	favs, err = store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "word-counter", favs[0].ToolID)
}
