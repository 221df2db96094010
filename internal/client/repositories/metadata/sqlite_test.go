package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

func TestSetGet(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyCurrentUser, `{"id":7,"username":"alice"}`))

	got, err := repo.Get(ctx, KeyCurrentUser)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"username":"alice"}`, got)
}

func TestGet_MissingKeyIsEmpty(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))

	got, err := repo.Get(context.Background(), KeyLastUserSync)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSet_Overwrites(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyLastUserSync, "2026-01-01T00:00:00Z"))
	require.NoError(t, repo.Set(ctx, KeyLastUserSync, "2026-02-02T00:00:00Z"))

	got, err := repo.Get(ctx, KeyLastUserSync)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-02T00:00:00Z", got)
}

func TestDeleteAndClear(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyCurrentUser, "x"))
	require.NoError(t, repo.Set(ctx, KeyLastUserSync, "y"))

	require.NoError(t, repo.Delete(ctx, KeyCurrentUser))
	got, err := repo.Get(ctx, KeyCurrentUser)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, repo.Clear(ctx))
	got, err = repo.Get(ctx, KeyLastUserSync)
	require.NoError(t, err)
	assert.Empty(t, got)
}
