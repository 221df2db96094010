package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trolleysystems/callsync/internal/client/models"
	"github.com/trolleysystems/callsync/internal/client/repositories/metadata"

	_ "modernc.org/sqlite"
)

func TestOpen_MigratesAndWiresRepositories(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, "file:storagetest?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Users.Put(ctx, &models.User{ID: 1, Username: "alice"}))
	u, err := store.Users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	require.NoError(t, store.Metadata.Set(ctx, metadata.KeyLastUserSync, "2026-01-01T00:00:00Z"))
	v, err := store.Metadata.Get(ctx, metadata.KeyLastUserSync)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", v)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, "file:storagetest2?mode=memory&cache=shared")
	require.NoError(t, err)

	// a second migration pass over the same database must be a no-op
	require.NoError(t, RunMigrations(ctx, store.DB))
	require.NoError(t, store.Close())
}
