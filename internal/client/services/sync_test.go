package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trolleysystems/callsync/internal/client/api"
	"github.com/trolleysystems/callsync/internal/client/models"
	"github.com/trolleysystems/callsync/internal/client/repositories/users"

	_ "modernc.org/sqlite"
)

// pagedBackend serves a fixed directory of n users in pages, mimicking the
// remote /users endpoint after envelope decoding.
func pagedBackend(total int) func(path string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		var page, size int
		if _, err := fmt.Sscanf(path, "/users?page=%d&size=%d", &page, &size); err != nil {
			return nil, fmt.Errorf("unexpected path %q: %w", path, err)
		}

		start := (page - 1) * size
		var records []map[string]any
		for i := start; i < start+size && i < total; i++ {
			records = append(records, map[string]any{
				"id":   i + 1,
				"name": fmt.Sprintf("User Number%d", i+1),
			})
		}
		return json.Marshal(records)
	}
}

func newSyncService(t *testing.T, db *sql.DB, fc *fakeClient, cfg SyncConfig) SyncService {
	t.Helper()
	return NewSyncService(fc, db, cfg, nil)
}

func TestRefreshAll_IngestsAndNormalizes(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(3)}
	svc := newSyncService(t, db, fc, SyncConfig{})

	res, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 3, res.Count)
	assert.False(t, res.SyncedAt.IsZero())

	all, err := svc.CachedUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "User", all[0].FirstName)
	assert.Equal(t, "Number1", all[0].LastName)
}

func TestRefreshAll_RespectsCeilings(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(1500)}
	svc := newSyncService(t, db, fc, SyncConfig{})

	res, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRecords, res.Count)

	// the record ceiling is reached on the 10th page; no 11th fetch happens
	assert.Len(t, fc.getPaths, DefaultMaxPages)

	all, err := svc.CachedUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, DefaultMaxRecords)
}

func TestRefreshAll_StopsOnShortPage(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(150)}
	svc := newSyncService(t, db, fc, SyncConfig{})

	res, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 150, res.Count)
	assert.Len(t, fc.getPaths, 2)
}

func TestRefreshAll_StopsOnEmptyDirectory(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(0)}
	svc := newSyncService(t, db, fc, SyncConfig{})

	res, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.Len(t, fc.getPaths, 1)
}

func TestRefreshAll_Idempotent(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(42)}
	svc := newSyncService(t, db, fc, SyncConfig{})
	ctx := context.Background()

	_, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	first, err := svc.CachedUsers(ctx)
	require.NoError(t, err)

	_, err = svc.RefreshAll(ctx)
	require.NoError(t, err)
	second, err := svc.CachedUsers(ctx)
	require.NoError(t, err)

	assert.Equal(t, len(first), len(second))
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestRefreshAll_ConcurrentCallsCollapse(t *testing.T) {
	db := setupDB(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	fc := &fakeClient{getFn: func(path string) ([]byte, error) {
		close(entered)
		<-release
		return []byte(`[]`), nil
	}}
	svc := newSyncService(t, db, fc, SyncConfig{})
	ctx := context.Background()

	done := make(chan models.SyncResult, 1)
	go func() {
		res, err := svc.RefreshAll(ctx)
		require.NoError(t, err)
		done <- res
	}()

	<-entered
	second, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.False(t, first.Skipped)

	// exactly one fetch sequence ran
	assert.Len(t, fc.getPaths, 1)
}

func TestRefreshAll_NetworkFailureKeepsPreviousRuns(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(5)}
	svc := newSyncService(t, db, fc, SyncConfig{})
	ctx := context.Background()

	_, err := svc.RefreshAll(ctx)
	require.NoError(t, err)

	fc.mu.Lock()
	fc.getFn = func(path string) ([]byte, error) { return nil, api.ErrUnavailable }
	fc.mu.Unlock()

	_, err = svc.RefreshAll(ctx)
	require.ErrorIs(t, err, api.ErrUnavailable)

	all, err := svc.CachedUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5, "records from the earlier run must survive a failed run")

	// the guard is released after a failure
	fc.mu.Lock()
	fc.getFn = pagedBackend(5)
	fc.mu.Unlock()
	res, err := svc.RefreshAll(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestRefreshAll_EmitsEvents(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(7)}
	svc := newSyncService(t, db, fc, SyncConfig{})
	ctx := context.Background()

	_, err := svc.RefreshAll(ctx)
	require.NoError(t, err)

	select {
	case ev := <-svc.Events():
		assert.Equal(t, models.SyncEventSynced, ev.Type)
		assert.Equal(t, 7, ev.Count)
		assert.NotEmpty(t, ev.RunID)
	default:
		t.Fatal("expected a synced event")
	}

	fc.mu.Lock()
	fc.getFn = func(path string) ([]byte, error) { return nil, api.ErrUnavailable }
	fc.mu.Unlock()
	_, err = svc.RefreshAll(ctx)
	require.Error(t, err)

	select {
	case ev := <-svc.Events():
		assert.Equal(t, models.SyncEventError, ev.Type)
		require.Error(t, ev.Err)
	default:
		t.Fatal("expected a sync-error event")
	}
}

func TestRefreshAll_WrappedPageShape(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: func(path string) ([]byte, error) {
		return []byte(`{"data":[{"id":1,"username":"alice"}]}`), nil
	}}
	svc := newSyncService(t, db, fc, SyncConfig{})

	res, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestRefreshAll_MalformedPageFails(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: func(path string) ([]byte, error) {
		return []byte(`"just a string"`), nil
	}}
	svc := newSyncService(t, db, fc, SyncConfig{})

	_, err := svc.RefreshAll(context.Background())
	require.Error(t, err)
}

func TestRefreshAll_SkipsRecordsWithoutID(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: func(path string) ([]byte, error) {
		return []byte(`[{"id":1,"username":"a"},{"username":"no-id"}]`), nil
	}}
	svc := newSyncService(t, db, fc, SyncConfig{})

	res, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
}

func TestRefreshAll_PreservesOfflineBlobOnResync(t *testing.T) {
	db := setupDB(t)
	seedOfflineUser(t, db, models.User{ID: 1, Username: "alice"}, "pw")

	fc := &fakeClient{getFn: func(path string) ([]byte, error) {
		return []byte(`[{"id":1,"username":"alice","email":"alice@new.example.com"}]`), nil
	}}
	svc := newSyncService(t, db, fc, SyncConfig{})

	_, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)

	u, err := users.NewSQLiteRepository(db).GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice@new.example.com", u.Email)
	require.NotNil(t, u.Offline, "sync must not wipe offline verification material")
}

func TestLastSyncedAt(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(1)}
	svc := newSyncService(t, db, fc, SyncConfig{})
	ctx := context.Background()

	ts, err := svc.LastSyncedAt(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	res, err := svc.RefreshAll(ctx)
	require.NoError(t, err)

	ts, err = svc.LastSyncedAt(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, res.SyncedAt, ts, time.Second)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	db := setupDB(t)
	fc := &fakeClient{getFn: pagedBackend(1)}
	svc := newSyncService(t, db, fc, SyncConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.Run(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	assert.NotEmpty(t, fc.getPaths)
}
