// Package services contains the application services of the client: the
// login controller, the user directory sync engine, and the connectivity
// watcher that ties them together.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/trolleysystems/callsync/internal/client/api"
	"github.com/trolleysystems/callsync/internal/client/models"
	"github.com/trolleysystems/callsync/internal/client/repositories/metadata"
	"github.com/trolleysystems/callsync/internal/client/repositories/users"
	"github.com/trolleysystems/callsync/internal/dbx"
	"github.com/trolleysystems/callsync/internal/logging"
)

// SyncConfig bounds one directory refresh. The ceilings protect against a
// misbehaving or very large backend.
type SyncConfig struct {
	PageSize   int
	MaxPages   int
	MaxRecords int
}

// Defaults applied when a SyncConfig field is zero.
const (
	DefaultPageSize   = 100
	DefaultMaxPages   = 10
	DefaultMaxRecords = 1000
)

func (c SyncConfig) withDefaults() SyncConfig {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	return c
}

// SyncService mirrors the remote user directory into the local store.
//
// Contract:
//   - RefreshAll: fetch the directory in bounded pages and upsert it. Safe to
//     call concurrently; while one run is in flight every other call returns
//     immediately with Skipped set.
//   - CachedUsers: list the local mirror.
//   - LastSyncedAt: timestamp of the last successful run (zero if never).
//   - Events: live synced / sync-error notifications.
//   - Run: recurring refresh until the context is cancelled.
type SyncService interface {
	RefreshAll(ctx context.Context) (models.SyncResult, error)
	CachedUsers(ctx context.Context) ([]*models.User, error)
	LastSyncedAt(ctx context.Context) (time.Time, error)
	Events() <-chan models.SyncEvent
	Run(ctx context.Context, interval time.Duration)
}

type syncService struct {
	client api.Client
	db     *sql.DB
	cfg    SyncConfig
	log    logging.Logger

	inFlight atomic.Bool
	events   chan models.SyncEvent

	now func() time.Time
}

// NewSyncService constructs a SyncService bound to the given API client and
// cache database.
func NewSyncService(client api.Client, db *sql.DB, cfg SyncConfig, log logging.Logger) SyncService {
	if log == nil {
		log = logging.NopLogger{}
	}
	return &syncService{
		client: client,
		db:     db,
		cfg:    cfg.withDefaults(),
		log:    log,
		events: make(chan models.SyncEvent, 16),
		now:    time.Now,
	}
}

// RefreshAll performs one bounded directory refresh. The in-flight flag is
// taken before the first network round-trip and released on every exit path.
func (s *syncService) RefreshAll(ctx context.Context) (models.SyncResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return models.SyncResult{Skipped: true}, nil
	}
	defer s.inFlight.Store(false)

	runID := uuid.NewString()
	log := s.log.With("run_id", runID)

	collected, err := s.fetchAllPages(ctx, log)
	if err != nil {
		log.Error(ctx, "directory sync failed", "error", err)
		s.emit(models.SyncEvent{Type: models.SyncEventError, RunID: runID, Err: err})
		return models.SyncResult{}, err
	}

	syncedAt := s.now().UTC()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := users.NewSQLiteRepository(tx).BulkPut(ctx, collected); err != nil {
			return err
		}
		return metadata.NewSQLiteRepository(tx).Set(ctx, metadata.KeyLastUserSync, syncedAt.Format(time.RFC3339))
	})
	if err != nil {
		err = fmt.Errorf("persisting sync batch: %w", err)
		log.Error(ctx, "directory sync failed", "error", err)
		s.emit(models.SyncEvent{Type: models.SyncEventError, RunID: runID, Err: err})
		return models.SyncResult{}, err
	}

	log.Info(ctx, "directory sync finished", "records", len(collected))
	s.emit(models.SyncEvent{Type: models.SyncEventSynced, RunID: runID, Count: len(collected)})

	return models.SyncResult{Count: len(collected), SyncedAt: syncedAt}, nil
}

// fetchAllPages requests pages in strictly increasing order and stops on an
// empty page, a short page, or either ceiling.
func (s *syncService) fetchAllPages(ctx context.Context, log logging.Logger) ([]*models.User, error) {
	var all []*models.User

	for page := 1; page <= s.cfg.MaxPages && len(all) < s.cfg.MaxRecords; page++ {
		body, err := s.client.Get(ctx, fmt.Sprintf("/users?page=%d&size=%d", page, s.cfg.PageSize))
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}

		records, err := parseUsersPage(body)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if len(records) == 0 {
			break
		}

		for _, raw := range records {
			u, err := models.UserFromWire(raw)
			if err != nil {
				log.Warn(ctx, "skipping directory record", "error", err)
				continue
			}
			all = append(all, &u)
		}

		// a short page signals the last one
		if len(all) >= s.cfg.MaxRecords || len(records) < s.cfg.PageSize {
			break
		}
	}

	if len(all) > s.cfg.MaxRecords {
		all = all[:s.cfg.MaxRecords]
	}
	return all, nil
}

func parseUsersPage(body []byte) ([]map[string]any, error) {
	var direct []map[string]any
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}

	var wrapped struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data, nil
	}

	return nil, fmt.Errorf("%w: users page", errMalformedResponse)
}

func (s *syncService) CachedUsers(ctx context.Context) ([]*models.User, error) {
	return users.NewSQLiteRepository(s.db).GetAll(ctx)
}

func (s *syncService) LastSyncedAt(ctx context.Context) (time.Time, error) {
	v, err := metadata.NewSQLiteRepository(s.db).Get(ctx, metadata.KeyLastUserSync)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt last-sync timestamp %q: %w", v, err)
	}
	return ts, nil
}

func (s *syncService) Events() <-chan models.SyncEvent {
	return s.events
}

// emit never blocks; when nobody listens the event is dropped.
func (s *syncService) emit(ev models.SyncEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

// Run refreshes the directory on a fixed interval until ctx is cancelled.
// Failures are logged and the ticker keeps going.
func (s *syncService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RefreshAll(ctx); err != nil {
				s.log.Warn(ctx, "scheduled sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
