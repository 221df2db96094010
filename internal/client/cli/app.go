// Package cli implements the interactive shell of the callsync client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/trolleysystems/callsync/internal/client/api"
	"github.com/trolleysystems/callsync/internal/client/config"
	"github.com/trolleysystems/callsync/internal/client/models"
	"github.com/trolleysystems/callsync/internal/client/services"
	"github.com/trolleysystems/callsync/internal/client/storage"
	"github.com/trolleysystems/callsync/internal/logging"

	_ "modernc.org/sqlite"
)

// App wires the client services together and drives the command loop.
type App struct {
	cfg     *config.Config
	store   *storage.Store
	client  api.Client
	auth    services.AuthService
	sync    services.SyncService
	watcher *services.ConnectivityWatcher
	log     logging.Logger

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local cache and constructs the service graph.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	store, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client, err := api.New(cfg.BaseURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithRetries(cfg.RequestRetries))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	syncSvc := services.NewSyncService(client, store.DB, services.SyncConfig{
		PageSize:   cfg.SyncPageSize,
		MaxPages:   cfg.SyncMaxPages,
		MaxRecords: cfg.SyncMaxRecords,
	}, log)

	watcher := services.NewConnectivityWatcher(client, log, func(ctx context.Context) {
		if _, err := syncSvc.RefreshAll(ctx); err != nil {
			log.Warn(ctx, "reconnect sync failed", "error", err)
		}
	})

	auth := services.NewAuthService(client, store.DB, syncSvc, log,
		services.WithConnectivityHint(watcher.Online))

	return &App{
		cfg:     cfg,
		store:   store,
		client:  client,
		auth:    auth,
		sync:    syncSvc,
		watcher: watcher,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// Run starts the background workers and the interactive loop, returning when
// the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close()

	go a.watcher.Run(ctx, a.cfg.OnlineCheckInterval)
	go a.sync.Run(ctx, a.cfg.SyncInterval)
	go a.logSyncEvents(ctx)

	return a.loop(ctx)
}

func (a *App) loop(ctx context.Context) error {
	a.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		cmd, err := GetSimpleText(a.reader, a.prompt(), a.out)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if quit := a.dispatch(ctx, cmd); quit {
			return nil
		}
	}
}

// logSyncEvents drains the sync notification channel into the log so
// background refreshes stay visible without interleaving with prompts.
func (a *App) logSyncEvents(ctx context.Context) {
	for {
		select {
		case ev := <-a.sync.Events():
			if ev.Type == models.SyncEventError {
				a.log.Warn(ctx, "background sync failed", "run_id", ev.RunID, "error", ev.Err)
				continue
			}
			a.log.Info(ctx, "background sync finished", "run_id", ev.RunID, "records", ev.Count)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) close() {
	if err := a.client.Close(); err != nil {
		a.log.Warn(context.Background(), "closing api client", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn(context.Background(), "closing cache database", "error", err)
	}
}
