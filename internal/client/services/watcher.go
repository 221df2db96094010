package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/trolleysystems/callsync/internal/client/api"
	"github.com/trolleysystems/callsync/internal/logging"
)

// Mode is the last observed connectivity state.
type Mode string

const (
	ModeUnknown Mode = "unknown"
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

const probeTimeout = 3 * time.Second

// ConnectivityWatcher periodically probes the server and tracks an
// online/offline mode. On the offline-to-online transition it invokes the
// reconnect callback, which the composition root points at the sync engine's
// RefreshAll.
//
// The current mode also serves as the login controller's connectivity hint
// via Online.
type ConnectivityWatcher struct {
	client      api.Client
	log         logging.Logger
	onReconnect func(ctx context.Context)
	mode        atomic.Value
}

// NewConnectivityWatcher constructs a watcher. onReconnect may be nil.
func NewConnectivityWatcher(client api.Client, log logging.Logger, onReconnect func(ctx context.Context)) *ConnectivityWatcher {
	if log == nil {
		log = logging.NopLogger{}
	}
	w := &ConnectivityWatcher{client: client, log: log, onReconnect: onReconnect}
	w.mode.Store(ModeUnknown)
	return w
}

// Mode returns the last observed connectivity state.
func (w *ConnectivityWatcher) Mode() Mode {
	return w.mode.Load().(Mode)
}

// Online reports whether an online login attempt is worth making. Unknown
// counts as online: the attempt itself fails safely when the guess is wrong.
func (w *ConnectivityWatcher) Online() bool {
	return w.Mode() != ModeOffline
}

// Run probes the server on a fixed interval until ctx is cancelled.
func (w *ConnectivityWatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *ConnectivityWatcher) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := w.client.Ping(probeCtx)
	cancel()

	previous := w.Mode()
	if err != nil {
		if previous != ModeOffline {
			w.log.Info(ctx, "switched to offline mode", "error", err)
			w.mode.Store(ModeOffline)
		}
		return
	}

	if previous != ModeOnline {
		w.mode.Store(ModeOnline)
		w.log.Info(ctx, "switched to online mode")
		// only a regained connection triggers the opportunistic sync
		if previous == ModeOffline && w.onReconnect != nil {
			go w.onReconnect(context.WithoutCancel(ctx))
		}
	}
}
