package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trolleysystems/callsync/internal/client/api"
)

type flipClient struct {
	mu  sync.Mutex
	err error
}

func (f *flipClient) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *flipClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *flipClient) Get(ctx context.Context, path string) ([]byte, error)         { return nil, nil }
func (f *flipClient) Post(ctx context.Context, path string, body any) ([]byte, error) { return nil, nil }
func (f *flipClient) Close() error                                                 { return nil }

func TestWatcher_StartsUnknownAndOptimistic(t *testing.T) {
	w := NewConnectivityWatcher(&flipClient{}, nil, nil)
	assert.Equal(t, ModeUnknown, w.Mode())
	assert.True(t, w.Online())
}

func TestWatcher_TransitionsOfflineAndBack(t *testing.T) {
	fc := &flipClient{err: api.ErrUnavailable}
	w := NewConnectivityWatcher(fc, nil, nil)
	ctx := context.Background()

	w.probe(ctx)
	assert.Equal(t, ModeOffline, w.Mode())
	assert.False(t, w.Online())

	fc.set(nil)
	w.probe(ctx)
	assert.Equal(t, ModeOnline, w.Mode())
	assert.True(t, w.Online())
}

func TestWatcher_ReconnectTriggersCallback(t *testing.T) {
	fc := &flipClient{err: api.ErrUnavailable}
	triggered := make(chan struct{}, 1)
	w := NewConnectivityWatcher(fc, nil, func(ctx context.Context) {
		triggered <- struct{}{}
	})
	ctx := context.Background()

	// unknown -> online: no reconnect trigger, it was never lost
	fc.set(nil)
	w.probe(ctx)
	select {
	case <-triggered:
		t.Fatal("unexpected trigger on first online observation")
	case <-time.After(50 * time.Millisecond):
	}

	// online -> offline -> online: trigger fires
	fc.set(api.ErrUnavailable)
	w.probe(ctx)
	fc.set(nil)
	w.probe(ctx)

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("expected reconnect trigger")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w := NewConnectivityWatcher(&flipClient{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx, 10*time.Millisecond)
		close(stopped)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	assert.Equal(t, ModeOnline, w.Mode())
}

func TestWatcher_FirstOfflineObservation(t *testing.T) {
	fc := &flipClient{err: api.ErrUnavailable}
	w := NewConnectivityWatcher(fc, nil, nil)

	w.probe(context.Background())
	assert.Equal(t, ModeOffline, w.Mode())
}
