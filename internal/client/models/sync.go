package models

import "time"

// LoginSource tags which path produced a successful login.
type LoginSource string

const (
	LoginSourceOnline  LoginSource = "online"
	LoginSourceOffline LoginSource = "offline"
)

// LoginResult is returned by a successful login attempt.
type LoginResult struct {
	User   User
	Source LoginSource
}

// SyncResult is the explicit outcome of one RefreshAll call. When another
// refresh was already in flight, Skipped is true and the other fields are
// zero.
type SyncResult struct {
	Skipped  bool
	Count    int
	SyncedAt time.Time
}

// SyncEventType distinguishes sync notifications.
type SyncEventType string

const (
	SyncEventSynced SyncEventType = "synced"
	SyncEventError  SyncEventType = "sync-error"
)

// SyncEvent is the live notification emitted after each completed sync run.
// Count is set for synced events, Err for sync-error events.
type SyncEvent struct {
	Type  SyncEventType
	RunID string
	Count int
	Err   error
}
