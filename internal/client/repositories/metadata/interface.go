// Package metadata is a small string key-value area for process-wide
// persisted markers. It is deliberately separate from the structured users
// store.
package metadata

import "context"

// Fixed, versioned keys for the persisted markers.
const (
	// KeyCurrentUser holds the JSON-serialized identity of the currently
	// authenticated user. Contains no password material.
	KeyCurrentUser = "current_user.v1"

	// KeyLastUserSync holds the RFC 3339 timestamp of the last successful
	// directory sync.
	KeyLastUserSync = "last_user_sync.v1"
)

// Repository is the marker store. Get returns ("", nil) for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
