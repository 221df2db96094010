// Package users stores the local mirror of the remote user directory,
// including the offline verification blobs attached at online login.
package users

import (
	"context"

	"github.com/trolleysystems/callsync/internal/client/models"
)

// Repository is the keyed record store for cached directory users.
//
// Put writes a full record, including the offline blob when present.
// BulkPut upserts a sync page batch; it deliberately leaves existing offline
// blobs untouched, so a directory refresh cannot lock out offline login.
type Repository interface {
	Put(ctx context.Context, u *models.User) error
	BulkPut(ctx context.Context, users []*models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	GetAll(ctx context.Context) ([]*models.User, error)
	Clear(ctx context.Context) error
}
