package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trolleysystems/callsync/internal/client/models"
	"github.com/trolleysystems/callsync/internal/dbx"
)

// ErrNotFound is returned by GetByID when no record exists for the id.
var ErrNotFound = errors.New("user not found")

// SQLiteRepository implements Repository over a DBTX, so it works both
// standalone and inside a dbx.WithTx transaction.
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository binds a repository to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put upserts a full user record. When u.Offline is set the blob columns are
// written too; when it is nil they are cleared.
func (r *SQLiteRepository) Put(ctx context.Context, u *models.User) error {
	extra, err := marshalExtra(u.Extra)
	if err != nil {
		return err
	}

	var salt, derived sql.NullString
	if u.Offline != nil {
		salt = sql.NullString{String: u.Offline.Salt, Valid: true}
		derived = sql.NullString{String: u.Offline.Derived, Valid: true}
	}

	query := `INSERT INTO users (id, username, email, first_name, last_name, offline_salt, offline_derived, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			offline_salt = excluded.offline_salt,
			offline_derived = excluded.offline_derived,
			extra = excluded.extra
	`
	if _, err := r.db.ExecContext(ctx, query,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, salt, derived, extra); err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
	}
	return nil
}

// BulkPut upserts a batch of directory records. Offline blob columns are not
// part of the update set: a sync page for a known user refreshes the profile
// but keeps the cached verification material.
func (r *SQLiteRepository) BulkPut(ctx context.Context, users []*models.User) error {
	query := `INSERT INTO users (id, username, email, first_name, last_name, extra)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			extra = excluded.extra
	`
	for _, u := range users {
		extra, err := marshalExtra(u.Extra)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, query,
			u.ID, u.Username, u.Email, u.FirstName, u.LastName, extra); err != nil {
			return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
		}
	}
	return nil
}

// GetByID returns a single cached user or ErrNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, first_name, last_name, offline_salt, offline_derived, extra
		 FROM users WHERE id = ?`, id)

	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return u, nil
}

// GetByIdentifier looks a user up by exact username or email, ignoring case.
// With duplicate matches the lowest id wins.
func (r *SQLiteRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, first_name, last_name, offline_salt, offline_derived, extra
		 FROM users WHERE LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)
		 ORDER BY id LIMIT 1`, identifier, identifier)

	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", identifier, err)
	}
	return u, nil
}

// GetAll lists every cached user ordered by id.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, email, first_name, last_name, offline_salt, offline_derived, extra
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select users: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return result, nil
}

// Clear wipes the whole mirror.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("failed to clear users: %w", err)
	}
	return nil
}

func scanUser(scan func(dest ...any) error) (*models.User, error) {
	u := &models.User{}
	var salt, derived sql.NullString
	var extra string

	if err := scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &salt, &derived, &extra); err != nil {
		return nil, err
	}

	if salt.Valid && derived.Valid {
		u.Offline = &models.OfflineBlob{Salt: salt.String, Derived: derived.String}
	}
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &u.Extra); err != nil {
			return nil, fmt.Errorf("corrupt extra column for user %d: %w", u.ID, err)
		}
	}
	return u, nil
}

func marshalExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extra fields: %w", err)
	}
	return string(b), nil
}
