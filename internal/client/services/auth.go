package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/trolleysystems/callsync/internal/client/api"
	"github.com/trolleysystems/callsync/internal/client/models"
	"github.com/trolleysystems/callsync/internal/client/repositories/metadata"
	"github.com/trolleysystems/callsync/internal/client/repositories/users"
	"github.com/trolleysystems/callsync/internal/cryptox"
	"github.com/trolleysystems/callsync/internal/dbx"
	"github.com/trolleysystems/callsync/internal/logging"
)

// AuthService is the dual-mode login controller.
//
// Contract:
//   - Login: authenticate online first, falling back to the local cache when
//     the online attempt fails for any reason. A successful online login
//     refreshes the user's offline verification material and opportunistically
//     triggers a directory sync without blocking.
//   - Logout: best-effort remote logout, then unconditionally clear the
//     current-user marker.
//   - CurrentUser: the locally remembered identity, nil when logged out.
//   - ClearOfflineData: wipe the cached directory and all markers.
type AuthService interface {
	Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*models.User, error)
	ClearOfflineData(ctx context.Context) error
}

// AuthOption configures the auth service.
type AuthOption func(*authService)

// WithConnectivityHint installs a live connectivity signal. When the hint
// reports offline the online attempt is skipped. This is an optimization
// only: with no hint, or a wrong one, the online attempt still fails safely
// into the offline path.
func WithConnectivityHint(online func() bool) AuthOption {
	return func(a *authService) {
		a.online = online
	}
}

type authService struct {
	client api.Client
	db     *sql.DB
	sync   SyncService
	log    logging.Logger
	online func() bool
}

// NewAuthService constructs an AuthService bound to the given API client,
// cache database, and sync engine.
func NewAuthService(client api.Client, db *sql.DB, sync SyncService, log logging.Logger, opts ...AuthOption) AuthService {
	if log == nil {
		log = logging.NopLogger{}
	}
	a := &authService{client: client, db: db, sync: sync, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login runs the state machine: AttemptingOnline, then AttemptingOffline on
// any online failure. Credential-class failures surface as the opaque
// ErrLoginFailed; store failures surface as-is.
func (a *authService) Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error) {
	identifier := strings.TrimSpace(creds.Identifier)

	if a.online == nil || a.online() {
		result, err := a.onlineLogin(ctx, identifier, creds.Password)
		if err == nil {
			return result, nil
		}
		a.log.Warn(ctx, "online login failed, trying offline", "error", err)
	} else {
		a.log.Debug(ctx, "connectivity hint reports offline, skipping online attempt")
	}

	result, err := a.offlineLogin(ctx, identifier, creds.Password)
	if err != nil {
		switch err {
		case errNoOfflineMatch, errNoOfflineBlob, errPasswordMismatch:
			a.log.Warn(ctx, "offline login failed", "error", err)
			return nil, ErrLoginFailed
		default:
			return nil, err
		}
	}
	return result, nil
}

func (a *authService) onlineLogin(ctx context.Context, identifier, password string) (*models.LoginResult, error) {
	body, err := a.client.Post(ctx, "/auth/login", loginRequest{Username: identifier, Password: password})
	if err != nil {
		return nil, err
	}

	user, err := parseLoginResponse(body)
	if err != nil {
		return nil, err
	}

	if err := a.persistOnlineSuccess(ctx, user, password); err != nil {
		return nil, err
	}

	// fire-and-forget directory refresh; failure must never block login
	if a.sync != nil {
		bg := context.WithoutCancel(ctx)
		go func() {
			if _, err := a.sync.RefreshAll(bg); err != nil {
				a.log.Warn(bg, "post-login sync failed", "error", err)
			}
		}()
	}

	return &models.LoginResult{User: *user, Source: models.LoginSourceOnline}, nil
}

// persistOnlineSuccess stores the current-user marker and caches a fresh
// offline verification blob, in a single transaction. A derivation failure
// only costs the offline material, not the login itself.
func (a *authService) persistOnlineSuccess(ctx context.Context, user *models.User, password string) error {
	salt, err := cryptox.GenerateSalt(cryptox.DefaultSaltLength)
	if err == nil {
		var derived string
		derived, err = cryptox.DeriveKey(password, salt, cryptox.DefaultIterations, cryptox.DefaultKeyLength)
		if err == nil {
			user.Offline = &models.OfflineBlob{Salt: salt, Derived: derived}
		}
	}
	if err != nil {
		a.log.Warn(ctx, "failed to derive offline verification material", "error", err)
		user.Offline = nil
	}

	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := users.NewSQLiteRepository(tx).Put(ctx, user); err != nil {
			return err
		}
		return setCurrentUser(ctx, metadata.NewSQLiteRepository(tx), user)
	})
}

func (a *authService) offlineLogin(ctx context.Context, identifier, password string) (*models.LoginResult, error) {
	// an empty identifier would match rows with empty columns
	if identifier == "" {
		return nil, errNoOfflineMatch
	}

	match, err := users.NewSQLiteRepository(a.db).GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, errNoOfflineMatch
		}
		return nil, fmt.Errorf("offline lookup: %w", err)
	}
	if match.Offline == nil {
		return nil, errNoOfflineBlob
	}

	candidate, err := cryptox.DeriveKey(password, match.Offline.Salt, cryptox.DefaultIterations, cryptox.DefaultKeyLength)
	if err != nil {
		return nil, fmt.Errorf("offline derivation: %w", err)
	}
	if !cryptox.VerifyDerived(match.Offline.Derived, candidate) {
		return nil, errPasswordMismatch
	}

	if err := setCurrentUser(ctx, metadata.NewSQLiteRepository(a.db), match); err != nil {
		return nil, err
	}
	return &models.LoginResult{User: *match, Source: models.LoginSourceOffline}, nil
}

// Logout calls the remote logout endpoint, ignoring any error, and clears
// the current-user marker.
func (a *authService) Logout(ctx context.Context) error {
	if _, err := a.client.Post(ctx, "/auth/logout", nil); err != nil {
		a.log.Debug(ctx, "remote logout failed", "error", err)
	}
	return metadata.NewSQLiteRepository(a.db).Delete(ctx, metadata.KeyCurrentUser)
}

// CurrentUser returns the persisted marker, or nil when nobody is logged in.
func (a *authService) CurrentUser(ctx context.Context) (*models.User, error) {
	raw, err := metadata.NewSQLiteRepository(a.db).Get(ctx, metadata.KeyCurrentUser)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("corrupt current-user marker: %w", err)
	}
	return &u, nil
}

// ClearOfflineData wipes the cached directory and every persisted marker.
func (a *authService) ClearOfflineData(ctx context.Context) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := users.NewSQLiteRepository(tx).Clear(ctx); err != nil {
			return err
		}
		return metadata.NewSQLiteRepository(tx).Clear(ctx)
	})
}

func setCurrentUser(ctx context.Context, repo metadata.Repository, u *models.User) error {
	marker, err := json.Marshal(models.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	})
	if err != nil {
		return fmt.Errorf("marshalling current-user marker: %w", err)
	}
	return repo.Set(ctx, metadata.KeyCurrentUser, string(marker))
}

// parseLoginResponse extracts the user object from a decoded login response.
// The canonical shape is {"user": {...}}; a bare user object or one nested
// under "data" is also accepted.
func parseLoginResponse(body []byte) (*models.User, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}

	if success, ok := payload["success"].(bool); ok && !success {
		return nil, fmt.Errorf("%w: success=false", errMalformedResponse)
	}

	raw := payload
	if m, ok := payload["user"].(map[string]any); ok {
		raw = m
	} else if m, ok := payload["data"].(map[string]any); ok {
		raw = m
	}

	u, err := models.UserFromWire(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	return &u, nil
}
