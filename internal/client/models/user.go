// Package models defines the data types shared by the client services and
// repositories: cached directory users, offline verification material, and
// login/sync result types.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// OfflineBlob is the verification material cached at a successful online
// login and consumed by offline login attempts. Salt and Derived are base64.
// It never contains a reversible form of the password.
type OfflineBlob struct {
	Salt    string `json:"salt"`
	Derived string `json:"derived"`
}

// User is a record in the local mirror of the remote user directory.
// Extra holds unrecognized wire fields so they survive a round trip through
// the cache unchanged.
type User struct {
	ID        int64          `json:"id"`
	Username  string         `json:"username,omitempty"`
	Email     string         `json:"email,omitempty"`
	FirstName string         `json:"firstName,omitempty"`
	LastName  string         `json:"lastName,omitempty"`
	Offline   *OfflineBlob   `json:"offline,omitempty"`
	Extra     map[string]any `json:"-"`
}

// Credentials is a login request. Identifier is matched case-insensitively
// against a cached user's username or email. Never persisted.
type Credentials struct {
	Identifier string
	Password   string
}

// ErrMissingID is returned when a wire record has no usable numeric id.
var ErrMissingID = errors.New("user record has no numeric id")

// DisplayName joins the name parts back into the combined form.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// SplitDisplayName splits a combined display name into first token and
// remaining tokens.
func SplitDisplayName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// UserFromWire normalizes a decoded wire record into a User. A combined
// "name" field is split into FirstName/LastName unless explicit parts are
// present; unknown fields pass through into Extra.
func UserFromWire(raw map[string]any) (User, error) {
	u := User{}

	id, ok := numericID(raw["id"])
	if !ok {
		return User{}, fmt.Errorf("%w: %v", ErrMissingID, raw["id"])
	}
	u.ID = id

	u.Username, _ = raw["username"].(string)
	u.Email, _ = raw["email"].(string)
	u.FirstName, _ = raw["firstName"].(string)
	u.LastName, _ = raw["lastName"].(string)

	name, _ := raw["name"].(string)
	if u.FirstName == "" && u.LastName == "" && name != "" {
		u.FirstName, u.LastName = SplitDisplayName(name)
	}

	known := map[string]struct{}{
		"id": {}, "username": {}, "email": {},
		"firstName": {}, "lastName": {}, "name": {}, "offline": {},
	}
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		if u.Extra == nil {
			u.Extra = make(map[string]any)
		}
		u.Extra[k] = v
	}

	return u, nil
}

func numericID(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
