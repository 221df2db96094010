package services

import "errors"

// ErrLoginFailed is the single opaque authentication failure surfaced to
// callers. Whether the online attempt, the offline lookup, or the password
// comparison failed is never distinguishable from this error; the underlying
// causes are logged internally. This keeps the API from leaking which
// accounts have cached credentials.
var ErrLoginFailed = errors.New("login failed")

// Internal offline-login causes. All of them collapse into ErrLoginFailed
// before leaving the service.
var (
	errNoOfflineMatch    = errors.New("no cached user matches identifier")
	errNoOfflineBlob     = errors.New("cached user has no offline verification material")
	errPasswordMismatch  = errors.New("offline password mismatch")
	errMalformedResponse = errors.New("malformed server response")
)
