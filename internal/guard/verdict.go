// Package guard decides whether the current actor may reach the admin surface.
//
// The decision pipeline is Identity -> Verdict -> Decision. An Identity is a
// snapshot of the session at evaluation time, a Verdict is the resolved
// admin determination for exactly that snapshot, and a Decision is the pure
// outcome the HTTP layer acts on.
package guard

import (
	"fmt"
	"strconv"
	"time"
)

// ErrorKind categorises authorization check failures.
type ErrorKind int

const (
	// KindTransport covers network and backend failures.
	KindTransport ErrorKind = iota
	// KindUnauthenticated means the credential was missing or expired.
	KindUnauthenticated
	// KindForbidden means the backend rejected the actor outright.
	KindForbidden
)

// String returns a short label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	default:
		return "transport"
	}
}

// AuthError is a categorised authorization check failure.
type AuthError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

// Unwrap exposes the wrapped cause.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Identity is a read-only snapshot of the current actor.
type Identity struct {
	UserID        int64
	Email         string
	DisplayName   string
	Authenticated bool
	// Loading is true while the upstream session has not settled yet.
	Loading bool
}

// Key identifies the snapshot for supersession checks. Two identities with
// the same key resolve to the same verdict.
func (i Identity) Key() string {
	return strconv.FormatInt(i.UserID, 10) + "|" + i.Email + "|" + strconv.FormatBool(i.Authenticated)
}

// Verdict is the resolved admin determination for one identity snapshot.
// It is immutable once computed; a new identity yields a new verdict.
type Verdict struct {
	IsAdmin    bool
	ResolvedAt time.Time
	Err        *AuthError
}
