package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// AdminChecker answers whether a user holds admin rights. Implementations
// should return *AuthError so failures keep their category; anything else is
// treated as a transport failure.
type AdminChecker interface {
	CheckAdmin(ctx context.Context, userID int64) (bool, error)
}

// Resolver computes verdicts for identity snapshots. Identity changes are the
// cancellation signal: a resolution begun before the same identity changed is
// discarded when it settles, never applied. Resolutions for distinct
// identities never interfere, and re-resolving an unchanged identity always
// yields a current verdict.
type Resolver struct {
	checker AdminChecker
	group   singleflight.Group
	mu      sync.Mutex
	gens    map[string]uint64
	now     func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(checker AdminChecker) *Resolver {
	return &Resolver{checker: checker, gens: make(map[string]uint64), now: time.Now}
}

// Begin signals that the identity changed and returns the new generation
// token. Any resolution in flight for an earlier generation of the same
// identity becomes stale; other identities are unaffected.
func (r *Resolver) Begin(identity Identity) uint64 {
	key := identity.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[key]++
	return r.gens[key]
}

// Snapshot returns the identity's current generation token without
// registering a change. Resolutions against a Snapshot token stay current as
// long as the identity does not change, no matter how many run concurrently.
func (r *Resolver) Snapshot(identity Identity) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[identity.Key()]
}

// Resolve computes the verdict for the identity. The boolean result is false
// when the identity changed while the check was in flight; the returned
// verdict must then be discarded.
//
// The identity must have settled upstream: callers never pass Loading
// identities.
func (r *Resolver) Resolve(ctx context.Context, gen uint64, identity Identity) (Verdict, bool) {
	key := identity.Key()
	if !identity.Authenticated {
		// No network call for anonymous actors.
		return Verdict{IsAdmin: false, ResolvedAt: r.now()}, r.current(key, gen)
	}

	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.checker.CheckAdmin(ctx, identity.UserID)
	})
	if !r.current(key, gen) {
		return Verdict{}, false
	}
	if err != nil {
		return Verdict{IsAdmin: false, ResolvedAt: r.now(), Err: categorize(err)}, true
	}
	isAdmin, _ := result.(bool)
	return Verdict{IsAdmin: isAdmin, ResolvedAt: r.now()}, true
}

func (r *Resolver) current(key string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[key] == gen
}

func categorize(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &AuthError{Kind: KindTransport, Err: err}
}
