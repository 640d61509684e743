package guard_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/campuslink-admin/internal/guard"
	_ "github.com/campuslink/campuslink-admin/testing"
)

type staticIdentitySource struct {
	identity guard.Identity
	err      error
}

func (s staticIdentitySource) IdentityFromRequest(r *http.Request) (guard.Identity, error) {
	return s.identity, s.err
}

type staticChecker struct {
	isAdmin bool
	err     error
}

func (s staticChecker) CheckAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.isAdmin, s.err
}

func newGuarded(t *testing.T, source guard.IdentitySource, checker guard.AdminChecker) http.Handler {
	t.Helper()
	mw := guard.Middleware{
		Resolver:   guard.NewResolver(checker),
		Identities: source,
		LoginPath:  "/auth/login",
	}
	return mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := guard.IdentityFromContext(r.Context())
		require.True(t, ok, "admitted request must carry identity")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello " + identity.Email))
	}))
}

func TestRequireAdminRedirectsAnonymousToLogin(t *testing.T) {
	handler := newGuarded(t,
		staticIdentitySource{identity: guard.Identity{Authenticated: false}},
		staticChecker{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin", nil))

	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login?redirect=%2Fadmin", res.Header().Get("Location"))
}

func TestRequireAdminDeniesNonAdminWithEmail(t *testing.T) {
	handler := newGuarded(t,
		staticIdentitySource{identity: guard.Identity{UserID: 3, Email: "student@campus.edu", Authenticated: true}},
		staticChecker{isAdmin: false})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin", nil))

	require.Equal(t, http.StatusForbidden, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "admin privileges required")
	assert.Contains(t, body, "student@campus.edu")
	assert.Empty(t, res.Header().Get("Location"), "denial must not navigate")
}

func TestRequireAdminFailsClosedOnCheckerError(t *testing.T) {
	handler := newGuarded(t,
		staticIdentitySource{identity: guard.Identity{UserID: 1, Email: "dean@campus.edu", Authenticated: true}},
		staticChecker{isAdmin: true, err: errors.New("upstream unreachable")})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin", nil))

	require.Equal(t, http.StatusForbidden, res.Code)
	assert.Contains(t, res.Body.String(), "authentication error")
}

func TestRequireAdminAdmitsAdmin(t *testing.T) {
	handler := newGuarded(t,
		staticIdentitySource{identity: guard.Identity{UserID: 1, Email: "dean@campus.edu", Authenticated: true}},
		staticChecker{isAdmin: true})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.True(t, strings.Contains(res.Body.String(), "dean@campus.edu"))
}

type headerIdentitySource struct{}

func (headerIdentitySource) IdentityFromRequest(r *http.Request) (guard.Identity, error) {
	switch r.Header.Get("X-Actor") {
	case "dean":
		return guard.Identity{UserID: 1, Email: "dean@campus.edu", Authenticated: true}, nil
	default:
		return guard.Identity{UserID: 2, Email: "registrar@campus.edu", Authenticated: true}, nil
	}
}

type blockingChecker struct {
	calls atomic.Int64
	block chan struct{}
}

func (c *blockingChecker) CheckAdmin(ctx context.Context, userID int64) (bool, error) {
	c.calls.Add(1)
	<-c.block
	return true, nil
}

func TestRequireAdminOverlappingRequestsAllAdmitted(t *testing.T) {
	checker := &blockingChecker{block: make(chan struct{})}
	handler := newGuarded(t, headerIdentitySource{}, checker)

	actors := []string{"dean", "registrar", "dean", "registrar"}
	recorders := make([]*httptest.ResponseRecorder, len(actors))
	var wg sync.WaitGroup
	for i, actor := range actors {
		recorders[i] = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("X-Actor", actor)
		wg.Add(1)
		go func(res *httptest.ResponseRecorder, req *http.Request) {
			defer wg.Done()
			handler.ServeHTTP(res, req)
		}(recorders[i], req)
	}

	// Hold every check in flight so the requests genuinely overlap.
	for checker.calls.Load() < 2 {
		runtime.Gosched()
	}
	time.Sleep(10 * time.Millisecond)
	close(checker.block)
	wg.Wait()

	for i, res := range recorders {
		require.Equal(t, http.StatusOK, res.Code,
			"request %d (%s) got %d: %s", i, actors[i], res.Code, res.Body.String())
	}
}

func TestRequireAdminIdentityLoadFailure(t *testing.T) {
	handler := newGuarded(t,
		staticIdentitySource{err: errors.New("redis down")},
		staticChecker{isAdmin: true})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/admin", nil))

	require.Equal(t, http.StatusInternalServerError, res.Code)
}
