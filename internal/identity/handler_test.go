package identity_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuslink/campuslink-admin/internal/guard"
	"github.com/campuslink/campuslink-admin/internal/identity"
	"github.com/campuslink/campuslink-admin/internal/shared"
	_ "github.com/campuslink/campuslink-admin/testing"
)

type stubRepo struct {
	user            *identity.User
	createdSessions int
	deletedSessions int
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.createdSessions++
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deletedSessions++
	return nil
}

func (s *stubRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type invalidatorSpy struct {
	begun []guard.Identity
}

func (s *invalidatorSpy) Begin(id guard.Identity) uint64 {
	s.begun = append(s.begun, id)
	return uint64(len(s.begun))
}

func newIdentityHandler(t *testing.T, repo identity.Repository, verdicts identity.VerdictInvalidator) (*identity.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return identity.NewHandler(logger, identity.NewService(repo), sessionManager, csrfManager, verdicts), sessionManager
}

func serveWithSession(t *testing.T, sm *shared.SessionManager, handler http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler(res, req)
	if err := sm.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func TestLoginSuccessBindsSession(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo := &stubRepo{user: &identity.User{
		ID: 7, Email: "dean@campus.edu", DisplayName: "Dean", PasswordHash: string(hashed), IsAdmin: true, IsActive: true,
	}}
	handler, sm := newIdentityHandler(t, repo, nil)

	body := `{"email":"dean@campus.edu","password":"correctpass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, sess := serveWithSession(t, sm, handler.HandleLoginForTest, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var view struct {
		UserID    int64  `json:"user_id"`
		Email     string `json:"email"`
		IsAdmin   bool   `json:"is_admin"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.UserID != 7 || !view.IsAdmin || view.CSRFToken == "" {
		t.Fatalf("unexpected view %+v", view)
	}
	if sess.User() != "7" {
		t.Fatalf("expected session bound to user 7, got %q", sess.User())
	}
	if repo.createdSessions != 1 {
		t.Fatalf("expected one session row, got %d", repo.createdSessions)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &identity.User{ID: 7, Email: "dean@campus.edu", PasswordHash: string(hashed), IsActive: true}}
	handler, sm := newIdentityHandler(t, repo, nil)

	body := `{"email":"dean@campus.edu","password":"wrongpass1"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, sess := serveWithSession(t, sm, handler.HandleLoginForTest, req)

	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatalf("failed login must not bind a user")
	}
}

func TestLoginInactiveAccountRejected(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &identity.User{ID: 7, Email: "dean@campus.edu", PasswordHash: string(hashed), IsActive: false}}
	handler, sm := newIdentityHandler(t, repo, nil)

	body := `{"email":"dean@campus.edu","password":"correctpass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res, _ := serveWithSession(t, sm, handler.HandleLoginForTest, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive account, got %d", res.Code)
	}
}

func TestLoginAndLogoutInvalidateVerdicts(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &identity.User{
		ID: 7, Email: "dean@campus.edu", DisplayName: "Dean", PasswordHash: string(hashed), IsAdmin: true, IsActive: true,
	}}
	spy := &invalidatorSpy{}
	handler, sm := newIdentityHandler(t, repo, spy)

	body := `{"email":"dean@campus.edu","password":"correctpass"}`
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")
	res, sess := serveWithSession(t, sm, handler.HandleLoginForTest, loginReq)
	if res.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", res.Code)
	}
	if len(spy.begun) != 1 || spy.begun[0].UserID != 7 || !spy.begun[0].Authenticated {
		t.Fatalf("login must register the identity change, got %+v", spy.begun)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	res, _ = serveWithSession(t, sm, handler.HandleLogoutForTest, logoutReq)
	if res.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", res.Code)
	}
	if len(spy.begun) != 2 || spy.begun[1].UserID != 7 {
		t.Fatalf("logout must register the identity change for the signed-out actor, got %+v", spy.begun)
	}
}

func TestSessionSourceRoundTrip(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	repo := &stubRepo{user: &identity.User{
		ID: 7, Email: "dean@campus.edu", DisplayName: "Dean", PasswordHash: string(hashed), IsActive: true,
	}}
	handler, sm := newIdentityHandler(t, repo, nil)

	body := `{"email":"dean@campus.edu","password":"correctpass"}`
	loginReq := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")
	_, sess := serveWithSession(t, sm, handler.HandleLoginForTest, loginReq)

	// A follow-up request carrying the session cookie resolves the identity.
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), loaded))

	id, err := identity.SessionSource{}.IdentityFromRequest(req)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	want := guard.Identity{UserID: 7, Email: "dean@campus.edu", DisplayName: "Dean", Authenticated: true}
	if id != want {
		t.Fatalf("expected %+v, got %+v", want, id)
	}
}

func TestSessionSourceAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	sess := &shared.Session{}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	id, err := identity.SessionSource{}.IdentityFromRequest(req)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if id.Authenticated || id.Loading {
		t.Fatalf("expected settled anonymous identity, got %+v", id)
	}
}

func TestSessionSourceMissingSessionIsLoading(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	id, err := identity.SessionSource{}.IdentityFromRequest(req)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if !id.Loading {
		t.Fatalf("request outside session middleware must report loading")
	}
}
