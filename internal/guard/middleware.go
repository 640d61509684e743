package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/campuslink/campuslink-admin/internal/platform/httpx"
)

// IdentitySource derives the actor snapshot for a request.
type IdentitySource interface {
	IdentityFromRequest(r *http.Request) (Identity, error)
}

type identityContextKey struct{}

// ContextWithIdentity stores the admitted identity in context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the admitted identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// Middleware gates HTTP routes behind the admin verdict.
type Middleware struct {
	Resolver   *Resolver
	Identities IdentitySource
	Logger     *slog.Logger
	LoginPath  string
}

type redirectNavigator struct {
	w http.ResponseWriter
	r *http.Request
}

func (n redirectNavigator) NavigateTo(path string, query url.Values) {
	target := path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	http.Redirect(n.w, n.r, target, http.StatusSeeOther)
}

// RequireAdmin admits only actors with an admin verdict. Anonymous actors are
// redirected once to the login entry point with a return path; everyone else
// blocked receives a problem response. Verdict errors deny.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.Identities.IdentityFromRequest(r)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("guard identity load", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}

		// Observe, never bump: concurrent requests for the same identity all
		// resolve against the same generation and stay current. Only an
		// identity change through Begin invalidates an in-flight verdict.
		gen := m.Resolver.Snapshot(identity)
		verdictValue, ok := m.Resolver.Resolve(r.Context(), gen, identity)
		var verdict *Verdict
		if ok {
			verdict = &verdictValue
		}

		gate := NewGate(redirectNavigator{w: w, r: r}, m.loginPath())
		decision := gate.Evaluate(identity, verdict, r.URL.Path)

		switch decision.State {
		case StateAllowed:
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		case StateLoginRequired:
			// The gate already wrote the redirect.
		case StateDenied:
			if m.Logger != nil {
				m.Logger.Warn("guard denied",
					slog.String("reason", decision.Reason),
					slog.String("email", decision.Email),
					slog.String("path", r.URL.Path))
			}
			detail := decision.Reason
			if decision.Email != "" {
				detail += " (signed in as " + decision.Email + ")"
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", detail)
		default:
			httpx.Problem(w, http.StatusServiceUnavailable, "Authorization Pending", "authorization has not settled, retry")
		}
	})
}

func (m Middleware) loginPath() string {
	if m.LoginPath != "" {
		return m.LoginPath
	}
	return "/auth/login"
}
