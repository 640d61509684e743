package identity

import (
	"net/http"
	"strconv"

	"github.com/campuslink/campuslink-admin/internal/guard"
	"github.com/campuslink/campuslink-admin/internal/shared"
)

// Session value keys set at login and read back on every request.
const (
	sessionKeyEmail = "email"
	sessionKeyName  = "display_name"
)

// SessionSource derives the guard identity from the request session.
type SessionSource struct{}

// IdentityFromRequest builds the identity snapshot for the current request.
// A request outside the session middleware has no settled identity and is
// reported as loading; the gate then refuses to render anything privileged.
func (SessionSource) IdentityFromRequest(r *http.Request) (guard.Identity, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return guard.Identity{Loading: true}, nil
	}
	raw := sess.User()
	if raw == "" {
		return guard.Identity{Authenticated: false}, nil
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A corrupt session cannot vouch for anyone.
		return guard.Identity{Authenticated: false}, nil
	}
	return guard.Identity{
		UserID:        userID,
		Email:         sess.Get(sessionKeyEmail),
		DisplayName:   sess.Get(sessionKeyName),
		Authenticated: true,
	}, nil
}

var _ guard.IdentitySource = SessionSource{}
