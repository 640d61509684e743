package guard

import (
	"net/url"
	"sync/atomic"
)

// State enumerates gate outcomes.
type State int

const (
	// StateLoading means the identity or verdict has not settled yet.
	StateLoading State = iota
	// StateDenied blocks the actor with a reason.
	StateDenied
	// StateLoginRequired prompts the anonymous actor to sign in.
	StateLoginRequired
	// StateAllowed admits the actor.
	StateAllowed
)

// String returns a short label for the state.
func (s State) String() string {
	switch s {
	case StateDenied:
		return "denied"
	case StateLoginRequired:
		return "login_required"
	case StateAllowed:
		return "allowed"
	default:
		return "loading"
	}
}

// Decision is the outcome of evaluating the gate for one identity snapshot.
type Decision struct {
	State  State
	Reason string
	// Email carries the actor's address on admin-privilege denials so the
	// denial screen can show who is signed in.
	Email string
	// PromptLogin marks denials where re-authenticating could help.
	PromptLogin bool
}

// Decide derives the gate outcome from an identity snapshot and its verdict.
// Pure function; rules apply in strict precedence order. Verdict errors always
// deny: an unknown admin status is never treated as admin.
func Decide(identity Identity, verdict *Verdict) Decision {
	if identity.Loading || verdict == nil {
		return Decision{State: StateLoading}
	}
	if verdict.Err != nil {
		return Decision{
			State:       StateDenied,
			Reason:      "authentication error: " + verdict.Err.Error(),
			PromptLogin: verdict.Err.Kind == KindUnauthenticated,
		}
	}
	if !identity.Authenticated {
		return Decision{State: StateLoginRequired}
	}
	if !verdict.IsAdmin {
		return Decision{
			State:  StateDenied,
			Reason: "admin privileges required",
			Email:  identity.Email,
		}
	}
	return Decision{State: StateAllowed}
}

// Navigator performs a fire-and-forget client navigation.
type Navigator interface {
	NavigateTo(path string, query url.Values)
}

// Gate couples the pure decision with the one-time login redirect. A Gate is
// created per mount; re-evaluations through the same Gate navigate at most
// once no matter how often the decision churns.
type Gate struct {
	nav           Navigator
	loginPath     string
	hasRedirected atomic.Bool
}

// NewGate constructs a Gate redirecting to loginPath.
func NewGate(nav Navigator, loginPath string) *Gate {
	return &Gate{nav: nav, loginPath: loginPath}
}

// Evaluate decides for the snapshot and fires the login redirect on the first
// LoginRequired outcome, carrying returnPath so the client can come back.
func (g *Gate) Evaluate(identity Identity, verdict *Verdict, returnPath string) Decision {
	decision := Decide(identity, verdict)
	if decision.State == StateLoginRequired && g.nav != nil {
		if g.hasRedirected.CompareAndSwap(false, true) {
			query := url.Values{}
			if returnPath != "" {
				query.Set("redirect", returnPath)
			}
			g.nav.NavigateTo(g.loginPath, query)
		}
	}
	return decision
}
