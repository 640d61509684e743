package guard

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

type recordingNavigator struct {
	calls []string
}

func (n *recordingNavigator) NavigateTo(path string, query url.Values) {
	target := path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	n.calls = append(n.calls, target)
}

func settledVerdict(isAdmin bool) *Verdict {
	return &Verdict{IsAdmin: isAdmin, ResolvedAt: time.Now()}
}

func TestDecideLoadingPrecedesEverything(t *testing.T) {
	// A loading identity wins even when an older verdict said admin.
	identity := Identity{UserID: 7, Email: "dean@campus.edu", Authenticated: true, Loading: true}
	decision := Decide(identity, settledVerdict(true))
	if decision.State != StateLoading {
		t.Fatalf("expected loading, got %v", decision.State)
	}

	// Missing verdict means the resolver has not settled.
	decision = Decide(Identity{Authenticated: true}, nil)
	if decision.State != StateLoading {
		t.Fatalf("expected loading for nil verdict, got %v", decision.State)
	}
}

func TestDecideFailsClosedOnEveryErrorKind(t *testing.T) {
	identity := Identity{UserID: 7, Email: "dean@campus.edu", Authenticated: true}
	for _, kind := range []ErrorKind{KindTransport, KindUnauthenticated, KindForbidden} {
		verdict := &Verdict{IsAdmin: true, ResolvedAt: time.Now(), Err: &AuthError{Kind: kind, Err: errors.New("boom")}}
		decision := Decide(identity, verdict)
		if decision.State == StateAllowed {
			t.Fatalf("kind %v: error verdict must never allow", kind)
		}
		if decision.State != StateDenied {
			t.Fatalf("kind %v: expected denied, got %v", kind, decision.State)
		}
		if decision.Reason == "" {
			t.Fatalf("kind %v: expected denial reason", kind)
		}
	}
}

func TestDecideLoginPromptOnlyForMissingCredentials(t *testing.T) {
	identity := Identity{Authenticated: true}
	expired := &Verdict{ResolvedAt: time.Now(), Err: &AuthError{Kind: KindUnauthenticated, Err: errors.New("session expired")}}
	if d := Decide(identity, expired); !d.PromptLogin {
		t.Fatalf("expected login prompt for unauthenticated error")
	}
	transport := &Verdict{ResolvedAt: time.Now(), Err: &AuthError{Kind: KindTransport, Err: errors.New("dial tcp")}}
	if d := Decide(identity, transport); d.PromptLogin {
		t.Fatalf("transport errors must not offer login")
	}
}

func TestDecideAnonymousGetsLoginRequired(t *testing.T) {
	decision := Decide(Identity{Authenticated: false}, settledVerdict(false))
	if decision.State != StateLoginRequired {
		t.Fatalf("expected login required, got %v", decision.State)
	}
}

func TestDecideNonAdminDeniedWithEmail(t *testing.T) {
	identity := Identity{UserID: 3, Email: "student@campus.edu", Authenticated: true}
	decision := Decide(identity, settledVerdict(false))
	if decision.State != StateDenied {
		t.Fatalf("expected denied, got %v", decision.State)
	}
	if decision.Reason != "admin privileges required" {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
	if decision.Email != "student@campus.edu" {
		t.Fatalf("expected denial to carry email, got %q", decision.Email)
	}
}

func TestDecideAdminAllowed(t *testing.T) {
	identity := Identity{UserID: 1, Email: "dean@campus.edu", Authenticated: true}
	if d := Decide(identity, settledVerdict(true)); d.State != StateAllowed {
		t.Fatalf("expected allowed, got %v", d.State)
	}
}

func TestGateRedirectsAtMostOnce(t *testing.T) {
	nav := &recordingNavigator{}
	gate := NewGate(nav, "/auth/login")
	identity := Identity{Authenticated: false}

	for i := 0; i < 5; i++ {
		decision := gate.Evaluate(identity, settledVerdict(false), "/admin")
		if decision.State != StateLoginRequired {
			t.Fatalf("iteration %d: expected login required, got %v", i, decision.State)
		}
	}

	if len(nav.calls) != 1 {
		t.Fatalf("expected exactly one navigation, got %d", len(nav.calls))
	}
	if nav.calls[0] != "/auth/login?redirect=%2Fadmin" {
		t.Fatalf("unexpected navigation target %q", nav.calls[0])
	}
}

func TestGateNoNavigationForDeniedAdmin(t *testing.T) {
	nav := &recordingNavigator{}
	gate := NewGate(nav, "/auth/login")
	identity := Identity{UserID: 3, Email: "student@campus.edu", Authenticated: true}

	decision := gate.Evaluate(identity, settledVerdict(false), "/admin")
	if decision.State != StateDenied {
		t.Fatalf("expected denied, got %v", decision.State)
	}
	if len(nav.calls) != 0 {
		t.Fatalf("expected zero navigations, got %d", len(nav.calls))
	}
}
