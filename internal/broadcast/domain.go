// Package broadcast implements audience resolution and the dispatch engine
// behind the announcement, notice and notification senders.
package broadcast

import "fmt"

// Kind distinguishes the three sender surfaces.
type Kind string

const (
	KindAnnouncement Kind = "announcement"
	KindNotice       Kind = "notice"
	KindNotification Kind = "notification"
)

// Severity grades a message.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message is the composed payload of one dispatch.
type Message struct {
	Kind     Kind
	Title    string
	Body     string
	Severity Severity
}

// AudienceMode selects how recipients are targeted.
type AudienceMode string

const (
	// ModeAll targets every platform member.
	ModeAll AudienceMode = "all"
	// ModeExplicit targets a hand-picked recipient list.
	ModeExplicit AudienceMode = "explicit"
	// ModeSelf targets only the sender, for test sends.
	ModeSelf AudienceMode = "self"
)

// Sentinel markers used on the wire for the non-explicit modes.
const (
	SentinelAll  = "ALL"
	SentinelSelf = "SELF"
)

// RecipientSet is the canonical resolved audience: either a sentinel mode or
// an ordered list of distinct recipient addresses.
type RecipientSet struct {
	Mode       AudienceMode
	Recipients []string
}

// Serialize renders the set as the explicit wire list.
func (s RecipientSet) Serialize() []string {
	switch s.Mode {
	case ModeAll:
		return []string{SentinelAll}
	case ModeSelf:
		return []string{SentinelSelf}
	default:
		out := make([]string, len(s.Recipients))
		copy(out, s.Recipients)
		return out
	}
}

// ValidationError rejects a send before any record or network activity.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
