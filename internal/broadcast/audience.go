package broadcast

import (
	"strings"

	"golang.org/x/text/cases"
)

// foldCaser folds recipient addresses for case-insensitive deduplication.
var foldCaser = cases.Fold()

func foldAddress(addr string) string {
	return foldCaser.String(strings.TrimSpace(addr))
}

// splitEntries breaks a raw entry buffer on commas and newlines, trimming
// whitespace and dropping blanks.
func splitEntries(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ResolveAudience translates the chosen targeting mode plus the committed
// list and the raw entry buffer into a canonical RecipientSet. Explicit mode
// with no usable entries is a validation error; this is the only gate before
// the dispatch engine runs.
func ResolveAudience(mode AudienceMode, rawBuffer string, explicitList []string) (RecipientSet, error) {
	switch mode {
	case ModeAll:
		return RecipientSet{Mode: ModeAll}, nil
	case ModeSelf:
		return RecipientSet{Mode: ModeSelf}, nil
	case ModeExplicit:
		seen := make(map[string]struct{})
		var recipients []string
		appendEntry := func(entry string) {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				return
			}
			key := foldAddress(entry)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			recipients = append(recipients, entry)
		}
		for _, entry := range explicitList {
			appendEntry(entry)
		}
		for _, entry := range splitEntries(rawBuffer) {
			appendEntry(entry)
		}
		if len(recipients) == 0 {
			return RecipientSet{}, &ValidationError{Field: "recipients", Reason: "add at least one recipient"}
		}
		return RecipientSet{Mode: ModeExplicit, Recipients: recipients}, nil
	default:
		return RecipientSet{}, &ValidationError{Field: "audience", Reason: "unknown targeting mode"}
	}
}

// EntryBuffer models the incremental recipient editor: tokens are committed
// one at a time and the most recent entry can be removed with a quick delete.
type EntryBuffer struct {
	entries []string
	seen    map[string]struct{}
}

// NewEntryBuffer constructs an empty buffer.
func NewEntryBuffer() *EntryBuffer {
	return &EntryBuffer{seen: make(map[string]struct{})}
}

// Commit adds one token. Committing the same token twice is a no-op, so a
// duplicate delimiter keystroke cannot create a duplicate entry.
func (b *EntryBuffer) Commit(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	key := foldAddress(token)
	if _, dup := b.seen[key]; dup {
		return false
	}
	b.seen[key] = struct{}{}
	b.entries = append(b.entries, token)
	return true
}

// PopLast removes exactly the most recently committed entry.
func (b *EntryBuffer) PopLast() (string, bool) {
	if len(b.entries) == 0 {
		return "", false
	}
	last := b.entries[len(b.entries)-1]
	b.entries = b.entries[:len(b.entries)-1]
	delete(b.seen, foldAddress(last))
	return last, true
}

// Entries returns the committed tokens in commit order.
func (b *EntryBuffer) Entries() []string {
	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}
