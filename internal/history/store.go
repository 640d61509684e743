// Package history keeps the bounded log of broadcast dispatch records.
//
// The in-memory log is authoritative for the life of the process; every
// mutation is written through to a key-value collaborator on a best-effort
// basis. Durability failures never block the send path.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Status tracks the lifecycle of a dispatch record.
type Status string

const (
	// StatusSending marks an optimistic record whose outcome is unknown.
	StatusSending Status = "sending"
	// StatusSent marks a confirmed delivery hand-off.
	StatusSent Status = "sent"
	// StatusFailed marks a dispatch that settled with an error.
	StatusFailed Status = "failed"
)

// Record is one dispatch attempt. Created as Sending, settled in place
// exactly once to Sent or Failed, immutable thereafter.
type Record struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Title      string     `json:"title,omitempty"`
	Body       string     `json:"body"`
	Severity   string     `json:"severity"`
	Recipients []string   `json:"recipients"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

// Patch carries the terminal state applied to a Sending record.
type Patch struct {
	Status    Status
	Error     string
	SettledAt time.Time
}

// KV is the persistence collaborator. Get returns nil bytes when the key is
// absent. Both calls may fail; the store treats failures as non-fatal.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store is the bounded dispatch log.
type Store struct {
	mu       sync.Mutex
	byID     map[string]*Record
	order    []string // creation order, oldest first
	capacity int
	kv       KV
	key      string
	logger   *slog.Logger
}

// NewStore constructs a Store holding at most capacity records.
func NewStore(kv KV, key string, capacity int, logger *slog.Logger) *Store {
	if capacity <= 0 {
		capacity = 200
	}
	return &Store{
		byID:     make(map[string]*Record),
		capacity: capacity,
		kv:       kv,
		key:      key,
		logger:   logger,
	}
}

// Load restores persisted records. Records that were still Sending when the
// process stopped settle as Failed: their outcome is unknowable.
func (s *Store) Load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	data, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logPersistence("load history", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logPersistence("decode history", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The snapshot is persisted newest-first; walk it backwards so the
	// creation order rebuilds oldest-first.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.ID == "" {
			continue
		}
		if rec.Status == StatusSending {
			now := time.Now().UTC()
			rec.Status = StatusFailed
			rec.Error = "interrupted by restart"
			rec.SettledAt = &now
		}
		if _, exists := s.byID[rec.ID]; exists {
			continue
		}
		s.byID[rec.ID] = &rec
		s.order = append(s.order, rec.ID)
	}
	s.evictLocked()
	return nil
}

// Append inserts a new record, evicting the oldest settled record when the
// log is full. In-flight records are evicted only when nothing settled
// remains to evict.
func (s *Store) Append(ctx context.Context, rec Record) {
	s.mu.Lock()
	stored := rec
	s.byID[rec.ID] = &stored
	s.order = append(s.order, rec.ID)
	s.evictLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
}

// Mutate settles the record with the given id. Returns false when the record
// is gone (evicted before the dispatch settled); the late update is a no-op
// and evicted entries are never resurrected. A record that already settled is
// left untouched.
func (s *Store) Mutate(ctx context.Context, id string, patch Patch) bool {
	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if rec.Status != StatusSending {
		s.mu.Unlock()
		return false
	}
	rec.Status = patch.Status
	rec.Error = patch.Error
	settled := patch.SettledAt
	if settled.IsZero() {
		settled = time.Now().UTC()
	}
	rec.SettledAt = &settled
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(ctx, snapshot)
	return true
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns all records newest-first.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len reports the number of retained records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// snapshotLocked copies the log newest-first. Caller holds the lock.
func (s *Store) snapshotLocked() []Record {
	out := make([]Record, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if rec, ok := s.byID[s.order[i]]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// evictLocked drops oldest records beyond capacity, preferring settled ones.
func (s *Store) evictLocked() {
	for len(s.order) > s.capacity {
		victim := -1
		for i, id := range s.order {
			if rec, ok := s.byID[id]; ok && rec.Status != StatusSending {
				victim = i
				break
			}
		}
		if victim == -1 {
			// Everything is in flight; oldest goes anyway.
			victim = 0
		}
		id := s.order[victim]
		s.order = append(s.order[:victim], s.order[victim+1:]...)
		delete(s.byID, id)
	}
}

func (s *Store) persist(ctx context.Context, snapshot []Record) {
	if s.kv == nil {
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logPersistence("encode history", err)
		return
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.logPersistence("write history", err)
	}
}

func (s *Store) logPersistence(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}
