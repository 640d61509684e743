package broadcast

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuslink/campuslink-admin/internal/history"
	"github.com/campuslink/campuslink-admin/internal/observability"
)

// DispatchRequest is the payload handed to the external dispatch collaborator.
type DispatchRequest struct {
	RecordID   string   `json:"record_id"`
	Recipients []string `json:"recipients"`
	Sender     string   `json:"sender"`
	Kind       string   `json:"kind"`
	Title      string   `json:"title,omitempty"`
	Body       string   `json:"body"`
	Severity   string   `json:"severity"`
}

// Dispatcher performs the single external delivery call for one dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// Engine runs the optimistic send protocol: insert a Sending record, make
// exactly one dispatch call, settle that record by id. Failed dispatches stay
// in the log as a permanent audit entry and are never retried automatically.
type Engine struct {
	store      *history.Store
	dispatcher Dispatcher
	metrics    *observability.Metrics
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// NewEngine constructs an Engine.
func NewEngine(store *history.Store, dispatcher Dispatcher, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Send validates, optimistically records and dispatches the message to the
// resolved audience on behalf of sender. The returned record carries the
// terminal status. Validation failures return before any record exists.
func (e *Engine) Send(ctx context.Context, sender string, msg Message, set RecipientSet) (history.Record, error) {
	if strings.TrimSpace(msg.Body) == "" {
		return history.Record{}, &ValidationError{Field: "body", Reason: "message body must not be empty"}
	}
	if set.Mode == ModeExplicit && len(set.Recipients) == 0 {
		return history.Record{}, &ValidationError{Field: "recipients", Reason: "add at least one recipient"}
	}

	rec := history.Record{
		ID:         e.newID(),
		Kind:       string(msg.Kind),
		Title:      msg.Title,
		Body:       msg.Body,
		Severity:   string(msg.Severity),
		Recipients: set.Serialize(),
		Status:     history.StatusSending,
		CreatedAt:  e.now().UTC(),
	}
	e.store.Append(ctx, rec)

	err := e.dispatcher.Dispatch(ctx, DispatchRequest{
		RecordID:   rec.ID,
		Recipients: rec.Recipients,
		Sender:     sender,
		Kind:       rec.Kind,
		Title:      rec.Title,
		Body:       rec.Body,
		Severity:   rec.Severity,
	})

	settledAt := e.now().UTC()
	patch := history.Patch{Status: history.StatusSent, SettledAt: settledAt}
	if err != nil {
		patch.Status = history.StatusFailed
		patch.Error = err.Error()
		if e.logger != nil {
			e.logger.Warn("broadcast dispatch failed",
				slog.String("id", rec.ID),
				slog.String("kind", rec.Kind),
				slog.Any("error", err))
		}
	}

	// The settle targets the record by id; if capacity eviction removed it
	// while the dispatch was in flight, the update is dropped.
	if !e.store.Mutate(ctx, rec.ID, patch) {
		if e.logger != nil {
			e.logger.Debug("dispatch settled after eviction", slog.String("id", rec.ID))
		}
	}
	e.metrics.ObserveDispatch(string(patch.Status))

	rec.Status = patch.Status
	rec.Error = patch.Error
	rec.SettledAt = &settledAt
	return rec, nil
}
