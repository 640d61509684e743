package broadcast

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campuslink/campuslink-admin/internal/guard"
	"github.com/campuslink/campuslink-admin/internal/history"
	"github.com/campuslink/campuslink-admin/internal/platform/httpx"
	"github.com/campuslink/campuslink-admin/internal/shared"
)

// Handler wires the sender and history endpoints.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	store     *history.Store
	audit     *shared.AuditLogger
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine, store *history.Store, audit *shared.AuditLogger) *Handler {
	return &Handler{
		logger:    logger,
		engine:    engine,
		store:     store,
		audit:     audit,
		validator: validator.New(),
	}
}

// MountRoutes registers broadcast routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.send)
	r.Get("/", h.list)
	r.Post("/preview", h.preview)
}

type sendRequest struct {
	Kind            string   `json:"kind" validate:"required,oneof=announcement notice notification"`
	Title           string   `json:"title" validate:"max=200"`
	Body            string   `json:"body" validate:"required"`
	Severity        string   `json:"severity" validate:"required,oneof=info warning critical"`
	Audience        string   `json:"audience" validate:"required,oneof=all explicit self"`
	Recipients      []string `json:"recipients" validate:"dive,email"`
	RecipientBuffer string   `json:"recipient_buffer"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	set, err := ResolveAudience(AudienceMode(req.Audience), req.RecipientBuffer, req.Recipients)
	if err != nil {
		respondBroadcastError(w, err)
		return
	}

	identity, _ := guard.IdentityFromContext(r.Context())
	msg := Message{
		Kind:     Kind(req.Kind),
		Title:    strings.TrimSpace(req.Title),
		Body:     req.Body,
		Severity: Severity(req.Severity),
	}

	rec, err := h.engine.Send(r.Context(), identity.Email, msg, set)
	if err != nil {
		respondBroadcastError(w, err)
		return
	}

	if h.audit != nil {
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			ActorID:    identity.UserID,
			ActorEmail: identity.Email,
			Action:     "broadcast.send",
			Entity:     "broadcast",
			EntityID:   rec.ID,
			Meta: map[string]any{
				"kind":     rec.Kind,
				"severity": rec.Severity,
				"audience": string(set.Mode),
				"status":   string(rec.Status),
			},
		}); err != nil {
			h.logger.Warn("audit broadcast send", slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	statusFilter := strings.TrimSpace(r.URL.Query().Get("status"))
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	records := h.store.List()
	filtered := make([]history.Record, 0, len(records))
	for _, rec := range records {
		if statusFilter != "" && string(rec.Status) != statusFilter {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(rec.Title), search) &&
			!strings.Contains(strings.ToLower(rec.Body), search) {
			continue
		}
		filtered = append(filtered, rec)
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"records": filtered,
		"total":   len(filtered),
	})
}

type previewRequest struct {
	Audience        string   `json:"audience" validate:"required,oneof=all explicit self"`
	Recipients      []string `json:"recipients"`
	RecipientBuffer string   `json:"recipient_buffer"`
}

// preview resolves the audience without dispatching, so the composer can show
// the canonical recipient list before sending.
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}

	set, err := ResolveAudience(AudienceMode(req.Audience), req.RecipientBuffer, req.Recipients)
	if err != nil {
		respondBroadcastError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"audience":   string(set.Mode),
		"recipients": set.Serialize(),
	})
}

func respondBroadcastError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
		return
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fe.Field()+" failed "+fe.Tag())
		}
		return strings.Join(parts, "; ")
	}
	return "invalid request"
}
