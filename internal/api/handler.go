// Package api exposes the notification core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/metrics"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/preference"
	"github.com/lalithlochan/courier/internal/redis"
)

// Notifier is the processor surface the API drives. *notify.Processor
// implements it.
type Notifier interface {
	Enqueue(ctx context.Context, req notify.Request) (notify.EnqueueResult, error)
	Get(ctx context.Context, id uuid.UUID) (*db.QueuedNotification, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	SendFromTemplate(ctx context.Context, key string, userID uuid.UUID, vars map[string]any) ([]notify.ChannelResult, error)
	BookingConfirmed(ctx context.Context, ev notify.BookingConfirmedEvent) (notify.EventResult, error)
	PaymentReminder(ctx context.Context, ev notify.PaymentReminderEvent) (notify.EventResult, error)
	DrainQueue(ctx context.Context, batchSize int) (int, error)
}

// Feed is the in-app inbox. *notify.Inbox implements it.
type Feed interface {
	List(ctx context.Context, userID uuid.UUID, page, pageSize int) (*notify.Page, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// PreferenceService reads and patches user preferences. *preference.Resolver
// implements it.
type PreferenceService interface {
	Resolve(ctx context.Context, userID uuid.UUID) (*db.UserPreference, error)
	Update(ctx context.Context, userID uuid.UUID, patch preference.Patch) (*db.UserPreference, error)
}

// TemplateRepository stores notification templates.
type TemplateRepository interface {
	GetTemplateByKey(ctx context.Context, key string) (*db.NotificationTemplate, error)
	SaveTemplate(ctx context.Context, t *db.NotificationTemplate) error
}

// ContactRepository stores user delivery addresses.
type ContactRepository interface {
	GetContact(ctx context.Context, userID uuid.UUID) (*db.UserContact, error)
	SaveContact(ctx context.Context, c *db.UserContact) error
}

// Deps are the services behind the handlers. Idempotency and Health are
// optional.
type Deps struct {
	Notifier    Notifier
	Inbox       Feed
	Preferences PreferenceService
	Templates   TemplateRepository
	Contacts    ContactRepository
	Idempotency *redis.IdempotencyService
	Health      func(ctx context.Context) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	notifier    Notifier
	inbox       Feed
	preferences PreferenceService
	templates   TemplateRepository
	contacts    ContactRepository
	idempotency *redis.IdempotencyService // nil if Redis not configured
	health      func(ctx context.Context) error
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	return &Handler{
		logger:      logger,
		notifier:    deps.Notifier,
		inbox:       deps.Inbox,
		preferences: deps.Preferences,
		templates:   deps.Templates,
		contacts:    deps.Contacts,
		idempotency: deps.Idempotency,
		health:      deps.Health,
	}
}

// Routes mounts the /v1 endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/notifications", h.CreateNotification)
	r.Get("/notifications/{id}", h.GetNotification)
	r.Delete("/notifications/{id}", h.CancelNotification)

	r.Get("/templates/{key}", h.GetTemplate)
	r.Put("/templates/{key}", h.PutTemplate)
	r.Post("/templates/{key}/send", h.SendTemplate)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/inbox", h.ListInbox)
		r.Post("/inbox/read-all", h.MarkAllRead)
		r.Post("/inbox/{id}/read", h.MarkRead)
		r.Delete("/inbox/{id}", h.DeleteInboxItem)

		r.Get("/preferences", h.GetPreferences)
		r.Patch("/preferences", h.PatchPreferences)
		r.Put("/contact", h.PutContact)
	})

	r.Post("/events/booking-confirmed", h.BookingConfirmed)
	r.Post("/events/payment-reminder", h.PaymentReminder)

	r.Post("/queue/drain", h.DrainQueue)
}

// EnqueueResponse is returned for every accepted enqueue, including blocked
// ones, which carry no id.
type EnqueueResponse struct {
	ID           string     `json:"id,omitempty"`
	Outcome      string     `json:"outcome"`
	ProcessAfter *time.Time `json:"process_after,omitempty"`
}

func newEnqueueResponse(res notify.EnqueueResult) EnqueueResponse {
	resp := EnqueueResponse{Outcome: string(res.Outcome)}
	if res.ID != uuid.Nil {
		resp.ID = res.ID.String()
		at := res.ProcessAfter.UTC()
		resp.ProcessAfter = &at
	}
	return resp
}

// CreateNotification handles POST /v1/notifications
// Supports idempotency via the Idempotency-Key header, scoped to the user.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req notify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	scope := req.UserID.String()
	reserved := false
	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, scope, idempotencyKey)
		switch {
		case errors.Is(err, redis.ErrDuplicateRequest):
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Request is already being processed",
				"Another request with this idempotency key is in progress")
			return
		case err != nil:
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		case cached != nil:
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		default:
			reserved = true
		}
	}

	res, err := h.notifier.Enqueue(ctx, req)
	if err != nil {
		if reserved {
			// let the client retry with the same key
			if rerr := h.idempotency.Release(context.WithoutCancel(ctx), scope, idempotencyKey); rerr != nil {
				h.logger.Warn("failed to release idempotency key", zap.Error(rerr))
			}
		}
		h.handleError(w, err, "enqueue notification")
		return
	}

	body, _ := json.Marshal(newEnqueueResponse(res))
	if reserved {
		result := &redis.IdempotencyResult{
			StatusCode: http.StatusAccepted,
			Body:       body,
			CreatedAt:  time.Now().Unix(),
		}
		if err := h.idempotency.Store(ctx, scope, idempotencyKey, result, redis.IdempotencyTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write(body)
}

// GetNotification handles GET /v1/notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	n, err := h.notifier.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "get notification")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// CancelNotification handles DELETE /v1/notifications/{id}. Only records that
// are still pending can be cancelled.
func (h *Handler) CancelNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.notifier.Cancel(r.Context(), id); err != nil {
		h.handleError(w, err, "cancel notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DrainQueue handles POST /v1/queue/drain?batch_size=n
func (h *Handler) DrainQueue(w http.ResponseWriter, r *http.Request) {
	batchSize, ok := h.intQuery(w, r, "batch_size")
	if !ok {
		return
	}

	n, err := h.notifier.DrainQueue(r.Context(), batchSize)
	if err != nil {
		h.handleError(w, err, "drain queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"examined": n})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without detail.
func (h *Handler) handleError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, notify.ErrInvalidRequest), errors.Is(err, preference.ErrInvalid), errors.Is(err, errInvalidTemplate):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request", err.Error())
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Resource not found", "")
	default:
		h.logger.Error("request failed", zap.String("op", op), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid "+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
