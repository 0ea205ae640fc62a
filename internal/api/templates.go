package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/notify"
)

var errInvalidTemplate = errors.New("invalid template")

// GetTemplate handles GET /v1/templates/{key}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.GetTemplateByKey(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.handleError(w, err, "get template")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// PutTemplate handles PUT /v1/templates/{key}, creating or replacing the
// template. The key in the path wins over any key in the body. An omitted
// priority gets the default; an explicit 0 is kept.
func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	t := db.NotificationTemplate{Priority: notify.DefaultPriority}
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	t.Key = chi.URLParam(r, "key")

	if err := validateTemplate(&t); err != nil {
		h.handleError(w, err, "validate template")
		return
	}
	if err := h.templates.SaveTemplate(r.Context(), &t); err != nil {
		h.handleError(w, err, "save template")
		return
	}

	h.logger.Info("template saved", zap.String("template", t.Key), zap.Strings("channels", t.Channels))
	writeJSON(w, http.StatusOK, &t)
}

func validateTemplate(t *db.NotificationTemplate) error {
	if t.Key == "" {
		return fmt.Errorf("%w: key is required", errInvalidTemplate)
	}
	if len(t.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", errInvalidTemplate)
	}
	seen := make(map[string]bool, len(t.Channels))
	for _, ch := range t.Channels {
		if !db.ValidChannel(ch) {
			return fmt.Errorf("%w: unknown channel %q", errInvalidTemplate, ch)
		}
		if seen[ch] {
			return fmt.Errorf("%w: channel %q listed twice", errInvalidTemplate, ch)
		}
		seen[ch] = true
	}
	if t.InAppType == "" {
		t.InAppType = db.InAppInfo
	}
	if !db.ValidInAppType(t.InAppType) {
		return fmt.Errorf("%w: unknown in_app_type %q", errInvalidTemplate, t.InAppType)
	}
	if t.Priority < 0 {
		return fmt.Errorf("%w: priority must not be negative", errInvalidTemplate)
	}
	return nil
}

type sendTemplateRequest struct {
	UserID    uuid.UUID      `json:"user_id"`
	Variables map[string]any `json:"variables"`
}

// ChannelResponse is the per-channel outcome of a template send.
type ChannelResponse struct {
	Channel string `json:"channel"`
	EnqueueResponse
	Error string `json:"error,omitempty"`
}

func newChannelResponses(results []notify.ChannelResult) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(results))
	for _, res := range results {
		cr := ChannelResponse{Channel: res.Channel}
		if res.Err != nil {
			cr.Error = res.Err.Error()
		} else {
			cr.EnqueueResponse = newEnqueueResponse(res.Result)
		}
		out = append(out, cr)
	}
	return out
}

// SendTemplate handles POST /v1/templates/{key}/send. Partial failures are
// reported per channel with 207; an unknown or disabled template sends
// nothing and returns an empty result list.
func (h *Handler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req sendTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.UserID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id is required")
		return
	}

	results, err := h.notifier.SendFromTemplate(r.Context(), key, req.UserID, req.Variables)
	if err != nil && len(results) == 0 {
		h.handleError(w, err, "send template")
		return
	}

	status := http.StatusAccepted
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{
		"template": key,
		"results":  newChannelResponses(results),
	})
}
