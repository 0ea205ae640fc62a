package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/preference"
)

// ListInbox handles GET /v1/users/{userID}/inbox?page=1&page_size=20
func (h *Handler) ListInbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	page, ok := h.intQuery(w, r, "page")
	if !ok {
		return
	}
	pageSize, ok := h.intQuery(w, r, "page_size")
	if !ok {
		return
	}

	p, err := h.inbox.List(r.Context(), userID, page, pageSize)
	if err != nil {
		h.handleError(w, err, "list inbox")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// MarkRead handles POST /v1/users/{userID}/inbox/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.inbox.MarkRead(r.Context(), userID, id); err != nil {
		h.handleError(w, err, "mark inbox item read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /v1/users/{userID}/inbox/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}

	n, err := h.inbox.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "mark inbox read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// DeleteInboxItem handles DELETE /v1/users/{userID}/inbox/{id}
func (h *Handler) DeleteInboxItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}
	id, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.inbox.Delete(r.Context(), userID, id); err != nil {
		h.handleError(w, err, "delete inbox item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles GET /v1/users/{userID}/preferences. Users without
// stored preferences get the defaults.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}

	p, err := h.preferences.Resolve(r.Context(), userID)
	if err != nil {
		h.handleError(w, err, "get preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PatchPreferences handles PATCH /v1/users/{userID}/preferences
func (h *Handler) PatchPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}

	var patch preference.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	p, err := h.preferences.Update(r.Context(), userID, patch)
	if err != nil {
		h.handleError(w, err, "update preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type contactRequest struct {
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	PushToken *string `json:"push_token"`
}

// PutContact handles PUT /v1/users/{userID}/contact. The body replaces every
// address on file; omitted fields are cleared.
func (h *Handler) PutContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "userID")
	if !ok {
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	c := &db.UserContact{
		UserID:    userID,
		Email:     nonEmpty(req.Email),
		Phone:     nonEmpty(req.Phone),
		PushToken: nonEmpty(req.PushToken),
	}
	if err := h.contacts.SaveContact(r.Context(), c); err != nil {
		h.handleError(w, err, "save contact")
		return
	}

	h.logger.Info("contact updated", zap.String("user_id", userID.String()))
	writeJSON(w, http.StatusOK, c)
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// intQuery parses an optional non-negative integer query parameter. A
// missing parameter yields 0.
func (h *Handler) intQuery(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err == nil && v < 0 {
		err = errors.New("negative")
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid "+name, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
