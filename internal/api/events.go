package api

import (
	"encoding/json"
	"net/http"

	"github.com/lalithlochan/courier/internal/notify"
)

// EventResponse reports the in-app entry and the template sends an event
// produced.
type EventResponse struct {
	InApp    EnqueueResponse   `json:"in_app"`
	Channels []ChannelResponse `json:"channels"`
}

// BookingConfirmed handles POST /v1/events/booking-confirmed
func (h *Handler) BookingConfirmed(w http.ResponseWriter, r *http.Request) {
	var ev notify.BookingConfirmedEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	res, err := h.notifier.BookingConfirmed(r.Context(), ev)
	h.writeEvent(w, res, err, "booking confirmed event")
}

// PaymentReminder handles POST /v1/events/payment-reminder
func (h *Handler) PaymentReminder(w http.ResponseWriter, r *http.Request) {
	var ev notify.PaymentReminderEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	res, err := h.notifier.PaymentReminder(r.Context(), ev)
	h.writeEvent(w, res, err, "payment reminder event")
}

func (h *Handler) writeEvent(w http.ResponseWriter, res notify.EventResult, err error, op string) {
	if err != nil && res.InApp.Outcome == "" && len(res.Channels) == 0 {
		h.handleError(w, err, op)
		return
	}

	status := http.StatusAccepted
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, EventResponse{
		InApp:    newEnqueueResponse(res.InApp),
		Channels: newChannelResponses(res.Channels),
	})
}
