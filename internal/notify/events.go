package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/lalithlochan/courier/internal/db"
)

// Template keys used by the event wrappers. Both are seeded by migrations.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplatePaymentReminder  = "payment_reminder"
)

// BookingConfirmedEvent is raised by the booking system once a booking is paid.
type BookingConfirmedEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	BookingID string    `json:"booking_id"`
	HotelName string    `json:"hotel_name"`
	GuestName string    `json:"guest_name"`
	CheckIn   string    `json:"check_in"`
	CheckOut  string    `json:"check_out"`
}

// PaymentReminderEvent is raised when a booking balance is coming due.
type PaymentReminderEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	BookingID string    `json:"booking_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	DueDate   string    `json:"due_date"`
}

// EventResult collects what an event wrapper enqueued.
type EventResult struct {
	InApp    EnqueueResult
	Channels []ChannelResult
}

// BookingConfirmed puts a success entry in the user's feed and sends the
// booking_confirmed template.
func (p *Processor) BookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) (EventResult, error) {
	if ev.UserID == uuid.Nil || ev.BookingID == "" {
		return EventResult{}, fmt.Errorf("%w: user_id and booking_id are required", ErrInvalidRequest)
	}

	vars := map[string]any{
		"bookingId": ev.BookingID,
		"hotelName": ev.HotelName,
		"guestName": ev.GuestName,
		"checkIn":   ev.CheckIn,
		"checkOut":  ev.CheckOut,
	}

	return p.sendEvent(ctx, ev.UserID, TemplateBookingConfirmed, vars, Request{
		UserID:     ev.UserID,
		Channel:    db.ChannelInApp,
		Title:      "Booking confirmed",
		Message:    fmt.Sprintf("Your stay at %s from %s to %s is confirmed.", ev.HotelName, ev.CheckIn, ev.CheckOut),
		Category:   db.CategoryBooking,
		InAppType:  db.InAppSuccess,
		SourceType: "booking",
		SourceID:   ev.BookingID,
	})
}

// PaymentReminder puts a warning entry in the user's feed and sends the
// payment_reminder template.
func (p *Processor) PaymentReminder(ctx context.Context, ev PaymentReminderEvent) (EventResult, error) {
	if ev.UserID == uuid.Nil || ev.BookingID == "" {
		return EventResult{}, fmt.Errorf("%w: user_id and booking_id are required", ErrInvalidRequest)
	}

	amount := strconv.FormatFloat(ev.Amount, 'f', 2, 64)
	vars := map[string]any{
		"bookingId": ev.BookingID,
		"amount":    amount,
		"currency":  ev.Currency,
		"dueDate":   ev.DueDate,
	}

	priority := 3
	return p.sendEvent(ctx, ev.UserID, TemplatePaymentReminder, vars, Request{
		UserID:     ev.UserID,
		Channel:    db.ChannelInApp,
		Title:      "Payment reminder",
		Message:    fmt.Sprintf("%s %s is due on %s for booking %s.", amount, ev.Currency, ev.DueDate, ev.BookingID),
		Priority:   &priority,
		Category:   db.CategoryPayment,
		InAppType:  db.InAppWarning,
		SourceType: "payment",
		SourceID:   ev.BookingID,
	})
}

func (p *Processor) sendEvent(ctx context.Context, userID uuid.UUID, key string, vars map[string]any, inApp Request) (EventResult, error) {
	var out EventResult
	var errs []error

	res, err := p.Enqueue(ctx, inApp)
	if err != nil {
		errs = append(errs, fmt.Errorf("in_app: %w", err))
	}
	out.InApp = res

	channels, err := p.SendFromTemplate(ctx, key, userID, vars)
	if err != nil {
		errs = append(errs, err)
	}
	out.Channels = channels

	return out, errors.Join(errs...)
}
