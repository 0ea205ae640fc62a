package db

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist or is not owned by the caller.
var ErrNotFound = errors.New("not found")

// QueuedNotification is one delivery attempt-tracked row in the notification queue
type QueuedNotification struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Channel           string          `json:"channel"`
	Priority          int             `json:"priority"`
	Title             string          `json:"title"`
	Message           string          `json:"message"`
	HTMLMessage       *string         `json:"html_message,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Address           *string         `json:"address,omitempty"`
	InAppType         string          `json:"in_app_type,omitempty"`
	Category          *string         `json:"category,omitempty"`
	Status            string          `json:"status"`
	Attempts          int             `json:"attempts"`
	MaxAttempts       int             `json:"max_attempts"`
	ProcessAfter      time.Time       `json:"process_after"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	FailedAt          *time.Time      `json:"failed_at,omitempty"`
	LastError         *string         `json:"last_error,omitempty"`
	ProviderName      *string         `json:"provider_name,omitempty"`
	ProviderMessageID *string         `json:"provider_message_id,omitempty"`
	SourceType        *string         `json:"source_type,omitempty"`
	SourceID          *string         `json:"source_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// Channel constants
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelInApp = "in_app"
)

// ValidChannel reports whether ch is one of the supported delivery channels.
func ValidChannel(ch string) bool {
	switch ch {
	case ChannelPush, ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// Category constants
const (
	CategoryBooking     = "booking"
	CategoryPayment     = "payment"
	CategorySystem      = "system"
	CategoryPromotional = "promotional"
)

// In-app semantic types
const (
	InAppInfo    = "info"
	InAppSuccess = "success"
	InAppWarning = "warning"
	InAppError   = "error"
)

// ValidInAppType reports whether t is a known in-app notification type.
func ValidInAppType(t string) bool {
	switch t {
	case InAppInfo, InAppSuccess, InAppWarning, InAppError:
		return true
	}
	return false
}

// UserPreference holds per-user delivery settings. Quiet hours are local
// "HH:MM" strings interpreted in Timezone; nil start or end disables them.
type UserPreference struct {
	UserID             uuid.UUID `json:"user_id"`
	PushEnabled        bool      `json:"push_enabled"`
	EmailEnabled       bool      `json:"email_enabled"`
	SMSEnabled         bool      `json:"sms_enabled"`
	InAppEnabled       bool      `json:"in_app_enabled"`
	BookingEnabled     bool      `json:"booking_enabled"`
	PaymentEnabled     bool      `json:"payment_enabled"`
	SystemEnabled      bool      `json:"system_enabled"`
	PromotionalEnabled bool      `json:"promotional_enabled"`
	QuietHoursStart    *string   `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd      *string   `json:"quiet_hours_end,omitempty"`
	Timezone           string    `json:"timezone"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ChannelEnabled reports whether the user accepts deliveries on ch.
func (p *UserPreference) ChannelEnabled(ch string) bool {
	switch ch {
	case ChannelPush:
		return p.PushEnabled
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	case ChannelInApp:
		return p.InAppEnabled
	}
	return false
}

// CategoryEnabled reports whether the user accepts notifications of category.
// An empty category is always accepted.
func (p *UserPreference) CategoryEnabled(category string) bool {
	switch category {
	case "":
		return true
	case CategoryBooking:
		return p.BookingEnabled
	case CategoryPayment:
		return p.PaymentEnabled
	case CategorySystem:
		return p.SystemEnabled
	case CategoryPromotional:
		return p.PromotionalEnabled
	}
	return true
}

// NotificationTemplate holds per-channel content for a named notification.
type NotificationTemplate struct {
	ID           uuid.UUID `json:"id"`
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	Channels     []string  `json:"channels"`
	PushTitle    *string   `json:"push_title,omitempty"`
	PushBody     *string   `json:"push_body,omitempty"`
	EmailSubject *string   `json:"email_subject,omitempty"`
	EmailHTML    *string   `json:"email_html,omitempty"`
	EmailText    *string   `json:"email_text,omitempty"`
	SMSText      *string   `json:"sms_text,omitempty"`
	InAppTitle   *string   `json:"in_app_title,omitempty"`
	InAppMessage *string   `json:"in_app_message,omitempty"`
	InAppType    string    `json:"in_app_type"`
	Category     *string   `json:"category,omitempty"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InAppNotification is an entry in a user's notification feed
type InAppNotification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Read      bool            `json:"read"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UserContact holds the delivery addresses known for a user
type UserContact struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddressFor returns the contact address for ch, or "" when none is on file.
func (c *UserContact) AddressFor(ch string) string {
	var v *string
	switch ch {
	case ChannelPush:
		v = c.PushToken
	case ChannelEmail:
		v = c.Email
	case ChannelSMS:
		v = c.Phone
	}
	if v == nil {
		return ""
	}
	return *v
}
