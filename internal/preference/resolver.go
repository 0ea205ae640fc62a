// Package preference resolves per-user delivery preferences and evaluates
// their quiet-hours windows.
package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalithlochan/courier/internal/db"
	"go.uber.org/zap"
)

// ErrInvalid is returned by Update for malformed quiet hours or timezones.
var ErrInvalid = errors.New("invalid preference")

const (
	DefaultQuietHoursStart = "22:00"
	DefaultQuietHoursEnd   = "08:00"
)

// Store persists preferences. CreatePreferenceIfAbsent must not overwrite an
// existing row.
type Store interface {
	GetPreference(ctx context.Context, userID uuid.UUID) (*db.UserPreference, error)
	CreatePreferenceIfAbsent(ctx context.Context, p *db.UserPreference) error
	SavePreference(ctx context.Context, p *db.UserPreference) error
}

// Cache is an optional read-through cache in front of Store. Get returns
// (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.UserPreference, error)
	Set(ctx context.Context, p *db.UserPreference) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Resolver loads preferences, creating defaults on first access.
type Resolver struct {
	store           Store
	cache           Cache
	defaultTimezone string
	logger          *zap.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(store Store, cache Cache, defaultTimezone string, logger *zap.Logger) *Resolver {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &Resolver{
		store:           store,
		cache:           cache,
		defaultTimezone: defaultTimezone,
		logger:          logger,
	}
}

// Defaults returns the preferences a user gets before changing anything.
func Defaults(userID uuid.UUID, timezone string) *db.UserPreference {
	start, end := DefaultQuietHoursStart, DefaultQuietHoursEnd
	return &db.UserPreference{
		UserID:             userID,
		PushEnabled:        true,
		EmailEnabled:       true,
		SMSEnabled:         false,
		InAppEnabled:       true,
		BookingEnabled:     true,
		PaymentEnabled:     true,
		SystemEnabled:      true,
		PromotionalEnabled: false,
		QuietHoursStart:    &start,
		QuietHoursEnd:      &end,
		Timezone:           timezone,
	}
}

// Resolve returns the user's preferences. A user with no stored row gets the
// defaults persisted; concurrent first calls converge on the same row.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (*db.UserPreference, error) {
	if r.cache != nil {
		p, err := r.cache.Get(ctx, userID)
		if err != nil {
			r.logger.Warn("preference cache read failed", zap.Error(err), zap.String("user_id", userID.String()))
		} else if p != nil {
			return p, nil
		}
	}

	p, err := r.store.GetPreference(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		if err := r.store.CreatePreferenceIfAbsent(ctx, Defaults(userID, r.defaultTimezone)); err != nil {
			return nil, fmt.Errorf("create default preferences: %w", err)
		}
		// re-read: a concurrent caller may have inserted first
		p, err = r.store.GetPreference(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve preferences: %w", err)
	}

	r.fill(ctx, p)
	return p, nil
}

// Patch lists the fields Update changes; nil fields are left alone. An empty
// QuietHoursStart or QuietHoursEnd clears quiet hours.
type Patch struct {
	PushEnabled        *bool   `json:"push_enabled,omitempty"`
	EmailEnabled       *bool   `json:"email_enabled,omitempty"`
	SMSEnabled         *bool   `json:"sms_enabled,omitempty"`
	InAppEnabled       *bool   `json:"in_app_enabled,omitempty"`
	BookingEnabled     *bool   `json:"booking_enabled,omitempty"`
	PaymentEnabled     *bool   `json:"payment_enabled,omitempty"`
	SystemEnabled      *bool   `json:"system_enabled,omitempty"`
	PromotionalEnabled *bool   `json:"promotional_enabled,omitempty"`
	QuietHoursStart    *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd      *string `json:"quiet_hours_end,omitempty"`
	Timezone           *string `json:"timezone,omitempty"`
}

// Validate checks the string fields of the patch.
func (pt Patch) Validate() error {
	for name, v := range map[string]*string{
		"quiet_hours_start": pt.QuietHoursStart,
		"quiet_hours_end":   pt.QuietHoursEnd,
	} {
		if v != nil && *v != "" && !ValidClock(*v) {
			return fmt.Errorf("%w: %s must be HH:MM, got %q", ErrInvalid, name, *v)
		}
	}
	if pt.Timezone != nil && *pt.Timezone != "" {
		if _, err := time.LoadLocation(*pt.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, *pt.Timezone)
		}
	}
	return nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// Update applies patch to the user's preferences and persists the result.
func (r *Resolver) Update(ctx context.Context, userID uuid.UUID, patch Patch) (*db.UserPreference, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	p, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	setBool(&p.PushEnabled, patch.PushEnabled)
	setBool(&p.EmailEnabled, patch.EmailEnabled)
	setBool(&p.SMSEnabled, patch.SMSEnabled)
	setBool(&p.InAppEnabled, patch.InAppEnabled)
	setBool(&p.BookingEnabled, patch.BookingEnabled)
	setBool(&p.PaymentEnabled, patch.PaymentEnabled)
	setBool(&p.SystemEnabled, patch.SystemEnabled)
	setBool(&p.PromotionalEnabled, patch.PromotionalEnabled)
	if patch.QuietHoursStart != nil {
		p.QuietHoursStart = optional(*patch.QuietHoursStart)
	}
	if patch.QuietHoursEnd != nil {
		p.QuietHoursEnd = optional(*patch.QuietHoursEnd)
	}
	if patch.Timezone != nil {
		p.Timezone = *patch.Timezone
		if p.Timezone == "" {
			p.Timezone = r.defaultTimezone
		}
	}

	if err := r.store.SavePreference(ctx, p); err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, userID); err != nil {
			r.logger.Warn("preference cache invalidation failed", zap.Error(err), zap.String("user_id", userID.String()))
		}
	}

	r.logger.Info("preferences updated", zap.String("user_id", userID.String()))
	return p, nil
}

func (r *Resolver) fill(ctx context.Context, p *db.UserPreference) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, p); err != nil {
		r.logger.Warn("preference cache write failed", zap.Error(err), zap.String("user_id", p.UserID.String()))
	}
}
