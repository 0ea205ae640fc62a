package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// GetPreference retrieves the stored preferences of a user.
func (r *Repository) GetPreference(ctx context.Context, userID uuid.UUID) (*UserPreference, error) {
	query := `
		SELECT
			user_id, push_enabled, email_enabled, sms_enabled, in_app_enabled,
			booking_enabled, payment_enabled, system_enabled, promotional_enabled,
			quiet_hours_start, quiet_hours_end, timezone, created_at, updated_at
		FROM user_notification_preferences
		WHERE user_id = $1
	`

	var p UserPreference
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.PushEnabled,
		&p.EmailEnabled,
		&p.SMSEnabled,
		&p.InAppEnabled,
		&p.BookingEnabled,
		&p.PaymentEnabled,
		&p.SystemEnabled,
		&p.PromotionalEnabled,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&p.Timezone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: preferences for %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	return &p, nil
}

// CreatePreferenceIfAbsent inserts p unless the user already has a row.
// Concurrent first access for the same user therefore never fails and never
// overwrites the row that won.
func (r *Repository) CreatePreferenceIfAbsent(ctx context.Context, p *UserPreference) error {
	query := `
		INSERT INTO user_notification_preferences (
			user_id, push_enabled, email_enabled, sms_enabled, in_app_enabled,
			booking_enabled, payment_enabled, system_enabled, promotional_enabled,
			quiet_hours_start, quiet_hours_end, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		p.UserID,
		p.PushEnabled,
		p.EmailEnabled,
		p.SMSEnabled,
		p.InAppEnabled,
		p.BookingEnabled,
		p.PaymentEnabled,
		p.SystemEnabled,
		p.PromotionalEnabled,
		p.QuietHoursStart,
		p.QuietHoursEnd,
		p.Timezone,
	)
	if err != nil {
		return fmt.Errorf("insert default preferences: %w", err)
	}

	if result.RowsAffected() == 1 {
		r.logger.Info("default preferences created", zap.String("user_id", p.UserID.String()))
	}

	return nil
}

// SavePreference writes every field of p, creating the row if needed.
func (r *Repository) SavePreference(ctx context.Context, p *UserPreference) error {
	query := `
		INSERT INTO user_notification_preferences (
			user_id, push_enabled, email_enabled, sms_enabled, in_app_enabled,
			booking_enabled, payment_enabled, system_enabled, promotional_enabled,
			quiet_hours_start, quiet_hours_end, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			push_enabled = EXCLUDED.push_enabled,
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			in_app_enabled = EXCLUDED.in_app_enabled,
			booking_enabled = EXCLUDED.booking_enabled,
			payment_enabled = EXCLUDED.payment_enabled,
			system_enabled = EXCLUDED.system_enabled,
			promotional_enabled = EXCLUDED.promotional_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		p.UserID,
		p.PushEnabled,
		p.EmailEnabled,
		p.SMSEnabled,
		p.InAppEnabled,
		p.BookingEnabled,
		p.PaymentEnabled,
		p.SystemEnabled,
		p.PromotionalEnabled,
		p.QuietHoursStart,
		p.QuietHoursEnd,
		p.Timezone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}

	return nil
}
