package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const templateColumns = `
	id, key, name, enabled, channels,
	push_title, push_body, email_subject, email_html, email_text,
	sms_text, in_app_title, in_app_message, in_app_type, category,
	priority, created_at, updated_at`

// GetTemplateByKey retrieves a notification template by its unique key
func (r *Repository) GetTemplateByKey(ctx context.Context, key string) (*NotificationTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE key = $1`

	var t NotificationTemplate
	err := r.db.Pool().QueryRow(ctx, query, key).Scan(
		&t.ID,
		&t.Key,
		&t.Name,
		&t.Enabled,
		&t.Channels,
		&t.PushTitle,
		&t.PushBody,
		&t.EmailSubject,
		&t.EmailHTML,
		&t.EmailText,
		&t.SMSText,
		&t.InAppTitle,
		&t.InAppMessage,
		&t.InAppType,
		&t.Category,
		&t.Priority,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: template %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}

	return &t, nil
}

// SaveTemplate creates or replaces the template identified by t.Key.
func (r *Repository) SaveTemplate(ctx context.Context, t *NotificationTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	query := `
		INSERT INTO notification_templates (
			id, key, name, enabled, channels,
			push_title, push_body, email_subject, email_html, email_text,
			sms_text, in_app_title, in_app_message, in_app_type, category, priority
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			channels = EXCLUDED.channels,
			push_title = EXCLUDED.push_title,
			push_body = EXCLUDED.push_body,
			email_subject = EXCLUDED.email_subject,
			email_html = EXCLUDED.email_html,
			email_text = EXCLUDED.email_text,
			sms_text = EXCLUDED.sms_text,
			in_app_title = EXCLUDED.in_app_title,
			in_app_message = EXCLUDED.in_app_message,
			in_app_type = EXCLUDED.in_app_type,
			category = EXCLUDED.category,
			priority = EXCLUDED.priority,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		t.ID,
		t.Key,
		t.Name,
		t.Enabled,
		t.Channels,
		t.PushTitle,
		t.PushBody,
		t.EmailSubject,
		t.EmailHTML,
		t.EmailText,
		t.SMSText,
		t.InAppTitle,
		t.InAppMessage,
		t.InAppType,
		t.Category,
		t.Priority,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}

	return nil
}
