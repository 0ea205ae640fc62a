package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetContact returns the addresses on file for a user
func (r *Repository) GetContact(ctx context.Context, userID uuid.UUID) (*UserContact, error) {
	query := `
		SELECT user_id, email, phone, push_token, updated_at
		FROM user_contacts
		WHERE user_id = $1
	`

	var c UserContact
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&c.UserID,
		&c.Email,
		&c.Phone,
		&c.PushToken,
		&c.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: contact for %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}

	return &c, nil
}

// SaveContact creates or replaces the addresses on file for c.UserID
func (r *Repository) SaveContact(ctx context.Context, c *UserContact) error {
	query := `
		INSERT INTO user_contacts (user_id, email, phone, push_token)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			push_token = EXCLUDED.push_token,
			updated_at = NOW()
		RETURNING updated_at
	`

	if err := r.db.Pool().QueryRow(ctx, query, c.UserID, c.Email, c.Phone, c.PushToken).Scan(&c.UpdatedAt); err != nil {
		return fmt.Errorf("save contact: %w", err)
	}

	return nil
}
