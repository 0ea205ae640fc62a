package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateInApp inserts a feed entry for n.UserID
func (r *Repository) CreateInApp(ctx context.Context, n *InAppNotification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.UpdatedAt = n.CreatedAt

	query := `
		INSERT INTO in_app_notifications (
			id, user_id, title, message, type, payload, read, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		n.ID,
		n.UserID,
		n.Title,
		n.Message,
		n.Type,
		n.Payload,
		n.Read,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create in-app notification",
			zap.Error(err),
			zap.String("user_id", n.UserID.String()),
		)
		return fmt.Errorf("insert in-app notification: %w", err)
	}

	return nil
}

// ListInApp returns a page of a user's feed, newest first
func (r *Repository) ListInApp(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*InAppNotification, error) {
	query := `
		SELECT id, user_id, title, message, type, payload, read, read_at, created_at, updated_at
		FROM in_app_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query in-app notifications: %w", err)
	}
	defer rows.Close()

	items := make([]*InAppNotification, 0, limit)
	for rows.Next() {
		var n InAppNotification
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Title,
			&n.Message,
			&n.Type,
			&n.Payload,
			&n.Read,
			&n.ReadAt,
			&n.CreatedAt,
			&n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan in-app notification: %w", err)
		}
		items = append(items, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return items, nil
}

// CountInApp returns the total and unread sizes of a user's feed in one read.
func (r *Repository) CountInApp(ctx context.Context, userID uuid.UUID) (total int, unread int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT read)
		FROM in_app_notifications
		WHERE user_id = $1
	`

	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&total, &unread); err != nil {
		return 0, 0, fmt.Errorf("count in-app notifications: %w", err)
	}

	return total, unread, nil
}

// MarkInAppRead marks one of the user's entries read. Marking an entry that
// is already read succeeds; a missing or foreign id returns ErrNotFound.
func (r *Repository) MarkInAppRead(ctx context.Context, userID, id uuid.UUID) error {
	query := `
		UPDATE in_app_notifications
		SET read = TRUE, read_at = COALESCE(read_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("mark in-app notification read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: in-app notification %s", ErrNotFound, id)
	}

	return nil
}

// MarkAllInAppRead marks every unread entry of the user read and returns how many changed.
func (r *Repository) MarkAllInAppRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE in_app_notifications
		SET read = TRUE, read_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND NOT read
	`

	result, err := r.db.Pool().Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all in-app notifications read: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteInApp removes one of the user's entries.
func (r *Repository) DeleteInApp(ctx context.Context, userID, id uuid.UUID) error {
	query := `DELETE FROM in_app_notifications WHERE id = $1 AND user_id = $2`

	result, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete in-app notification: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: in-app notification %s", ErrNotFound, id)
	}

	return nil
}
