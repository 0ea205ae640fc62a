package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for the notification core
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const queuedColumns = `
	id, user_id, channel, priority, title, message, html_message, payload,
	address, in_app_type, category, status, attempts, max_attempts,
	process_after, sent_at, failed_at, last_error,
	provider_name, provider_message_id, source_type, source_id,
	created_at, updated_at`

func scanQueued(row pgx.Row) (*QueuedNotification, error) {
	var n QueuedNotification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Channel,
		&n.Priority,
		&n.Title,
		&n.Message,
		&n.HTMLMessage,
		&n.Payload,
		&n.Address,
		&n.InAppType,
		&n.Category,
		&n.Status,
		&n.Attempts,
		&n.MaxAttempts,
		&n.ProcessAfter,
		&n.SentAt,
		&n.FailedAt,
		&n.LastError,
		&n.ProviderName,
		&n.ProviderMessageID,
		&n.SourceType,
		&n.SourceID,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateQueued inserts a new queued notification. CreatedAt is taken from the
// caller when set so that process_after is never earlier than creation.
func (r *Repository) CreateQueued(ctx context.Context, n *QueuedNotification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.UpdatedAt = n.CreatedAt

	query := `
		INSERT INTO notification_queue (
			id, user_id, channel, priority, title, message, html_message, payload,
			address, in_app_type, category, status, attempts, max_attempts,
			process_after, source_type, source_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		n.ID,
		n.UserID,
		n.Channel,
		n.Priority,
		n.Title,
		n.Message,
		n.HTMLMessage,
		n.Payload,
		n.Address,
		n.InAppType,
		n.Category,
		n.Status,
		n.Attempts,
		n.MaxAttempts,
		n.ProcessAfter,
		n.SourceType,
		n.SourceID,
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create queued notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("insert queued notification: %w", err)
	}

	r.logger.Debug("queued notification created",
		zap.String("notification_id", n.ID.String()),
		zap.String("user_id", n.UserID.String()),
		zap.String("channel", n.Channel),
		zap.Time("process_after", n.ProcessAfter),
	)

	return nil
}

// GetQueued retrieves a queued notification by ID
func (r *Repository) GetQueued(ctx context.Context, id uuid.UUID) (*QueuedNotification, error) {
	query := `SELECT ` + queuedColumns + ` FROM notification_queue WHERE id = $1`

	n, err := scanQueued(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: queued notification %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query queued notification: %w", err)
	}
	return n, nil
}

// ListDue returns pending notifications whose process_after has passed,
// most urgent first and FIFO within a priority.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]*QueuedNotification, error) {
	query := `SELECT ` + queuedColumns + `
		FROM notification_queue
		WHERE status = 'pending' AND process_after <= $1
		ORDER BY priority ASC, created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	var due []*QueuedNotification
	for rows.Next() {
		n, err := scanQueued(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued notification: %w", err)
		}
		due = append(due, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return due, nil
}

// ClaimQueued atomically moves a pending notification to processing. The
// update is conditioned on the attempt count that was read so a record that
// was claimed, failed and rescheduled in between is not claimed again with
// stale bookkeeping. It reports false when another caller won the claim.
func (r *Repository) ClaimQueued(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	query := `
		UPDATE notification_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND attempts = $2
	`

	result, err := r.db.Pool().Exec(ctx, query, id, attempts)
	if err != nil {
		return false, fmt.Errorf("claim queued notification: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, provider, providerMessageID string, sentAt time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'sent', sent_at = $2, provider_name = $3,
		    provider_message_id = $4, last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	return r.execTransition(ctx, "mark sent", id, query, id, sentAt, provider, providerMessageID)
}

// MarkRetry puts a failed notification back to pending until processAfter.
func (r *Repository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, lastError string, processAfter time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending', attempts = $2, last_error = $3,
		    process_after = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	return r.execTransition(ctx, "mark retry", id, query, id, attempts, lastError, processAfter)
}

// MarkFailed records that a notification exhausted its retry budget.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, failedAt time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'failed', attempts = $2, last_error = $3,
		    failed_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	return r.execTransition(ctx, "mark failed", id, query, id, attempts, lastError, failedAt)
}

func (r *Repository) execTransition(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update queued notification",
			zap.Error(err),
			zap.String("op", op),
			zap.String("notification_id", id.String()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w: processing notification %s", op, ErrNotFound, id)
	}

	return nil
}

// CancelQueued deletes a notification that has not been claimed yet.
func (r *Repository) CancelQueued(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM notification_queue WHERE id = $1 AND status = 'pending'`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("cancel queued notification: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: pending notification %s", ErrNotFound, id)
	}

	r.logger.Info("queued notification cancelled", zap.String("notification_id", id.String()))

	return nil
}
