package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

// InboxStore persists in-app feed entries. Every operation is scoped to the
// owning user; a foreign id behaves exactly like a missing one.
type InboxStore interface {
	CreateInApp(ctx context.Context, n *db.InAppNotification) error
	ListInApp(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.InAppNotification, error)
	CountInApp(ctx context.Context, userID uuid.UUID) (total int, unread int, err error)
	MarkInAppRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllInAppRead(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteInApp(ctx context.Context, userID, id uuid.UUID) error
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one page of a user's feed, newest first. Total and Unread are
// counted separately from the page and may drift under concurrent writes.
type Page struct {
	Items    []*db.InAppNotification `json:"items"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
	Total    int                     `json:"total"`
	Unread   int                     `json:"unread"`
}

// Inbox is the user-facing side of the in-app feed.
type Inbox struct {
	store  InboxStore
	logger *zap.Logger
}

func NewInbox(store InboxStore, logger *zap.Logger) *Inbox {
	return &Inbox{store: store, logger: logger}
}

// List returns page (1-based) of the user's feed. Out-of-range paging
// arguments are clamped rather than rejected.
func (i *Inbox) List(ctx context.Context, userID uuid.UUID, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	items, err := i.store.ListInApp(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list in-app notifications: %w", err)
	}
	total, unread, err := i.store.CountInApp(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count in-app notifications: %w", err)
	}
	if items == nil {
		items = []*db.InAppNotification{}
	}

	return &Page{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Unread:   unread,
	}, nil
}

// MarkRead marks one entry read. Marking an already read entry succeeds.
func (i *Inbox) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return i.store.MarkInAppRead(ctx, userID, id)
}

// MarkAllRead marks every unread entry read and returns how many changed.
func (i *Inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := i.store.MarkAllInAppRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all in-app notifications read: %w", err)
	}
	i.logger.Debug("inbox marked read",
		zap.String("user_id", userID.String()),
		zap.Int64("count", n),
	)
	return n, nil
}

func (i *Inbox) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return i.store.DeleteInApp(ctx, userID, id)
}
