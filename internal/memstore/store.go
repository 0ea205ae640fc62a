// Package memstore is an in-memory implementation of the courier datastore
// operations. It is used for local runs without Postgres and by package tests.
// Records are copied on the way in and out so callers never share state with
// the store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalithlochan/courier/internal/db"
)

// Store holds every entity behind one mutex.
type Store struct {
	mu          sync.RWMutex
	queue       map[uuid.UUID]*db.QueuedNotification
	preferences map[uuid.UUID]*db.UserPreference
	templates   map[string]*db.NotificationTemplate
	inbox       map[uuid.UUID]*db.InAppNotification
	contacts    map[uuid.UUID]*db.UserContact

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		queue:       make(map[uuid.UUID]*db.QueuedNotification),
		preferences: make(map[uuid.UUID]*db.UserPreference),
		templates:   make(map[string]*db.NotificationTemplate),
		inbox:       make(map[uuid.UUID]*db.InAppNotification),
		contacts:    make(map[uuid.UUID]*db.UserContact),
		now:         time.Now,
	}
}

// SetClock replaces the clock used for bookkeeping timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func cloneQueued(n *db.QueuedNotification) *db.QueuedNotification {
	c := *n
	if n.Payload != nil {
		c.Payload = append([]byte(nil), n.Payload...)
	}
	return &c
}

func cloneInApp(n *db.InAppNotification) *db.InAppNotification {
	c := *n
	if n.Payload != nil {
		c.Payload = append([]byte(nil), n.Payload...)
	}
	return &c
}

func cloneTemplate(t *db.NotificationTemplate) *db.NotificationTemplate {
	c := *t
	c.Channels = append([]string(nil), t.Channels...)
	return &c
}

func strPtr(s string) *string { return &s }

// CreateQueued stores a new queue record.
func (s *Store) CreateQueued(_ context.Context, n *db.QueuedNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queue[n.ID]; exists {
		return fmt.Errorf("insert queued notification: duplicate id %s", n.ID)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.UpdatedAt = n.CreatedAt
	s.queue[n.ID] = cloneQueued(n)
	return nil
}

// GetQueued returns the queue record with id.
func (s *Store) GetQueued(_ context.Context, id uuid.UUID) (*db.QueuedNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.queue[id]
	if !ok {
		return nil, fmt.Errorf("%w: queued notification %s", db.ErrNotFound, id)
	}
	return cloneQueued(n), nil
}

// ListDue returns pending records due at now, ordered by priority then age.
func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]*db.QueuedNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*db.QueuedNotification
	for _, n := range s.queue {
		if n.Status == db.StatusPending && !n.ProcessAfter.After(now) {
			due = append(due, n)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	if limit >= 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*db.QueuedNotification, len(due))
	for i, n := range due {
		out[i] = cloneQueued(n)
	}
	return out, nil
}

// ClaimQueued flips a pending record with the given attempt count to processing.
func (s *Store) ClaimQueued(_ context.Context, id uuid.UUID, attempts int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.queue[id]
	if !ok || n.Status != db.StatusPending || n.Attempts != attempts {
		return false, nil
	}
	n.Status = db.StatusProcessing
	n.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) processing(op string, id uuid.UUID) (*db.QueuedNotification, error) {
	n, ok := s.queue[id]
	if !ok || n.Status != db.StatusProcessing {
		return nil, fmt.Errorf("%s: %w: processing notification %s", op, db.ErrNotFound, id)
	}
	return n, nil
}

// MarkSent records a successful delivery of a processing record.
func (s *Store) MarkSent(_ context.Context, id uuid.UUID, provider, providerMessageID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.processing("mark sent", id)
	if err != nil {
		return err
	}
	n.Status = db.StatusSent
	n.SentAt = &sentAt
	n.ProviderName = strPtr(provider)
	n.ProviderMessageID = strPtr(providerMessageID)
	n.LastError = nil
	n.UpdatedAt = s.now()
	return nil
}

// MarkRetry returns a processing record to pending until processAfter.
func (s *Store) MarkRetry(_ context.Context, id uuid.UUID, attempts int, lastError string, processAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.processing("mark retry", id)
	if err != nil {
		return err
	}
	n.Status = db.StatusPending
	n.Attempts = attempts
	n.LastError = strPtr(lastError)
	n.ProcessAfter = processAfter
	n.UpdatedAt = s.now()
	return nil
}

// MarkFailed moves a processing record to its terminal failed state.
func (s *Store) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastError string, failedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.processing("mark failed", id)
	if err != nil {
		return err
	}
	n.Status = db.StatusFailed
	n.Attempts = attempts
	n.LastError = strPtr(lastError)
	n.FailedAt = &failedAt
	n.UpdatedAt = s.now()
	return nil
}

// CancelQueued deletes a record that is still pending.
func (s *Store) CancelQueued(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.queue[id]
	if !ok || n.Status != db.StatusPending {
		return fmt.Errorf("%w: pending notification %s", db.ErrNotFound, id)
	}
	delete(s.queue, id)
	return nil
}
