package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lalithlochan/courier/internal/db"
)

// GetPreference returns the stored preferences of userID.
func (s *Store) GetPreference(_ context.Context, userID uuid.UUID) (*db.UserPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.preferences[userID]
	if !ok {
		return nil, fmt.Errorf("%w: preferences for %s", db.ErrNotFound, userID)
	}
	c := *p
	return &c, nil
}

// CreatePreferenceIfAbsent stores p unless the user already has preferences.
func (s *Store) CreatePreferenceIfAbsent(_ context.Context, p *db.UserPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.preferences[p.UserID]; ok {
		return nil
	}
	now := s.now()
	c := *p
	c.CreatedAt, c.UpdatedAt = now, now
	s.preferences[p.UserID] = &c
	return nil
}

// SavePreference creates or replaces the preferences of p.UserID.
func (s *Store) SavePreference(_ context.Context, p *db.UserPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p.CreatedAt = now
	if existing, ok := s.preferences[p.UserID]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	p.UpdatedAt = now
	c := *p
	s.preferences[p.UserID] = &c
	return nil
}

// GetTemplateByKey returns the template stored under key.
func (s *Store) GetTemplateByKey(_ context.Context, key string) (*db.NotificationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[key]
	if !ok {
		return nil, fmt.Errorf("%w: template %q", db.ErrNotFound, key)
	}
	return cloneTemplate(t), nil
}

// SaveTemplate creates or replaces the template stored under t.Key.
func (s *Store) SaveTemplate(_ context.Context, t *db.NotificationTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.templates[t.Key]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
	} else {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.templates[t.Key] = cloneTemplate(t)
	return nil
}

// GetContact returns the addresses on file for userID.
func (s *Store) GetContact(_ context.Context, userID uuid.UUID) (*db.UserContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: contact for %s", db.ErrNotFound, userID)
	}
	cp := *c
	return &cp, nil
}

// SaveContact creates or replaces the addresses on file for c.UserID.
func (s *Store) SaveContact(_ context.Context, c *db.UserContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.UpdatedAt = s.now()
	cp := *c
	s.contacts[c.UserID] = &cp
	return nil
}

// CreateInApp stores a feed entry.
func (s *Store) CreateInApp(_ context.Context, n *db.InAppNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.UpdatedAt = n.CreatedAt
	s.inbox[n.ID] = cloneInApp(n)
	return nil
}

// ListInApp returns a page of userID's feed, newest first.
func (s *Store) ListInApp(_ context.Context, userID uuid.UUID, limit, offset int) ([]*db.InAppNotification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*db.InAppNotification
	for _, n := range s.inbox {
		if n.UserID == userID {
			owned = append(owned, n)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID.String() > owned[j].ID.String()
	})

	if offset >= len(owned) {
		return []*db.InAppNotification{}, nil
	}
	owned = owned[offset:]
	if len(owned) > limit {
		owned = owned[:limit]
	}

	out := make([]*db.InAppNotification, len(owned))
	for i, n := range owned {
		out[i] = cloneInApp(n)
	}
	return out, nil
}

// CountInApp returns the total and unread sizes of userID's feed.
func (s *Store) CountInApp(_ context.Context, userID uuid.UUID) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, unread int
	for _, n := range s.inbox {
		if n.UserID != userID {
			continue
		}
		total++
		if !n.Read {
			unread++
		}
	}
	return total, unread, nil
}

// MarkInAppRead marks one of userID's entries read.
func (s *Store) MarkInAppRead(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.inbox[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("%w: in-app notification %s", db.ErrNotFound, id)
	}
	now := s.now()
	if n.ReadAt == nil {
		n.ReadAt = &now
	}
	n.Read = true
	n.UpdatedAt = now
	return nil
}

// MarkAllInAppRead marks every unread entry of userID read.
func (s *Store) MarkAllInAppRead(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var changed int64
	for _, n := range s.inbox {
		if n.UserID != userID || n.Read {
			continue
		}
		readAt := now
		n.Read = true
		n.ReadAt = &readAt
		n.UpdatedAt = now
		changed++
	}
	return changed, nil
}

// DeleteInApp removes one of userID's entries.
func (s *Store) DeleteInApp(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.inbox[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("%w: in-app notification %s", db.ErrNotFound, id)
	}
	delete(s.inbox, id)
	return nil
}
