package service

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "bitespeed-identity/internal/errors"
	"bitespeed-identity/internal/models"
)

// memStore is an in-memory ContactStore with failure injection
type memStore struct {
	mu      sync.Mutex
	rows    map[int64]*models.Contact
	nextID  int64
	clock   time.Time
	updates int
	inserts int

	insertErrs []error
	updateErr  error
	findErr    error
}

func newMemStore() *memStore {
	return &memStore{
		rows:  make(map[int64]*models.Contact),
		clock: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func clone(c *models.Contact) *models.Contact {
	cp := *c
	if c.Email != nil {
		v := *c.Email
		cp.Email = &v
	}
	if c.PhoneNumber != nil {
		v := *c.PhoneNumber
		cp.PhoneNumber = &v
	}
	if c.LinkedID != nil {
		v := *c.LinkedID
		cp.LinkedID = &v
	}
	return &cp
}

func (m *memStore) sorted(match func(*models.Contact) bool) []*models.Contact {
	var out []*models.Contact
	for _, c := range m.rows {
		if c.DeletedAt == nil && match(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *memStore) FindByEmailOrPhone(_ context.Context, email, phone *string) ([]*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, apperrors.NewStorageFailure("find", m.findErr)
	}
	return m.sorted(func(c *models.Contact) bool {
		return (email != nil && c.Email != nil && *c.Email == *email) ||
			(phone != nil && c.PhoneNumber != nil && *c.PhoneNumber == *phone)
	}), nil
}

func (m *memStore) FindByIDsOrLinkedIDs(_ context.Context, ids []int64) ([]*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int64]bool)
	for _, id := range ids {
		set[id] = true
	}
	return m.sorted(func(c *models.Contact) bool {
		return set[c.ID] || (c.LinkedID != nil && set[*c.LinkedID])
	}), nil
}

func (m *memStore) UpdateLinkPrecedenceAndLink(_ context.Context, id int64, precedence models.LinkPrecedence, linkedID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return apperrors.NewStorageFailure("update", m.updateErr)
	}
	c := m.rows[id]
	c.LinkPrecedence = precedence
	c.LinkedID = nil
	if linkedID != nil {
		v := *linkedID
		c.LinkedID = &v
	}
	c.UpdatedAt = m.tick()
	m.updates++
	return nil
}

func (m *memStore) InsertContact(_ context.Context, email, phone *string, precedence models.LinkPrecedence, linkedID *int64) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.insertErrs) > 0 {
		err := m.insertErrs[0]
		m.insertErrs = m.insertErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	for _, c := range m.rows {
		if c.DeletedAt == nil && deref(c.Email) == deref(email) && deref(c.PhoneNumber) == deref(phone) {
			return nil, apperrors.NewConflict("insert", nil)
		}
	}

	m.nextID++
	now := m.tick()
	c := &models.Contact{
		ID:             m.nextID,
		Email:          email,
		PhoneNumber:    phone,
		LinkPrecedence: precedence,
		LinkedID:       linkedID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.rows[c.ID] = clone(c)
	m.inserts++
	return c, nil
}

// get returns a copy of a stored row
func (m *memStore) get(id int64) *models.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.rows[id])
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func str(s string) *string { return &s }
