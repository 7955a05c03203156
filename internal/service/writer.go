package service

import (
	"context"

	"bitespeed-identity/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ObservedSet holds the distinct emails and phone numbers of a cluster in
// first-seen order
type ObservedSet struct {
	Emails       []string
	PhoneNumbers []string

	emails map[string]bool
	phones map[string]bool
}

func newObservedSet() *ObservedSet {
	return &ObservedSet{
		Emails:       []string{},
		PhoneNumbers: []string{},
		emails:       make(map[string]bool),
		phones:       make(map[string]bool),
	}
}

// observe collects the values of rows, which must already be sorted oldest first
func observe(rows []*models.Contact) *ObservedSet {
	o := newObservedSet()
	for _, c := range rows {
		o.add(c)
	}
	return o
}

func (o *ObservedSet) add(c *models.Contact) {
	if c.Email != nil && *c.Email != "" && !o.emails[*c.Email] {
		o.emails[*c.Email] = true
		o.Emails = append(o.Emails, *c.Email)
	}
	if c.PhoneNumber != nil && *c.PhoneNumber != "" && !o.phones[*c.PhoneNumber] {
		o.phones[*c.PhoneNumber] = true
		o.PhoneNumbers = append(o.PhoneNumbers, *c.PhoneNumber)
	}
}

// HasEmail reports whether email was seen
func (o *ObservedSet) HasEmail(email string) bool { return o.emails[email] }

// HasPhoneNumber reports whether phone was seen
func (o *ObservedSet) HasPhoneNumber(phone string) bool { return o.phones[phone] }

// contributesNew reports whether id carries an email or phone the set lacks
func (o *ObservedSet) contributesNew(id Identity) bool {
	if id.Email != nil && !o.HasEmail(*id.Email) {
		return true
	}
	if id.PhoneNumber != nil && !o.HasPhoneNumber(*id.PhoneNumber) {
		return true
	}
	return false
}

// write inserts a contact only when the request contributes something unseen.
// With no resolved primary the row becomes a new PRIMARY; otherwise a SECONDARY
// linked to primaryID. Returns nil when nothing was inserted.
func (s *ReconciliationService) write(ctx context.Context, id Identity, observed *ObservedSet, primaryID *int64) (*models.Contact, error) {
	ctx, span := tracer.Start(ctx, "service.write")
	defer span.End()

	if primaryID == nil {
		c, err := s.store.InsertContact(ctx, id.Email, id.PhoneNumber, models.LinkPrecedencePrimary, nil)
		if err != nil {
			return nil, err
		}
		s.inserted.Add(ctx, 1, metric.WithAttributes(attribute.String("link_precedence", string(c.LinkPrecedence))))
		span.SetAttributes(attribute.Int64("contact.inserted_id", c.ID))
		return c, nil
	}

	if !observed.contributesNew(id) {
		return nil, nil
	}

	linked := *primaryID
	c, err := s.store.InsertContact(ctx, id.Email, id.PhoneNumber, models.LinkPrecedenceSecondary, &linked)
	if err != nil {
		return nil, err
	}
	s.inserted.Add(ctx, 1, metric.WithAttributes(attribute.String("link_precedence", string(c.LinkPrecedence))))
	span.SetAttributes(attribute.Int64("contact.inserted_id", c.ID))
	return c, nil
}
