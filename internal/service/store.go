package service

import (
	"context"

	"bitespeed-identity/internal/models"
)

// ContactStore is the persistence the resolver needs. Implementations return
// *errors.Error values of kind storage_failure, or conflict for a duplicate insert.
type ContactStore interface {
	// FindByEmailOrPhone returns rows matching either field, oldest first. Nil fields match nothing.
	FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]*models.Contact, error)
	// FindByIDsOrLinkedIDs returns rows whose id or linked_id is in ids.
	FindByIDsOrLinkedIDs(ctx context.Context, ids []int64) ([]*models.Contact, error)
	UpdateLinkPrecedenceAndLink(ctx context.Context, id int64, precedence models.LinkPrecedence, linkedID *int64) error
	InsertContact(ctx context.Context, email, phoneNumber *string, precedence models.LinkPrecedence, linkedID *int64) (*models.Contact, error)
}
