package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "bitespeed-identity/internal/errors"
	"bitespeed-identity/internal/models"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const contactColumns = `id, phone_number, email, linked_id, link_precedence, created_at, updated_at, deleted_at`

// ContactStore persists contacts through database/sql
type ContactStore struct {
	db  *DB
	now func() time.Time
}

// NewContactStore creates a store on top of db
func NewContactStore(db *DB) *ContactStore {
	return &ContactStore{db: db, now: time.Now}
}

// FindByEmailOrPhone returns live contacts whose email or phone matches, oldest first.
// A nil field matches nothing; both nil returns no rows.
func (s *ContactStore) FindByEmailOrPhone(ctx context.Context, email, phoneNumber *string) ([]*models.Contact, error) {
	var conds []string
	var args []interface{}

	if email != nil {
		args = append(args, *email)
		conds = append(conds, fmt.Sprintf("email = $%d", len(args)))
	}
	if phoneNumber != nil {
		args = append(args, *phoneNumber)
		conds = append(conds, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	if len(conds) == 0 {
		return nil, nil
	}

	query := `SELECT ` + contactColumns + `
			  FROM contacts
			  WHERE (` + strings.Join(conds, " OR ") + `) AND deleted_at IS NULL
			  ORDER BY created_at ASC, id ASC`

	contacts, err := s.queryContacts(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageFailure("find contacts by email or phone", err)
	}
	return contacts, nil
}

// FindByIDsOrLinkedIDs returns every live contact whose id or linked_id is in ids, oldest first
func (s *ContactStore) FindByIDsOrLinkedIDs(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// Placeholders are not reused so numbering stays positional on SQLite too
	idPlaceholders := make([]string, len(ids))
	linkedPlaceholders := make([]string, len(ids))
	args := make([]interface{}, 0, 2*len(ids))
	for i, id := range ids {
		idPlaceholders[i] = fmt.Sprintf("$%d", i+1)
		linkedPlaceholders[i] = fmt.Sprintf("$%d", len(ids)+i+1)
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}

	query := `SELECT ` + contactColumns + `
			  FROM contacts
			  WHERE (id IN (` + strings.Join(idPlaceholders, ", ") + `)
			     OR linked_id IN (` + strings.Join(linkedPlaceholders, ", ") + `))
			    AND deleted_at IS NULL
			  ORDER BY created_at ASC, id ASC`

	contacts, err := s.queryContacts(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageFailure("find contacts by ids", err)
	}
	return contacts, nil
}

// UpdateLinkPrecedenceAndLink sets a contact's link_precedence and linked_id and bumps updated_at.
// The statement touches a single row and is safe to retry.
func (s *ContactStore) UpdateLinkPrecedenceAndLink(ctx context.Context, id int64, precedence models.LinkPrecedence, linkedID *int64) error {
	query := `UPDATE contacts SET link_precedence = $1, linked_id = $2, updated_at = $3 WHERE id = $4`
	if _, err := s.db.Conn.ExecContext(ctx, query, string(precedence), nullInt64(linkedID), s.now().UTC(), id); err != nil {
		return apperrors.NewStorageFailure(fmt.Sprintf("update contact %d", id), err)
	}
	return nil
}

// InsertContact creates a contact and returns it with its assigned id
func (s *ContactStore) InsertContact(ctx context.Context, email, phoneNumber *string, precedence models.LinkPrecedence, linkedID *int64) (*models.Contact, error) {
	query := `INSERT INTO contacts (phone_number, email, linked_id, link_precedence, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	now := s.now().UTC()
	var id int64
	err := s.db.Conn.QueryRowContext(ctx, query,
		nullString(phoneNumber), nullString(email), nullInt64(linkedID), string(precedence), now, now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflict("insert contact", err)
		}
		return nil, apperrors.NewStorageFailure("insert contact", err)
	}

	return &models.Contact{
		ID:             id,
		PhoneNumber:    phoneNumber,
		Email:          email,
		LinkedID:       linkedID,
		LinkPrecedence: precedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// queryContacts executes a query and returns contacts
func (s *ContactStore) queryContacts(ctx context.Context, query string, args ...interface{}) ([]*models.Contact, error) {
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		c := &models.Contact{}
		var phone, email sql.NullString
		var linkedID sql.NullInt64
		var precedence string
		var deletedAt sql.NullTime

		err := rows.Scan(&c.ID, &phone, &email, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
		if err != nil {
			return nil, err
		}

		c.LinkPrecedence = models.LinkPrecedence(precedence)
		if !c.LinkPrecedence.Valid() {
			return nil, fmt.Errorf("contact %d has unknown link_precedence %q", c.ID, precedence)
		}
		if phone.Valid {
			c.PhoneNumber = &phone.String
		}
		if email.Valid {
			c.Email = &email.String
		}
		if linkedID.Valid {
			c.LinkedID = &linkedID.Int64
		}
		if deletedAt.Valid {
			c.DeletedAt = &deletedAt.Time
		}

		contacts = append(contacts, c)
	}

	return contacts, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
