package service

import (
	"context"
	"sort"

	"bitespeed-identity/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// Cluster is every row of every cluster touched by a request
type Cluster struct {
	// Rows sorted by CreatedAt then ID, oldest first
	Rows []*models.Contact
	// AnchorIDs are the distinct primaries the seed rows resolved to, in seed order
	AnchorIDs []int64
}

// Empty reports whether the request matched nothing
func (c *Cluster) Empty() bool {
	return len(c.Rows) == 0
}

// locate finds the seed rows for the identity, resolves them to their primaries
// and fetches the full clusters behind those primaries
func (s *ReconciliationService) locate(ctx context.Context, id Identity) (*Cluster, error) {
	ctx, span := tracer.Start(ctx, "service.locate")
	defer span.End()

	seeds, err := s.store.FindByEmailOrPhone(ctx, id.Email, id.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return &Cluster{}, nil
	}

	anchors := anchorIDs(seeds)
	rows, err := s.store.FindByIDsOrLinkedIDs(ctx, anchors)
	if err != nil {
		return nil, err
	}
	sortContacts(rows)

	span.SetAttributes(
		attribute.Int("cluster.seeds", len(seeds)),
		attribute.Int("cluster.anchors", len(anchors)),
		attribute.Int("cluster.rows", len(rows)),
	)
	return &Cluster{Rows: rows, AnchorIDs: anchors}, nil
}

// anchorIDs maps each seed to its primary (itself, or its linkedId) and dedupes
func anchorIDs(seeds []*models.Contact) []int64 {
	seen := make(map[int64]bool)
	var anchors []int64
	for _, c := range seeds {
		a := c.AnchorID()
		if seen[a] {
			continue
		}
		seen[a] = true
		anchors = append(anchors, a)
	}
	return anchors
}

// sortContacts orders by creation time; ids break ties so the result is deterministic
func sortContacts(contacts []*models.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].ID < contacts[j].ID
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}
