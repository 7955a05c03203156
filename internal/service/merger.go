package service

import (
	"context"
	"fmt"

	apperrors "bitespeed-identity/internal/errors"
	"bitespeed-identity/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// merge collapses the clusters in c into the one headed by the oldest primary.
// Other primaries are demoted and every secondary is repointed at the survivor.
// Rows are mutated in place to mirror what was persisted. Running it on an
// already merged cluster writes nothing.
func (s *ReconciliationService) merge(ctx context.Context, c *Cluster) (int64, []*models.Contact, error) {
	ctx, span := tracer.Start(ctx, "service.merge")
	defer span.End()

	survivor := survivingPrimary(c.Rows)
	if survivor == nil {
		return 0, nil, errNoLivePrimary(c)
	}
	primaryID := survivor.ID

	var demoted, repointed []int64
	for _, row := range c.Rows {
		if row.ID == primaryID {
			continue
		}

		if row.IsPrimary() {
			if err := s.store.UpdateLinkPrecedenceAndLink(ctx, row.ID, models.LinkPrecedenceSecondary, &primaryID); err != nil {
				return 0, nil, err
			}
			linked := primaryID
			row.LinkPrecedence = models.LinkPrecedenceSecondary
			row.LinkedID = &linked
			row.UpdatedAt = s.now()
			demoted = append(demoted, row.ID)
			continue
		}

		if row.LinkedID == nil || *row.LinkedID != primaryID {
			if err := s.store.UpdateLinkPrecedenceAndLink(ctx, row.ID, models.LinkPrecedenceSecondary, &primaryID); err != nil {
				return 0, nil, err
			}
			linked := primaryID
			row.LinkedID = &linked
			row.UpdatedAt = s.now()
			repointed = append(repointed, row.ID)
		}
	}

	if len(demoted) > 0 {
		s.merges.Add(ctx, 1)
		s.log.Info("Merged contact clusters",
			zap.Int64("primaryContactId", primaryID),
			zap.Int64s("demoted", demoted),
			zap.Int64s("repointed", repointed),
		)
	}
	span.SetAttributes(
		attribute.Int64("contact.primary_id", primaryID),
		attribute.Int("merge.demoted", len(demoted)),
		attribute.Int("merge.repointed", len(repointed)),
	)

	return primaryID, c.Rows, nil
}

// survivingPrimary is the oldest primary in rows, or nil when there is none.
// A secondary is never promoted.
func survivingPrimary(rows []*models.Contact) *models.Contact {
	for _, row := range rows {
		if row.IsPrimary() {
			return row
		}
	}
	return nil
}

// errNoLivePrimary reports a cluster whose anchors have no live primary row.
// A concurrent merge that demoted the anchor clears up on the next pass; a
// soft-deleted primary does not, and ends as a storage failure once retries run out.
func errNoLivePrimary(c *Cluster) error {
	return apperrors.NewConflict(fmt.Sprintf("contact cluster %v has no live primary", c.AnchorIDs), nil)
}
