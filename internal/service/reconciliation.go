package service

import (
	"context"
	"errors"
	"time"

	apperrors "bitespeed-identity/internal/errors"
	"bitespeed-identity/internal/lock"
	"bitespeed-identity/internal/logger"
	"bitespeed-identity/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const instrumentationName = "bitespeed-identity/internal/service"

var tracer = otel.Tracer(instrumentationName)

const (
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 3
)

// ReconciliationService handles identity reconciliation logic
type ReconciliationService struct {
	store       ContactStore
	locker      lock.Locker
	log         *zap.Logger
	timeout     time.Duration
	maxAttempts int
	now         func() time.Time

	inserted metric.Int64Counter
	merges   metric.Int64Counter
}

// Option configures a ReconciliationService
type Option func(*ReconciliationService)

// WithLocker sets the per-identity locker; the default is an in-process LocalLocker
func WithLocker(l lock.Locker) Option {
	return func(s *ReconciliationService) { s.locker = l }
}

// WithTimeout bounds a whole Identify call, lock wait included
func WithTimeout(d time.Duration) Option {
	return func(s *ReconciliationService) { s.timeout = d }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *ReconciliationService) { s.log = l }
}

// WithMaxAttempts sets how many times the pipeline runs when an insert conflicts
func WithMaxAttempts(n int) Option {
	return func(s *ReconciliationService) { s.maxAttempts = n }
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(store ContactStore, opts ...Option) *ReconciliationService {
	s := &ReconciliationService{
		store:       store,
		locker:      lock.NewLocalLocker(),
		log:         logger.Get(),
		timeout:     defaultTimeout,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if s.inserted, err = meter.Int64Counter("contacts.inserted",
		metric.WithDescription("Contacts inserted by reconciliation")); err != nil {
		s.inserted, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("contacts.inserted")
	}
	if s.merges, err = meter.Int64Counter("contacts.merges",
		metric.WithDescription("Cluster merges performed")); err != nil {
		s.merges, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("contacts.merges")
	}

	return s
}

// Identify resolves id to its consolidated contact, creating or merging clusters as needed.
// The whole sequence runs under the identity's locks and within the service timeout.
func (s *ReconciliationService) Identify(ctx context.Context, id Identity) (*models.IdentifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "service.Identify")
	defer span.End()

	release, err := s.locker.Lock(ctx, lock.IdentityKeys(id.Email, id.PhoneNumber)...)
	if err != nil {
		span.SetStatus(codes.Error, "lock")
		return nil, apperrors.NewStorageFailure("acquire identity lock", err)
	}
	defer release()

	for attempt := 1; ; attempt++ {
		resp, err := s.resolve(ctx, id)
		if err == nil {
			span.SetAttributes(
				attribute.Int64("contact.primary_id", resp.Contact.PrimaryContactID),
				attribute.Int("attempts", attempt),
			)
			return resp, nil
		}

		// A conflict means another writer inserted the same pair between our
		// read and write; a fresh pass will observe it.
		if errors.Is(err, apperrors.ErrConflict) && attempt < s.maxAttempts {
			s.log.Debug("Retrying identify after insert conflict", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.KindOf(err)))
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.NewStorageFailure("identify kept conflicting", err)
		}
		return nil, err
	}
}

// resolve is one locate, merge, write pass
func (s *ReconciliationService) resolve(ctx context.Context, id Identity) (*models.IdentifyResponse, error) {
	cluster, err := s.locate(ctx, id)
	if err != nil {
		return nil, err
	}

	var primaryID *int64
	rows := cluster.Rows
	switch {
	case len(cluster.AnchorIDs) >= 2:
		merged, mergedRows, err := s.merge(ctx, cluster)
		if err != nil {
			return nil, err
		}
		primaryID, rows = &merged, mergedRows
	case len(cluster.AnchorIDs) == 1:
		survivor := survivingPrimary(rows)
		if survivor == nil {
			return nil, errNoLivePrimary(cluster)
		}
		primaryID = &survivor.ID
	}

	observed := observe(rows)
	created, err := s.write(ctx, id, observed, primaryID)
	if err != nil {
		return nil, err
	}

	if created != nil {
		rows = append(rows, created)
		observed.add(created)
		if primaryID == nil {
			primaryID = &created.ID
		}
	}

	return buildResponse(*primaryID, rows, observed), nil
}
