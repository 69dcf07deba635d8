package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/iho/tripledger/internal/domain"
)

// RemoteLedgerService is the authoritative side of synchronization. It
// applies pushes last-write-wins, never resurrects deleted records and
// serves changes in revision order.
type RemoteLedgerService struct {
	txManager TransactionManager
	records   RemoteRecordRepository
	retrier   Retrier
	notifier  ChangeNotifier
	logger    zerolog.Logger
	pageSize  int
}

// RemoteLedgerServiceConfig configures a RemoteLedgerService.
type RemoteLedgerServiceConfig struct {
	TxManager TransactionManager
	Records   RemoteRecordRepository
	Retrier   Retrier        // optional
	Notifier  ChangeNotifier // optional
	Logger    zerolog.Logger
	PageSize  int
}

// NewRemoteLedgerService creates a new RemoteLedgerService.
func NewRemoteLedgerService(cfg RemoteLedgerServiceConfig) *RemoteLedgerService {
	return &RemoteLedgerService{
		txManager: cfg.TxManager,
		records:   cfg.Records,
		retrier:   cfg.Retrier,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		pageSize:  domain.ValidatePagination(cfg.PageSize),
	}
}

// Push stores a record version if it is strictly newer than the stored one.
// Deletions always apply; a deleted record stays deleted, and a record first
// seen after its trip was deleted is refused.
func (s *RemoteLedgerService) Push(ctx context.Context, record domain.SyncRecord) (domain.PushOutcome, error) {
	if err := record.Validate(); err != nil {
		return domain.PushOutcome{}, err
	}
	record.LastModified = domain.Timestamp(record.LastModified)

	var (
		outcome domain.PushOutcome
		changed bool
	)
	op := func() error {
		var err error
		outcome, changed, err = s.push(ctx, record)
		return err
	}

	var err error
	if s.retrier != nil {
		err = s.retrier.Retry(ctx, op)
	} else {
		err = op()
	}
	if err != nil {
		return domain.PushOutcome{}, domain.WrapDependency("records.push", err)
	}

	if changed && s.notifier != nil {
		if err := s.notifier.Publish(ctx, record.TripID); err != nil {
			s.logger.Warn().Err(err).Str("trip_id", record.TripID).Msg("failed to publish change notification")
		}
	}

	return outcome, nil
}

func (s *RemoteLedgerService) push(ctx context.Context, record domain.SyncRecord) (domain.PushOutcome, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return domain.PushOutcome{}, false, err
	}
	defer tx.Rollback(ctx)

	if err := s.records.LockTrip(ctx, tx, record.TripID); err != nil {
		return domain.PushOutcome{}, false, err
	}

	existing, err := s.records.GetForUpdate(ctx, tx, record.Kind, record.ID)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return domain.PushOutcome{}, false, err
	}
	if existing != nil && existing.TripID != record.TripID {
		return domain.PushOutcome{}, false, fmt.Errorf("%w: %s %s belongs to another trip", domain.ErrInvalidRecord, record.Kind, record.ID)
	}

	if existing == nil && !record.Deleted && record.Kind != domain.KindTrip {
		tripDeleted, err := s.tripDeleted(ctx, tx, record.TripID)
		if err != nil {
			return domain.PushOutcome{}, false, err
		}
		if tripDeleted {
			return domain.PushOutcome{Status: domain.PushDeleted}, false, nil
		}
	}

	switch {
	case existing != nil && existing.Deleted:
		return domain.PushOutcome{Status: domain.PushDeleted}, false, nil

	case record.Deleted:
		if err := s.records.Upsert(ctx, tx, record); err != nil {
			return domain.PushOutcome{}, false, err
		}
		if record.Kind == domain.KindTrip {
			if err := s.records.DeleteTrip(ctx, tx, record.TripID, record.LastModified); err != nil {
				return domain.PushOutcome{}, false, err
			}
		}

	case existing != nil && existing.LastModified.Equal(record.LastModified):
		return domain.PushOutcome{Status: domain.PushApplied}, false, nil

	case existing != nil && existing.LastModified.After(record.LastModified):
		return domain.PushOutcome{Status: domain.PushStale, Current: existing}, false, nil

	default:
		if err := s.records.Upsert(ctx, tx, record); err != nil {
			return domain.PushOutcome{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.PushOutcome{}, false, err
	}

	return domain.PushOutcome{Status: domain.PushApplied}, true, nil
}

// tripDeleted reports whether the remote holds a deletion of the trip.
func (s *RemoteLedgerService) tripDeleted(ctx context.Context, tx Transaction, tripID string) (bool, error) {
	trip, err := s.records.GetForUpdate(ctx, tx, domain.KindTrip, tripID)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return trip.Deleted, nil
}

// Pull returns one page of the trip's changes after cursor. Deleted records
// are returned as delete markers.
func (s *RemoteLedgerService) Pull(ctx context.Context, tripID, cursor string) (*domain.PullResult, error) {
	return s.PullPage(ctx, tripID, cursor, s.pageSize)
}

// PullPage is Pull with a caller-chosen page size, clamped to the allowed
// range. A limit of zero or less uses the configured page size.
func (s *RemoteLedgerService) PullPage(ctx context.Context, tripID, cursor string, limit int) (*domain.PullResult, error) {
	if err := domain.ValidateID(tripID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	limit = domain.ValidatePagination(limit)

	changes, next, err := s.records.ListChanges(ctx, tripID, cursor, limit)
	if err != nil {
		return nil, domain.WrapDependency("records.list_changes", err)
	}

	result := &domain.PullResult{
		Records:       []domain.SyncRecord{},
		DeleteMarkers: []domain.DeleteMarker{},
		Cursor:        next,
		HasMore:       len(changes) == limit,
	}
	for _, rec := range changes {
		if rec.Deleted {
			result.DeleteMarkers = append(result.DeleteMarkers, rec.Marker())
			continue
		}
		result.Records = append(result.Records, rec)
	}

	return result, nil
}
