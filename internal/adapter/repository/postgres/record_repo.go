package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/infrastructure/postgres/generated"
	"github.com/iho/tripledger/internal/usecase"
)

// RecordRepository implements usecase.RemoteRecordRepository.
type RecordRepository struct {
	queries *generated.Queries
}

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return newRecordRepositoryWithDB(pool)
}

func newRecordRepositoryWithDB(db generated.DBTX) *RecordRepository {
	return &RecordRepository{queries: generated.New(db)}
}

// LockTrip takes the trip's advisory lock for the rest of tx. Writers lock
// the trip before any row so trip deletion cannot deadlock with pushes.
func (r *RecordRepository) LockTrip(ctx context.Context, tx usecase.Transaction, tripID string) error {
	return txQueries(tx).LockTrip(ctx, tripID)
}

// GetForUpdate retrieves a record version with a FOR UPDATE lock.
func (r *RecordRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, kind domain.RecordKind, id string) (*domain.SyncRecord, error) {
	queries := txQueries(tx)

	row, err := queries.GetRecordForUpdate(ctx, generated.GetRecordForUpdateParams{
		Kind: string(kind),
		ID:   id,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}

		return nil, err
	}

	return rowToRecord(row)
}

// Upsert stores a record version under a fresh revision. The trip lock is
// held until commit so revisions of one trip become visible in order.
func (r *RecordRepository) Upsert(ctx context.Context, tx usecase.Transaction, record domain.SyncRecord) error {
	queries := txQueries(tx)

	if err := queries.LockTrip(ctx, record.TripID); err != nil {
		return err
	}

	var payload []byte
	if !record.Deleted {
		payload = record.Payload
	}

	return queries.UpsertRecord(ctx, generated.UpsertRecordParams{
		Kind:         string(record.Kind),
		ID:           record.ID,
		TripID:       record.TripID,
		LastModified: timeToPgTimestamptz(record.LastModified),
		Deleted:      record.Deleted,
		Payload:      payload,
	})
}

// DeleteTrip marks every live record of the trip deleted.
func (r *RecordRepository) DeleteTrip(ctx context.Context, tx usecase.Transaction, tripID string, deletedAt time.Time) error {
	queries := txQueries(tx)

	if err := queries.LockTrip(ctx, tripID); err != nil {
		return err
	}

	return queries.MarkTripDeleted(ctx, generated.MarkTripDeletedParams{
		TripID:       tripID,
		LastModified: timeToPgTimestamptz(deletedAt),
	})
}

// ListChanges lists records of the trip with a revision after cursor.
func (r *RecordRepository) ListChanges(ctx context.Context, tripID, cursor string, limit int) ([]domain.SyncRecord, string, error) {
	since, err := parseCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	rows, err := r.queries.ListChanges(ctx, generated.ListChangesParams{
		TripID:   tripID,
		Revision: since,
		Limit:    int32(limit),
	})
	if err != nil {
		return nil, "", err
	}

	records := make([]domain.SyncRecord, 0, len(rows))
	next := cursor
	for _, row := range rows {
		rec, err := rowToRecord(row)
		if err != nil {
			return nil, "", err
		}
		records = append(records, *rec)
		next = strconv.FormatInt(row.Revision, 10)
	}

	return records, next, nil
}

func txQueries(tx usecase.Transaction) *generated.Queries {
	return generated.New(tx.(*Tx).PgxTx())
}

func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || since < 0 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCursor, cursor)
	}
	return since, nil
}

func rowToRecord(row generated.SyncRecord) (*domain.SyncRecord, error) {
	kind, err := domain.ParseRecordKind(row.Kind)
	if err != nil {
		return nil, err
	}

	rec := &domain.SyncRecord{
		Kind:         kind,
		ID:           row.ID,
		TripID:       row.TripID,
		LastModified: domain.Timestamp(row.LastModified.Time),
		Deleted:      row.Deleted,
	}
	if !row.Deleted {
		rec.Payload = row.Payload
	}

	return rec, nil
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
