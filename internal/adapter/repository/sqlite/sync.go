package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

// SyncRepository implements usecase.SyncRepository.
type SyncRepository struct {
	s *Store
}

// ListUnsynced encodes every record of the trip awaiting a push, parents
// first.
func (r *SyncRepository) ListUnsynced(ctx context.Context, tripID string) ([]domain.SyncRecord, error) {
	var records []domain.SyncRecord

	trip, err := r.s.trips.GetByID(ctx, tripID)
	switch {
	case errors.Is(err, domain.ErrTripNotFound):
		return records, nil
	case err != nil:
		return nil, err
	case !trip.IsSynced:
		rec, err := domain.TripRecord(trip)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	members, err := r.s.members.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.IsSynced {
			continue
		}
		rec, err := domain.MemberRecord(m)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	expenses, err := r.s.expenses.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, e := range expenses {
		if e.IsSynced {
			continue
		}
		rec, err := domain.ExpenseRecord(e)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	settlements, err := r.s.settlements.ListByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, st := range settlements {
		if st.IsSynced {
			continue
		}
		rec, err := domain.SettlementRecord(st)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// MarkSynced flags the record pushed only if its timestamp is unchanged.
func (r *SyncRepository) MarkSynced(ctx context.Context, kind domain.RecordKind, id string, lastModified time.Time) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := r.s.db.ExecContext(ctx,
		"UPDATE "+table+" SET is_synced = 1, is_local = 0 WHERE id = ? AND last_modified = ?",
		id, toMicros(lastModified),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark %s synced: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListDeleteMarkers returns the trip's pending delete markers.
func (r *SyncRepository) ListDeleteMarkers(ctx context.Context, tripID string) ([]domain.DeleteMarker, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT kind, id, trip_id, deleted_at FROM delete_markers WHERE trip_id = ? ORDER BY id", tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delete markers: %w", err)
	}
	defer rows.Close()

	var markers []domain.DeleteMarker
	for rows.Next() {
		var (
			m         domain.DeleteMarker
			kind      string
			deletedAt int64
		)
		if err := rows.Scan(&kind, &m.ID, &m.TripID, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delete marker: %w", err)
		}
		m.Kind = domain.RecordKind(kind)
		m.DeletedAt = fromMicros(deletedAt)
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delete markers: %w", err)
	}
	return markers, nil
}

// ClearDeleteMarker drops a marker once the remote has accepted it.
func (r *SyncRepository) ClearDeleteMarker(ctx context.Context, kind domain.RecordKind, id string) error {
	if _, err := r.s.db.ExecContext(ctx, "DELETE FROM delete_markers WHERE kind = ? AND id = ?", string(kind), id); err != nil {
		return fmt.Errorf("failed to clear delete marker: %w", err)
	}
	return nil
}

// Version returns the record's freshness, or nil when it is absent.
func (r *SyncRepository) Version(ctx context.Context, kind domain.RecordKind, id string) (*domain.RecordVersion, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var (
		modified int64
		isSynced bool
	)
	err = r.s.db.QueryRowContext(ctx, "SELECT last_modified, is_synced FROM "+table+" WHERE id = ?", id).
		Scan(&modified, &isSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s version: %w", kind, err)
	}
	return &domain.RecordVersion{LastModified: fromMicros(modified), IsSynced: isSynced}, nil
}

// ApplyRemote stores an accepted remote version, marked synced.
func (r *SyncRepository) ApplyRemote(ctx context.Context, record domain.SyncRecord) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		var err error
		switch record.Kind {
		case domain.KindTrip:
			var t *domain.Trip
			if t, err = record.Trip(); err == nil {
				err = upsertTrip(ctx, tx, t)
			}
		case domain.KindMember:
			var m *domain.TripMember
			if m, err = record.Member(); err == nil {
				err = upsertMember(ctx, tx, m)
			}
		case domain.KindExpense:
			var e *domain.ExpenseWithSplits
			if e, err = record.Expense(); err == nil {
				err = upsertExpense(ctx, tx, e)
			}
		case domain.KindSettlement:
			var st *domain.Settlement
			if st, err = record.Settlement(); err == nil {
				err = upsertSettlement(ctx, tx, st)
			}
		default:
			err = fmt.Errorf("%w: %q", domain.ErrInvalidRecordKind, record.Kind)
		}
		if err != nil {
			return "", err
		}
		return record.TripID, nil
	})
}

// ApplyDelete removes a record deleted remotely without writing a marker.
func (r *SyncRepository) ApplyDelete(ctx context.Context, marker domain.DeleteMarker) (bool, error) {
	var removed bool
	err := r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		var err error
		if removed, err = removeRecord(ctx, tx, marker.Kind, marker.ID); err != nil || !removed {
			return "", err
		}
		return marker.TripID, nil
	})
	return removed, err
}

// Cursor returns the trip's pull cursor, or "" before the first pull.
func (r *SyncRepository) Cursor(ctx context.Context, tripID string) (string, error) {
	var cursor string
	err := r.s.db.QueryRowContext(ctx, "SELECT cursor FROM sync_cursors WHERE trip_id = ?", tripID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get sync cursor: %w", err)
	}
	return cursor, nil
}

// SaveCursor stores the trip's pull cursor.
func (r *SyncRepository) SaveCursor(ctx context.Context, tripID, cursor string) error {
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (trip_id, cursor) VALUES (?, ?)
		ON CONFLICT (trip_id) DO UPDATE SET cursor = excluded.cursor`,
		tripID, cursor,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}
