package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

const settlementColumns = `id, trip_id, from_member_id, to_member_id, amount, status, notes, created_by_member_id,
	created_at, settled_at, is_local, is_synced, last_modified`

// SettlementRepository implements usecase.SettlementRepository.
type SettlementRepository struct {
	s *Store
}

// Create stores a new settlement. The pending-pair index rejects a second
// pending settlement for the same ordered pair.
func (r *SettlementRepository) Create(ctx context.Context, settlement *domain.Settlement) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		if err := tripExists(ctx, tx, settlement.TripID); err != nil {
			return "", err
		}
		if err := upsertSettlement(ctx, tx, settlement); err != nil {
			return "", err
		}
		return settlement.TripID, nil
	})
}

// Update overwrites an existing settlement.
func (r *SettlementRepository) Update(ctx context.Context, settlement *domain.Settlement) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		if _, err := tripOf(ctx, tx, domain.KindSettlement, settlement.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", domain.ErrSettlementNotFound
			}
			return "", fmt.Errorf("failed to get settlement: %w", err)
		}
		if err := upsertSettlement(ctx, tx, settlement); err != nil {
			return "", err
		}
		return settlement.TripID, nil
	})
}

// Delete removes the settlement and leaves a delete marker.
func (r *SettlementRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	return r.s.deleteLocal(ctx, domain.KindSettlement, id, deletedAt, domain.ErrSettlementNotFound)
}

// GetByID retrieves a settlement by ID.
func (r *SettlementRepository) GetByID(ctx context.Context, id string) (*domain.Settlement, error) {
	row := r.s.db.QueryRowContext(ctx, "SELECT "+settlementColumns+" FROM settlements WHERE id = ?", id)
	st, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSettlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return st, nil
}

// ListByTrip returns the trip's settlements ordered by ID.
func (r *SettlementRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.Settlement, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+settlementColumns+" FROM settlements WHERE trip_id = ? ORDER BY id", tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	settlements := []*domain.Settlement{}
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

// FindPending returns the pending settlement of the ordered pair, or nil.
func (r *SettlementRepository) FindPending(ctx context.Context, tripID, fromMemberID, toMemberID string) (*domain.Settlement, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+` FROM settlements
		WHERE trip_id = ? AND from_member_id = ? AND to_member_id = ? AND status = 'PENDING'`,
		tripID, fromMemberID, toMemberID,
	)
	st, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending settlement: %w", err)
	}
	return st, nil
}

func upsertSettlement(ctx context.Context, q querier, st *domain.Settlement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settlements (`+settlementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			trip_id = excluded.trip_id,
			from_member_id = excluded.from_member_id,
			to_member_id = excluded.to_member_id,
			amount = excluded.amount,
			status = excluded.status,
			notes = excluded.notes,
			created_by_member_id = excluded.created_by_member_id,
			created_at = excluded.created_at,
			settled_at = excluded.settled_at,
			is_local = excluded.is_local,
			is_synced = excluded.is_synced,
			last_modified = excluded.last_modified`,
		st.ID, st.TripID, st.FromMemberID, st.ToMemberID, st.Amount.String(), string(st.Status),
		nullString(st.Notes), st.CreatedByMemberID, toMicros(st.CreatedAt), nullMicros(st.SettledAt),
		boolInt(st.IsLocal), boolInt(st.IsSynced), toMicros(st.LastModified),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePending
		}
		return fmt.Errorf("failed to upsert settlement: %w", err)
	}
	return nil
}

func scanSettlement(row rowScanner) (*domain.Settlement, error) {
	var (
		st                  domain.Settlement
		amount, status      string
		notes               sql.NullString
		createdAt, modified int64
		settledAt           sql.NullInt64
		isLocal, isSynced   bool
	)
	err := row.Scan(&st.ID, &st.TripID, &st.FromMemberID, &st.ToMemberID, &amount, &status, &notes,
		&st.CreatedByMemberID, &createdAt, &settledAt, &isLocal, &isSynced, &modified)
	if err != nil {
		return nil, err
	}
	if st.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	st.Status = domain.SettlementStatus(status)
	st.Notes = stringPtr(notes)
	st.CreatedAt = fromMicros(createdAt)
	st.SettledAt = timePtr(settledAt)
	st.SyncMeta = syncMeta(isLocal, isSynced, modified)
	return &st, nil
}
