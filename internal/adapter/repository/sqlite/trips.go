package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

const tripColumns = `id, name, description, start_date, end_date, invite_code, created_by, created_at,
	is_local, is_synced, last_modified`

// TripRepository implements usecase.TripRepository.
type TripRepository struct {
	s *Store
}

// Create stores the trip and its founding admin in one transaction.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip, admin *domain.TripMember) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		if err := insertTrip(ctx, tx, trip); err != nil {
			return "", err
		}
		if err := upsertMember(ctx, tx, admin); err != nil {
			return "", err
		}
		return trip.ID, nil
	})
}

// Update overwrites the trip's fields.
func (r *TripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		if err := tripExists(ctx, tx, trip.ID); err != nil {
			return "", err
		}
		if err := upsertTrip(ctx, tx, trip); err != nil {
			return "", err
		}
		return trip.ID, nil
	})
}

// Delete removes the trip with everything it owns and leaves a delete marker.
func (r *TripRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	return r.s.deleteLocal(ctx, domain.KindTrip, id, deletedAt, domain.ErrTripNotFound)
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	row := r.s.db.QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE id = ?", id)
	trip, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return trip, nil
}

// List returns every trip on the device.
func (r *TripRepository) List(ctx context.Context) ([]*domain.Trip, error) {
	rows, err := r.s.db.QueryContext(ctx, "SELECT "+tripColumns+" FROM trips ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	trips := []*domain.Trip{}
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trips: %w", err)
	}
	return trips, nil
}

func insertTrip(ctx context.Context, q querier, t *domain.Trip) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO trips (`+tripColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tripArgs(t)...,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("trip %s already exists: %w", t.ID, err)
		}
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

// upsertTrip must not use INSERT OR REPLACE: a replace deletes the row and
// would cascade to the trip's children.
func upsertTrip(ctx context.Context, q querier, t *domain.Trip) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO trips (`+tripColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			invite_code = excluded.invite_code,
			created_by = excluded.created_by,
			created_at = excluded.created_at,
			is_local = excluded.is_local,
			is_synced = excluded.is_synced,
			last_modified = excluded.last_modified`,
		tripArgs(t)...,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trip: %w", err)
	}
	return nil
}

func tripArgs(t *domain.Trip) []any {
	return []any{
		t.ID, t.Name, nullString(t.Description), toMicros(t.StartDate), nullMicros(t.EndDate),
		t.InviteCode, t.CreatedBy, toMicros(t.CreatedAt),
		boolInt(t.IsLocal), boolInt(t.IsSynced), toMicros(t.LastModified),
	}
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var (
		t                              domain.Trip
		description                    sql.NullString
		startDate, createdAt, modified int64
		endDate                        sql.NullInt64
		isLocal, isSynced              bool
	)
	err := row.Scan(&t.ID, &t.Name, &description, &startDate, &endDate, &t.InviteCode, &t.CreatedBy, &createdAt,
		&isLocal, &isSynced, &modified)
	if err != nil {
		return nil, err
	}
	t.Description = stringPtr(description)
	t.StartDate = fromMicros(startDate)
	t.EndDate = timePtr(endDate)
	t.CreatedAt = fromMicros(createdAt)
	t.SyncMeta = syncMeta(isLocal, isSynced, modified)
	return &t, nil
}
