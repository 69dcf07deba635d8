package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

const memberColumns = `id, trip_id, user_id, display_name, role, joined_at, is_local, is_synced, last_modified`

// MemberRepository implements usecase.MemberRepository.
type MemberRepository struct {
	s *Store
}

// Create adds a member to an existing trip.
func (r *MemberRepository) Create(ctx context.Context, member *domain.TripMember) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		if err := tripExists(ctx, tx, member.TripID); err != nil {
			return "", err
		}
		if err := upsertMember(ctx, tx, member); err != nil {
			return "", err
		}
		return member.TripID, nil
	})
}

// Update writes the member and refreshes the names copied onto expenses and
// splits.
func (r *MemberRepository) Update(ctx context.Context, member *domain.TripMember) error {
	return r.s.write(ctx, func(tx *sql.Tx) (string, error) {
		if _, err := tripOf(ctx, tx, domain.KindMember, member.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", domain.ErrMemberNotFound
			}
			return "", fmt.Errorf("failed to get member: %w", err)
		}
		if err := upsertMember(ctx, tx, member); err != nil {
			return "", err
		}
		return member.TripID, nil
	})
}

// Delete removes the member and leaves a delete marker.
func (r *MemberRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	return r.s.deleteLocal(ctx, domain.KindMember, id, deletedAt, domain.ErrMemberNotFound)
}

// GetByID retrieves a member by ID.
func (r *MemberRepository) GetByID(ctx context.Context, id string) (*domain.TripMember, error) {
	row := r.s.db.QueryRowContext(ctx, "SELECT "+memberColumns+" FROM trip_members WHERE id = ?", id)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// ListByTrip returns the trip's members ordered by ID.
func (r *MemberRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.TripMember, error) {
	rows, err := r.s.db.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM trip_members WHERE trip_id = ? ORDER BY id", tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*domain.TripMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// HasActivity reports whether an expense, a split or a pending settlement
// references the member.
func (r *MemberRepository) HasActivity(ctx context.Context, id string) (bool, error) {
	var active bool
	err := r.s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM expenses WHERE paid_by = ?)
		    OR EXISTS (SELECT 1 FROM expense_splits WHERE member_id = ?)
		    OR EXISTS (SELECT 1 FROM settlements WHERE status = 'PENDING' AND (from_member_id = ? OR to_member_id = ?))`,
		id, id, id, id,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("failed to check member activity: %w", err)
	}
	return active, nil
}

func upsertMember(ctx context.Context, q querier, m *domain.TripMember) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO trip_members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			trip_id = excluded.trip_id,
			user_id = excluded.user_id,
			display_name = excluded.display_name,
			role = excluded.role,
			joined_at = excluded.joined_at,
			is_local = excluded.is_local,
			is_synced = excluded.is_synced,
			last_modified = excluded.last_modified`,
		m.ID, m.TripID, nullString(m.UserID), m.DisplayName, string(m.Role), toMicros(m.JoinedAt),
		boolInt(m.IsLocal), boolInt(m.IsSynced), toMicros(m.LastModified),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}

	if _, err := q.ExecContext(ctx, "UPDATE expenses SET paid_by_name = ? WHERE paid_by = ?", m.DisplayName, m.ID); err != nil {
		return fmt.Errorf("failed to refresh payer names: %w", err)
	}
	if _, err := q.ExecContext(ctx, "UPDATE expense_splits SET member_name = ? WHERE member_id = ?", m.DisplayName, m.ID); err != nil {
		return fmt.Errorf("failed to refresh split names: %w", err)
	}
	return nil
}

func scanMember(row rowScanner) (*domain.TripMember, error) {
	var (
		m                  domain.TripMember
		userID             sql.NullString
		role               string
		joinedAt, modified int64
		isLocal, isSynced  bool
	)
	if err := row.Scan(&m.ID, &m.TripID, &userID, &m.DisplayName, &role, &joinedAt, &isLocal, &isSynced, &modified); err != nil {
		return nil, err
	}
	m.UserID = stringPtr(userID)
	m.Role = domain.Role(role)
	m.JoinedAt = fromMicros(joinedAt)
	m.SyncMeta = syncMeta(isLocal, isSynced, modified)
	return &m, nil
}
