// Package sqlite provides the durable on-device ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
)

var _ usecase.LedgerStore = (*Store)(nil)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store implements usecase.LedgerStore on SQLite. It holds a single
// connection, so writes are serialized and an in-memory database is shared by
// every caller.
type Store struct {
	db     *sql.DB
	broker *broker

	trips       *TripRepository
	members     *MemberRepository
	expenses    *ExpenseRepository
	settlements *SettlementRepository
	sync        *SyncRepository
}

// New opens the database at dbPath, creating parent directories and the
// schema when missing.
func New(ctx context.Context, dbPath string) (*Store, error) {
	dsn := "file::memory:"
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + dbPath
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{db: db, broker: newBroker()}
	s.trips = &TripRepository{s: s}
	s.members = &MemberRepository{s: s}
	s.expenses = &ExpenseRepository{s: s}
	s.settlements = &SettlementRepository{s: s}
	s.sync = &SyncRepository{s: s}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Trips() usecase.TripRepository             { return s.trips }
func (s *Store) Members() usecase.MemberRepository         { return s.members }
func (s *Store) Expenses() usecase.ExpenseRepository       { return s.expenses }
func (s *Store) Settlements() usecase.SettlementRepository { return s.settlements }
func (s *Store) Sync() usecase.SyncRepository              { return s.sync }

// Changes signals after every committed write touching the trip.
func (s *Store) Changes(ctx context.Context, tripID string) <-chan struct{} {
	return s.broker.subscribe(ctx, tripID)
}

// write runs fn in a transaction and, after commit, signals the trip fn
// reports. An empty trip id skips the signal.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) (string, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tripID, err := fn(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.broker.publish(tripID)
	return nil
}

var kindTables = map[domain.RecordKind]string{
	domain.KindTrip:       "trips",
	domain.KindMember:     "trip_members",
	domain.KindExpense:    "expenses",
	domain.KindSettlement: "settlements",
}

func tableFor(kind domain.RecordKind) (string, error) {
	table, ok := kindTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidRecordKind, kind)
	}
	return table, nil
}

// tripOf returns the trip owning a record, or sql.ErrNoRows.
func tripOf(ctx context.Context, q querier, kind domain.RecordKind, id string) (string, error) {
	if kind == domain.KindTrip {
		var found string
		err := q.QueryRowContext(ctx, "SELECT id FROM trips WHERE id = ?", id).Scan(&found)
		return found, err
	}
	table, err := tableFor(kind)
	if err != nil {
		return "", err
	}
	var tripID string
	err = q.QueryRowContext(ctx, "SELECT trip_id FROM "+table+" WHERE id = ?", id).Scan(&tripID)
	return tripID, err
}

func tripExists(ctx context.Context, q querier, tripID string) error {
	if _, err := tripOf(ctx, q, domain.KindTrip, tripID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTripNotFound
		}
		return fmt.Errorf("failed to get trip: %w", err)
	}
	return nil
}

// removeRecord deletes one record; foreign keys cascade trip children. It
// reports whether the record existed.
func removeRecord(ctx context.Context, tx *sql.Tx, kind domain.RecordKind, id string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 && kind == domain.KindTrip {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sync_cursors WHERE trip_id = ?", id); err != nil {
			return false, fmt.Errorf("failed to delete sync cursor: %w", err)
		}
	}
	return n > 0, nil
}

// deleteLocal removes a record and leaves a delete marker for the next push.
func (s *Store) deleteLocal(ctx context.Context, kind domain.RecordKind, id string, deletedAt time.Time, notFound error) error {
	return s.write(ctx, func(tx *sql.Tx) (string, error) {
		tripID, err := tripOf(ctx, tx, kind, id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound
		}
		if err != nil {
			return "", fmt.Errorf("failed to get %s: %w", kind, err)
		}

		if _, err := removeRecord(ctx, tx, kind, id); err != nil {
			return "", err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO delete_markers (kind, id, trip_id, deleted_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (kind, id) DO UPDATE SET trip_id = excluded.trip_id, deleted_at = excluded.deleted_at`,
			string(kind), id, tripID, toMicros(deletedAt),
		)
		if err != nil {
			return "", fmt.Errorf("failed to write delete marker: %w", err)
		}
		return tripID, nil
	})
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func toMicros(t time.Time) int64 {
	return domain.Timestamp(t).UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", s, err)
	}
	return d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func syncMeta(isLocal, isSynced bool, lastModified int64) domain.SyncMeta {
	return domain.SyncMeta{IsLocal: isLocal, IsSynced: isSynced, LastModified: fromMicros(lastModified)}
}
