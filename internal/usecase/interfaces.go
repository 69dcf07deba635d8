package usecase

import (
	"context"
	"time"

	"github.com/iho/tripledger/internal/domain"
)

// TripRepository defines local data access for trips.
type TripRepository interface {
	// Create stores a trip together with its founding admin member.
	Create(ctx context.Context, trip *domain.Trip, admin *domain.TripMember) error
	Update(ctx context.Context, trip *domain.Trip) error
	// Delete removes the trip and everything it owns, leaving a delete marker.
	Delete(ctx context.Context, id string, deletedAt time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Trip, error)
	List(ctx context.Context) ([]*domain.Trip, error)
}

// MemberRepository defines local data access for trip members.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.TripMember) error
	// Update writes the member and re-derives the denormalized names that
	// copy its display name.
	Update(ctx context.Context, member *domain.TripMember) error
	Delete(ctx context.Context, id string, deletedAt time.Time) error
	GetByID(ctx context.Context, id string) (*domain.TripMember, error)
	ListByTrip(ctx context.Context, tripID string) ([]*domain.TripMember, error)
	// HasActivity reports whether any expense, split or pending settlement
	// references the member.
	HasActivity(ctx context.Context, id string) (bool, error)
}

// ExpenseRepository defines local data access for expenses. An expense and
// its splits are always written together.
type ExpenseRepository interface {
	Save(ctx context.Context, expense *domain.ExpenseWithSplits) error
	Delete(ctx context.Context, id string, deletedAt time.Time) error
	GetByID(ctx context.Context, id string) (*domain.ExpenseWithSplits, error)
	ListByTrip(ctx context.Context, tripID string) ([]*domain.ExpenseWithSplits, error)
}

// SettlementRepository defines local data access for settlements.
type SettlementRepository interface {
	// Create fails with domain.ErrDuplicatePending when the ordered pair
	// already has a pending settlement.
	Create(ctx context.Context, settlement *domain.Settlement) error
	Update(ctx context.Context, settlement *domain.Settlement) error
	Delete(ctx context.Context, id string, deletedAt time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Settlement, error)
	ListByTrip(ctx context.Context, tripID string) ([]*domain.Settlement, error)
	FindPending(ctx context.Context, tripID, fromMemberID, toMemberID string) (*domain.Settlement, error)
}

// SyncRepository exposes the sync bookkeeping of the local store.
type SyncRepository interface {
	// ListUnsynced returns every record of the trip awaiting a push.
	ListUnsynced(ctx context.Context, tripID string) ([]domain.SyncRecord, error)
	// MarkSynced flags the record as pushed only if its content timestamp is
	// still lastModified. It reports whether the flag was set.
	MarkSynced(ctx context.Context, kind domain.RecordKind, id string, lastModified time.Time) (bool, error)
	ListDeleteMarkers(ctx context.Context, tripID string) ([]domain.DeleteMarker, error)
	ClearDeleteMarker(ctx context.Context, kind domain.RecordKind, id string) error
	// Version returns the local freshness of a record, or nil if absent.
	Version(ctx context.Context, kind domain.RecordKind, id string) (*domain.RecordVersion, error)
	// ApplyRemote upserts an accepted remote version, marked synced.
	ApplyRemote(ctx context.Context, record domain.SyncRecord) error
	// ApplyDelete removes the record without writing a delete marker. It
	// reports whether anything was removed.
	ApplyDelete(ctx context.Context, marker domain.DeleteMarker) (bool, error)
	Cursor(ctx context.Context, tripID string) (string, error)
	SaveCursor(ctx context.Context, tripID, cursor string) error
}

// LedgerStore is the durable local ledger. Changes publishes a signal after
// every committed mutation touching the trip until ctx is cancelled.
type LedgerStore interface {
	Trips() TripRepository
	Members() MemberRepository
	Expenses() ExpenseRepository
	Settlements() SettlementRepository
	Sync() SyncRepository
	Changes(ctx context.Context, tripID string) <-chan struct{}
}

// RemoteLedger is the authoritative multi-device ledger.
type RemoteLedger interface {
	Push(ctx context.Context, record domain.SyncRecord) (domain.PushOutcome, error)
	Pull(ctx context.Context, tripID, cursor string) (*domain.PullResult, error)
}

// RemoteRecordRepository defines server-side access to stored record versions.
type RemoteRecordRepository interface {
	// LockTrip serializes writers of the trip until tx ends.
	LockTrip(ctx context.Context, tx Transaction, tripID string) error
	GetForUpdate(ctx context.Context, tx Transaction, kind domain.RecordKind, id string) (*domain.SyncRecord, error)
	Upsert(ctx context.Context, tx Transaction, record domain.SyncRecord) error
	// DeleteTrip marks every record of the trip deleted at deletedAt.
	DeleteTrip(ctx context.Context, tx Transaction, tripID string, deletedAt time.Time) error
	// ListChanges returns records of the trip changed after the revision
	// encoded in cursor, in revision order, and the cursor of the last one.
	ListChanges(ctx context.Context, tripID, cursor string, limit int) ([]domain.SyncRecord, string, error)
}

// ChangeNotifier announces and delivers "remote changed" events per trip.
type ChangeNotifier interface {
	Publish(ctx context.Context, tripID string) error
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation on transient failures.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock returns the current time.
type Clock func() time.Time

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request failed so a retry can run again.
	Release(ctx context.Context, key string) error
}
