package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/iho/tripledger/internal/adapter/repository/postgres"
	"github.com/iho/tripledger/internal/domain"
	pginfra "github.com/iho/tripledger/internal/infrastructure/postgres"
	"github.com/iho/tripledger/internal/usecase"
)

// newTestPool connects to DATABASE_URL and migrates it. Tests are skipped
// without a database.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	if err := pginfra.RunMigrations(dbURL, zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pginfra.NewPool(ctx, dbURL, 10, 1)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func newTestService(pool *pgxpool.Pool) *usecase.RemoteLedgerService {
	return usecase.NewRemoteLedgerService(usecase.RemoteLedgerServiceConfig{
		TxManager: postgres.NewTxManager(pool),
		Records:   postgres.NewRecordRepository(pool),
		Retrier:   postgres.NewRetrier(zerolog.Nop()),
		Logger:    zerolog.Nop(),
		PageSize:  2,
	})
}

func memberVersion(t *testing.T, tripID, id, name string, at time.Time) domain.SyncRecord {
	t.Helper()
	rec, err := domain.MemberRecord(&domain.TripMember{ID: id, TripID: tripID, DisplayName: name, Role: domain.RoleMember})
	if err != nil {
		t.Fatalf("failed to build record: %v", err)
	}
	rec.LastModified = domain.Timestamp(at)
	return rec
}

func TestConcurrentPushesKeepNewestVersion(t *testing.T) {
	pool := newTestPool(t)
	svc := newTestService(pool)
	ctx := context.Background()

	tripID := ulid.Make().String()
	memberID := ulid.Make().String()
	base := time.Now().UTC().Truncate(time.Second)

	const versions = 20
	var wg sync.WaitGroup
	errs := make(chan error, versions)
	for i := 0; i < versions; i++ {
		rec := memberVersion(t, tripID, memberID, "v"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Second))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Push(ctx, rec); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("push failed: %v", err)
	}

	page, err := svc.PullPage(ctx, tripID, "", 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("expected one live record, got %d", len(page.Records))
	}
	m, err := page.Records[0].Member()
	if err != nil {
		t.Fatalf("failed to decode member: %v", err)
	}
	if want := "v" + string(rune('a'+versions-1)); m.DisplayName != want {
		t.Fatalf("expected newest version %s, got %s", want, m.DisplayName)
	}
}

func TestPullPagesAndTripDeletion(t *testing.T) {
	pool := newTestPool(t)
	svc := newTestService(pool)
	ctx := context.Background()

	tripID := ulid.Make().String()
	base := time.Now().UTC().Truncate(time.Second)

	var memberIDs []string
	for i, name := range []string{"Ana", "Bo", "Cy"} {
		id := ulid.Make().String()
		memberIDs = append(memberIDs, id)
		if _, err := svc.Push(ctx, memberVersion(t, tripID, id, name, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("push failed: %v", err)
		}
	}

	first, err := svc.Pull(ctx, tripID, "")
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(first.Records) != 2 || !first.HasMore {
		t.Fatalf("expected a full first page, got %d records (more=%v)", len(first.Records), first.HasMore)
	}

	rest, err := svc.Pull(ctx, tripID, first.Cursor)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(rest.Records) != 1 {
		t.Fatalf("expected the last record, got %d", len(rest.Records))
	}

	marker := domain.DeleteMarker{Kind: domain.KindTrip, ID: tripID, TripID: tripID, DeletedAt: base.Add(time.Minute)}
	if out, err := svc.Push(ctx, marker.Record()); err != nil || out.Status != domain.PushApplied {
		t.Fatalf("expected trip deletion to apply, got %+v, %v", out, err)
	}

	after, err := svc.Pull(ctx, tripID, rest.Cursor)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(after.Records) != 0 {
		t.Fatalf("expected no live records after deletion, got %d", len(after.Records))
	}
	if len(after.DeleteMarkers) == 0 {
		t.Fatal("expected delete markers after trip deletion")
	}

	late, err := svc.Push(ctx, memberVersion(t, tripID, memberIDs[0], "Ana", base.Add(time.Hour)))
	if err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if late.Status != domain.PushDeleted {
		t.Fatalf("expected a deleted member to stay deleted, got %s", late.Status)
	}
}
