package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
	"github.com/iho/tripledger/internal/usecase/mocks"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

// prefixedIDs generates ids that sort in creation order and never collide
// with another device's ids.
func prefixedIDs(prefix string) *mocks.MockIDGenerator {
	var (
		mu sync.Mutex
		n  int
	)
	return &mocks.MockIDGenerator{
		GenerateFunc: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("%s-%04d", prefix, n)
		},
	}
}

// device is one local ledger with its use cases.
type device struct {
	store       *mocks.MockLedgerStore
	clock       *mocks.MockClock
	trips       *usecase.TripUseCase
	roster      *usecase.MemberUseCase
	expenses    *usecase.ExpenseUseCase
	settlements *usecase.SettlementUseCase
}

func newDevice(prefix string, clock *mocks.MockClock) *device {
	store := mocks.NewMockLedgerStore()
	locks := usecase.NewTripLocks()
	ids := prefixedIDs(prefix)
	now := usecase.Clock(clock.Now)

	return &device{
		store:       store,
		clock:       clock,
		trips:       usecase.NewTripUseCase(store, locks, ids, now),
		roster:      usecase.NewMemberUseCase(store, locks, ids, now),
		expenses:    usecase.NewExpenseUseCase(store, locks, ids, now),
		settlements: usecase.NewSettlementUseCase(store, locks, ids, now),
	}
}

// tripFixture is a trip with an admin (owned by user-admin) and plain
// members added in order.
type tripFixture struct {
	*device
	trip    *domain.Trip
	admin   *domain.TripMember
	members []*domain.TripMember
}

func newTripFixture(t *testing.T, names ...string) *tripFixture {
	t.Helper()
	return newTripFixtureOn(t, newDevice("dev", mocks.NewMockClock(testEpoch, time.Millisecond)), names...)
}

func newTripFixtureOn(t *testing.T, d *device, names ...string) *tripFixture {
	t.Helper()
	ctx := context.Background()

	trip, admin, err := d.trips.CreateTrip(ctx, usecase.CreateTripInput{
		Name:          "Lisbon",
		StartDate:     testEpoch,
		CreatorUserID: "user-admin",
		CreatorName:   "Ana",
	})
	if err != nil {
		t.Fatalf("create trip: %v", err)
	}

	f := &tripFixture{device: d, trip: trip, admin: admin}
	for _, name := range names {
		userID := "user-" + name
		m, err := d.roster.AddMember(ctx, usecase.AddMemberInput{
			UserID:        &userID,
			TripID:        trip.ID,
			ActorMemberID: admin.ID,
			DisplayName:   name,
		})
		if err != nil {
			t.Fatalf("add member %s: %v", name, err)
		}
		f.members = append(f.members, m)
	}
	return f
}

func (f *tripFixture) addExpense(t *testing.T, paidBy *domain.TripMember, amount string, participants ...*domain.TripMember) *domain.ExpenseWithSplits {
	t.Helper()

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	e, err := f.expenses.AddExpense(context.Background(), usecase.AddExpenseInput{
		ExpenseInput: usecase.ExpenseInput{
			Description:    "dinner",
			Amount:         dec(amount),
			Category:       domain.CategoryFood,
			PaidBy:         paidBy.ID,
			IsGroupExpense: true,
			Participants:   ids,
		},
		TripID:        f.trip.ID,
		ActorMemberID: paidBy.ID,
	})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	return e
}
