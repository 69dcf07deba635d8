package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
	"github.com/iho/tripledger/internal/usecase/mocks"
)

// syncWorld is two devices sharing one remote ledger.
type syncWorld struct {
	remote *usecase.RemoteLedgerService
	a, b   *device
	syncA  *usecase.SyncReconciler
	syncB  *usecase.SyncReconciler
}

func newSyncWorld() *syncWorld {
	clock := mocks.NewMockClock(testEpoch, time.Millisecond)
	remote := usecase.NewRemoteLedgerService(usecase.RemoteLedgerServiceConfig{
		TxManager: mocks.NewMockTransactionManager(),
		Records:   mocks.NewMockRemoteRecordRepository(),
		Logger:    zerolog.Nop(),
		PageSize:  3,
	})

	w := &syncWorld{remote: remote, a: newDevice("a", clock), b: newDevice("b", clock)}
	w.syncA = usecase.NewSyncReconciler(usecase.SyncReconcilerConfig{Store: w.a.store, Remote: remote, Logger: zerolog.Nop()})
	w.syncB = usecase.NewSyncReconciler(usecase.SyncReconcilerConfig{Store: w.b.store, Remote: remote, Logger: zerolog.Nop()})
	return w
}

func reconcile(t *testing.T, r *usecase.SyncReconciler, tripID string) *domain.ReconcileOutcome {
	t.Helper()
	out, err := r.ReconcileNow(context.Background(), tripID)
	require.NoError(t, err)
	require.NoError(t, out.Err())
	return out
}

func TestSyncReconciler_RoundTripIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	f.addExpense(t, f.admin, "60")

	first := reconcile(t, w.syncA, f.trip.ID)
	assert.Equal(t, 4, first.Pushed)
	assert.Equal(t, 0, first.Pulled)
	assert.Empty(t, first.Conflicts)

	again := reconcile(t, w.syncA, f.trip.ID)
	assert.Equal(t, 0, again.Pushed)
	assert.Equal(t, 0, again.Pulled)
	assert.Equal(t, first.Cursor, again.Cursor)

	onB := reconcile(t, w.syncB, f.trip.ID)
	assert.Equal(t, 0, onB.Pushed)
	assert.Equal(t, 4, onB.Pulled)

	againB := reconcile(t, w.syncB, f.trip.ID)
	assert.Zero(t, againB.Succeeded())

	tripB, err := w.b.trips.GetTrip(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Equal(t, f.trip.Name, tripB.Name)
	assert.True(t, tripB.IsSynced)
	assert.False(t, tripB.IsLocal)

	membersB, err := w.b.roster.ListMembers(ctx, f.trip.ID)
	require.NoError(t, err)
	expensesB, err := w.b.expenses.ListExpenses(ctx, f.trip.ID)
	require.NoError(t, err)
	balancesB := usecase.CalculateBalances(f.trip.ID, membersB, expensesB)
	assert.True(t, balanceOf(t, balancesB, f.members[0].ID).NetBalance.Equal(dec("-30")))

	unsynced, err := w.a.store.Sync().ListUnsynced(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestSyncReconciler_NewerRemoteWins(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	e := f.addExpense(t, f.admin, "60")
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	edit := func(d *device, description string) {
		_, err := d.expenses.UpdateExpense(ctx, usecase.UpdateExpenseInput{
			ExpenseInput:  usecase.ExpenseInput{Description: description, Amount: dec("60"), Category: domain.CategoryFood, PaidBy: f.admin.ID, IsGroupExpense: true},
			ExpenseID:     e.ID,
			ActorMemberID: f.admin.ID,
		})
		require.NoError(t, err)
	}
	edit(w.a, "older edit")
	edit(w.b, "newer edit")

	reconcile(t, w.syncB, f.trip.ID)
	out := reconcile(t, w.syncA, f.trip.ID)

	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, domain.RemoteWins, out.Conflicts[0].Resolution)
	assert.Equal(t, e.ID, out.Conflicts[0].ID)

	onA, err := w.a.expenses.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer edit", onA.Description)
	assert.True(t, onA.IsSynced)

	again := reconcile(t, w.syncA, f.trip.ID)
	assert.Zero(t, again.Succeeded())
}

func TestSyncReconciler_NewerLocalWins(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	older, newer := "Faro", "Braga"
	_, err := w.b.trips.UpdateTrip(ctx, usecase.UpdateTripInput{TripID: f.trip.ID, ActorUserID: "user-admin", Name: &older})
	require.NoError(t, err)
	reconcile(t, w.syncB, f.trip.ID)

	_, err = w.a.trips.UpdateTrip(ctx, usecase.UpdateTripInput{TripID: f.trip.ID, ActorUserID: "user-admin", Name: &newer})
	require.NoError(t, err)
	outA := reconcile(t, w.syncA, f.trip.ID)
	assert.Equal(t, 1, outA.Pushed)

	reconcile(t, w.syncB, f.trip.ID)

	for _, d := range []*device{w.a, w.b} {
		trip, err := d.trips.GetTrip(ctx, f.trip.ID)
		require.NoError(t, err)
		assert.Equal(t, newer, trip.Name)
	}
}

func TestSyncReconciler_DeletesPropagate(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	e := f.addExpense(t, f.admin, "60")
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	_, err := w.b.expenses.UpdateExpense(ctx, usecase.UpdateExpenseInput{
		ExpenseInput:  usecase.ExpenseInput{Description: "edited offline", Amount: dec("10"), Category: domain.CategoryFood, PaidBy: f.admin.ID},
		ExpenseID:     e.ID,
		ActorMemberID: f.admin.ID,
	})
	require.NoError(t, err)

	require.NoError(t, w.a.expenses.DeleteExpense(ctx, e.ID, f.admin.ID))
	outA := reconcile(t, w.syncA, f.trip.ID)
	assert.Equal(t, 1, outA.Pushed)

	markers, err := w.a.store.Sync().ListDeleteMarkers(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Empty(t, markers, "pushed markers are cleared")

	outB := reconcile(t, w.syncB, f.trip.ID)
	assert.Equal(t, 1, outB.Deleted)
	require.Len(t, outB.Conflicts, 1)
	assert.Equal(t, domain.DeleteWins, outB.Conflicts[0].Resolution)

	_, err = w.b.expenses.GetExpense(ctx, e.ID)
	assert.ErrorIs(t, err, domain.ErrExpenseNotFound)

	members, err := w.b.roster.ListMembers(ctx, f.trip.ID)
	require.NoError(t, err)
	expenses, err := w.b.expenses.ListExpenses(ctx, f.trip.ID)
	require.NoError(t, err)
	tb := usecase.CalculateBalances(f.trip.ID, members, expenses)
	for _, b := range tb.Balances {
		assert.True(t, b.IsSettled(), "member %s should be settled", b.MemberID)
	}
}

func TestSyncReconciler_TripDeletionCascades(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	f.addExpense(t, f.admin, "60")
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	require.NoError(t, w.a.trips.DeleteTrip(ctx, f.trip.ID, "user-admin"))
	reconcile(t, w.syncA, f.trip.ID)

	outB := reconcile(t, w.syncB, f.trip.ID)
	assert.GreaterOrEqual(t, outB.Deleted, 1)

	_, err := w.b.trips.GetTrip(ctx, f.trip.ID)
	assert.ErrorIs(t, err, domain.ErrTripNotFound)
	members, err := w.b.roster.ListMembers(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestSyncReconciler_PartialFailures(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTripFixture(t)
	remote := mocks.NewMockRemoteLedger(ctrl)

	remote.EXPECT().Push(gomock.Any(), gomock.Any()).Return(domain.PushOutcome{}, errors.New("connection reset")).Times(2)

	member := &domain.TripMember{ID: "remote-member", TripID: f.trip.ID, DisplayName: "Remote", Role: domain.RoleMember}
	memberRec, err := domain.MemberRecord(member)
	require.NoError(t, err)
	memberRec.LastModified = testEpoch.Add(time.Hour)

	staleTrip, err := domain.TripRecord(f.trip)
	require.NoError(t, err)
	staleTrip.LastModified = testEpoch.Add(-time.Hour)

	remote.EXPECT().Pull(gomock.Any(), f.trip.ID, "").Return(&domain.PullResult{
		Records: []domain.SyncRecord{memberRec, staleTrip},
		Cursor:  "7",
	}, nil)

	r := usecase.NewSyncReconciler(usecase.SyncReconcilerConfig{Store: f.store, Remote: remote, Logger: zerolog.Nop()})
	out, err := r.ReconcileNow(ctx, f.trip.ID)
	require.NoError(t, err)

	assert.Len(t, out.Failed, 2)
	for _, failure := range out.Failed {
		assert.Equal(t, "push", failure.Phase)
		assert.Equal(t, domain.KindDependency, domain.KindOf(failure.Err))
	}
	assert.Error(t, out.Err())

	assert.Equal(t, 1, out.Pulled)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, domain.LocalWins, out.Conflicts[0].Resolution)
	assert.Equal(t, "7", out.Cursor)

	trip, err := f.store.Trips().GetByID(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Equal(t, f.trip.Name, trip.Name)
	assert.False(t, trip.IsSynced)

	unsynced, err := f.store.Sync().ListUnsynced(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Len(t, unsynced, 2, "failed pushes stay queued")
}

func TestSyncReconciler_CursorHeldOnMergeFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTripFixture(t)
	require.NoError(t, f.store.Sync().SaveCursor(ctx, f.trip.ID, "3"))
	remote := mocks.NewMockRemoteLedger(ctrl)
	remote.EXPECT().Push(gomock.Any(), gomock.Any()).Return(domain.PushOutcome{Status: domain.PushApplied}, nil).AnyTimes()

	member := &domain.TripMember{ID: "remote-member", TripID: f.trip.ID, DisplayName: "Remote", Role: domain.RoleMember}
	rec, err := domain.MemberRecord(member)
	require.NoError(t, err)
	rec.LastModified = testEpoch.Add(time.Hour)
	remote.EXPECT().Pull(gomock.Any(), f.trip.ID, "3").Return(&domain.PullResult{Records: []domain.SyncRecord{rec}, Cursor: "4"}, nil)

	f.store.SyncRepo.ApplyRemoteFunc = func(ctx context.Context, record domain.SyncRecord) error {
		return errors.New("constraint failed")
	}

	r := usecase.NewSyncReconciler(usecase.SyncReconcilerConfig{Store: f.store, Remote: remote, Logger: zerolog.Nop()})
	out, err := r.ReconcileNow(ctx, f.trip.ID)
	require.NoError(t, err)

	require.Len(t, out.Failed, 1)
	assert.Equal(t, "pull", out.Failed[0].Phase)
	assert.Equal(t, "remote-member", out.Failed[0].ID)

	cursor, err := f.store.Sync().Cursor(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", cursor)
}

func TestSyncReconciler_PullsEveryPageParentsFirst(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockLedgerStore()
	remote := mocks.NewMockRemoteLedger(ctrl)

	trip := &domain.Trip{ID: "trip-9", Name: "Remote trip", CreatedBy: "u", StartDate: testEpoch}
	member := &domain.TripMember{ID: "m-1", TripID: "trip-9", DisplayName: "M", Role: domain.RoleAdmin}
	tripRec, err := domain.TripRecord(trip)
	require.NoError(t, err)
	memberRec, err := domain.MemberRecord(member)
	require.NoError(t, err)
	tripRec.LastModified, memberRec.LastModified = testEpoch, testEpoch

	gomock.InOrder(
		remote.EXPECT().Pull(gomock.Any(), "trip-9", "").Return(&domain.PullResult{Records: []domain.SyncRecord{memberRec}, Cursor: "1", HasMore: true}, nil),
		remote.EXPECT().Pull(gomock.Any(), "trip-9", "1").Return(&domain.PullResult{Records: []domain.SyncRecord{tripRec}, Cursor: "2"}, nil),
	)

	var applied []domain.RecordKind
	store.SyncRepo.ApplyRemoteFunc = func(ctx context.Context, record domain.SyncRecord) error {
		applied = append(applied, record.Kind)
		return nil
	}

	r := usecase.NewSyncReconciler(usecase.SyncReconcilerConfig{Store: store, Remote: remote, Logger: zerolog.Nop()})
	out, err := r.ReconcileNow(ctx, "trip-9")
	require.NoError(t, err)

	assert.Equal(t, []domain.RecordKind{domain.KindTrip, domain.KindMember}, applied)
	assert.Equal(t, 2, out.Pulled)
	assert.Equal(t, "2", out.Cursor)
}

func TestSyncReconciler_ReconcileAll(t *testing.T) {
	w := newSyncWorld()
	f1 := newTripFixtureOn(t, w.a, "bo")
	f2 := newTripFixtureOn(t, w.a, "cy")

	outcomes, err := w.syncA.ReconcileAll(context.Background(), []string{f1.trip.ID, f2.trip.ID})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, f1.trip.ID, outcomes[0].TripID)
	assert.Equal(t, f2.trip.ID, outcomes[1].TripID)
	assert.Equal(t, 3, outcomes[0].Pushed)
	assert.Equal(t, 3, outcomes[1].Pushed)

	_, err = w.syncA.ReconcileNow(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidIDFormat)
}

func hasConflict(out *domain.ReconcileOutcome, kind domain.RecordKind, id string, resolution domain.Resolution) bool {
	for _, c := range out.Conflicts {
		if c.Kind == kind && c.ID == id && c.Resolution == resolution {
			return true
		}
	}
	return false
}

func pendingIDs(t *testing.T, d *device, tripID string) []string {
	t.Helper()
	settlements, err := d.settlements.ListSettlements(context.Background(), tripID)
	require.NoError(t, err)
	var ids []string
	for _, s := range settlements {
		if s.IsPending() {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func TestSyncReconciler_PendingPairCollisionKeepsLowerID(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	input := usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: f.admin.ID, Amount: dec("15")}
	onA, err := w.a.settlements.CreateSettlement(ctx, input)
	require.NoError(t, err)
	onB, err := w.b.settlements.CreateSettlement(ctx, input)
	require.NoError(t, err)
	require.Less(t, onA.ID, onB.ID)

	reconcile(t, w.syncA, f.trip.ID)

	outB := reconcile(t, w.syncB, f.trip.ID)
	assert.True(t, hasConflict(outB, domain.KindSettlement, onB.ID, domain.RemoteWins), "conflicts: %+v", outB.Conflicts)
	assert.Equal(t, []string{onA.ID}, pendingIDs(t, w.b, f.trip.ID))

	outA := reconcile(t, w.syncA, f.trip.ID)
	require.Len(t, outA.Conflicts, 1)
	assert.Equal(t, domain.LocalWins, outA.Conflicts[0].Resolution)
	assert.Equal(t, onB.ID, outA.Conflicts[0].ID)

	again := reconcile(t, w.syncB, f.trip.ID)
	assert.Equal(t, 1, again.Pushed, "the discarded duplicate is deleted remotely")
	reconcile(t, w.syncA, f.trip.ID)

	for _, d := range []*device{w.a, w.b} {
		assert.Equal(t, []string{onA.ID}, pendingIDs(t, d, f.trip.ID))
	}
	page, err := w.remote.PullPage(ctx, f.trip.ID, "", 0)
	require.NoError(t, err)
	for _, rec := range page.Records {
		assert.NotEqual(t, onB.ID, rec.ID)
	}
}

func TestSyncReconciler_PendingPairCollisionIsNotRetriedForever(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	input := usecase.CreateSettlementInput{TripID: f.trip.ID, FromMemberID: f.members[0].ID, ToMemberID: f.admin.ID, Amount: dec("15")}
	_, err := w.a.settlements.CreateSettlement(ctx, input)
	require.NoError(t, err)
	_, err = w.b.settlements.CreateSettlement(ctx, input)
	require.NoError(t, err)
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	f.addExpense(t, f.admin, "30")
	reconcile(t, w.syncA, f.trip.ID)

	outB := reconcile(t, w.syncB, f.trip.ID)
	assert.Equal(t, 1, outB.Pulled)

	expenses, err := w.b.expenses.ListExpenses(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestSyncReconciler_OfflineEditIntoDeletedTrip(t *testing.T) {
	ctx := context.Background()
	w := newSyncWorld()
	f := newTripFixtureOn(t, w.a, "bo")
	reconcile(t, w.syncA, f.trip.ID)
	reconcile(t, w.syncB, f.trip.ID)

	bDevice := &tripFixture{device: w.b, trip: f.trip, admin: f.admin, members: f.members}
	late := bDevice.addExpense(t, f.admin, "25")

	require.NoError(t, w.a.trips.DeleteTrip(ctx, f.trip.ID, "user-admin"))
	reconcile(t, w.syncA, f.trip.ID)

	outB := reconcile(t, w.syncB, f.trip.ID)
	assert.Zero(t, outB.Pushed)
	assert.True(t, hasConflict(outB, domain.KindExpense, late.ID, domain.DeleteWins), "conflicts: %+v", outB.Conflicts)

	_, err := w.b.expenses.GetExpense(ctx, late.ID)
	assert.ErrorIs(t, err, domain.ErrExpenseNotFound)
	_, err = w.b.trips.GetTrip(ctx, f.trip.ID)
	assert.ErrorIs(t, err, domain.ErrTripNotFound)

	page, err := w.remote.PullPage(ctx, f.trip.ID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}
