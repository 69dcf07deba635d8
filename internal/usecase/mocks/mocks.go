package mocks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
)

type recordKey struct {
	kind domain.RecordKind
	id   string
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func cloneExpense(e *domain.ExpenseWithSplits) *domain.ExpenseWithSplits {
	c := *e
	c.Splits = append([]domain.ExpenseSplit(nil), e.Splits...)
	return &c
}

// MockLedgerStore is an in-memory implementation of LedgerStore. Reads return
// copies, local deletes leave delete markers and every mutation signals the
// trip's Changes subscribers.
type MockLedgerStore struct {
	mu          sync.RWMutex
	trips       map[string]*domain.Trip
	members     map[string]*domain.TripMember
	expenses    map[string]*domain.ExpenseWithSplits
	settlements map[string]*domain.Settlement
	markers     map[recordKey]domain.DeleteMarker
	cursors     map[string]string

	subMu sync.Mutex
	subs  map[string]map[chan struct{}]struct{}

	TripRepo       *MockTripRepository
	MemberRepo     *MockMemberRepository
	ExpenseRepo    *MockExpenseRepository
	SettlementRepo *MockSettlementRepository
	SyncRepo       *MockSyncRepository
}

func NewMockLedgerStore() *MockLedgerStore {
	s := &MockLedgerStore{
		trips:       make(map[string]*domain.Trip),
		members:     make(map[string]*domain.TripMember),
		expenses:    make(map[string]*domain.ExpenseWithSplits),
		settlements: make(map[string]*domain.Settlement),
		markers:     make(map[recordKey]domain.DeleteMarker),
		cursors:     make(map[string]string),
		subs:        make(map[string]map[chan struct{}]struct{}),
	}
	s.TripRepo = &MockTripRepository{s: s}
	s.MemberRepo = &MockMemberRepository{s: s}
	s.ExpenseRepo = &MockExpenseRepository{s: s}
	s.SettlementRepo = &MockSettlementRepository{s: s}
	s.SyncRepo = &MockSyncRepository{s: s}
	return s
}

func (s *MockLedgerStore) Trips() usecase.TripRepository             { return s.TripRepo }
func (s *MockLedgerStore) Members() usecase.MemberRepository         { return s.MemberRepo }
func (s *MockLedgerStore) Expenses() usecase.ExpenseRepository       { return s.ExpenseRepo }
func (s *MockLedgerStore) Settlements() usecase.SettlementRepository { return s.SettlementRepo }
func (s *MockLedgerStore) Sync() usecase.SyncRepository              { return s.SyncRepo }

func (s *MockLedgerStore) Changes(ctx context.Context, tripID string) <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	if s.subs[tripID] == nil {
		s.subs[tripID] = make(map[chan struct{}]struct{})
	}
	s.subs[tripID][ch] = struct{}{}
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subs[tripID], ch)
		close(ch)
		s.subMu.Unlock()
	}()

	return ch
}

func (s *MockLedgerStore) publish(tripID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs[tripID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *MockLedgerStore) meta(kind domain.RecordKind, id string) *domain.SyncMeta {
	switch kind {
	case domain.KindTrip:
		if t, ok := s.trips[id]; ok {
			return &t.SyncMeta
		}
	case domain.KindMember:
		if m, ok := s.members[id]; ok {
			return &m.SyncMeta
		}
	case domain.KindExpense:
		if e, ok := s.expenses[id]; ok {
			return &e.SyncMeta
		}
	case domain.KindSettlement:
		if st, ok := s.settlements[id]; ok {
			return &st.SyncMeta
		}
	}
	return nil
}

func (s *MockLedgerStore) putMember(m *domain.TripMember) {
	s.members[m.ID] = clone(m)
	for _, e := range s.expenses {
		if e.PaidBy == m.ID {
			e.PaidByName = m.DisplayName
		}
		for i := range e.Splits {
			if e.Splits[i].MemberID == m.ID {
				e.Splits[i].MemberName = m.DisplayName
			}
		}
	}
}

// pendingPairTaken reports whether another pending settlement holds the
// ordered pair of a pending st. Callers hold mu.
func (s *MockLedgerStore) pendingPairTaken(st *domain.Settlement) bool {
	if !st.IsPending() {
		return false
	}
	for _, other := range s.settlements {
		if other.ID != st.ID && other.IsPending() && other.TripID == st.TripID &&
			other.FromMemberID == st.FromMemberID && other.ToMemberID == st.ToMemberID {
			return true
		}
	}
	return false
}

// remove deletes a record and, for trips, everything it owns. It reports
// whether the record existed.
func (s *MockLedgerStore) remove(kind domain.RecordKind, id string) bool {
	switch kind {
	case domain.KindTrip:
		if _, ok := s.trips[id]; !ok {
			return false
		}
		delete(s.trips, id)
		for mid, m := range s.members {
			if m.TripID == id {
				delete(s.members, mid)
			}
		}
		for eid, e := range s.expenses {
			if e.TripID == id {
				delete(s.expenses, eid)
			}
		}
		for sid, st := range s.settlements {
			if st.TripID == id {
				delete(s.settlements, sid)
			}
		}
		delete(s.cursors, id)
		return true
	case domain.KindMember:
		_, ok := s.members[id]
		delete(s.members, id)
		return ok
	case domain.KindExpense:
		_, ok := s.expenses[id]
		delete(s.expenses, id)
		return ok
	case domain.KindSettlement:
		_, ok := s.settlements[id]
		delete(s.settlements, id)
		return ok
	}
	return false
}

func (s *MockLedgerStore) deleteLocal(kind domain.RecordKind, id, tripID string, deletedAt time.Time, notFound error) error {
	s.mu.Lock()
	if !s.remove(kind, id) {
		s.mu.Unlock()
		return notFound
	}
	s.markers[recordKey{kind, id}] = domain.DeleteMarker{Kind: kind, ID: id, TripID: tripID, DeletedAt: domain.Timestamp(deletedAt)}
	s.mu.Unlock()

	s.publish(tripID)
	return nil
}

// MockTripRepository is a mock implementation of TripRepository.
type MockTripRepository struct {
	s *MockLedgerStore

	CreateFunc  func(ctx context.Context, trip *domain.Trip, admin *domain.TripMember) error
	UpdateFunc  func(ctx context.Context, trip *domain.Trip) error
	DeleteFunc  func(ctx context.Context, id string, deletedAt time.Time) error
	GetByIDFunc func(ctx context.Context, id string) (*domain.Trip, error)
	ListFunc    func(ctx context.Context) ([]*domain.Trip, error)
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip, admin *domain.TripMember) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, trip, admin)
	}
	m.s.mu.Lock()
	if _, ok := m.s.trips[trip.ID]; ok {
		m.s.mu.Unlock()
		return fmt.Errorf("trip %s already exists", trip.ID)
	}
	m.s.trips[trip.ID] = clone(trip)
	m.s.members[admin.ID] = clone(admin)
	m.s.mu.Unlock()

	m.s.publish(trip.ID)
	return nil
}

func (m *MockTripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, trip)
	}
	m.s.mu.Lock()
	if _, ok := m.s.trips[trip.ID]; !ok {
		m.s.mu.Unlock()
		return domain.ErrTripNotFound
	}
	m.s.trips[trip.ID] = clone(trip)
	m.s.mu.Unlock()

	m.s.publish(trip.ID)
	return nil
}

func (m *MockTripRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, deletedAt)
	}
	return m.s.deleteLocal(domain.KindTrip, id, id, deletedAt, domain.ErrTripNotFound)
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if t, ok := m.s.trips[id]; ok {
		return clone(t), nil
	}
	return nil, domain.ErrTripNotFound
}

func (m *MockTripRepository) List(ctx context.Context) ([]*domain.Trip, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	trips := make([]*domain.Trip, 0, len(m.s.trips))
	for _, t := range m.s.trips {
		trips = append(trips, clone(t))
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].ID < trips[j].ID })
	return trips, nil
}

// MockMemberRepository is a mock implementation of MemberRepository.
type MockMemberRepository struct {
	s *MockLedgerStore

	CreateFunc      func(ctx context.Context, member *domain.TripMember) error
	UpdateFunc      func(ctx context.Context, member *domain.TripMember) error
	DeleteFunc      func(ctx context.Context, id string, deletedAt time.Time) error
	GetByIDFunc     func(ctx context.Context, id string) (*domain.TripMember, error)
	ListByTripFunc  func(ctx context.Context, tripID string) ([]*domain.TripMember, error)
	HasActivityFunc func(ctx context.Context, id string) (bool, error)
}

func (m *MockMemberRepository) Create(ctx context.Context, member *domain.TripMember) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, member)
	}
	m.s.mu.Lock()
	if _, ok := m.s.trips[member.TripID]; !ok {
		m.s.mu.Unlock()
		return domain.ErrTripNotFound
	}
	m.s.members[member.ID] = clone(member)
	m.s.mu.Unlock()

	m.s.publish(member.TripID)
	return nil
}

func (m *MockMemberRepository) Update(ctx context.Context, member *domain.TripMember) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, member)
	}
	m.s.mu.Lock()
	if _, ok := m.s.members[member.ID]; !ok {
		m.s.mu.Unlock()
		return domain.ErrMemberNotFound
	}
	m.s.putMember(member)
	m.s.mu.Unlock()

	m.s.publish(member.TripID)
	return nil
}

func (m *MockMemberRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, deletedAt)
	}
	m.s.mu.RLock()
	member, ok := m.s.members[id]
	m.s.mu.RUnlock()
	if !ok {
		return domain.ErrMemberNotFound
	}
	return m.s.deleteLocal(domain.KindMember, id, member.TripID, deletedAt, domain.ErrMemberNotFound)
}

func (m *MockMemberRepository) GetByID(ctx context.Context, id string) (*domain.TripMember, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if member, ok := m.s.members[id]; ok {
		return clone(member), nil
	}
	return nil, domain.ErrMemberNotFound
}

func (m *MockMemberRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.TripMember, error) {
	if m.ListByTripFunc != nil {
		return m.ListByTripFunc(ctx, tripID)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	members := []*domain.TripMember{}
	for _, member := range m.s.members {
		if member.TripID == tripID {
			members = append(members, clone(member))
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (m *MockMemberRepository) HasActivity(ctx context.Context, id string) (bool, error) {
	if m.HasActivityFunc != nil {
		return m.HasActivityFunc(ctx, id)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, e := range m.s.expenses {
		if e.PaidBy == id || e.SplitFor(id) != nil {
			return true, nil
		}
	}
	for _, st := range m.s.settlements {
		if st.IsPending() && (st.FromMemberID == id || st.ToMemberID == id) {
			return true, nil
		}
	}
	return false, nil
}

// MockExpenseRepository is a mock implementation of ExpenseRepository.
type MockExpenseRepository struct {
	s *MockLedgerStore

	SaveFunc       func(ctx context.Context, expense *domain.ExpenseWithSplits) error
	DeleteFunc     func(ctx context.Context, id string, deletedAt time.Time) error
	GetByIDFunc    func(ctx context.Context, id string) (*domain.ExpenseWithSplits, error)
	ListByTripFunc func(ctx context.Context, tripID string) ([]*domain.ExpenseWithSplits, error)
}

func (m *MockExpenseRepository) Save(ctx context.Context, expense *domain.ExpenseWithSplits) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, expense)
	}
	m.s.mu.Lock()
	if _, ok := m.s.trips[expense.TripID]; !ok {
		m.s.mu.Unlock()
		return domain.ErrTripNotFound
	}
	m.s.expenses[expense.ID] = cloneExpense(expense)
	m.s.mu.Unlock()

	m.s.publish(expense.TripID)
	return nil
}

func (m *MockExpenseRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, deletedAt)
	}
	m.s.mu.RLock()
	e, ok := m.s.expenses[id]
	m.s.mu.RUnlock()
	if !ok {
		return domain.ErrExpenseNotFound
	}
	return m.s.deleteLocal(domain.KindExpense, id, e.TripID, deletedAt, domain.ErrExpenseNotFound)
}

func (m *MockExpenseRepository) GetByID(ctx context.Context, id string) (*domain.ExpenseWithSplits, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if e, ok := m.s.expenses[id]; ok {
		return cloneExpense(e), nil
	}
	return nil, domain.ErrExpenseNotFound
}

func (m *MockExpenseRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.ExpenseWithSplits, error) {
	if m.ListByTripFunc != nil {
		return m.ListByTripFunc(ctx, tripID)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	expenses := []*domain.ExpenseWithSplits{}
	for _, e := range m.s.expenses {
		if e.TripID == tripID {
			expenses = append(expenses, cloneExpense(e))
		}
	}
	sort.Slice(expenses, func(i, j int) bool { return expenses[i].ID < expenses[j].ID })
	return expenses, nil
}

// MockSettlementRepository is a mock implementation of SettlementRepository.
type MockSettlementRepository struct {
	s *MockLedgerStore

	CreateFunc      func(ctx context.Context, settlement *domain.Settlement) error
	UpdateFunc      func(ctx context.Context, settlement *domain.Settlement) error
	DeleteFunc      func(ctx context.Context, id string, deletedAt time.Time) error
	GetByIDFunc     func(ctx context.Context, id string) (*domain.Settlement, error)
	ListByTripFunc  func(ctx context.Context, tripID string) ([]*domain.Settlement, error)
	FindPendingFunc func(ctx context.Context, tripID, fromMemberID, toMemberID string) (*domain.Settlement, error)
}

func (m *MockSettlementRepository) Create(ctx context.Context, settlement *domain.Settlement) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, settlement)
	}
	m.s.mu.Lock()
	if m.s.pendingPairTaken(settlement) {
		m.s.mu.Unlock()
		return domain.ErrDuplicatePending
	}
	m.s.settlements[settlement.ID] = clone(settlement)
	m.s.mu.Unlock()

	m.s.publish(settlement.TripID)
	return nil
}

func (m *MockSettlementRepository) Update(ctx context.Context, settlement *domain.Settlement) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, settlement)
	}
	m.s.mu.Lock()
	if _, ok := m.s.settlements[settlement.ID]; !ok {
		m.s.mu.Unlock()
		return domain.ErrSettlementNotFound
	}
	m.s.settlements[settlement.ID] = clone(settlement)
	m.s.mu.Unlock()

	m.s.publish(settlement.TripID)
	return nil
}

func (m *MockSettlementRepository) Delete(ctx context.Context, id string, deletedAt time.Time) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, deletedAt)
	}
	m.s.mu.RLock()
	st, ok := m.s.settlements[id]
	m.s.mu.RUnlock()
	if !ok {
		return domain.ErrSettlementNotFound
	}
	return m.s.deleteLocal(domain.KindSettlement, id, st.TripID, deletedAt, domain.ErrSettlementNotFound)
}

func (m *MockSettlementRepository) GetByID(ctx context.Context, id string) (*domain.Settlement, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if st, ok := m.s.settlements[id]; ok {
		return clone(st), nil
	}
	return nil, domain.ErrSettlementNotFound
}

func (m *MockSettlementRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.Settlement, error) {
	if m.ListByTripFunc != nil {
		return m.ListByTripFunc(ctx, tripID)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	settlements := []*domain.Settlement{}
	for _, st := range m.s.settlements {
		if st.TripID == tripID {
			settlements = append(settlements, clone(st))
		}
	}
	sort.Slice(settlements, func(i, j int) bool { return settlements[i].ID < settlements[j].ID })
	return settlements, nil
}

func (m *MockSettlementRepository) FindPending(ctx context.Context, tripID, fromMemberID, toMemberID string) (*domain.Settlement, error) {
	if m.FindPendingFunc != nil {
		return m.FindPendingFunc(ctx, tripID, fromMemberID, toMemberID)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, st := range m.s.settlements {
		if st.IsPending() && st.TripID == tripID && st.FromMemberID == fromMemberID && st.ToMemberID == toMemberID {
			return clone(st), nil
		}
	}
	return nil, nil
}

// MockSyncRepository is a mock implementation of SyncRepository.
type MockSyncRepository struct {
	s *MockLedgerStore

	ListUnsyncedFunc func(ctx context.Context, tripID string) ([]domain.SyncRecord, error)
	MarkSyncedFunc   func(ctx context.Context, kind domain.RecordKind, id string, lastModified time.Time) (bool, error)
	ApplyRemoteFunc  func(ctx context.Context, record domain.SyncRecord) error
	ApplyDeleteFunc  func(ctx context.Context, marker domain.DeleteMarker) (bool, error)
	CursorFunc       func(ctx context.Context, tripID string) (string, error)
	SaveCursorFunc   func(ctx context.Context, tripID, cursor string) error
}

func (m *MockSyncRepository) ListUnsynced(ctx context.Context, tripID string) ([]domain.SyncRecord, error) {
	if m.ListUnsyncedFunc != nil {
		return m.ListUnsyncedFunc(ctx, tripID)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	var records []domain.SyncRecord
	add := func(rec domain.SyncRecord, err error) error {
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	}
	if t, ok := m.s.trips[tripID]; ok && !t.IsSynced {
		if err := add(domain.TripRecord(t)); err != nil {
			return nil, err
		}
	}
	for _, member := range m.s.members {
		if member.TripID == tripID && !member.IsSynced {
			if err := add(domain.MemberRecord(member)); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range m.s.expenses {
		if e.TripID == tripID && !e.IsSynced {
			if err := add(domain.ExpenseRecord(e)); err != nil {
				return nil, err
			}
		}
	}
	for _, st := range m.s.settlements {
		if st.TripID == tripID && !st.IsSynced {
			if err := add(domain.SettlementRecord(st)); err != nil {
				return nil, err
			}
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (m *MockSyncRepository) MarkSynced(ctx context.Context, kind domain.RecordKind, id string, lastModified time.Time) (bool, error) {
	if m.MarkSyncedFunc != nil {
		return m.MarkSyncedFunc(ctx, kind, id, lastModified)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	meta := m.s.meta(kind, id)
	if meta == nil || !meta.LastModified.Equal(lastModified) {
		return false, nil
	}
	meta.IsSynced = true
	meta.IsLocal = false
	return true, nil
}

func (m *MockSyncRepository) ListDeleteMarkers(ctx context.Context, tripID string) ([]domain.DeleteMarker, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var markers []domain.DeleteMarker
	for _, marker := range m.s.markers {
		if marker.TripID == tripID {
			markers = append(markers, marker)
		}
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].ID < markers[j].ID })
	return markers, nil
}

func (m *MockSyncRepository) ClearDeleteMarker(ctx context.Context, kind domain.RecordKind, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.markers, recordKey{kind, id})
	return nil
}

func (m *MockSyncRepository) Version(ctx context.Context, kind domain.RecordKind, id string) (*domain.RecordVersion, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	meta := m.s.meta(kind, id)
	if meta == nil {
		return nil, nil
	}
	return &domain.RecordVersion{LastModified: meta.LastModified, IsSynced: meta.IsSynced}, nil
}

func (m *MockSyncRepository) ApplyRemote(ctx context.Context, record domain.SyncRecord) error {
	if m.ApplyRemoteFunc != nil {
		return m.ApplyRemoteFunc(ctx, record)
	}

	m.s.mu.Lock()
	switch record.Kind {
	case domain.KindTrip:
		t, err := record.Trip()
		if err != nil {
			m.s.mu.Unlock()
			return err
		}
		m.s.trips[t.ID] = t
	case domain.KindMember:
		member, err := record.Member()
		if err != nil {
			m.s.mu.Unlock()
			return err
		}
		m.s.putMember(member)
	case domain.KindExpense:
		e, err := record.Expense()
		if err != nil {
			m.s.mu.Unlock()
			return err
		}
		m.s.expenses[e.ID] = e
	case domain.KindSettlement:
		st, err := record.Settlement()
		if err != nil {
			m.s.mu.Unlock()
			return err
		}
		if m.s.pendingPairTaken(st) {
			m.s.mu.Unlock()
			return domain.ErrDuplicatePending
		}
		m.s.settlements[st.ID] = st
	default:
		m.s.mu.Unlock()
		return domain.ErrInvalidRecordKind
	}
	m.s.mu.Unlock()

	m.s.publish(record.TripID)
	return nil
}

func (m *MockSyncRepository) ApplyDelete(ctx context.Context, marker domain.DeleteMarker) (bool, error) {
	if m.ApplyDeleteFunc != nil {
		return m.ApplyDeleteFunc(ctx, marker)
	}
	m.s.mu.Lock()
	removed := m.s.remove(marker.Kind, marker.ID)
	m.s.mu.Unlock()

	if removed {
		m.s.publish(marker.TripID)
	}
	return removed, nil
}

func (m *MockSyncRepository) Cursor(ctx context.Context, tripID string) (string, error) {
	if m.CursorFunc != nil {
		return m.CursorFunc(ctx, tripID)
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return m.s.cursors[tripID], nil
}

func (m *MockSyncRepository) SaveCursor(ctx context.Context, tripID, cursor string) error {
	if m.SaveCursorFunc != nil {
		return m.SaveCursorFunc(ctx, tripID, cursor)
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.cursors[tripID] = cursor
	return nil
}

type storedRecord struct {
	record   domain.SyncRecord
	revision int64
}

// MockRemoteRecordRepository is an in-memory implementation of
// RemoteRecordRepository. Transactions are ignored.
type MockRemoteRecordRepository struct {
	mu       sync.RWMutex
	records  map[recordKey]storedRecord
	revision int64

	LockTripFunc     func(ctx context.Context, tx usecase.Transaction, tripID string) error
	GetForUpdateFunc func(ctx context.Context, tx usecase.Transaction, kind domain.RecordKind, id string) (*domain.SyncRecord, error)
	UpsertFunc       func(ctx context.Context, tx usecase.Transaction, record domain.SyncRecord) error
	ListChangesFunc  func(ctx context.Context, tripID, cursor string, limit int) ([]domain.SyncRecord, string, error)
}

func NewMockRemoteRecordRepository() *MockRemoteRecordRepository {
	return &MockRemoteRecordRepository{
		records: make(map[recordKey]storedRecord),
	}
}

func (m *MockRemoteRecordRepository) LockTrip(ctx context.Context, tx usecase.Transaction, tripID string) error {
	if m.LockTripFunc != nil {
		return m.LockTripFunc(ctx, tx, tripID)
	}
	return nil
}

func (m *MockRemoteRecordRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, kind domain.RecordKind, id string) (*domain.SyncRecord, error) {
	if m.GetForUpdateFunc != nil {
		return m.GetForUpdateFunc(ctx, tx, kind, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if stored, ok := m.records[recordKey{kind, id}]; ok {
		rec := stored.record
		return &rec, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (m *MockRemoteRecordRepository) Upsert(ctx context.Context, tx usecase.Transaction, record domain.SyncRecord) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.Deleted {
		record.Payload = nil
	}
	m.revision++
	m.records[recordKey{record.Kind, record.ID}] = storedRecord{record: record, revision: m.revision}
	return nil
}

func (m *MockRemoteRecordRepository) DeleteTrip(ctx context.Context, tx usecase.Transaction, tripID string, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, stored := range m.records {
		if stored.record.TripID != tripID || stored.record.Deleted {
			continue
		}
		m.revision++
		stored.record.Deleted = true
		stored.record.Payload = nil
		stored.record.LastModified = deletedAt
		m.records[key] = storedRecord{record: stored.record, revision: m.revision}
	}
	return nil
}

func (m *MockRemoteRecordRepository) ListChanges(ctx context.Context, tripID, cursor string, limit int) ([]domain.SyncRecord, string, error) {
	if m.ListChangesFunc != nil {
		return m.ListChangesFunc(ctx, tripID, cursor, limit)
	}
	var since int64
	if cursor != "" {
		var err error
		if since, err = strconv.ParseInt(cursor, 10, 64); err != nil {
			return nil, "", domain.ErrInvalidCursor
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var changed []storedRecord
	for _, stored := range m.records {
		if stored.record.TripID == tripID && stored.revision > since {
			changed = append(changed, stored)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].revision < changed[j].revision })
	if len(changed) > limit {
		changed = changed[:limit]
	}

	records := make([]domain.SyncRecord, 0, len(changed))
	next := cursor
	for _, stored := range changed {
		records = append(records, stored.record)
		next = strconv.FormatInt(stored.revision, 10)
	}
	return records, next, nil
}

// Get returns the stored version of a record.
func (m *MockRemoteRecordRepository) Get(kind domain.RecordKind, id string) (domain.SyncRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.records[recordKey{kind, id}]
	return stored.record, ok
}

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTransaction{}, nil
}

// MockTransaction is a mock implementation of Transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockIDGenerator is a mock implementation of IDGenerator. Generated ids
// sort in creation order.
type MockIDGenerator struct {
	GenerateFunc func() string
	counter      int
	mu           sync.Mutex
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("mock-id-%04d", m.counter)
}

// MockClock is a manual clock. Every reading advances it by step so
// successive writes get distinct timestamps.
type MockClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewMockClock(start time.Time, step time.Duration) *MockClock {
	return &MockClock{now: start, step: step}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Set moves the clock to t.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// MockIdempotencyStore is a mock implementation of IdempotencyStore.
type MockIdempotencyStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	CheckAndSetFunc func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	UpdateFunc      func(ctx context.Context, key string, response []byte, ttl time.Duration) error
	ReleaseFunc     func(ctx context.Context, key string) error
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{
		data: make(map[string][]byte),
	}
}

func (m *MockIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	if m.CheckAndSetFunc != nil {
		return m.CheckAndSetFunc(ctx, key, response, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.data[key]; ok {
		return true, existing, nil
	}
	if response != nil {
		m.data[key] = response
	} else {
		m.data[key] = []byte(usecase.IdempotencyPending)
	}
	return false, nil, nil
}

func (m *MockIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, key, response, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = response
	return nil
}

func (m *MockIdempotencyStore) Release(ctx context.Context, key string) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Get returns the stored value of key.
func (m *MockIdempotencyStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}
