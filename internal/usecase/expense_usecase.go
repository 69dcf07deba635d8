package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripledger/internal/domain"
)

// ExpenseUseCase handles expense business logic. An expense is always
// written together with its splits.
type ExpenseUseCase struct {
	store LedgerStore
	locks *TripLocks
	idGen IDGenerator
	clock Clock
}

// NewExpenseUseCase creates a new ExpenseUseCase.
func NewExpenseUseCase(store LedgerStore, locks *TripLocks, idGen IDGenerator, clock Clock) *ExpenseUseCase {
	return &ExpenseUseCase{
		store: store,
		locks: orNewLocks(locks),
		idGen: idGen,
		clock: orSystemClock(clock),
	}
}

// ExpenseInput describes the content of an expense.
//
// For a group expense, Shares assigns explicit amounts per member and must
// add up to Amount. Without Shares the amount is split equally across
// Participants, or across every member when Participants is empty.
// A non-group expense is owed entirely by its payer.
type ExpenseInput struct {
	Date           time.Time
	Shares         map[string]decimal.Decimal
	Participants   []string
	Description    string
	Category       domain.Category
	PaidBy         string
	Amount         decimal.Decimal
	IsGroupExpense bool
}

// AddExpenseInput represents input for adding an expense.
type AddExpenseInput struct {
	ExpenseInput
	TripID        string
	ActorMemberID string
}

// UpdateExpenseInput represents input for replacing an expense's content.
type UpdateExpenseInput struct {
	ExpenseInput
	ExpenseID     string
	ActorMemberID string
}

// AddExpense records a new expense with its splits.
func (uc *ExpenseUseCase) AddExpense(ctx context.Context, input AddExpenseInput) (*domain.ExpenseWithSplits, error) {
	if err := validateExpenseInput(input.ExpenseInput); err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(input.TripID)
	defer unlock()

	actor, err := tripMember(ctx, uc.store, input.TripID, input.ActorMemberID)
	if err != nil {
		return nil, err
	}

	now := uc.clock()
	expense := &domain.ExpenseWithSplits{
		Expense: domain.Expense{
			ID:        uc.idGen.Generate(),
			TripID:    input.TripID,
			CreatedAt: domain.Timestamp(now),
		},
	}
	if actor.UserID != nil {
		expense.CreatedBy = *actor.UserID
	}

	if err := uc.fill(ctx, expense, input.ExpenseInput, now); err != nil {
		return nil, err
	}

	if err := uc.store.Expenses().Save(ctx, expense); err != nil {
		return nil, domain.WrapDependency("expenses.save", err)
	}

	return expense, nil
}

// UpdateExpense replaces an expense's content and regenerates its splits.
// Only the expense creator or a trip admin may do this.
func (uc *ExpenseUseCase) UpdateExpense(ctx context.Context, input UpdateExpenseInput) (*domain.ExpenseWithSplits, error) {
	if err := validateExpenseInput(input.ExpenseInput); err != nil {
		return nil, err
	}

	existing, err := uc.getExpense(ctx, input.ExpenseID)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(existing.TripID)
	defer unlock()

	if err := uc.authorizeEdit(ctx, existing, input.ActorMemberID); err != nil {
		return nil, err
	}

	// Re-read under the lock.
	current, err := uc.getExpense(ctx, input.ExpenseID)
	if err != nil {
		return nil, err
	}

	updated := &domain.ExpenseWithSplits{Expense: current.Expense}
	if err := uc.fill(ctx, updated, input.ExpenseInput, uc.clock()); err != nil {
		return nil, err
	}

	if err := uc.store.Expenses().Save(ctx, updated); err != nil {
		return nil, domain.WrapDependency("expenses.save", err)
	}

	return updated, nil
}

// DeleteExpense removes an expense and its splits. Only the expense creator
// or a trip admin may do this.
func (uc *ExpenseUseCase) DeleteExpense(ctx context.Context, expenseID, actorMemberID string) error {
	existing, err := uc.getExpense(ctx, expenseID)
	if err != nil {
		return err
	}

	unlock := uc.locks.Lock(existing.TripID)
	defer unlock()

	if err := uc.authorizeEdit(ctx, existing, actorMemberID); err != nil {
		return err
	}

	if err := uc.store.Expenses().Delete(ctx, expenseID, domain.Timestamp(uc.clock())); err != nil {
		return domain.WrapDependency("expenses.delete", err)
	}

	return nil
}

// GetExpense retrieves an expense with its splits.
func (uc *ExpenseUseCase) GetExpense(ctx context.Context, expenseID string) (*domain.ExpenseWithSplits, error) {
	return uc.getExpense(ctx, expenseID)
}

// ListExpenses lists the expenses of a trip.
func (uc *ExpenseUseCase) ListExpenses(ctx context.Context, tripID string) ([]*domain.ExpenseWithSplits, error) {
	expenses, err := uc.store.Expenses().ListByTrip(ctx, tripID)
	if err != nil {
		return nil, domain.WrapDependency("expenses.list", err)
	}
	return expenses, nil
}

func (uc *ExpenseUseCase) getExpense(ctx context.Context, expenseID string) (*domain.ExpenseWithSplits, error) {
	e, err := uc.store.Expenses().GetByID(ctx, expenseID)
	if err != nil {
		return nil, domain.WrapDependency("expenses.get", err)
	}
	return e, nil
}

func (uc *ExpenseUseCase) authorizeEdit(ctx context.Context, e *domain.ExpenseWithSplits, actorMemberID string) error {
	actor, err := tripMember(ctx, uc.store, e.TripID, actorMemberID)
	if err != nil {
		return err
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.UserID != nil && e.CreatedBy != "" && *actor.UserID == e.CreatedBy {
		return nil
	}
	return domain.ErrNotExpenseEditor
}

// fill applies input onto e, rebuilding splits and denormalized names from
// the trip's current members.
func (uc *ExpenseUseCase) fill(ctx context.Context, e *domain.ExpenseWithSplits, input ExpenseInput, now time.Time) error {
	members, err := uc.store.Members().ListByTrip(ctx, e.TripID)
	if err != nil {
		return domain.WrapDependency("members.list", err)
	}

	payer := domain.FindMember(members, input.PaidBy)
	if payer == nil {
		return domain.ErrMemberNotInTrip
	}

	e.Description = strings.TrimSpace(input.Description)
	e.Amount = input.Amount
	e.Category = input.Category
	e.Date = domain.Timestamp(input.Date)
	if input.Date.IsZero() {
		e.Date = domain.Timestamp(now)
	}
	e.PaidBy = payer.ID
	e.PaidByName = payer.DisplayName
	e.IsGroupExpense = input.IsGroupExpense

	splits, err := uc.buildSplits(e.ID, members, payer, input, now)
	if err != nil {
		return err
	}
	e.Splits = splits
	e.Touch(now)

	return e.Validate()
}

func (uc *ExpenseUseCase) buildSplits(expenseID string, members []*domain.TripMember, payer *domain.TripMember, input ExpenseInput, now time.Time) ([]domain.ExpenseSplit, error) {
	newSplit := func(m *domain.TripMember, amount decimal.Decimal) domain.ExpenseSplit {
		return domain.ExpenseSplit{
			ID:         uc.idGen.Generate(),
			ExpenseID:  expenseID,
			MemberID:   m.ID,
			MemberName: m.DisplayName,
			AmountOwed: amount,
			CreatedAt:  domain.Timestamp(now),
		}
	}

	if !input.IsGroupExpense {
		return []domain.ExpenseSplit{newSplit(payer, input.Amount)}, nil
	}

	if len(input.Shares) > 0 {
		ids := make([]string, 0, len(input.Shares))
		for id := range input.Shares {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		splits := make([]domain.ExpenseSplit, 0, len(ids))
		for _, id := range ids {
			m := domain.FindMember(members, id)
			if m == nil {
				return nil, domain.ErrMemberNotInTrip
			}
			splits = append(splits, newSplit(m, input.Shares[id]))
		}
		return splits, nil
	}

	participants := make([]*domain.TripMember, 0, len(members))
	if len(input.Participants) == 0 {
		participants = append(participants, members...)
	} else {
		seen := make(map[string]bool, len(input.Participants))
		for _, id := range input.Participants {
			if seen[id] {
				return nil, domain.ErrDuplicateParticipant
			}
			seen[id] = true
			m := domain.FindMember(members, id)
			if m == nil {
				return nil, domain.ErrMemberNotInTrip
			}
			participants = append(participants, m)
		}
	}
	if len(participants) == 0 {
		return nil, domain.ErrNoParticipants
	}
	sort.SliceStable(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })

	shares := domain.EqualShares(input.Amount, len(participants))
	splits := make([]domain.ExpenseSplit, 0, len(participants))
	for i, m := range participants {
		splits = append(splits, newSplit(m, shares[i]))
	}
	return splits, nil
}

// validateExpenseInput runs the checks that need no store access.
func validateExpenseInput(input ExpenseInput) error {
	if err := domain.ValidateName(input.Description, domain.ErrInvalidDescription); err != nil {
		return err
	}
	if err := domain.ValidateAmount(input.Amount); err != nil {
		return err
	}
	if _, err := domain.ParseCategory(string(input.Category)); err != nil {
		return err
	}
	for _, amount := range input.Shares {
		if amount.IsNegative() {
			return domain.ErrInvalidSplitAmount
		}
	}
	return nil
}
