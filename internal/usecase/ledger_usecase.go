package usecase

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iho/tripledger/internal/domain"
)

var (
	// ErrInconsistentLedger is returned when a trip's splits or balances do not add up.
	ErrInconsistentLedger = errors.New("ledger is inconsistent: splits or balances do not add up")
)

// ExpenseViolation is one expense breaking a split invariant.
type ExpenseViolation struct {
	ExpenseID string
	Err       error
}

// ConsistencyReport is the result of checking one trip.
type ConsistencyReport struct {
	TripID     string
	Violations []ExpenseViolation
	NetSum     decimal.Decimal
	Tolerance  decimal.Decimal
}

// Consistent reports whether no invariant was broken.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.Violations) == 0 && r.NetSum.Abs().LessThanOrEqual(r.Tolerance)
}

// LedgerUseCase handles trip-wide checks.
type LedgerUseCase struct {
	store LedgerStore
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(store LedgerStore) *LedgerUseCase {
	return &LedgerUseCase{
		store: store,
	}
}

// CheckTrip verifies that every expense's splits add up to its amount and
// that member balances sum to zero.
func (uc *LedgerUseCase) CheckTrip(ctx context.Context, tripID string) (*ConsistencyReport, error) {
	members, err := uc.store.Members().ListByTrip(ctx, tripID)
	if err != nil {
		return nil, domain.WrapDependency("members.list", err)
	}
	expenses, err := uc.store.Expenses().ListByTrip(ctx, tripID)
	if err != nil {
		return nil, domain.WrapDependency("expenses.list", err)
	}

	report := &ConsistencyReport{TripID: tripID, NetSum: decimal.Zero}

	// Each split may be off by up to a cent, so the tolerance grows with
	// the number of expenses.
	report.Tolerance = domain.Epsilon.Mul(decimal.NewFromInt(int64(max(len(expenses), 1))))

	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			report.Violations = append(report.Violations, ExpenseViolation{ExpenseID: e.ID, Err: err})
		}
		if domain.FindMember(members, e.PaidBy) == nil {
			report.Violations = append(report.Violations, ExpenseViolation{ExpenseID: e.ID, Err: domain.ErrMemberNotInTrip})
		}
		for _, s := range e.Splits {
			if domain.FindMember(members, s.MemberID) == nil {
				report.Violations = append(report.Violations, ExpenseViolation{ExpenseID: e.ID, Err: domain.ErrMemberNotInTrip})
			}
		}
	}

	tb := CalculateBalances(tripID, members, expenses)
	for _, b := range tb.Balances {
		report.NetSum = report.NetSum.Add(b.NetBalance)
	}

	if !report.Consistent() {
		return report, ErrInconsistentLedger
	}

	return report, nil
}
