package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is the closed set of expense categories.
type Category string

const (
	CategoryFood          Category = "FOOD"
	CategoryTransport     Category = "TRANSPORT"
	CategoryAccommodation Category = "ACCOMMODATION"
	CategoryEntertainment Category = "ENTERTAINMENT"
	CategoryShopping      Category = "SHOPPING"
	CategoryOther         Category = "OTHER"
)

var validCategories = map[Category]bool{
	CategoryFood:          true,
	CategoryTransport:     true,
	CategoryAccommodation: true,
	CategoryEntertainment: true,
	CategoryShopping:      true,
	CategoryOther:         true,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !validCategories[c] {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// Expense is a single payment made by one member on behalf of the trip.
type Expense struct {
	ID             string
	TripID         string
	Description    string
	Amount         decimal.Decimal
	Category       Category
	Date           time.Time
	PaidBy         string
	PaidByName     string
	CreatedBy      string
	IsGroupExpense bool
	CreatedAt      time.Time
	SyncMeta
}

// ExpenseSplit is the portion of one expense owed by one member.
type ExpenseSplit struct {
	ID         string
	ExpenseID  string
	MemberID   string
	MemberName string
	AmountOwed decimal.Decimal
	CreatedAt  time.Time
}

// ExpenseWithSplits is an expense together with all of its splits. It is
// always read and written as one unit.
type ExpenseWithSplits struct {
	Expense
	Splits []ExpenseSplit
}

// Validate checks the expense fields and the split-sum invariant.
func (e *ExpenseWithSplits) Validate() error {
	if err := ValidateName(e.Description, ErrInvalidDescription); err != nil {
		return err
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return err
	}
	if len(e.Splits) == 0 {
		return ErrNoParticipants
	}

	seen := make(map[string]bool, len(e.Splits))
	sum := decimal.Zero
	for _, s := range e.Splits {
		if seen[s.MemberID] {
			return ErrDuplicateParticipant
		}
		seen[s.MemberID] = true
		if s.AmountOwed.IsNegative() {
			return ErrInvalidSplitAmount
		}
		sum = sum.Add(s.AmountOwed)
	}
	if !WithinEpsilon(sum, e.Amount) {
		return ErrSplitSumMismatch
	}

	if !e.IsGroupExpense {
		if len(e.Splits) != 1 || e.Splits[0].MemberID != e.PaidBy || !e.Splits[0].AmountOwed.Equal(e.Amount) {
			return ErrNonGroupSplitPayer
		}
	}
	return nil
}

// SplitFor returns the split owed by memberID, or nil.
func (e *ExpenseWithSplits) SplitFor(memberID string) *ExpenseSplit {
	for i := range e.Splits {
		if e.Splits[i].MemberID == memberID {
			return &e.Splits[i]
		}
	}
	return nil
}

// EqualShares divides amount across n participants in whole cents. The cents
// left over after an even division go one each to the first participants.
func EqualShares(amount decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	cents := amount.Shift(2).Round(0).IntPart()
	base := cents / int64(n)
	rem := cents % int64(n)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		c := base
		if int64(i) < rem {
			c++
		}
		shares[i] = decimal.New(c, -2)
	}
	return shares
}
