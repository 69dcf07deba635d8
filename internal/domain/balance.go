package domain

import "github.com/shopspring/decimal"

// Epsilon is the tolerance below which an amount counts as zero.
var Epsilon = decimal.New(1, -2)

// Balance is a member's derived position within a trip.
type Balance struct {
	MemberID   string
	MemberName string
	TotalPaid  decimal.Decimal
	TotalOwed  decimal.Decimal
	NetBalance decimal.Decimal
}

// IsCreditor reports whether the member is owed money.
func (b Balance) IsCreditor() bool {
	return b.NetBalance.GreaterThan(Epsilon)
}

// IsDebtor reports whether the member owes money.
func (b Balance) IsDebtor() bool {
	return b.NetBalance.LessThan(Epsilon.Neg())
}

// IsSettled reports whether the member is within a cent of zero.
func (b Balance) IsSettled() bool {
	return !b.IsCreditor() && !b.IsDebtor()
}

// TripBalance aggregates the balances of every member of a trip.
type TripBalance struct {
	TripID        string
	Balances      []Balance
	TotalExpenses decimal.Decimal
}

// SimplifiedDebt is one directed transfer of a minimal settling set.
type SimplifiedDebt struct {
	FromMemberID string
	ToMemberID   string
	Amount       decimal.Decimal
}

// WithinEpsilon reports whether a and b differ by at most Epsilon.
func WithinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// RoundCents rounds d to two decimal places, halves away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
