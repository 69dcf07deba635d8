package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/iho/tripledger/internal/domain"
)

// CalculateBalances derives one Balance per member, in member order, from
// the trip's expenses and splits. Settlements are not inputs.
func CalculateBalances(tripID string, members []*domain.TripMember, expenses []*domain.ExpenseWithSplits) domain.TripBalance {
	paid := make(map[string]decimal.Decimal, len(members))
	owed := make(map[string]decimal.Decimal, len(members))
	total := decimal.Zero

	for _, e := range expenses {
		total = total.Add(e.Amount)
		paid[e.PaidBy] = paid[e.PaidBy].Add(e.Amount)
		for _, s := range e.Splits {
			owed[s.MemberID] = owed[s.MemberID].Add(s.AmountOwed)
		}
	}

	balances := make([]domain.Balance, 0, len(members))
	for _, m := range members {
		totalPaid := domain.RoundCents(paid[m.ID])
		totalOwed := domain.RoundCents(owed[m.ID])
		balances = append(balances, domain.Balance{
			MemberID:   m.ID,
			MemberName: m.DisplayName,
			TotalPaid:  totalPaid,
			TotalOwed:  totalOwed,
			NetBalance: totalPaid.Sub(totalOwed),
		})
	}

	return domain.TripBalance{
		TripID:        tripID,
		Balances:      balances,
		TotalExpenses: total,
	}
}
