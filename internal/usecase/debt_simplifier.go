package usecase

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iho/tripledger/internal/domain"
)

type party struct {
	memberID  string
	remaining decimal.Decimal
}

// SimplifyDebts reduces net balances to a minimal list of transfers using
// greedy largest-first matching. Creditors are taken largest first, debtors
// most negative first, ties broken by member id. Members within a cent of
// zero are left out.
func SimplifyDebts(balances []domain.Balance) []domain.SimplifiedDebt {
	var creditors, debtors []*party
	for _, b := range balances {
		switch {
		case b.IsCreditor():
			creditors = append(creditors, &party{memberID: b.MemberID, remaining: b.NetBalance})
		case b.IsDebtor():
			debtors = append(debtors, &party{memberID: b.MemberID, remaining: b.NetBalance.Neg()})
		}
	}

	sortParties(creditors)
	sortParties(debtors)

	var debts []domain.SimplifiedDebt
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		c, d := creditors[i], debtors[j]

		amount := decimal.Min(c.remaining, d.remaining)
		if amount.GreaterThan(domain.Epsilon) {
			debts = append(debts, domain.SimplifiedDebt{
				FromMemberID: d.memberID,
				ToMemberID:   c.memberID,
				Amount:       domain.RoundCents(amount),
			})
		}

		c.remaining = c.remaining.Sub(amount)
		d.remaining = d.remaining.Sub(amount)

		if c.remaining.LessThanOrEqual(domain.Epsilon) {
			i++
		}
		if d.remaining.LessThanOrEqual(domain.Epsilon) {
			j++
		}
	}

	return debts
}

// sortParties orders by remaining magnitude descending, then member id.
func sortParties(ps []*party) {
	sort.SliceStable(ps, func(a, b int) bool {
		if cmp := ps[a].remaining.Cmp(ps[b].remaining); cmp != 0 {
			return cmp > 0
		}
		return ps[a].memberID < ps[b].memberID
	})
}
