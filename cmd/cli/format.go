package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/iho/tripledger/internal/domain"
)

const dateLayout = "2006-01-02"

// formatAmount renders d in the display currency, e.g. "$1,234.50".
func formatAmount(d decimal.Decimal, cur *money.Currency) string {
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func syncState(m domain.SyncMeta) string {
	if m.IsSynced {
		return "synced"
	}
	return "pending"
}

func memberNames(members []*domain.TripMember) map[string]string {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName
	}
	return names
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}

func printBalances(out io.Writer, tb domain.TripBalance, cur *money.Currency) {
	tw := newTable(out)
	fmt.Fprintln(tw, "MEMBER\tPAID\tOWED\tNET\t")
	for _, b := range tb.Balances {
		state := "settled"
		switch {
		case b.IsCreditor():
			state = "is owed"
		case b.IsDebtor():
			state = "owes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			b.MemberName,
			formatAmount(b.TotalPaid, cur),
			formatAmount(b.TotalOwed, cur),
			formatAmount(b.NetBalance, cur),
			state)
	}
	tw.Flush()
	fmt.Fprintf(out, "Total expenses: %s\n", formatAmount(tb.TotalExpenses, cur))
}

func printOutcome(out io.Writer, o *domain.ReconcileOutcome) {
	fmt.Fprintf(out, "trip %s: pushed %d, pulled %d, deleted %d, conflicts %d, failed %d\n",
		o.TripID, o.Pushed, o.Pulled, o.Deleted, len(o.Conflicts), len(o.Failed))
	for _, c := range o.Conflicts {
		fmt.Fprintf(out, "  conflict %s %s: %s\n", c.Kind, c.ID, c.Resolution)
	}
	for _, f := range o.Failed {
		fmt.Fprintf(out, "  failed %s %s during %s: %v\n", f.Kind, f.ID, f.Phase, f.Err)
	}
}
