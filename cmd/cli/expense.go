package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
)

// expenseFlags are the content flags shared by expense add and update.
type expenseFlags struct {
	paidBy       string
	amount       string
	description  string
	category     string
	date         string
	participants []string
	shares       map[string]string
	personal     bool
}

func (f *expenseFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.paidBy, "paid-by", "", "Member who paid (default: you)")
	flags.StringVar(&f.amount, "amount", "", "Amount paid, e.g. 42.50")
	flags.StringVar(&f.description, "description", "", "What the money was spent on")
	flags.StringVar(&f.category, "category", string(domain.CategoryOther), "FOOD, TRANSPORT, ACCOMMODATION, ENTERTAINMENT, SHOPPING or OTHER")
	flags.StringVar(&f.date, "date", "", "Date YYYY-MM-DD (default today)")
	flags.StringSliceVar(&f.participants, "participants", nil, "Members sharing the expense equally (default: everyone)")
	flags.StringToStringVar(&f.shares, "share", nil, "Explicit amount owed per member, e.g. --share m1=10,m2=5.5")
	flags.BoolVar(&f.personal, "personal", false, "Not a group expense, owed entirely by the payer")
}

// apply overlays the flags the user set on input.
func (f *expenseFlags) apply(cmd *cobra.Command, input *usecase.ExpenseInput) error {
	changed := cmd.Flags().Changed

	if changed("paid-by") {
		input.PaidBy = f.paidBy
	}
	if changed("amount") {
		amount, err := parseAmount(f.amount)
		if err != nil {
			return err
		}
		input.Amount = amount
	}
	if changed("description") {
		input.Description = f.description
	}
	if changed("category") || input.Category == "" {
		c, err := domain.ParseCategory(strings.ToUpper(f.category))
		if err != nil {
			return err
		}
		input.Category = c
	}
	if changed("date") {
		d, err := parseDate(f.date)
		if err != nil {
			return err
		}
		input.Date = d
	}
	if changed("participants") {
		input.Participants = f.participants
		input.Shares = nil
	}
	if changed("share") {
		shares := make(map[string]decimal.Decimal, len(f.shares))
		for member, raw := range f.shares {
			amount, err := parseAmount(raw)
			if err != nil {
				return err
			}
			shares[member] = amount
		}
		input.Shares = shares
		input.Participants = nil
	}
	if changed("personal") {
		input.IsGroupExpense = !f.personal
	}
	return nil
}

func newExpenseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Expense operations",
	}

	cmd.AddCommand(
		newExpenseAddCmd(a),
		newExpenseUpdateCmd(a),
		newExpenseDeleteCmd(a),
		newExpenseListCmd(a),
	)
	return cmd
}

func newExpenseAddCmd(a *app) *cobra.Command {
	var f expenseFlags

	cmd := &cobra.Command{
		Use:   "add TRIP",
		Short: "Record an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := a.requireActor(ctx, args[0])
			if err != nil {
				return err
			}

			input := usecase.ExpenseInput{
				PaidBy:         actor,
				Date:           time.Now().UTC().Truncate(24 * time.Hour),
				IsGroupExpense: true,
			}
			if err := f.apply(cmd, &input); err != nil {
				return err
			}

			e, err := a.expenses.AddExpense(ctx, usecase.AddExpenseInput{
				ExpenseInput:  input,
				TripID:        args[0],
				ActorMemberID: actor,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added expense %q (%s): %s paid by %s\n",
				e.Description, e.ID, formatAmount(e.Amount, a.currency), e.PaidByName)
			return nil
		},
	}

	f.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newExpenseUpdateCmd(a *app) *cobra.Command {
	var f expenseFlags

	cmd := &cobra.Command{
		Use:   "update EXPENSE",
		Short: "Change an expense; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.expenses.GetExpense(ctx, args[0])
			if err != nil {
				return err
			}
			actor, err := a.requireActor(ctx, e.TripID)
			if err != nil {
				return err
			}

			input := expenseInputFrom(e)
			if err := f.apply(cmd, &input); err != nil {
				return err
			}

			updated, err := a.expenses.UpdateExpense(ctx, usecase.UpdateExpenseInput{
				ExpenseInput:  input,
				ExpenseID:     e.ID,
				ActorMemberID: actor,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated expense %s: %s %s\n",
				updated.ID, updated.Description, formatAmount(updated.Amount, a.currency))
			return nil
		},
	}

	f.register(cmd)
	return cmd
}

// expenseInputFrom rebuilds the input that produces e. Splits become
// explicit shares so an update that only changes the description keeps them.
func expenseInputFrom(e *domain.ExpenseWithSplits) usecase.ExpenseInput {
	input := usecase.ExpenseInput{
		Date:           e.Date,
		Description:    e.Description,
		Category:       e.Category,
		PaidBy:         e.PaidBy,
		Amount:         e.Amount,
		IsGroupExpense: e.IsGroupExpense,
	}
	if e.IsGroupExpense {
		input.Shares = make(map[string]decimal.Decimal, len(e.Splits))
		for _, s := range e.Splits {
			input.Shares[s.MemberID] = s.AmountOwed
		}
	}
	return input
}

func newExpenseDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete EXPENSE",
		Short: "Delete an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := a.expenses.GetExpense(ctx, args[0])
			if err != nil {
				return err
			}
			actor, err := a.requireActor(ctx, e.TripID)
			if err != nil {
				return err
			}
			if err := a.expenses.DeleteExpense(ctx, e.ID, actor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted expense %s\n", e.ID)
			return nil
		},
	}
}

func newExpenseListCmd(a *app) *cobra.Command {
	var splits bool

	cmd := &cobra.Command{
		Use:   "list TRIP",
		Short: "List a trip's expenses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expenses, err := a.expenses.ListExpenses(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sort.SliceStable(expenses, func(i, j int) bool {
				return expenses[i].Date.Before(expenses[j].Date)
			})

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tCATEGORY\tAMOUNT\tPAID BY\tSYNC\t")
			for _, e := range expenses {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
					e.ID, e.Date.Format(dateLayout), truncate(e.Description, 30), e.Category,
					formatAmount(e.Amount, a.currency), e.PaidByName, syncState(e.SyncMeta))
				if splits {
					for _, s := range e.Splits {
						fmt.Fprintf(tw, "\t\t  %s\t\t%s\t\t\t\n", s.MemberName, formatAmount(s.AmountOwed, a.currency))
					}
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&splits, "splits", false, "Show who owes what for each expense")
	return cmd
}
