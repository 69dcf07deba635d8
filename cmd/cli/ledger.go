package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
)

func newBalancesCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "balances TRIP",
		Short: "Show what each member paid, owes and is owed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.trips.GetTrip(ctx, args[0]); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err := a.streamBalances(ctx, args[0], watch, func(tb domain.TripBalance) {
				if watch {
					fmt.Fprintln(out)
				}
				printBalances(out, tb, a.currency)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep printing balances as the ledger changes")
	return cmd
}

// streamBalances renders the trip's balances as they are derived. Without
// watch it stops after the first snapshot.
func (a *app) streamBalances(ctx context.Context, tripID string, watch bool, render func(domain.TripBalance)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for res := range a.observer.ObserveBalances(ctx, tripID) {
		switch res.State() {
		case domain.StateLoading:
			continue
		case domain.StateError:
			return res.Err()
		}

		tb, _ := res.Value()
		render(tb)
		if !watch {
			return nil
		}
	}
	return ctx.Err()
}

func newDebtsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "debts TRIP",
		Short: "Show the fewest payments that settle the trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.trips.GetTrip(ctx, args[0]); err != nil {
				return err
			}
			return a.streamBalances(ctx, args[0], false, func(tb domain.TripBalance) {
				printDebts(cmd.OutOrStdout(), a, tb)
			})
		},
	}
}

func printDebts(out io.Writer, a *app, tb domain.TripBalance) {
	names := make(map[string]string, len(tb.Balances))
	for _, b := range tb.Balances {
		names[b.MemberID] = b.MemberName
	}

	debts := usecase.SimplifyDebts(tb.Balances)
	if len(debts) == 0 {
		fmt.Fprintln(out, "Everyone is settled up")
		return
	}
	for _, d := range debts {
		fmt.Fprintf(out, "%s pays %s %s\n", nameOr(names, d.FromMemberID), nameOr(names, d.ToMemberID), formatAmount(d.Amount, a.currency))
	}
}
