package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iho/tripledger/internal/usecase"
)

func newSettleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settlement operations",
	}

	cmd.AddCommand(
		newSettleCreateCmd(a),
		newSettleConfirmCmd(a),
		newSettleCancelCmd(a),
		newSettleListCmd(a),
	)
	return cmd
}

func newSettleCreateCmd(a *app) *cobra.Command {
	var from, to, amount, notes string

	cmd := &cobra.Command{
		Use:   "create TRIP",
		Short: "Record a payment from one member to another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := a.actor(ctx, args[0])
			if err != nil {
				return err
			}
			if from == "" {
				from = actor
			}

			value, err := parseAmount(amount)
			if err != nil {
				return err
			}

			input := usecase.CreateSettlementInput{
				TripID:        args[0],
				FromMemberID:  from,
				ToMemberID:    to,
				ActorMemberID: actor,
				Amount:        value,
			}
			if notes != "" {
				input.Notes = &notes
			}

			s, err := a.settlements.CreateSettlement(ctx, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created settlement (%s): %s %s\n",
				s.ID, formatAmount(s.Amount, a.currency), s.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Paying member (default: you)")
	cmd.Flags().StringVar(&to, "to", "", "Receiving member")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount paid")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newSettleConfirmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm SETTLEMENT",
		Short: "Confirm that a payment was received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.settlements.GetSettlement(ctx, args[0])
			if err != nil {
				return err
			}
			actor, err := a.actor(ctx, s.TripID)
			if err != nil {
				return err
			}

			confirmed, err := a.settlements.ConfirmSettlement(ctx, s.ID, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settlement %s %s at %s\n",
				confirmed.ID, confirmed.Status, confirmed.SettledAt.Format(dateLayout))
			return nil
		},
	}
}

func newSettleCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel SETTLEMENT",
		Short: "Cancel a pending settlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.settlements.GetSettlement(ctx, args[0])
			if err != nil {
				return err
			}
			actor, err := a.requireActor(ctx, s.TripID)
			if err != nil {
				return err
			}
			if err := a.settlements.CancelSettlement(ctx, s.ID, actor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled settlement %s\n", s.ID)
			return nil
		},
	}
}

func newSettleListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list TRIP",
		Short: "List a trip's settlements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settlements, err := a.settlements.ListSettlements(ctx, args[0])
			if err != nil {
				return err
			}
			members, err := a.members.ListMembers(ctx, args[0])
			if err != nil {
				return err
			}
			names := memberNames(members)

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tFROM\tTO\tAMOUNT\tSTATUS\tSYNC\t")
			for _, s := range settlements {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
					s.ID, nameOr(names, s.FromMemberID), nameOr(names, s.ToMemberID),
					formatAmount(s.Amount, a.currency), s.Status, syncState(s.SyncMeta))
			}
			return tw.Flush()
		},
	}
}
