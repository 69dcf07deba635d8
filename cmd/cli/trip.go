package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/tripledger/internal/usecase"
)

func newTripCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trip",
		Short: "Trip operations",
	}

	cmd.AddCommand(
		newTripCreateCmd(a),
		newTripListCmd(a),
		newTripShowCmd(a),
		newTripDeleteCmd(a),
		newTripCheckCmd(a),
	)
	return cmd
}

func newTripCreateCmd(a *app) *cobra.Command {
	var start, end, description string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a trip with yourself as admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := usecase.CreateTripInput{
				Name:          args[0],
				StartDate:     time.Now().UTC().Truncate(24 * time.Hour),
				CreatorUserID: a.cfg.UserID,
				CreatorName:   a.cfg.UserName,
			}
			if start != "" {
				t, err := parseDate(start)
				if err != nil {
					return err
				}
				input.StartDate = t
			}
			if end != "" {
				t, err := parseDate(end)
				if err != nil {
					return err
				}
				input.EndDate = &t
			}
			if description != "" {
				input.Description = &description
			}

			trip, admin, err := a.trips.CreateTrip(cmd.Context(), input)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created trip %q (%s)\n", trip.Name, trip.ID)
			fmt.Fprintf(out, "Admin member: %s (%s)\n", admin.DisplayName, admin.ID)
			fmt.Fprintf(out, "Invite code: %s\n", trip.InviteCode)
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Start date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&end, "end", "", "End date YYYY-MM-DD")
	cmd.Flags().StringVar(&description, "description", "", "Trip description")
	return cmd
}

func newTripListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trips on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trips, err := a.trips.ListTrips(cmd.Context())
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tSTART\tSYNC\t")
			for _, t := range trips {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", t.ID, truncate(t.Name, 32), t.StartDate.Format(dateLayout), syncState(t.SyncMeta))
			}
			return tw.Flush()
		},
	}
}

func newTripShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show TRIP",
		Short: "Show a trip and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			trip, err := a.trips.GetTrip(ctx, args[0])
			if err != nil {
				return err
			}
			members, err := a.members.ListMembers(ctx, trip.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trip:        %s (%s)\n", trip.Name, trip.ID)
			if trip.Description != nil {
				fmt.Fprintf(out, "Description: %s\n", *trip.Description)
			}
			dates := trip.StartDate.Format(dateLayout)
			if trip.EndDate != nil {
				dates += " to " + trip.EndDate.Format(dateLayout)
			}
			fmt.Fprintf(out, "Dates:       %s\n", dates)
			fmt.Fprintf(out, "Invite code: %s\n\n", trip.InviteCode)

			tw := newTable(out)
			fmt.Fprintln(tw, "MEMBER\tNAME\tROLE\tACCOUNT\t")
			for _, m := range members {
				account := "guest"
				if m.UserID != nil {
					account = *m.UserID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", m.ID, m.DisplayName, m.Role, account)
			}
			return tw.Flush()
		},
	}
}

func newTripDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TRIP",
		Short: "Delete a trip and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.trips.DeleteTrip(cmd.Context(), args[0], a.cfg.UserID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted trip %s\n", args[0])
			return nil
		},
	}
}

func newTripCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check TRIP",
		Short: "Check that splits and balances add up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.ledger.CheckTrip(cmd.Context(), args[0])
			if err != nil && !errors.Is(err, usecase.ErrInconsistentLedger) {
				return err
			}

			out := cmd.OutOrStdout()
			if report.Consistent() {
				fmt.Fprintf(out, "Consistency check PASSED\n")
				fmt.Fprintf(out, "Net sum: %s\n", report.NetSum.StringFixed(2))
				return nil
			}

			fmt.Fprintf(out, "Consistency check FAILED\n")
			fmt.Fprintf(out, "Net sum: %s (tolerance %s)\n", report.NetSum.StringFixed(2), report.Tolerance.StringFixed(2))
			for _, v := range report.Violations {
				fmt.Fprintf(out, "  expense %s: %v\n", v.ExpenseID, v.Err)
			}
			return err
		},
	}
}
