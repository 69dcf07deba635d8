package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iho/tripledger/internal/domain"
	"github.com/iho/tripledger/internal/usecase"
)

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Trip member operations",
	}

	cmd.AddCommand(
		newMemberAddCmd(a),
		newMemberRemoveCmd(a),
		newMemberRoleCmd(a, "promote", "Make a member an admin", domain.RoleAdmin),
		newMemberRoleCmd(a, "demote", "Make an admin a regular member", domain.RoleMember),
		newMemberRenameCmd(a),
	)
	return cmd
}

func newMemberAddCmd(a *app) *cobra.Command {
	var (
		userID string
		admin  bool
	)

	cmd := &cobra.Command{
		Use:   "add TRIP NAME",
		Short: "Add a member, or a guest when no --user is given",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := a.requireActor(ctx, args[0])
			if err != nil {
				return err
			}

			input := usecase.AddMemberInput{
				TripID:        args[0],
				ActorMemberID: actor,
				DisplayName:   args[1],
				Role:          domain.RoleMember,
			}
			if userID != "" {
				input.UserID = &userID
			}
			if admin {
				input.Role = domain.RoleAdmin
			}

			m, err := a.members.AddMember(ctx, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) as %s\n", m.DisplayName, m.ID, m.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Account id of the new member")
	cmd.Flags().BoolVar(&admin, "admin", false, "Add the member as an admin")
	return cmd
}

func newMemberRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove MEMBER",
		Short: "Remove a member without activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := a.memberActor(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.members.RemoveMember(ctx, args[0], actor); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed member %s\n", args[0])
			return nil
		},
	}
}

func newMemberRoleCmd(a *app, use, short string, role domain.Role) *cobra.Command {
	return &cobra.Command{
		Use:   use + " MEMBER",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := a.memberActor(ctx, args[0])
			if err != nil {
				return err
			}
			m, err := a.members.ChangeRole(ctx, args[0], role, actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", m.DisplayName, m.Role)
			return nil
		},
	}
}

func newMemberRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename MEMBER NAME",
		Short: "Change a member's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, err := a.memberActor(ctx, args[0])
			if err != nil {
				return err
			}
			m, err := a.members.RenameMember(ctx, args[0], args[1], actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", m.ID, m.DisplayName)
			return nil
		},
	}
}

// memberActor resolves the acting member within the trip of memberID.
func (a *app) memberActor(ctx context.Context, memberID string) (string, error) {
	m, err := a.store.Members().GetByID(ctx, memberID)
	if err != nil {
		return "", err
	}
	return a.requireActor(ctx, m.TripID)
}
