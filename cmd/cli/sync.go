package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iho/tripledger/internal/domain"
)

func newSyncCmd(a *app) *cobra.Command {
	var (
		tripID string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local trips with the remote ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			failed := false
			w, cleanup, err := a.newSyncWorker(ctx, tripID, func(o *domain.ReconcileOutcome) {
				if len(o.Failed) > 0 {
					failed = true
				}
				printOutcome(out, o)
			})
			if err != nil {
				return err
			}
			defer cleanup()

			if watch {
				err := w.Start(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			if err := w.RunOnce(ctx); err != nil {
				return err
			}
			if failed {
				return errors.New("some records could not be synced")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tripID, "trip", "", "Only sync this trip")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep syncing on a timer and on remote changes")
	return cmd
}
