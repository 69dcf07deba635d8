package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}

	rootCmd := &cobra.Command{
		Use:           "tripledger",
		Short:         "Shared trip expense ledger",
		Long:          `An offline-first ledger for shared trip expenses that syncs with a remote ledger server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default $HOME/.tripledger.yaml)")
	flags.String("db", "", "Path of the local ledger database")
	flags.String("remote", "", "Base URL of the remote ledger server")
	flags.String("redis", "", "Redis URL for remote change notifications")
	flags.Duration("sync-interval", 0, "Interval between sync cycles in watch mode")
	flags.String("currency", "", "ISO currency code used to display amounts")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("user-id", "", "Account id of the person using this device")
	flags.String("user-name", "", "Display name used when creating trips")
	flags.String("as", "", "Member id to act as (default: your member in the trip)")
	for _, name := range configKeys {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newTripCmd(a),
		newMemberCmd(a),
		newExpenseCmd(a),
		newSettleCmd(a),
		newBalancesCmd(a),
		newDebtsCmd(a),
		newSyncCmd(a),
	)

	return rootCmd
}
