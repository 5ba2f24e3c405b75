package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath      string
	flagLogLevel string
	rootCmd      = &cobra.Command{
		Use:   "bridge-relay",
		Short: "Relay bridge events between the home and foreign ledgers",
		Long: `bridge-relay watches the token, custodian and pool contracts and submits the
matching transactions as the configured authority. A master runs every relay;
an authority only confirms and carries withdrawals.`,
	}
)

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override global.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(
		versionCmd,
		validateCmd,
		runCmd,
		stateCmd,
	)
}

// Execute runs the root command tree.
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
