package commands

import (
	"github.com/spf13/cobra"
)

var (
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "commodity-tracker",
	Short: "Commodity price tracking backend",
	Long: `A commodity price tracking backend built with Go.

It periodically ingests price data from external providers (Alpha Vantage,
FRED), normalizes it into canonical OHLCV observations, deduplicates against
stored data, and records every ingestion attempt in a durable run ledger.
A REST API serves instruments, price history and asynchronous update
triggers.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
}
