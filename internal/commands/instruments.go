package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
)

// instrumentsCmd groups instrument management subcommands.
var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "Manage tracked instruments",
}

var activateCmd = &cobra.Command{
	Use:   "activate <symbol>",
	Short: "Reactivate a deactivated instrument",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setInstrumentActive(args[0], true)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <symbol>",
	Short: "Deactivate an instrument without deleting its data",
	Long: `Deactivate an instrument. Instruments are never deleted; deactivation
removes them from update sweeps while preserving their observation history
and run ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setInstrumentActive(args[0], false)
	},
}

func init() {
	rootCmd.AddCommand(instrumentsCmd)
	instrumentsCmd.AddCommand(activateCmd)
	instrumentsCmd.AddCommand(deactivateCmd)
}

func setInstrumentActive(symbol string, active bool) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	db, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	instrument, err := db.GetInstrumentBySymbol(ctx, symbol)
	if err != nil {
		return err
	}
	if instrument == nil {
		return fmt.Errorf("unknown instrument: %s", symbol)
	}

	if err := db.SetInstrumentActive(ctx, instrument.ID, active); err != nil {
		return err
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Printf("Instrument %s %s\n", instrument.Symbol, state)
	return nil
}
