package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply the database schema",
	Long: `Apply the MySQL schema for providers, instruments, price observations
and the update run ledger. Statements are idempotent, so the command is safe
to run against an existing database.`,
	RunE: runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which schema tables exist",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func openDatabase() (*database.MySQLClient, error) {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}
	return database.NewMySQLClient(&cfg.MySQL, log)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return err
	}

	fmt.Println("Migration complete")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.MigrationStatus(context.Background())
	if err != nil {
		return err
	}

	for _, table := range []string{"providers", "instruments", "price_observations", "update_runs"} {
		state := "missing"
		if status[table] {
			state = "ok"
		}
		fmt.Printf("%-20s %s\n", table, state)
	}
	return nil
}
