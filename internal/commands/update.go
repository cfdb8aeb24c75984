package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/cache"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/ledger"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/messaging"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/normalize"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/reconcile"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/updater"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
)

var (
	updateSymbol string
	updateAll    bool
	updateDirect bool
	outputSize   string
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Trigger a price update",
	Long: `Trigger the ingestion pipeline for one instrument or all active
instruments. By default the update is enqueued onto the task queue and
picked up by a running server's worker; --direct runs the pipeline
in-process instead, which is useful for operations and backfills when no
server is running.

Examples:
  commodity-tracker update --symbol WTI
  commodity-tracker update --all
  commodity-tracker update --symbol WTI --direct
  commodity-tracker update --all --direct --output-size full`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVarP(&updateSymbol, "symbol", "s", "", "instrument symbol to update")
	updateCmd.Flags().BoolVar(&updateAll, "all", false, "update all active instruments")
	updateCmd.Flags().BoolVar(&updateDirect, "direct", false, "run the pipeline in-process instead of enqueuing")
	updateCmd.Flags().StringVar(&outputSize, "output-size", "", "provider output size (compact or full)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	if updateSymbol == "" && !updateAll {
		return fmt.Errorf("either --symbol or --all is required")
	}

	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	opts := provider.FetchOptions{OutputSize: cfg.Updater.OutputSize}
	if outputSize != "" {
		opts.OutputSize = outputSize
	}

	ctx := context.Background()

	db, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if !updateDirect {
		return enqueueUpdate(ctx, cfg, db, log, opts)
	}

	// The latest-price cache is optional here; a missing Redis should not
	// block an operational backfill.
	var latest updater.LatestCache
	if redisCache, err := cache.NewRedisClient(&cfg.Redis, log); err != nil {
		log.WithError(err).Warn("Redis unavailable, skipping latest-price cache updates")
	} else {
		defer redisCache.Close()
		latest = redisCache
	}

	svc := updater.NewService(
		provider.NewFetcher(&cfg.Providers, log),
		normalize.New(log),
		reconcile.New(db, cfg.Updater.InsertBatchSize, log),
		ledger.New(db, log),
		db, latest, cfg.Updater.Concurrency, log,
	)

	if updateAll {
		runs, err := svc.UpdateAllActive(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Printf("Update sweep finished: %d successful runs\n", len(runs))
		return nil
	}

	instrument, err := db.GetInstrumentBySymbol(ctx, updateSymbol)
	if err != nil {
		return err
	}
	if instrument == nil {
		return fmt.Errorf("unknown instrument: %s", updateSymbol)
	}

	result := svc.UpdateInstrument(ctx, instrument, uuid.NewString(), opts)
	fmt.Println(result.Message)
	if !result.Success {
		return fmt.Errorf("update did not succeed")
	}
	return nil
}

// enqueueUpdate publishes the update task for a running server's worker.
func enqueueUpdate(ctx context.Context, cfg *config.Config, db *database.MySQLClient, log *logrus.Logger, opts provider.FetchOptions) error {
	tasks, err := messaging.NewTaskClient(&cfg.NATS, log)
	if err != nil {
		return err
	}
	defer tasks.Close()

	if updateAll {
		correlationID, err := tasks.EnqueueAllUpdate(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Printf("Enqueued update sweep, correlation id %s\n", correlationID)
		return nil
	}

	instrument, err := db.GetInstrumentBySymbol(ctx, updateSymbol)
	if err != nil {
		return err
	}
	if instrument == nil {
		return fmt.Errorf("unknown instrument: %s", updateSymbol)
	}

	correlationID, err := tasks.EnqueueInstrumentUpdate(ctx, instrument.ID, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Enqueued update for %s, correlation id %s\n", instrument.Symbol, correlationID)
	return nil
}
