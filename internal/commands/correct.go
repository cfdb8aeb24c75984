package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/cache"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

var (
	correctSymbol string
	correctDate   string
	correctOpen   string
	correctHigh   string
	correctLow    string
	correctClose  string
)

// correctCmd represents the correct command
var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Overwrite a stored observation",
	Long: `Overwrite the observation at a given (symbol, date) key. This is the
explicit correction path for bad upstream data: normal ingestion never
replaces an existing observation, so corrections must go through this
command. The latest-price cache entry for the symbol is invalidated.

Example:
  commodity-tracker correct --symbol WTI --date 2024-01-03 --close 74.25`,
	RunE: runCorrect,
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().StringVarP(&correctSymbol, "symbol", "s", "", "instrument symbol (required)")
	correctCmd.Flags().StringVarP(&correctDate, "date", "d", "", "observation date, YYYY-MM-DD (required)")
	correctCmd.Flags().StringVar(&correctOpen, "open", "", "corrected open price")
	correctCmd.Flags().StringVar(&correctHigh, "high", "", "corrected high price")
	correctCmd.Flags().StringVar(&correctLow, "low", "", "corrected low price")
	correctCmd.Flags().StringVar(&correctClose, "close", "", "corrected close price (required)")
	correctCmd.MarkFlagRequired("symbol")
	correctCmd.MarkFlagRequired("date")
	correctCmd.MarkFlagRequired("close")
}

func parsePriceFlag(name, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value %q: %w", name, value, err)
	}
	return &d, nil
}

func runCorrect(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	ts, err := time.ParseInLocation("2006-01-02", correctDate, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid --date value %q: %w", correctDate, err)
	}

	closePrice, err := parsePriceFlag("close", correctClose)
	if err != nil {
		return err
	}
	open, err := parsePriceFlag("open", correctOpen)
	if err != nil {
		return err
	}
	high, err := parsePriceFlag("high", correctHigh)
	if err != nil {
		return err
	}
	low, err := parsePriceFlag("low", correctLow)
	if err != nil {
		return err
	}

	db, err := database.NewMySQLClient(&cfg.MySQL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	instrument, err := db.GetInstrumentBySymbol(ctx, correctSymbol)
	if err != nil {
		return err
	}
	if instrument == nil {
		return fmt.Errorf("unknown instrument: %s", correctSymbol)
	}

	obs := &models.PriceObservation{
		InstrumentID: instrument.ID,
		Timestamp:    ts,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        *closePrice,
		SourceData:   models.JSONMap{"corrected": true},
	}
	if err := db.OverwriteObservation(ctx, obs); err != nil {
		return err
	}

	// Drop the cached latest so reads pick up the corrected row.
	if redisCache, err := cache.NewRedisClient(&cfg.Redis, log); err != nil {
		log.WithError(err).Warn("Redis unavailable, latest-price cache not invalidated")
	} else {
		defer redisCache.Close()
		if err := redisCache.InvalidateLatest(ctx, instrument.Symbol); err != nil {
			log.WithError(err).Warn("Failed to invalidate latest-price cache")
		}
	}

	fmt.Printf("Corrected %s @ %s\n", instrument.Symbol, correctDate)
	return nil
}
