package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed providers and a starter set of instruments",
	Long: `Insert the canonical data providers (Alpha Vantage, FRED) and a small
starter set of commodity instruments. Providers are upserted; instruments
that already exist are left untouched.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type seedInstrument struct {
	symbol     string
	name       string
	unit       string
	provider   string
	externalID string
}

var starterInstruments = []seedInstrument{
	{symbol: "WTI", name: "Crude Oil (WTI)", unit: "barrel", provider: models.ProviderFRED, externalID: "DCOILWTICO"},
	{symbol: "BRENT", name: "Crude Oil (Brent)", unit: "barrel", provider: models.ProviderFRED, externalID: "DCOILBRENTEU"},
	{symbol: "NATGAS", name: "Natural Gas (Henry Hub)", unit: "MMBtu", provider: models.ProviderFRED, externalID: "DHHNGSP"},
	{symbol: "GLD", name: "SPDR Gold Shares", unit: "share", provider: models.ProviderAlphaVantage},
	{symbol: "SLV", name: "iShares Silver Trust", unit: "share", provider: models.ProviderAlphaVantage},
	{symbol: "USO", name: "United States Oil Fund", unit: "share", provider: models.ProviderAlphaVantage},
}

func runSeed(cmd *cobra.Command, args []string) error {
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

	providers := []*models.Provider{
		{
			ID:                 uuid.NewString(),
			Name:               models.ProviderAlphaVantage,
			Description:        "Equity and commodity ETF time series",
			BaseURL:            cfg.Providers.AlphaVantage.BaseURL,
			APIKeyRequired:     true,
			RateLimitPerMinute: 5,
			IsActive:           true,
		},
		{
			ID:                 uuid.NewString(),
			Name:               models.ProviderFRED,
			Description:        "Federal Reserve economic data series",
			BaseURL:            cfg.Providers.FRED.BaseURL,
			APIKeyRequired:     true,
			RateLimitPerMinute: 120,
			IsActive:           true,
		},
	}

	for _, p := range providers {
		existing, err := db.GetProviderByName(ctx, p.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			p.ID = existing.ID
		}
		if err := db.UpsertProvider(ctx, p); err != nil {
			return err
		}
		log.WithField("provider", p.Name).Info("Seeded provider")
	}

	for _, si := range starterInstruments {
		existing, err := db.GetInstrumentBySymbol(ctx, si.symbol)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		p, err := db.GetProviderByName(ctx, si.provider)
		if err != nil {
			return err
		}

		inst := &models.Instrument{
			ID:                    uuid.NewString(),
			Symbol:                si.symbol,
			Name:                  si.name,
			Unit:                  si.unit,
			Currency:              "USD",
			ProviderID:            p.ID,
			ExternalID:            si.externalID,
			IsActive:              true,
			UpdateFrequencyMinute: 60,
		}
		if err := db.CreateInstrument(ctx, inst); err != nil {
			return err
		}
		log.WithField("symbol", si.symbol).Info("Seeded instrument")
	}

	log.Info("Seed complete")
	return nil
}
