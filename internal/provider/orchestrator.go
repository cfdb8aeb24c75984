package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// registration binds a provider name to its payload family and a lazy
// client constructor. Clients are stateless and cached after first use.
type registration struct {
	family    Family
	construct func() (Client, error)
}

// Fetcher resolves the provider client for an instrument and returns the
// raw payload. Provider names are matched case-insensitively against a
// fixed registry.
type Fetcher struct {
	registry map[string]registration
	clients  map[string]Client
	mu       sync.Mutex
	logger   *logrus.Entry
}

// NewFetcher creates a fetch orchestrator with the built-in provider
// registry (Alpha Vantage and FRED).
func NewFetcher(cfg *config.ProvidersConfig, log *logrus.Logger) *Fetcher {
	f := &Fetcher{
		registry: make(map[string]registration),
		clients:  make(map[string]Client),
		logger:   log.WithField("component", "fetcher"),
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	avCfg := cfg.AlphaVantage
	f.Register(models.ProviderAlphaVantage, FamilyTimeSeries, func() (Client, error) {
		return NewAlphaVantageClient(&avCfg, timeout, log)
	})
	fredCfg := cfg.FRED
	f.Register(models.ProviderFRED, FamilyObservations, func() (Client, error) {
		return NewFREDClient(&fredCfg, timeout, log)
	})

	return f
}

// Register adds a provider to the registry. The name is matched
// case-insensitively at lookup time.
func (f *Fetcher) Register(name string, family Family, construct func() (Client, error)) {
	f.registry[strings.ToLower(name)] = registration{family: family, construct: construct}
}

// FamilyFor returns the payload family for a provider name, failing with
// *errs.ConfigurationError for unknown providers.
func (f *Fetcher) FamilyFor(providerName string) (Family, error) {
	reg, ok := f.registry[strings.ToLower(providerName)]
	if !ok {
		return "", errs.NewConfiguration("no API client configured for source: %s", providerName)
	}
	return reg.family, nil
}

// clientFor returns the cached client for a provider name, constructing it
// on first use.
func (f *Fetcher) clientFor(providerName string) (Client, Family, error) {
	key := strings.ToLower(providerName)

	reg, ok := f.registry[key]
	if !ok {
		return nil, "", errs.NewConfiguration("no API client configured for source: %s", providerName)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[key]; ok {
		return client, reg.family, nil
	}

	client, err := reg.construct()
	if err != nil {
		return nil, "", err
	}
	f.clients[key] = client
	return client, reg.family, nil
}

// FetchFor fetches the raw payload for an instrument from its configured
// provider. Registry misses surface as *errs.ConfigurationError; any client
// failure is wrapped as *errs.FetchError with instrument context, keeping
// the original typed cause reachable via errors.As.
func (f *Fetcher) FetchFor(ctx context.Context, instrument *models.Instrument, opts FetchOptions) (*Payload, error) {
	client, family, err := f.clientFor(instrument.ProviderName)
	if err != nil {
		var cfgErr *errs.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, errs.NewFetch(err, "failed to fetch data for %s", instrument.Symbol)
	}

	raw, err := client.FetchSeries(ctx, instrument.FetchIdentifier(), opts)
	if err != nil {
		f.logger.WithError(err).WithField("symbol", instrument.Symbol).Error("Fetch failed")
		return nil, errs.NewFetch(err, "failed to fetch data for %s", instrument.Symbol)
	}

	return &Payload{Raw: raw, Family: family}, nil
}
