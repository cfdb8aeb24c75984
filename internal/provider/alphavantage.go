package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// Alpha Vantage operations used by this service.
const avFunctionDailyAdjusted = "TIME_SERIES_DAILY_ADJUSTED"

// AlphaVantageClient fetches daily time series from the Alpha Vantage API.
// Alpha Vantage reports errors and throttling inside 200 responses, so the
// client inspects the decoded body rather than trusting the HTTP status.
type AlphaVantageClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logrus.Entry
}

// NewAlphaVantageClient creates an Alpha Vantage client. It fails with
// *errs.APIKeyMissingError when no API key is configured.
func NewAlphaVantageClient(cfg *config.AlphaVantageConfig, timeout time.Duration, log *logrus.Logger) (*AlphaVantageClient, error) {
	if cfg.APIKey == "" {
		return nil, errs.NewAPIKeyMissing("Alpha Vantage API key (PROVIDER_ALPHA_VANTAGE_API_KEY) is not configured")
	}

	return &AlphaVantageClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     log.WithField("component", "alphavantage"),
	}, nil
}

// Name returns the canonical provider name.
func (c *AlphaVantageClient) Name() string { return models.ProviderAlphaVantage }

// BuildParams builds the query parameters common to Alpha Vantage series
// functions.
func (c *AlphaVantageClient) BuildParams(operation, identifier string, opts FetchOptions) url.Values {
	params := url.Values{}
	params.Set("function", operation)
	params.Set("symbol", identifier)
	params.Set("apikey", c.apiKey)
	if opts.OutputSize != "" {
		params.Set("outputsize", opts.OutputSize)
	}
	return params
}

// FetchSeries fetches the daily adjusted time series for a symbol.
func (c *AlphaVantageClient) FetchSeries(ctx context.Context, identifier string, opts FetchOptions) (map[string]interface{}, error) {
	params := c.BuildParams(avFunctionDailyAdjusted, identifier, opts)
	requestURL := c.baseURL + "/query?" + params.Encode()

	c.logger.WithField("symbol", identifier).Info("Fetching Alpha Vantage daily time series")

	data, err := getJSON(ctx, c.httpClient, "AlphaVantageClient", requestURL)
	if err != nil {
		return nil, errs.NewFetch(err, "alpha vantage request for %s failed", identifier)
	}

	return c.handleResponse(data, identifier)
}

// handleResponse converts Alpha Vantage in-body error envelopes into typed
// failures. An empty body is returned as-is; the normalizer will produce
// zero candidates for it.
func (c *AlphaVantageClient) handleResponse(data map[string]interface{}, identifier string) (map[string]interface{}, error) {
	if len(data) == 0 {
		c.logger.WithField("symbol", identifier).Warn("Empty response from Alpha Vantage")
		return data, nil
	}

	if msg, ok := data["Error Message"].(string); ok {
		return nil, errs.NewFetch(nil, "alpha vantage API error for %s: %s", identifier, msg)
	}

	// Rate limit notes and informational messages arrive inside a 200
	// response under "Note" or "Information".
	note, _ := data["Note"].(string)
	if note == "" {
		note, _ = data["Information"].(string)
	}
	if note != "" {
		c.logger.WithFields(logrus.Fields{"symbol": identifier, "note": note}).Warn("Alpha Vantage API note")
		lower := strings.ToLower(note)
		if strings.Contains(lower, "call frequency") || strings.Contains(lower, "premium endpoint") {
			return nil, errs.NewRateLimit("alpha vantage rate limit exceeded or premium endpoint hit: %s", note)
		}
	}

	return data, nil
}
