package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

const fredObservationsOp = "series/observations"

// FREDClient fetches series observations from the FRED API. FRED reports
// errors as error_code/error_message fields in the JSON body.
type FREDClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logrus.Entry
}

// NewFREDClient creates a FRED client. It fails with
// *errs.APIKeyMissingError when no API key is configured.
func NewFREDClient(cfg *config.FREDConfig, timeout time.Duration, log *logrus.Logger) (*FREDClient, error) {
	if cfg.APIKey == "" {
		return nil, errs.NewAPIKeyMissing("FRED API key (PROVIDER_FRED_API_KEY) is not configured")
	}

	return &FREDClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     log.WithField("component", "fred"),
	}, nil
}

// Name returns the canonical provider name.
func (c *FREDClient) Name() string { return models.ProviderFRED }

// BuildParams builds the query parameters for a FRED series request.
func (c *FREDClient) BuildParams(operation, identifier string, opts FetchOptions) url.Values {
	params := url.Values{}
	params.Set("series_id", identifier)
	params.Set("api_key", c.apiKey)
	params.Set("file_type", "json")
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.SortOrder != "" {
		params.Set("sort_order", opts.SortOrder)
	}
	if opts.ObservationStart != "" {
		params.Set("observation_start", opts.ObservationStart)
	}
	if opts.ObservationEnd != "" {
		params.Set("observation_end", opts.ObservationEnd)
	}
	if opts.Frequency != "" {
		params.Set("frequency", opts.Frequency)
	}
	return params
}

// FetchSeries fetches observations for a FRED series id.
func (c *FREDClient) FetchSeries(ctx context.Context, identifier string, opts FetchOptions) (map[string]interface{}, error) {
	params := c.BuildParams(fredObservationsOp, identifier, opts)
	requestURL := c.baseURL + "/" + fredObservationsOp + "?" + params.Encode()

	c.logger.WithField("series_id", identifier).Info("Fetching FRED series observations")

	data, err := getJSON(ctx, c.httpClient, "FREDClient", requestURL)
	if err != nil {
		return nil, errs.NewFetch(err, "fred request for %s failed", identifier)
	}

	return c.handleResponse(data, identifier)
}

// handleResponse converts FRED in-body error envelopes into typed failures.
func (c *FREDClient) handleResponse(data map[string]interface{}, identifier string) (map[string]interface{}, error) {
	if len(data) == 0 {
		c.logger.WithField("series_id", identifier).Warn("Empty response from FRED")
		return data, nil
	}

	errorCode, hasCode := data["error_code"]
	errorMessage, _ := data["error_message"].(string)
	if !hasCode && errorMessage == "" {
		return data, nil
	}

	msg := errorMessage
	if msg == "" {
		msg = "FRED API error code: " + formatErrorCode(errorCode)
	}
	c.logger.WithFields(logrus.Fields{"series_id": identifier, "error": msg}).Error("FRED API error")

	if isRateLimitCode(errorCode) || strings.Contains(strings.ToLower(errorMessage), "rate limit") {
		return nil, errs.NewRateLimit("fred rate limit exceeded: %s", msg)
	}
	return nil, errs.NewFetch(nil, "%s", msg)
}

func formatErrorCode(code interface{}) string {
	switch v := code.(type) {
	case float64:
		return strconv.Itoa(int(v))
	case string:
		return v
	default:
		return "unknown"
	}
}

func isRateLimitCode(code interface{}) bool {
	// JSON numbers decode as float64.
	if v, ok := code.(float64); ok {
		return int(v) == http.StatusTooManyRequests
	}
	return false
}
