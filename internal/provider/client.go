// Package provider contains the API clients for external market data
// sources and the orchestrator that resolves which client serves a given
// instrument. Clients are stateless apart from a reusable HTTP client and
// surface provider-specific error envelopes as the typed failures in
// pkg/errs.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Family tags the payload shape a provider returns, so the normalizer can
// dispatch without inspecting concrete client types.
type Family string

const (
	// FamilyTimeSeries marks Alpha-Vantage-like payloads: a JSON object
	// keyed by date strings containing nested price fields.
	FamilyTimeSeries Family = "time-series"
	// FamilyObservations marks FRED-like payloads: a flat observations
	// array of {date, value} pairs.
	FamilyObservations Family = "observations"
)

// FetchOptions are the optional per-request knobs accepted by the clients.
// Zero values mean provider defaults.
type FetchOptions struct {
	OutputSize       string // alpha vantage: "compact" or "full"
	Limit            int    // fred: max observations
	SortOrder        string // fred: "asc" or "desc"
	ObservationStart string // fred: YYYY-MM-DD
	ObservationEnd   string // fred: YYYY-MM-DD
	Frequency        string // fred: d, w, m, q, a
}

// Client is the contract every provider client implements.
type Client interface {
	// Name returns the canonical provider name.
	Name() string
	// BuildParams shapes the query parameters for an operation against the
	// provider. The identifier is the instrument's symbol or external id.
	BuildParams(operation, identifier string, opts FetchOptions) url.Values
	// FetchSeries pulls the raw time-series payload for an identifier. It
	// fails with *errs.FetchError on transport/HTTP/decoding failures,
	// *errs.RateLimitError when the payload signals throttling, and
	// *errs.APIKeyMissingError when credentials are rejected.
	FetchSeries(ctx context.Context, identifier string, opts FetchOptions) (map[string]interface{}, error)
}

// Payload is a raw provider response plus the family tag the normalizer
// dispatches on.
type Payload struct {
	Raw    map[string]interface{}
	Family Family
}

const userAgentFormat = "commodity-tracker/1.0 (%s)"

// getJSON performs a GET request and decodes the JSON object body. The
// caller supplies the fully built URL with query parameters.
func getJSON(ctx context.Context, httpClient *http.Client, clientName, rawURL string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf(userAgentFormat, clientName))
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the keep-alive connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return body, nil
}
