package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
)

func fredClient(t *testing.T, handler http.HandlerFunc) *FREDClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewFREDClient(&config.FREDConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, 5*time.Second, testLogger())
	require.NoError(t, err)
	return client
}

func TestNewFREDClientRequiresAPIKey(t *testing.T) {
	_, err := NewFREDClient(&config.FREDConfig{}, time.Second, testLogger())
	require.Error(t, err)

	var keyErr *errs.APIKeyMissingError
	assert.ErrorAs(t, err, &keyErr)
}

func TestFREDFetchSeries(t *testing.T) {
	client := fredClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series/observations", r.URL.Path)
		assert.Equal(t, "DCOILWTICO", r.URL.Query().Get("series_id"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("file_type"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort_order"))

		w.Write([]byte(`{"observations": [{"date": "2024-01-03", "value": "5.25"}]}`))
	})

	raw, err := client.FetchSeries(context.Background(), "DCOILWTICO", FetchOptions{Limit: 100, SortOrder: "desc"})
	require.NoError(t, err)
	assert.Contains(t, raw, "observations")
}

func TestFREDRateLimitCode(t *testing.T) {
	client := fredClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code": 429, "error_message": "Too Many Requests."}`))
	})

	_, err := client.FetchSeries(context.Background(), "DCOILWTICO", FetchOptions{})
	require.Error(t, err)

	var rateErr *errs.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
}

func TestFREDRateLimitMessage(t *testing.T) {
	client := fredClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code": 400, "error_message": "rate limit exceeded for this key"}`))
	})

	_, err := client.FetchSeries(context.Background(), "DCOILWTICO", FetchOptions{})
	require.Error(t, err)

	var rateErr *errs.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
}

func TestFREDGenericError(t *testing.T) {
	client := fredClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code": 400, "error_message": "Bad Request. The series does not exist."}`))
	})

	_, err := client.FetchSeries(context.Background(), "BOGUS", FetchOptions{})
	require.Error(t, err)

	var fetchErr *errs.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestFREDBuildParamsOptionalFields(t *testing.T) {
	client, err := NewFREDClient(&config.FREDConfig{APIKey: "k", BaseURL: "https://example.com"}, time.Second, testLogger())
	require.NoError(t, err)

	params := client.BuildParams(fredObservationsOp, "DCOILWTICO", FetchOptions{
		ObservationStart: "2024-01-01",
		ObservationEnd:   "2024-02-01",
		Frequency:        "d",
	})
	assert.Equal(t, "2024-01-01", params.Get("observation_start"))
	assert.Equal(t, "2024-02-01", params.Get("observation_end"))
	assert.Equal(t, "d", params.Get("frequency"))
	assert.Empty(t, params.Get("limit"))
}
