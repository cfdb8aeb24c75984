package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func avClient(t *testing.T, handler http.HandlerFunc) (*AlphaVantageClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewAlphaVantageClient(&config.AlphaVantageConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, 5*time.Second, testLogger())
	require.NoError(t, err)
	return client, srv
}

func TestNewAlphaVantageClientRequiresAPIKey(t *testing.T) {
	_, err := NewAlphaVantageClient(&config.AlphaVantageConfig{}, time.Second, testLogger())
	require.Error(t, err)

	var keyErr *errs.APIKeyMissingError
	assert.ErrorAs(t, err, &keyErr)
}

func TestAlphaVantageFetchSeries(t *testing.T) {
	client, _ := avClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", r.URL.Query().Get("function"))
		assert.Equal(t, "GLD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "compact", r.URL.Query().Get("outputsize"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Time Series (Daily)": {"2024-01-02": {"1. open": "10.0", "4. close": "10.5"}}}`))
	})

	raw, err := client.FetchSeries(context.Background(), "GLD", FetchOptions{OutputSize: "compact"})
	require.NoError(t, err)
	assert.Contains(t, raw, "Time Series (Daily)")
}

func TestAlphaVantageErrorMessage(t *testing.T) {
	client, _ := avClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	})

	_, err := client.FetchSeries(context.Background(), "NOPE", FetchOptions{})
	require.Error(t, err)

	var fetchErr *errs.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "Invalid API call.")
}

func TestAlphaVantageRateLimitNote(t *testing.T) {
	client, _ := avClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you! Our standard API call frequency is 5 calls per minute."}`))
	})

	_, err := client.FetchSeries(context.Background(), "GLD", FetchOptions{})
	require.Error(t, err)

	var rateErr *errs.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
}

func TestAlphaVantagePremiumEndpointInformation(t *testing.T) {
	client, _ := avClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Information": "This is a premium endpoint."}`))
	})

	_, err := client.FetchSeries(context.Background(), "GLD", FetchOptions{})
	require.Error(t, err)

	var rateErr *errs.RateLimitError
	assert.ErrorAs(t, err, &rateErr)
}

func TestAlphaVantageEmptyBody(t *testing.T) {
	client, _ := avClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	raw, err := client.FetchSeries(context.Background(), "GLD", FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestAlphaVantageNon200Status(t *testing.T) {
	client, _ := avClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	_, err := client.FetchSeries(context.Background(), "GLD", FetchOptions{})
	require.Error(t, err)

	var fetchErr *errs.FetchError
	assert.ErrorAs(t, err, &fetchErr)
}
