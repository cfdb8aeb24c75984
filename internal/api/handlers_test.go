package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/database"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeStore struct {
	instruments map[string]*models.Instrument
	latest      map[string]*models.PriceObservation
	observations []*models.PriceObservation
	runs        map[string]*models.UpdateRun
	healthy     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		instruments: make(map[string]*models.Instrument),
		latest:      make(map[string]*models.PriceObservation),
		runs:        make(map[string]*models.UpdateRun),
		healthy:     true,
	}
}

func (f *fakeStore) Health(context.Context) error {
	if !f.healthy {
		return errors.New("down")
	}
	return nil
}

func (f *fakeStore) GetProviders(context.Context) ([]*models.Provider, error) {
	return []*models.Provider{{Name: models.ProviderAlphaVantage}, {Name: models.ProviderFRED}}, nil
}

func (f *fakeStore) GetActiveInstruments(context.Context) ([]*models.Instrument, error) {
	var out []*models.Instrument
	for _, inst := range f.instruments {
		out = append(out, inst)
	}
	return out, nil
}

func (f *fakeStore) GetInstrumentBySymbol(_ context.Context, symbol string) (*models.Instrument, error) {
	return f.instruments[models.NormalizeSymbol(symbol)], nil
}

func (f *fakeStore) GetObservations(_ context.Context, instrumentID string, since time.Time, limit int) ([]*models.PriceObservation, error) {
	var out []*models.PriceObservation
	for _, obs := range f.observations {
		if obs.InstrumentID == instrumentID && !obs.Timestamp.Before(since) && len(out) < limit {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (f *fakeStore) GetLatestObservation(_ context.Context, instrumentID string) (*models.PriceObservation, error) {
	return f.latest[instrumentID], nil
}

func (f *fakeStore) GetUpdateRuns(_ context.Context, filter database.RunFilter) ([]*models.UpdateRun, error) {
	var out []*models.UpdateRun
	for _, run := range f.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (f *fakeStore) GetUpdateRunByID(_ context.Context, id string) (*models.UpdateRun, error) {
	return f.runs[id], nil
}

type fakeLatestCache struct {
	latest  map[string]*models.PriceObservation
	healthy bool
}

func (f *fakeLatestCache) Health(context.Context) error {
	if !f.healthy {
		return errors.New("down")
	}
	return nil
}

func (f *fakeLatestCache) GetLatestObservation(_ context.Context, symbol string) (*models.PriceObservation, error) {
	return f.latest[symbol], nil
}

type fakeQueue struct {
	connected  bool
	enqueued   []string
	sweeps     int
	shouldFail bool
}

func (f *fakeQueue) IsConnected() bool { return f.connected }

func (f *fakeQueue) EnqueueInstrumentUpdate(_ context.Context, instrumentID string, _ provider.FetchOptions) (string, error) {
	if f.shouldFail {
		return "", errors.New("nats unavailable")
	}
	f.enqueued = append(f.enqueued, instrumentID)
	return "corr-123", nil
}

func (f *fakeQueue) EnqueueAllUpdate(context.Context, provider.FetchOptions) (string, error) {
	if f.shouldFail {
		return "", errors.New("nats unavailable")
	}
	f.sweeps++
	return "corr-sweep", nil
}

func newTestServer(store *fakeStore, cache *fakeLatestCache, queue *fakeQueue) *Server {
	cfg := &config.Config{}
	cfg.Security.CORSEnabled = false
	return NewServer(cfg, store, cache, queue, testLogger())
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func wtiStore() *fakeStore {
	store := newFakeStore()
	store.instruments["WTI"] = &models.Instrument{ID: "inst-1", Symbol: "WTI", ProviderName: models.ProviderFRED}
	return store
}

func TestTriggerUpdateAccepted(t *testing.T) {
	store := wtiStore()
	queue := &fakeQueue{connected: true}
	s := newTestServer(store, &fakeLatestCache{healthy: true}, queue)

	rec := doRequest(s, http.MethodPost, "/api/v1/instruments/wti/update")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "corr-123", body["correlation_id"])
	assert.Equal(t, "WTI", body["symbol"])
	assert.Equal(t, []string{"inst-1"}, queue.enqueued)
}

func TestTriggerUpdateUnknownSymbol(t *testing.T) {
	s := newTestServer(newFakeStore(), &fakeLatestCache{healthy: true}, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodPost, "/api/v1/instruments/NOPE/update")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerUpdateQueueUnavailable(t *testing.T) {
	s := newTestServer(wtiStore(), &fakeLatestCache{healthy: true}, &fakeQueue{shouldFail: true})

	rec := doRequest(s, http.MethodPost, "/api/v1/instruments/WTI/update")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerUpdateAllAccepted(t *testing.T) {
	queue := &fakeQueue{connected: true}
	s := newTestServer(newFakeStore(), &fakeLatestCache{healthy: true}, queue)

	rec := doRequest(s, http.MethodPost, "/api/v1/updates")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, queue.sweeps)
	assert.Equal(t, "corr-sweep", decodeBody(t, rec)["correlation_id"])
}

func TestGetLatestServedFromCache(t *testing.T) {
	store := wtiStore()
	open := decimal.RequireFromString("10.0")
	cached := &models.PriceObservation{
		InstrumentID: "inst-1",
		Timestamp:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:         &open,
		Close:        decimal.RequireFromString("10.5"),
	}
	cache := &fakeLatestCache{healthy: true, latest: map[string]*models.PriceObservation{"WTI": cached}}
	s := newTestServer(store, cache, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/instruments/WTI/latest")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["cached"])
	assert.Equal(t, "10.5", body["close"])
	assert.Equal(t, "0.5", body["change"])
}

func TestGetLatestFallsBackToDatabase(t *testing.T) {
	store := wtiStore()
	store.latest["inst-1"] = &models.PriceObservation{
		InstrumentID: "inst-1",
		Timestamp:    time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Close:        decimal.RequireFromString("5.25"),
	}
	cache := &fakeLatestCache{healthy: true, latest: map[string]*models.PriceObservation{}}
	s := newTestServer(store, cache, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/instruments/WTI/latest")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, "5.25", body["close"])
}

func TestGetLatestNoData(t *testing.T) {
	s := newTestServer(wtiStore(), &fakeLatestCache{healthy: true, latest: map[string]*models.PriceObservation{}}, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/instruments/WTI/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPricesValidatesDays(t *testing.T) {
	s := newTestServer(wtiStore(), &fakeLatestCache{healthy: true}, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/instruments/WTI/prices?days=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/instruments/WTI/prices?days=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPricesWindow(t *testing.T) {
	store := wtiStore()
	store.observations = []*models.PriceObservation{
		{InstrumentID: "inst-1", Timestamp: time.Now().UTC().AddDate(0, 0, -1), Close: decimal.RequireFromString("1")},
		{InstrumentID: "inst-1", Timestamp: time.Now().UTC().AddDate(0, 0, -90), Close: decimal.RequireFromString("2")},
	}
	s := newTestServer(store, &fakeLatestCache{healthy: true}, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/instruments/WTI/prices?days=7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestGetRunsFiltersByStatus(t *testing.T) {
	store := wtiStore()
	store.runs["r1"] = &models.UpdateRun{ID: "r1", Status: models.RunSuccess}
	store.runs["r2"] = &models.UpdateRun{ID: "r2", Status: models.RunFailed}
	s := newTestServer(store, &fakeLatestCache{healthy: true}, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/runs?status=FAILED")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])

	rec = doRequest(s, http.MethodGet, "/api/v1/runs?status=BOGUS")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunByID(t *testing.T) {
	store := wtiStore()
	started := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	store.runs["r1"] = &models.UpdateRun{ID: "r1", Status: models.RunSuccess, StartedAt: &started, CompletedAt: &completed}
	s := newTestServer(store, &fakeLatestCache{healthy: true}, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/runs/r1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1500), decodeBody(t, rec)["duration_ms"])

	rec = doRequest(s, http.MethodGet, "/api/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthDegraded(t *testing.T) {
	store := wtiStore()
	s := newTestServer(store, &fakeLatestCache{healthy: true}, &fakeQueue{connected: true})

	rec := doRequest(s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	store.healthy = false
	rec = doRequest(s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}
