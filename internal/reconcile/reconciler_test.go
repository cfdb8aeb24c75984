package reconcile

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// memStore is an in-memory observation store enforcing the natural-key
// uniqueness the real table provides.
type memStore struct {
	rows        map[int64]*models.PriceObservation
	insertCalls int
	failOnCall  int // 1-based insert call that fails; 0 disables
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*models.PriceObservation)}
}

func (m *memStore) ExistingTimestamps(_ context.Context, _ string, timestamps []time.Time) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{})
	for _, ts := range timestamps {
		if _, ok := m.rows[ts.UTC().UnixNano()]; ok {
			existing[ts.UTC().UnixNano()] = struct{}{}
		}
	}
	return existing, nil
}

func (m *memStore) BulkInsertObservations(_ context.Context, observations []*models.PriceObservation) (int64, error) {
	m.insertCalls++
	if m.failOnCall > 0 && m.insertCalls == m.failOnCall {
		return 0, errors.New("deadlock found when trying to get lock")
	}

	var created int64
	for _, obs := range observations {
		key := obs.Timestamp.UTC().UnixNano()
		if _, ok := m.rows[key]; ok {
			continue // conflict-ignoring
		}
		m.rows[key] = obs
		created++
	}
	return created, nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func candidatesFor(days int) []models.Candidate {
	cands := make([]models.Candidate, 0, days)
	for i := 0; i < days; i++ {
		cands = append(cands, models.Candidate{
			Timestamp: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Close:     dec("10.5"),
		})
	}
	return cands
}

var testInstrument = &models.Instrument{ID: "inst-1", Symbol: "WTI"}

func TestReconcileIdempotent(t *testing.T) {
	store := newMemStore()
	r := New(store, 500, testLogger())
	ctx := context.Background()

	first, err := r.Reconcile(ctx, testInstrument, candidatesFor(5))
	require.NoError(t, err)
	assert.Equal(t, 5, first.Created)
	assert.Equal(t, 0, first.Skipped)

	second, err := r.Reconcile(ctx, testInstrument, candidatesFor(5))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 5, second.Skipped)
	assert.Len(t, store.rows, 5)
}

func TestReconcileSkipsMissingClose(t *testing.T) {
	store := newMemStore()
	r := New(store, 500, testLogger())

	cands := []models.Candidate{
		{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}, // no close
		{Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Close: dec("5.25")},
	}

	result, err := r.Reconcile(context.Background(), testInstrument, cands)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestReconcileTracksMaxWrittenAndLatest(t *testing.T) {
	store := newMemStore()
	r := New(store, 2, testLogger())

	result, err := r.Reconcile(context.Background(), testInstrument, candidatesFor(5))
	require.NoError(t, err)
	require.NotNil(t, result.MaxWritten)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), *result.MaxWritten)
	require.NotNil(t, result.Latest)
	assert.Equal(t, *result.MaxWritten, result.Latest.Timestamp)
}

func TestReconcilePreEpochTimestamps(t *testing.T) {
	store := newMemStore()
	r := New(store, 500, testLogger())
	ctx := context.Background()

	// Long-running FRED series reach back before 1970; those timestamps
	// must round-trip exactly, not get clamped to the epoch.
	old := time.Date(1968, 1, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(1947, 4, 1, 0, 0, 0, 0, time.UTC)
	cands := []models.Candidate{
		{Timestamp: older, Close: dec("17.1")},
		{Timestamp: old, Close: dec("35.18")},
	}

	result, err := r.Reconcile(ctx, testInstrument, cands)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	require.NotNil(t, result.MaxWritten)
	assert.Equal(t, old, *result.MaxWritten)

	_, ok := store.rows[older.UnixNano()]
	assert.True(t, ok, "pre-epoch observation stored under its own timestamp")

	second, err := r.Reconcile(ctx, testInstrument, cands)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)
}

func TestReconcileEmptyInput(t *testing.T) {
	store := newMemStore()
	r := New(store, 500, testLogger())

	result, err := r.Reconcile(context.Background(), testInstrument, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, store.insertCalls)
}

func TestReconcileBatchFailureKeepsEarlierBatches(t *testing.T) {
	store := newMemStore()
	store.failOnCall = 2
	r := New(store, 2, testLogger())

	result, err := r.Reconcile(context.Background(), testInstrument, candidatesFor(5))
	require.Error(t, err)

	var dpErr *errs.DataProcessingError
	assert.ErrorAs(t, err, &dpErr)

	// The first batch of two committed before the failure.
	assert.Equal(t, 2, result.Created)
	assert.Len(t, store.rows, 2)
	require.NotNil(t, result.MaxWritten)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), *result.MaxWritten)
}

func TestReconcileBatchSizeBoundsInsertCalls(t *testing.T) {
	store := newMemStore()
	r := New(store, 2, testLogger())

	_, err := r.Reconcile(context.Background(), testInstrument, candidatesFor(5))
	require.NoError(t, err)
	assert.Equal(t, 3, store.insertCalls)
}
