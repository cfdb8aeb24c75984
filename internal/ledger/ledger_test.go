package ledger

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// memRunStore records every persisted run state.
type memRunStore struct {
	created []*models.UpdateRun
	saves   []models.UpdateRun
}

func (m *memRunStore) CreateUpdateRun(_ context.Context, run *models.UpdateRun) error {
	m.created = append(m.created, run)
	return nil
}

func (m *memRunStore) SaveRunState(_ context.Context, run *models.UpdateRun) error {
	m.saves = append(m.saves, *run)
	return nil
}

func TestLedgerLifecycle(t *testing.T) {
	store := &memRunStore{}
	l := New(store, testLogger())
	ctx := context.Background()

	instrumentID := "inst-1"
	run, err := l.Begin(ctx, "prov-1", &instrumentID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPending, run.Status)
	assert.NotEmpty(t, run.ID)
	require.Len(t, store.created, 1)

	require.NoError(t, l.MarkRunning(ctx, run, "corr-1"))
	assert.Equal(t, models.RunRunning, run.Status)
	assert.Equal(t, "corr-1", run.CorrelationID)
	assert.NotNil(t, run.StartedAt)

	counters := models.RunCounters{Fetched: 10, Created: 3}
	require.NoError(t, l.Complete(ctx, run, models.RunSuccess, counters, ""))
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, counters, run.Counters)
	assert.NotNil(t, run.CompletedAt)

	// One save for RUNNING, one for the terminal state.
	require.Len(t, store.saves, 2)
	assert.Equal(t, models.RunRunning, store.saves[0].Status)
	assert.Equal(t, models.RunSuccess, store.saves[1].Status)
}

func TestLedgerSingleTerminalTransition(t *testing.T) {
	store := &memRunStore{}
	l := New(store, testLogger())
	ctx := context.Background()

	run, err := l.Begin(ctx, "prov-1", nil)
	require.NoError(t, err)
	require.NoError(t, l.MarkRunning(ctx, run, "corr-1"))
	require.NoError(t, l.Complete(ctx, run, models.RunFailed, models.RunCounters{}, "boom"))

	err = l.Complete(ctx, run, models.RunSuccess, models.RunCounters{}, "")
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, run.Status)
	assert.Equal(t, "boom", run.ErrorMessage)
}

func TestLedgerMarkRunningRequiresPending(t *testing.T) {
	store := &memRunStore{}
	l := New(store, testLogger())
	ctx := context.Background()

	run, err := l.Begin(ctx, "prov-1", nil)
	require.NoError(t, err)
	require.NoError(t, l.MarkRunning(ctx, run, "corr-1"))
	assert.Error(t, l.MarkRunning(ctx, run, "corr-2"))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.RunFailed, Classify(0, 0))
	assert.Equal(t, models.RunPartial, Classify(10, 0))
	assert.Equal(t, models.RunSuccess, Classify(10, 3))
	assert.Equal(t, models.RunSuccess, Classify(1, 1))
}
