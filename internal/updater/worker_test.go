package updater

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/messaging"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

func TestWorkerHandleSingleInstrument(t *testing.T) {
	svc, db, _ := newTestService(t, avDailyBody, `{}`)
	inst := avInstrument("inst-1")
	db.addInstrument(inst)

	w := NewWorker(svc, db, testLogger())
	w.Handle(context.Background(), &messaging.UpdateTask{
		CorrelationID: "corr-1",
		InstrumentID:  "inst-1",
	})

	assert.Len(t, db.obs["inst-1"], 1)
	require.Len(t, db.runs, 1)
	for _, run := range db.runs {
		assert.Equal(t, models.RunSuccess, run.Status)
		assert.Equal(t, "corr-1", run.CorrelationID)
	}
}

func TestWorkerHandleUnknownInstrumentRecordsFailedRun(t *testing.T) {
	svc, db, _ := newTestService(t, avDailyBody, `{}`)

	w := NewWorker(svc, db, testLogger())
	w.Handle(context.Background(), &messaging.UpdateTask{
		CorrelationID: "corr-1",
		InstrumentID:  "ghost",
	})

	require.Len(t, db.runs, 1, "unresolvable task still leaves a ledger trace")
	for _, run := range db.runs {
		assert.Equal(t, models.RunFailed, run.Status)
		assert.Equal(t, "corr-1", run.CorrelationID)
		assert.Empty(t, run.ProviderID)
		assert.Nil(t, run.InstrumentID)
		assert.Contains(t, run.ErrorMessage, "ghost")
	}
}

func TestWorkerHandleSweep(t *testing.T) {
	svc, db, _ := newTestService(t, avDailyBody, `{}`)
	db.addInstrument(avInstrument("inst-1"))

	w := NewWorker(svc, db, testLogger())
	w.Handle(context.Background(), &messaging.UpdateTask{
		CorrelationID: "corr-sweep",
		Options:       provider.FetchOptions{OutputSize: "compact"},
	})

	assert.Len(t, db.obs["inst-1"], 1)
}
