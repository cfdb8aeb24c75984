package updater

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/messaging"
)

// Worker executes update tasks delivered by the task queue. One task covers
// either a single instrument or a source-wide sweep; within a task the
// pipeline runs strictly sequentially.
type Worker struct {
	svc         *Service
	instruments InstrumentStore
	logger      *logrus.Entry
}

// NewWorker creates a task worker.
func NewWorker(svc *Service, instruments InstrumentStore, log *logrus.Logger) *Worker {
	return &Worker{
		svc:         svc,
		instruments: instruments,
		logger:      log.WithField("component", "update-worker"),
	}
}

// Handle processes one update task. Errors never propagate to the queue as
// task failures; every outcome lands in the ledger instead.
func (w *Worker) Handle(ctx context.Context, task *messaging.UpdateTask) {
	if task.InstrumentID == "" {
		if _, err := w.svc.UpdateAllActive(ctx, task.Options); err != nil {
			w.logger.WithError(err).WithField("correlation_id", task.CorrelationID).Error("Update sweep failed")
		}
		return
	}

	instrument, err := w.instruments.GetInstrumentByID(ctx, task.InstrumentID)
	if err != nil {
		w.logger.WithError(err).WithField("instrument_id", task.InstrumentID).Error("Failed to load instrument for update task")
		return
	}
	if instrument == nil {
		w.logger.WithField("instrument_id", task.InstrumentID).Warn("Update task references unknown instrument")
		w.svc.RecordUnresolvedTask(ctx, task.InstrumentID, task.CorrelationID)
		return
	}

	w.svc.UpdateInstrument(ctx, instrument, task.CorrelationID, task.Options)
}
