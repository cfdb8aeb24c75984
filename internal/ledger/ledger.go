// Package ledger maintains the append-only audit trail of ingestion
// attempts. Every fetch attempt gets exactly one UpdateRun that moves
// through PENDING -> RUNNING -> {SUCCESS | PARTIAL | FAILED}; terminal
// states are final.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// RunStore persists ledger entries.
type RunStore interface {
	// CreateUpdateRun inserts a new PENDING run.
	CreateUpdateRun(ctx context.Context, run *models.UpdateRun) error
	// SaveRunState writes the run's current status, timestamps, counters
	// and error text in a single update.
	SaveRunState(ctx context.Context, run *models.UpdateRun) error
}

// Ledger guards the run state machine and persists each transition.
type Ledger struct {
	store  RunStore
	logger *logrus.Entry
}

// New creates a ledger backed by a run store.
func New(store RunStore, log *logrus.Logger) *Ledger {
	return &Ledger{store: store, logger: log.WithField("component", "ledger")}
}

// Begin creates and persists a PENDING run for a provider and optional
// instrument (nil means a source-wide run). An empty providerID records a
// run that failed before a source could be resolved.
func (l *Ledger) Begin(ctx context.Context, providerID string, instrumentID *string) (*models.UpdateRun, error) {
	run, err := models.NewUpdateRun(providerID, instrumentID)
	if err != nil {
		return nil, err
	}
	if err := l.store.CreateUpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create update run: %w", err)
	}
	return run, nil
}

// MarkRunning transitions the run to RUNNING, records the correlation id
// and start time, and persists the change.
func (l *Ledger) MarkRunning(ctx context.Context, run *models.UpdateRun, correlationID string) error {
	if err := run.MarkRunning(correlationID, time.Now().UTC()); err != nil {
		return err
	}
	if err := l.store.SaveRunState(ctx, run); err != nil {
		return fmt.Errorf("failed to persist running state: %w", err)
	}
	return nil
}

// Complete performs the run's single terminal transition, setting status,
// counters, error text and completion time atomically.
func (l *Ledger) Complete(ctx context.Context, run *models.UpdateRun, status models.RunStatus, counters models.RunCounters, errMsg string) error {
	if err := run.Complete(status, counters, errMsg, time.Now().UTC()); err != nil {
		return err
	}
	if err := l.store.SaveRunState(ctx, run); err != nil {
		return fmt.Errorf("failed to persist terminal state: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"status":  run.Status,
		"fetched": counters.Fetched,
		"created": counters.Created,
	}).Info("Update run completed")
	return nil
}

// Classify maps run counters to the terminal status used by the
// orchestration service: nothing fetched is a failure, fetched-but-nothing-
// created is a partial success (the data may simply already exist), and any
// created row is a success.
func Classify(fetched, created int) models.RunStatus {
	switch {
	case fetched == 0:
		return models.RunFailed
	case created == 0:
		return models.RunPartial
	default:
		return models.RunSuccess
	}
}
