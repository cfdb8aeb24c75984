// Package updater is the only component that sees the whole ingestion
// pipeline: it opens a ledger entry, drives fetch -> normalize -> reconcile
// for one instrument, classifies the outcome and finalizes the entry.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/ledger"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/normalize"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/provider"
	"github.com/jose-zothner-meyer/commodity-tracker/internal/reconcile"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// InstrumentStore is the instrument storage surface the service needs.
type InstrumentStore interface {
	GetActiveInstruments(ctx context.Context) ([]*models.Instrument, error)
	GetInstrumentByID(ctx context.Context, id string) (*models.Instrument, error)
	// AdvanceLastUpdated moves the instrument's last_updated forward to ts,
	// but only if ts exceeds the stored value (monotonic-advance guard).
	AdvanceLastUpdated(ctx context.Context, instrumentID string, ts time.Time) error
}

// LatestCache receives the freshest observation after a successful
// reconciliation. Optional; a nil cache disables it.
type LatestCache interface {
	SetLatestObservation(ctx context.Context, symbol string, obs *models.PriceObservation) error
}

// Result is the outcome of one instrument update.
type Result struct {
	Success bool
	Message string
	Created int
	Run     *models.UpdateRun
}

// Service orchestrates instrument updates.
type Service struct {
	fetcher     *provider.Fetcher
	normalizer  *normalize.Normalizer
	reconciler  *reconcile.Reconciler
	ledger      *ledger.Ledger
	instruments InstrumentStore
	latest      LatestCache
	concurrency int
	logger      *logrus.Entry
}

// NewService creates the update orchestration service. concurrency bounds
// the worker pool used by UpdateAllActive; values below 1 fall back to 1.
func NewService(
	fetcher *provider.Fetcher,
	normalizer *normalize.Normalizer,
	reconciler *reconcile.Reconciler,
	led *ledger.Ledger,
	instruments InstrumentStore,
	latest LatestCache,
	concurrency int,
	log *logrus.Logger,
) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		fetcher:     fetcher,
		normalizer:  normalizer,
		reconciler:  reconciler,
		ledger:      led,
		instruments: instruments,
		latest:      latest,
		concurrency: concurrency,
		logger:      log.WithField("component", "updater"),
	}
}

// UpdateInstrument runs the full pipeline for one instrument. Every upstream
// failure is caught here, classified by kind and turned into a FAILED
// terminal ledger write with the error message preserved verbatim; nothing
// propagates to the task boundary.
func (s *Service) UpdateInstrument(ctx context.Context, instrument *models.Instrument, correlationID string, opts provider.FetchOptions) Result {
	log := s.logger.WithFields(logrus.Fields{"symbol": instrument.Symbol, "correlation_id": correlationID})
	log.Info("Starting price update")

	run, err := s.ledger.Begin(ctx, instrument.ProviderID, &instrument.ID)
	if err != nil {
		log.WithError(err).Error("Failed to open ledger entry")
		return Result{Message: fmt.Sprintf("failed to open ledger entry: %v", err)}
	}
	if err := s.ledger.MarkRunning(ctx, run, correlationID); err != nil {
		log.WithError(err).Error("Failed to mark run as running")
		return Result{Message: fmt.Sprintf("failed to mark run as running: %v", err), Run: run}
	}

	payload, err := s.fetcher.FetchFor(ctx, instrument, opts)
	if err != nil {
		return s.fail(ctx, run, instrument, err, log)
	}
	if len(payload.Raw) == 0 {
		message := fmt.Sprintf("no data received from %s for %s", instrument.ProviderName, instrument.Symbol)
		s.complete(ctx, run, models.RunFailed, models.RunCounters{}, message, log)
		return Result{Message: message, Run: run}
	}

	fetched := s.normalizer.EstimateFetched(payload.Family, payload.Raw)
	candidates := s.normalizer.Normalize(payload.Family, instrument.Symbol, payload.Raw)

	recResult, err := s.reconciler.Reconcile(ctx, instrument, candidates)
	if err != nil {
		return s.fail(ctx, run, instrument, err, log)
	}

	if recResult.Created > 0 {
		s.afterWrite(ctx, instrument, recResult, log)
	}

	counters := models.RunCounters{Fetched: fetched, Created: recResult.Created}
	status := ledger.Classify(fetched, recResult.Created)

	var message string
	switch status {
	case models.RunSuccess:
		message = fmt.Sprintf("successfully created %d new price records for %s", recResult.Created, instrument.Symbol)
	case models.RunPartial:
		message = fmt.Sprintf("data fetched for %s, but no new price records were created (data may be old, malformed, or already exist)", instrument.Symbol)
	default:
		message = fmt.Sprintf("no records found in %s response for %s", instrument.ProviderName, instrument.Symbol)
	}

	errText := ""
	if status != models.RunSuccess {
		errText = message
	}
	s.complete(ctx, run, status, counters, errText, log)

	log.WithFields(logrus.Fields{"status": status, "created": recResult.Created}).Info("Completed price update")
	return Result{
		Success: status == models.RunSuccess,
		Message: message,
		Created: recResult.Created,
		Run:     run,
	}
}

// RecordUnresolvedTask writes a FAILED ledger entry for a task whose
// instrument could not be resolved, so the attempt stays observable by its
// correlation id. The run carries no provider or instrument reference; the
// stale id lives in the error message.
func (s *Service) RecordUnresolvedTask(ctx context.Context, instrumentID, correlationID string) {
	log := s.logger.WithFields(logrus.Fields{"instrument_id": instrumentID, "correlation_id": correlationID})

	run, err := s.ledger.Begin(ctx, "", nil)
	if err != nil {
		log.WithError(err).Error("Failed to open ledger entry for unresolved task")
		return
	}
	if err := s.ledger.MarkRunning(ctx, run, correlationID); err != nil {
		log.WithError(err).Error("Failed to mark unresolved-task run as running")
		return
	}
	message := fmt.Sprintf("update task references unknown instrument %s", instrumentID)
	s.complete(ctx, run, models.RunFailed, models.RunCounters{}, message, log)
}

// UpdateAllActive updates every active instrument with per-instrument error
// isolation: one failure never aborts the batch, and each instrument gets
// its own ledger entry. Returns the runs that ended in SUCCESS.
func (s *Service) UpdateAllActive(ctx context.Context, opts provider.FetchOptions) ([]*models.UpdateRun, error) {
	instruments, err := s.instruments.GetActiveInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active instruments: %w", err)
	}

	var (
		mu         sync.Mutex
		successful []*models.UpdateRun
		wg         sync.WaitGroup
	)
	sem := make(chan struct{}, s.concurrency)

	for _, instrument := range instruments {
		instrument := instrument
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result := s.UpdateInstrument(ctx, instrument, uuid.NewString(), opts)
			if result.Success && result.Run != nil {
				mu.Lock()
				successful = append(successful, result.Run)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.logger.WithFields(logrus.Fields{
		"instruments": len(instruments),
		"successful":  len(successful),
	}).Info("Completed update sweep")
	return successful, nil
}

// afterWrite advances the instrument's last_updated to the maximum written
// observation timestamp and refreshes the latest-price cache. Both are
// post-commit bookkeeping; failures are logged, not fatal to the run.
func (s *Service) afterWrite(ctx context.Context, instrument *models.Instrument, recResult *reconcile.Result, log *logrus.Entry) {
	if recResult.MaxWritten != nil {
		if err := s.instruments.AdvanceLastUpdated(ctx, instrument.ID, *recResult.MaxWritten); err != nil {
			log.WithError(err).Warn("Failed to advance last_updated")
		}
	}

	if s.latest == nil || recResult.Latest == nil {
		return
	}
	if err := s.latest.SetLatestObservation(ctx, instrument.Symbol, recResult.Latest); err != nil {
		log.WithError(err).Warn("Failed to refresh latest-price cache")
	}
}

// fail classifies an upstream error by kind, logs it accordingly and writes
// the FAILED terminal state with the error message preserved verbatim.
func (s *Service) fail(ctx context.Context, run *models.UpdateRun, instrument *models.Instrument, err error, log *logrus.Entry) Result {
	var (
		cfgErr  *errs.ConfigurationError
		keyErr  *errs.APIKeyMissingError
		rateErr *errs.RateLimitError
		dpErr   *errs.DataProcessingError
		fErr    *errs.FetchError
	)

	switch {
	case errors.As(err, &cfgErr), errors.As(err, &keyErr):
		log.WithError(err).Error("Configuration error")
	case errors.As(err, &rateErr):
		// An API constraint, not a defect; the external scheduler retries.
		log.WithError(err).Warn("Rate limit exceeded")
	case errors.As(err, &dpErr):
		log.WithError(err).Error("Data processing error")
	case errors.As(err, &fErr):
		log.WithError(err).Error("Data fetch error")
	default:
		log.WithError(err).Error("Unexpected error during update")
	}

	s.complete(ctx, run, models.RunFailed, models.RunCounters{}, err.Error(), log)
	return Result{Message: err.Error(), Run: run}
}

func (s *Service) complete(ctx context.Context, run *models.UpdateRun, status models.RunStatus, counters models.RunCounters, errText string, log *logrus.Entry) {
	if err := s.ledger.Complete(ctx, run, status, counters, errText); err != nil {
		log.WithError(err).Error("Failed to finalize ledger entry")
	}
}
