// Package reconcile deduplicates normalized candidates against stored
// observations and performs conflict-tolerant bulk writes. Idempotence under
// retry comes from the existing-timestamp pre-check plus a
// conflict-ignoring insert, not from locking.
package reconcile

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jose-zothner-meyer/commodity-tracker/pkg/errs"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/models"
)

// ObservationStore is the storage surface the reconciler needs.
type ObservationStore interface {
	// ExistingTimestamps returns the subset of the given timestamps that
	// already have an observation stored for the instrument, keyed by
	// UnixNano.
	ExistingTimestamps(ctx context.Context, instrumentID string, timestamps []time.Time) (map[int64]struct{}, error)
	// BulkInsertObservations inserts observations in one transaction,
	// silently ignoring natural-key conflicts, and returns the number of
	// rows actually inserted.
	BulkInsertObservations(ctx context.Context, observations []*models.PriceObservation) (int64, error)
}

// Result summarizes one reconciliation pass. Latest is the written
// observation with the maximum timestamp, for cache refreshes.
type Result struct {
	Created    int
	Skipped    int
	MaxWritten *time.Time
	Latest     *models.PriceObservation
}

// Reconciler performs the dedup-then-insert algorithm for one instrument at
// a time.
type Reconciler struct {
	store     ObservationStore
	batchSize int
	logger    *logrus.Entry
}

// New creates a reconciler. batchSize bounds the rows per insert
// transaction; values below 1 fall back to 500.
func New(store ObservationStore, batchSize int, log *logrus.Logger) *Reconciler {
	if batchSize < 1 {
		batchSize = 500
	}
	return &Reconciler{
		store:     store,
		batchSize: batchSize,
		logger:    log.WithField("component", "reconciler"),
	}
}

// Reconcile deduplicates candidates against storage and bulk-inserts the
// remainder. Candidates with a duplicate timestamp or missing close are
// counted as skipped, not errors. Batches commit independently: a failing
// batch surfaces as *errs.DataProcessingError, but rows from earlier
// batches stay written and are reflected in the returned result.
func (r *Reconciler) Reconcile(ctx context.Context, instrument *models.Instrument, candidates []models.Candidate) (*Result, error) {
	result := &Result{}
	if len(candidates) == 0 {
		return result, nil
	}

	timestamps := make([]time.Time, 0, len(candidates))
	for _, c := range candidates {
		timestamps = append(timestamps, c.Timestamp)
	}

	existing, err := r.store.ExistingTimestamps(ctx, instrument.ID, timestamps)
	if err != nil {
		return result, errs.NewDataProcessing(err, "failed to load existing timestamps for %s", instrument.Symbol)
	}
	r.logger.WithFields(logrus.Fields{
		"symbol":   instrument.Symbol,
		"existing": len(existing),
		"checked":  len(timestamps),
	}).Debug("Existing timestamp pre-check complete")

	toInsert := make([]*models.PriceObservation, 0, len(candidates))
	for _, c := range candidates {
		if c.Close == nil {
			r.logger.WithFields(logrus.Fields{"symbol": instrument.Symbol, "timestamp": c.Timestamp}).Warn("Skipping candidate with missing close price")
			result.Skipped++
			continue
		}
		if _, ok := existing[c.Timestamp.UTC().UnixNano()]; ok {
			result.Skipped++
			continue
		}

		toInsert = append(toInsert, &models.PriceObservation{
			InstrumentID: instrument.ID,
			Timestamp:    c.Timestamp.UTC(),
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        *c.Close,
			Volume:       c.Volume,
			SourceData:   c.SourceData,
		})
	}

	if len(toInsert) == 0 {
		return result, nil
	}

	for start := 0; start < len(toInsert); start += r.batchSize {
		end := start + r.batchSize
		if end > len(toInsert) {
			end = len(toInsert)
		}
		batch := toInsert[start:end]

		created, err := r.store.BulkInsertObservations(ctx, batch)
		if err != nil {
			// Earlier batches are already committed; report what landed.
			return result, errs.NewDataProcessing(err, "bulk creation of price data failed for %s", instrument.Symbol)
		}
		result.Created += int(created)
		trackMaxWritten(result, batch)
	}

	r.logger.WithFields(logrus.Fields{
		"symbol":  instrument.Symbol,
		"created": result.Created,
		"skipped": result.Skipped,
	}).Info("Reconciliation complete")
	return result, nil
}

// trackMaxWritten advances the max written timestamp over a committed
// batch. Rows silently dropped by the conflict-ignoring insert were already
// stored with this timestamp, so counting them cannot move last_updated
// beyond data that exists.
func trackMaxWritten(result *Result, batch []*models.PriceObservation) {
	for _, obs := range batch {
		if result.MaxWritten == nil || obs.Timestamp.After(*result.MaxWritten) {
			ts := obs.Timestamp
			result.MaxWritten = &ts
			result.Latest = obs
		}
	}
}
