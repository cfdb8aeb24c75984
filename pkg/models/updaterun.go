package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an update run.
type RunStatus string

// Run statuses. Transitions are one-directional:
// PENDING -> RUNNING -> {SUCCESS | PARTIAL | FAILED}.
const (
	RunPending RunStatus = "PENDING"
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunPartial RunStatus = "PARTIAL"
	RunFailed  RunStatus = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunPartial, RunFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known run status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunRunning, RunSuccess, RunPartial, RunFailed:
		return true
	}
	return false
}

// RunCounters are the per-run ingestion counters, set once at completion.
type RunCounters struct {
	Fetched int `json:"records_fetched"`
	Created int `json:"records_created"`
	Updated int `json:"records_updated"`
}

// UpdateRun is the append-only ledger entry for one ingestion attempt. The
// id is a UUIDv7, so runs sort by creation time. InstrumentID is nil for
// source-wide runs.
type UpdateRun struct {
	ID            string      `json:"id" db:"id"`
	ProviderID    string      `json:"provider_id" db:"provider_id"`
	InstrumentID  *string     `json:"instrument_id,omitempty" db:"instrument_id"`
	Status        RunStatus   `json:"status" db:"status"`
	CorrelationID string      `json:"correlation_id,omitempty" db:"correlation_id"`
	Counters      RunCounters `json:"counters"`
	ErrorMessage  string      `json:"error_message,omitempty" db:"error_message"`
	StartedAt     *time.Time  `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// NewUpdateRun creates a PENDING run for a provider and optional instrument.
func NewUpdateRun(providerID string, instrumentID *string) (*UpdateRun, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}

	return &UpdateRun{
		ID:           id.String(),
		ProviderID:   providerID,
		InstrumentID: instrumentID,
		Status:       RunPending,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// MarkRunning transitions the run to RUNNING and records the start time.
func (r *UpdateRun) MarkRunning(correlationID string, now time.Time) error {
	if r.Status != RunPending {
		return fmt.Errorf("run %s: cannot transition %s -> RUNNING", r.ID, r.Status)
	}
	r.Status = RunRunning
	r.StartedAt = &now
	if correlationID != "" {
		r.CorrelationID = correlationID
	}
	return nil
}

// Complete transitions the run to a terminal status and sets completion
// time, counters and error text in one step. Exactly one terminal transition
// is permitted per run.
func (r *UpdateRun) Complete(status RunStatus, counters RunCounters, errMsg string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("run %s: %s is not a terminal status", r.ID, status)
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s: already terminal (%s), cannot transition to %s", r.ID, r.Status, status)
	}
	r.Status = status
	r.Counters = counters
	r.ErrorMessage = errMsg
	r.CompletedAt = &now
	return nil
}

// Duration returns completed_at minus started_at, or nil while the run is
// incomplete.
func (r *UpdateRun) Duration() *time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return nil
	}
	d := r.CompletedAt.Sub(*r.StartedAt)
	return &d
}
