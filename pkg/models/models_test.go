package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "WTI", NormalizeSymbol("  wti "))
	assert.Equal(t, "BRENT", NormalizeSymbol("Brent"))
}

func TestFetchIdentifier(t *testing.T) {
	inst := &Instrument{Symbol: "WTI", ExternalID: "DCOILWTICO"}
	assert.Equal(t, "DCOILWTICO", inst.FetchIdentifier())

	inst.ExternalID = ""
	assert.Equal(t, "WTI", inst.FetchIdentifier())
}

func TestObservationChange(t *testing.T) {
	open := decimal.RequireFromString("10.0")
	obs := &PriceObservation{Open: &open, Close: decimal.RequireFromString("10.5")}

	change := obs.Change()
	require.NotNil(t, change)
	assert.Equal(t, "0.5", change.String())

	pct := obs.ChangePercent()
	require.NotNil(t, pct)
	assert.Equal(t, "5", pct.String())
}

func TestObservationChangeWithoutOpen(t *testing.T) {
	obs := &PriceObservation{Close: decimal.RequireFromString("10.5")}
	assert.Nil(t, obs.Change())
	assert.Nil(t, obs.ChangePercent())

	zero := decimal.Zero
	obs.Open = &zero
	assert.Nil(t, obs.ChangePercent())
}

func TestNewUpdateRunIDsSortByCreation(t *testing.T) {
	a, err := NewUpdateRun("prov-1", nil)
	require.NoError(t, err)
	b, err := NewUpdateRun("prov-1", nil)
	require.NoError(t, err)

	assert.Equal(t, RunPending, a.Status)
	assert.Less(t, a.ID, b.ID)
}

func TestUpdateRunTransitions(t *testing.T) {
	run, err := NewUpdateRun("prov-1", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, run.MarkRunning("corr-1", now))
	assert.Error(t, run.MarkRunning("corr-2", now), "RUNNING is not re-enterable")

	require.NoError(t, run.Complete(RunPartial, RunCounters{Fetched: 5}, "nothing new", now.Add(time.Second)))
	assert.Error(t, run.Complete(RunSuccess, RunCounters{}, "", now.Add(2*time.Second)))
	assert.Error(t, run.MarkRunning("corr-3", now))

	d := run.Duration()
	require.NotNil(t, d)
	assert.Equal(t, time.Second, *d)
}

func TestUpdateRunCompleteRejectsNonTerminal(t *testing.T) {
	run, err := NewUpdateRun("prov-1", nil)
	require.NoError(t, err)
	require.NoError(t, run.MarkRunning("corr-1", time.Now().UTC()))
	assert.Error(t, run.Complete(RunRunning, RunCounters{}, "", time.Now().UTC()))
}

func TestRunStatusHelpers(t *testing.T) {
	assert.True(t, RunSuccess.Terminal())
	assert.True(t, RunPartial.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.False(t, RunPending.Terminal())
	assert.False(t, RunRunning.Terminal())

	assert.True(t, RunPartial.Valid())
	assert.False(t, RunStatus("WEIRD").Valid())
}
