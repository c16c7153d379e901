package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefetch/harvester/internal/progress"
)

func TestPrometheusSinkConsume(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := [16]byte{1}
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Pending: 3},
		{RunID: runID, TS: now, Stage: progress.StageFetchDone, ID: 1, Class: "SUCCESS", Dur: 50 * time.Millisecond},
		{RunID: runID, TS: now, Stage: progress.StageFetchDone, ID: 2, Class: "TRANSIENT", Dur: 10 * time.Millisecond},
		{RunID: runID, TS: now, Stage: progress.StageRoundDone, Round: 1, Settled: 2, Pending: 1},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Settled: 3},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	assert.Equal(t, float64(1), testutil.ToFloat64(sink.runsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.runsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.roundsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(sink.settledTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(sink.retryPending))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.fetchOutcomes.WithLabelValues("SUCCESS")))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.fetchOutcomes.WithLabelValues("TRANSIENT")))
}

func TestPrometheusSinkRetryPendingTracksRounds(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := [16]byte{2}
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Pending: 10},
	}))
	assert.Equal(t, float64(10), testutil.ToFloat64(sink.retryPending))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRoundDone, Round: 1, Settled: 6, Pending: 4},
	}))
	assert.Equal(t, float64(4), testutil.ToFloat64(sink.retryPending))
}

func TestPrometheusSinkDoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
