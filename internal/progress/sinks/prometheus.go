package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codefetch/harvester/internal/progress"
)

// PrometheusSink exports harvest progress metrics via Prometheus. It owns all
// collectors for runs, rounds, and per-classification fetch outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	roundsTotal   prometheus.Counter
	retryPending  prometheus.Gauge
	settledTotal  prometheus.Counter

	fetchOutcomes *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_runs_started_total",
			Help: "Total harvest runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_runs_completed_total",
			Help: "Total harvest runs that reached the done state.",
		}),
		roundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_rounds_total",
			Help: "Total scheduler rounds executed.",
		}),
		retryPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvester_retry_pending",
			Help: "Identifiers awaiting another attempt after the last round.",
		}),
		settledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_settled_total",
			Help: "Identifiers settled to a terminal outcome.",
		}),
		fetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_fetch_outcomes_total",
			Help: "Fetch completions partitioned by classification.",
		}, []string{"class"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by classification.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"class"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.roundsTotal,
		s.retryPending,
		s.settledTotal,
		s.fetchOutcomes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.retryPending.Set(float64(evt.Pending))
	case progress.StageRunDone:
		s.runsCompleted.Inc()
		s.retryPending.Set(0)
	case progress.StageRoundDone:
		s.roundsTotal.Inc()
		s.retryPending.Set(float64(evt.Pending))
		s.settledTotal.Add(float64(evt.Settled))
	case progress.StageFetchDone:
		class := evt.Class
		if class == "" {
			class = "unknown"
		}
		s.fetchOutcomes.WithLabelValues(class).Inc()
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
