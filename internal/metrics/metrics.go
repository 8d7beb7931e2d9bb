// Package metrics exposes rollout counters and histograms for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/f4biogr/rollout/internal/domain"
)

// Metrics instruments release attempts and health probes. A nil *Metrics is
// valid and records nothing, so wiring stays optional.
type Metrics struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	hostOutcomes    *prometheus.CounterVec
	probeAttempts   prometheus.Counter
	probeDuration   prometheus.Histogram
}

// New creates the rollout metric set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_attempts_total",
				Help: "Release attempts by terminal state",
			},
			[]string{"state"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rollout_attempt_duration_seconds",
				Help:    "Wall time of release attempts by terminal state",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"state"},
		),
		hostOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollout_host_outcomes_total",
				Help: "Per-host forward rollout outcomes",
			},
			[]string{"outcome"},
		),
		probeAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rollout_probe_attempts_total",
				Help: "Individual worker health probe attempts",
			},
		),
		probeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rollout_probe_duration_seconds",
				Help:    "Wall time spent probing one worker to a verdict",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
	}
	reg.MustRegister(
		m.attemptsTotal,
		m.attemptDuration,
		m.hostOutcomes,
		m.probeAttempts,
		m.probeDuration,
	)
	return m
}

// ObserveAttempt records the terminal state, duration and per-host outcomes
// of one attempt report.
func (m *Metrics) ObserveAttempt(report domain.AttemptReport) {
	if m == nil {
		return
	}
	state := string(report.State)
	m.attemptsTotal.WithLabelValues(state).Inc()
	m.attemptDuration.WithLabelValues(state).Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	for _, out := range report.Forward {
		m.hostOutcomes.WithLabelValues(hostOutcomeLabel(out)).Inc()
	}
}

// ObserveProbe records the attempt count and elapsed time of one worker probe.
func (m *Metrics) ObserveProbe(result domain.ProbeResult) {
	if m == nil {
		return
	}
	m.probeAttempts.Add(float64(result.Attempts))
	m.probeDuration.Observe(result.Elapsed.Seconds())
}

func hostOutcomeLabel(out domain.HostOutcome) string {
	switch {
	case out.Skipped:
		return "skipped"
	case out.Healthy():
		return "healthy"
	default:
		return "failed"
	}
}
