// Package metrics records run statistics on a private Prometheus registry.
// CountryBlock is a batch job, so the registry is written once per run to a
// node exporter textfile instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ripeart/CountryBlock/syncer"
)

const namespace = "countryblock"

// Metrics holds the run collectors.
type Metrics struct {
	registry *prometheus.Registry

	// rangesParsed counts list entries. Labels: status (valid, invalid)
	rangesParsed *prometheus.CounterVec

	// syncOutcomes counts sync results. Labels: artifact, outcome
	syncOutcomes *prometheus.CounterVec

	// artifactBytes is the size of the last built artifact. Labels: artifact
	artifactBytes *prometheus.GaugeVec

	// syncDuration measures one artifact sync. Labels: artifact
	syncDuration *prometheus.HistogramVec

	fetchDuration prometheus.Histogram
	fetchFailures prometheus.Counter
	lastRun       prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		rangesParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranges_parsed_total",
			Help:      "CIDR list entries parsed, by validity",
		}, []string{"status"}),
		syncOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "outcomes_total",
			Help:      "Artifact sync outcomes",
		}, []string{"artifact", "outcome"}),
		artifactBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last built artifact in bytes",
		}, []string{"artifact"}),
		syncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Time to sync one artifact",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"artifact"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time to download the CIDR list",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		fetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "failures_total",
			Help:      "Failed CIDR list downloads",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last fully successful run finished",
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveFetch records one download attempt.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	m.fetchDuration.Observe(d.Seconds())
	if err != nil {
		m.fetchFailures.Inc()
	}
}

// ObserveParse records the parsed entry counts.
func (m *Metrics) ObserveParse(valid, invalid int) {
	m.rangesParsed.WithLabelValues("valid").Add(float64(valid))
	m.rangesParsed.WithLabelValues("invalid").Add(float64(invalid))
}

// ObserveArtifact records the size of a built artifact.
func (m *Metrics) ObserveArtifact(kind string, size int) {
	m.artifactBytes.WithLabelValues(kind).Set(float64(size))
}

// ObserveSync records one sync result.
func (m *Metrics) ObserveSync(r syncer.Result) {
	kind := string(r.Kind)
	m.syncOutcomes.WithLabelValues(kind, r.Outcome.String()).Inc()
	m.syncDuration.WithLabelValues(kind).Observe(r.Duration.Seconds())
}

// MarkRun stamps the end of a run; success also stamps the success gauge.
func (m *Metrics) MarkRun(at time.Time, success bool) {
	m.lastRun.Set(float64(at.Unix()))
	if success {
		m.lastSuccess.Set(float64(at.Unix()))
	}
}

// WriteToTextfile writes the registry atomically in the text exposition
// format.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
