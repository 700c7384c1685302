// Package metrics exposes Prometheus collectors for ingestion and queries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Ingest counts what an ingestion run did. A nil *Ingest is valid and
// records nothing.
type Ingest struct {
	recordsTotal  *prometheus.CounterVec
	chunksTotal   *prometheus.CounterVec
	attemptsTotal *prometheus.CounterVec
}

// NewIngest creates and registers the ingestion collectors.
func NewIngest(registry prometheus.Registerer) (*Ingest, error) {
	m := &Ingest{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightings_ingest_records_total",
				Help: "Sighting records processed, by outcome",
			},
			[]string{"outcome"},
		),
		chunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightings_ingest_chunks_total",
				Help: "Date windows processed, by status",
			},
			[]string{"status"}, // ok, abandoned, malformed
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightings_ingest_fetch_attempts_total",
				Help: "Remote fetch attempts, by result",
			},
			[]string{"result"}, // success, failure
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, eris.Wrap(err, "metrics: register ingest collectors")
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *Ingest) Describe(ch chan<- *prometheus.Desc) {
	m.recordsTotal.Describe(ch)
	m.chunksTotal.Describe(ch)
	m.attemptsTotal.Describe(ch)
}

// Collect implements the Collector interface
func (m *Ingest) Collect(ch chan<- prometheus.Metric) {
	m.recordsTotal.Collect(ch)
	m.chunksTotal.Collect(ch)
	m.attemptsTotal.Collect(ch)
}

// RecordOutcome counts one processed record.
func (m *Ingest) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(outcome).Inc()
}

// RecordChunk counts one finished date window.
func (m *Ingest) RecordChunk(status string) {
	if m == nil {
		return
	}
	m.chunksTotal.WithLabelValues(status).Inc()
}

// RecordFetchAttempt counts one request to the remote source.
func (m *Ingest) RecordFetchAttempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.attemptsTotal.WithLabelValues(result).Inc()
}

// Query times read-path operations. A nil *Query is valid and records
// nothing.
type Query struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewQuery creates and registers the query collectors.
func NewQuery(registry prometheus.Registerer) (*Query, error) {
	m := &Query{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sightings_query_duration_seconds",
				Help: "Time taken by aggregation and catalog queries",
				// 5ms .. ~20s
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"operation"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sightings_query_errors_total",
				Help: "Failed queries, by operation",
			},
			[]string{"operation"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, eris.Wrap(err, "metrics: register query collectors")
	}
	return m, nil
}

// Describe implements the Collector interface
func (m *Query) Describe(ch chan<- *prometheus.Desc) {
	m.duration.Describe(ch)
	m.errors.Describe(ch)
}

// Collect implements the Collector interface
func (m *Query) Collect(ch chan<- prometheus.Metric) {
	m.duration.Collect(ch)
	m.errors.Collect(ch)
}

// Observe records how long operation took and whether it failed.
func (m *Query) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}
