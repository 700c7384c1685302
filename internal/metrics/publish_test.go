package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterTotals(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewIngest(registry)
	require.NoError(t, err)
	q, err := NewQuery(registry)
	require.NoError(t, err)

	m.RecordOutcome("created")
	m.RecordOutcome("created")
	m.RecordChunk("ok")
	m.RecordFetchAttempt(errors.New("503"))
	q.Observe("aggregate", time.Now(), errors.New("timeout"))

	totals, err := CounterTotals(registry)
	require.NoError(t, err)
	assert.Equal(t, 2.0, totals["sightings_ingest_records_total{outcome=created}"])
	assert.Equal(t, 1.0, totals["sightings_ingest_chunks_total{status=ok}"])
	assert.Equal(t, 1.0, totals["sightings_ingest_fetch_attempts_total{result=failure}"])
	assert.Equal(t, 1.0, totals["sightings_query_errors_total{operation=aggregate}"])
	for key := range totals {
		assert.NotContains(t, key, "duration", "histograms are not counters")
	}
}

func TestPush(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	m, err := NewIngest(registry)
	require.NoError(t, err)
	m.RecordChunk("ok")

	require.NoError(t, Push(context.Background(), srv.URL, "sightings_ingest", registry))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/sightings_ingest", path)
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	_, err := NewIngest(registry)
	require.NoError(t, err)

	err = Push(context.Background(), srv.URL, "sightings_ingest", registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: push sightings_ingest")
}
