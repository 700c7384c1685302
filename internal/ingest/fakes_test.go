package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/store"
)

// observeLogs routes the global logger into an observer for the duration of
// the test. Components must be constructed after calling it.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(undo)
	return logs
}

// countLogs counts entries at level whose message is msg.
func countLogs(logs *observer.ObservedLogs, level zapcore.Level, msg string) int {
	n := 0
	for _, e := range logs.FilterMessage(msg).All() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// fakeSource serves observation bodies from a function of the call number
// and window.
type fakeSource struct {
	mu    sync.Mutex
	calls int
	serve func(call int, from, to time.Time) ([]byte, error)
}

func (f *fakeSource) FetchObservations(_ context.Context, from, to time.Time) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.serve(call, from, to)
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type naturalKey struct {
	date          time.Time
	species       int
	lon, lat, alt float64
}

// memStore is an in-memory observation store keyed by the natural key.
type memStore struct {
	mu      sync.Mutex
	species map[int]bool
	rows    map[naturalKey]model.Observation
	failFor map[int]error
	inserts int
}

func newMemStore(species ...int) *memStore {
	s := &memStore{
		species: make(map[int]bool),
		rows:    make(map[naturalKey]model.Observation),
		failFor: make(map[int]error),
	}
	for _, id := range species {
		s.species[id] = true
	}
	return s
}

func (s *memStore) SpeciesExists(_ context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.species[id], nil
}

func (s *memStore) Insert(_ context.Context, obs model.Observation) (store.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if err := s.failFor[obs.SpeciesID]; err != nil {
		return 0, err
	}
	key := naturalKey{obs.Date.UTC(), obs.SpeciesID, obs.Lon, obs.Lat, obs.Alt}
	if _, ok := s.rows[key]; ok {
		return store.InsertDuplicate, nil
	}
	s.rows[key] = obs
	return store.InsertCreated, nil
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memStore) All() []model.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Observation, 0, len(s.rows))
	for _, o := range s.rows {
		out = append(out, o)
	}
	return out
}

// sighting renders one data.sightings entry with numbers sent as strings,
// the way the source often does.
func sighting(species int, iso string, lon, lat, alt float64) string {
	return fmt.Sprintf(
		`{"species":{"@id":"%d"},"date":{"@ISO8601":%q},"place":{"coord_lon":"%g","coord_lat":"%g","altitude":"%g"}}`,
		species, iso, lon, lat, alt,
	)
}

func sightingsBody(entries ...string) []byte {
	return []byte(`{"data":{"sightings":[` + strings.Join(entries, ",") + `]}}`)
}

func rawSighting(s string) json.RawMessage { return json.RawMessage(s) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
