package ingest

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sightings-cli/internal/metrics"
	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/source"
	"github.com/sells-group/sightings-cli/internal/store"
)

// Outcome is what happened to one sighting record.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeDuplicate
	OutcomeMalformedRecord
	OutcomeUnknownSpecies
	OutcomeStorageFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeMalformedRecord:
		return "malformed_record"
	case OutcomeUnknownSpecies:
		return "unknown_species"
	case OutcomeStorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// RunStats tallies a run's chunks and record outcomes.
type RunStats struct {
	Chunks          int `json:"chunks"`
	ChunksOK        int `json:"chunks_ok"`
	ChunksAbandoned int `json:"chunks_abandoned"`
	ChunksMalformed int `json:"chunks_malformed"`

	Records         int `json:"records"`
	Created         int `json:"created"`
	Duplicates      int `json:"duplicates"`
	Malformed       int `json:"malformed"`
	UnknownSpecies  int `json:"unknown_species"`
	StorageFailures int `json:"storage_failures"`
}

func (s *RunStats) add(o Outcome) {
	s.Records++
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeMalformedRecord:
		s.Malformed++
	case OutcomeUnknownSpecies:
		s.UnknownSpecies++
	case OutcomeStorageFailure:
		s.StorageFailures++
	}
}

// Map returns the stats as a JSON-ready map for the run log.
func (s RunStats) Map() map[string]any {
	b, _ := json.Marshal(s)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// ObservationWriter stores one observation.
type ObservationWriter interface {
	Insert(ctx context.Context, obs model.Observation) (store.InsertResult, error)
}

// Classifier maps a location to a land-cover class.
type Classifier interface {
	Resolve(lon, lat float64) (string, bool)
}

// Pipeline runs fetch, validate, classify and store for a list of windows.
// Windows and the records within them are processed sequentially.
type Pipeline struct {
	fetcher   *Fetcher
	validator *Validator
	landcover Classifier
	store     ObservationWriter
	metrics   *metrics.Ingest
	log       *zap.Logger
}

// New creates a Pipeline. landcover may be nil, in which case every
// observation is stored unclassified.
func New(fetcher *Fetcher, validator *Validator, landcover Classifier, st ObservationWriter, m *metrics.Ingest) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		validator: validator,
		landcover: landcover,
		store:     st,
		metrics:   m,
		log:       zap.L().With(zap.String("component", "ingest.pipeline")),
	}
}

// Run processes windows in order. A failed window never stops the run; only
// context cancellation does, and it is checked between windows and during
// retry pauses.
func (p *Pipeline) Run(ctx context.Context, windows []Window) (*RunStats, error) {
	stats := &RunStats{}
	p.log.Info("ingest run starting", zap.Int("windows", len(windows)))

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.runWindow(ctx, w, stats); err != nil {
			return stats, err
		}
	}

	p.log.Info("ingest run finished",
		zap.Int("chunks", stats.Chunks),
		zap.Int("chunks_abandoned", stats.ChunksAbandoned),
		zap.Int("chunks_malformed", stats.ChunksMalformed),
		zap.Int("records", stats.Records),
		zap.Int("created", stats.Created),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("malformed", stats.Malformed),
		zap.Int("unknown_species", stats.UnknownSpecies),
		zap.Int("storage_failures", stats.StorageFailures),
	)
	return stats, nil
}

// runWindow returns an error only when ctx was cancelled mid-window.
func (p *Pipeline) runWindow(ctx context.Context, w Window, stats *RunStats) error {
	log := p.log.With(zap.Stringer("window", w))
	log.Info("requesting window")

	sightings, err := p.fetcher.Fetch(ctx, w)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.Chunks++
		if eris.Is(err, source.ErrMalformedChunk) {
			stats.ChunksMalformed++
			p.metrics.RecordChunk("malformed")
			log.Warn("chunk skipped: no valid sightings list", zap.Error(err))
			return nil
		}
		stats.ChunksAbandoned++
		p.metrics.RecordChunk("abandoned")
		log.Error("chunk abandoned", zap.Error(err))
		return nil
	}

	stats.Chunks++
	stats.ChunksOK++
	p.metrics.RecordChunk("ok")

	for _, raw := range sightings {
		o := p.ProcessRecord(ctx, raw)
		stats.add(o)
		p.metrics.RecordOutcome(o.String())
	}
	return nil
}

// ProcessRecord takes one raw sighting through parse, validation, land-cover
// classification and insert. Failures are logged and reported as the
// outcome; they never propagate.
func (p *Pipeline) ProcessRecord(ctx context.Context, raw json.RawMessage) Outcome {
	obs, err := ParseSighting(raw)
	if err != nil {
		p.log.Warn("incomplete record skipped", zap.Error(err), zap.ByteString("record", raw))
		return OutcomeMalformedRecord
	}

	log := p.log.With(zap.Int("species_id", obs.SpeciesID), zap.Time("date", obs.Date))

	if err := p.validator.Validate(ctx, obs); err != nil {
		switch {
		case eris.Is(err, ErrUnknownSpecies):
			log.Warn("species not in catalog, record discarded")
			return OutcomeUnknownSpecies
		case eris.Is(err, ErrMalformedRecord):
			log.Warn("invalid record skipped", zap.Error(err))
			return OutcomeMalformedRecord
		default:
			log.Error("species check failed", zap.Error(err))
			return OutcomeStorageFailure
		}
	}

	if p.landcover != nil {
		if class, ok := p.landcover.Resolve(obs.Lon, obs.Lat); ok {
			obs.LandCover = &class
		}
	}

	res, err := p.store.Insert(ctx, obs)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return OutcomeStorageFailure
	}
	if res == store.InsertDuplicate {
		log.Debug("observation already stored")
		return OutcomeDuplicate
	}

	var class string
	if obs.LandCover != nil {
		class = *obs.LandCover
	}
	log.Debug("observation stored", zap.String("landcover", class))
	return OutcomeCreated
}
