package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sightings-cli/internal/metrics"
	"github.com/sells-group/sightings-cli/internal/resilience"
	"github.com/sells-group/sightings-cli/internal/source"
)

// ErrChunkAbandoned is returned when every fetch attempt for a window failed.
var ErrChunkAbandoned = eris.New("ingest: chunk abandoned")

// ObservationSource is the part of the remote API the fetcher needs.
type ObservationSource interface {
	FetchObservations(ctx context.Context, from, to time.Time) ([]byte, error)
}

// Fetcher retrieves one window of sightings with a fixed-delay retry.
type Fetcher struct {
	src      ObservationSource
	attempts int
	delay    time.Duration
	metrics  *metrics.Ingest
	log      *zap.Logger
}

// NewFetcher creates a Fetcher making at most attempts requests per window,
// pausing delay between them.
func NewFetcher(src ObservationSource, attempts int, delay time.Duration, m *metrics.Ingest) *Fetcher {
	if attempts <= 0 {
		attempts = 3
	}
	return &Fetcher{
		src:      src,
		attempts: attempts,
		delay:    delay,
		metrics:  m,
		log:      zap.L().With(zap.String("component", "ingest.fetcher")),
	}
}

// Fetch returns the raw sighting entries of w. Every failed attempt that
// will be retried is logged as a warning. Exhausting the attempts yields
// ErrChunkAbandoned; a body without a sightings list yields
// source.ErrMalformedChunk and is not retried.
func (f *Fetcher) Fetch(ctx context.Context, w Window) ([]json.RawMessage, error) {
	log := f.log.With(zap.Stringer("window", w))

	cfg := resilience.FixedDelay(f.attempts, f.delay)
	cfg.OnRetry = resilience.RetryLogger(log, "fetch observations")

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		b, err := f.src.FetchObservations(ctx, w.From, w.To)
		f.metrics.RecordFetchAttempt(err)
		return b, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, eris.Wrapf(ErrChunkAbandoned, "%s after %d attempts: %v", w, f.attempts, err)
	}

	return source.ParseSightings(body)
}
