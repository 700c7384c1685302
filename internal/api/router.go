// Package api is the thin HTTP query surface used by the map front end.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/sightings-cli/internal/aggregate"
	"github.com/sells-group/sightings-cli/internal/model"
)

// Store is the catalog and observation reads the API serves directly.
type Store interface {
	Ping(ctx context.Context) error
	ListSpecies(ctx context.Context) ([]model.Species, error)
	ListFamilies(ctx context.Context) ([]model.Family, error)
	QueryObservations(ctx context.Context, f model.ObservationFilter, limit int) ([]model.StoredObservation, error)
	SpeciesObservationCounts(ctx context.Context) ([]model.SpeciesCount, error)
}

// Aggregator answers the spatial and histogram queries.
type Aggregator interface {
	Aggregate(ctx context.Context, gridNames []string, f model.ObservationFilter) (map[string][]aggregate.CellCount, error)
	ElevationHistogram(ctx context.Context, latinName string) ([]aggregate.Band, error)
	LandCoverDistribution(ctx context.Context, latinName string) ([]model.ClassCount, error)
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// QueryTimeout bounds each request; zero means no limit.
	QueryTimeout time.Duration
	// DefaultGrids are aggregated when a /grid request names none.
	DefaultGrids []string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Now is the clock for default date ranges.
	Now func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(st Store, agg Aggregator, opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &handlers{
		store: st,
		agg:   agg,
		opts:  opts,
		log:   zap.L().With(zap.String("component", "api")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.QueryTimeout > 0 {
		r.Use(middleware.Timeout(opts.QueryTimeout))
	}

	r.Get("/health", h.health)
	r.Get("/species", h.listSpecies)
	r.Get("/species/counts", h.speciesCounts)
	r.Get("/families", h.listFamilies)
	r.Get("/observations", h.observations)
	r.Get("/grid", h.grid)
	r.Get("/elevation", h.elevation)
	r.Get("/landcover", h.landcover)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
