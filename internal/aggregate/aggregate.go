// Package aggregate answers the read-side questions of the map front end:
// per-cell observation counts on fixed grids, elevation histograms and
// land-cover distributions.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sightings-cli/internal/metrics"
	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/spatial"
)

// ErrUnknownGrid is returned when a requested grid name is not loaded.
var ErrUnknownGrid = eris.New("aggregate: unknown grid")

// BandWidth is the altitude band size of the elevation histogram, in metres.
const BandWidth = 500

// Store is the read side of the observation store used here.
type Store interface {
	MatchingPoints(ctx context.Context, f model.ObservationFilter) ([]model.Point, error)
	SpeciesByLatinName(ctx context.Context, latinName string) (model.Species, error)
	AltitudeBands(ctx context.Context, speciesID, width int) ([]model.BandCount, error)
	LandCoverCounts(ctx context.Context, speciesID *int) ([]model.ClassCount, error)
}

// Grids resolves grid names.
type Grids interface {
	Grid(name string) (*spatial.Grid, bool)
}

// CellCount is the number of matching observations inside one grid cell.
type CellCount struct {
	CellID int64
	Geom   *geom.MultiPolygon
	Count  int
}

// Band is one bar of the elevation histogram.
type Band struct {
	Label string `json:"elevation"`
	Lower int    `json:"lower"`
	Count int64  `json:"count"`
}

// Aggregator is stateless apart from its collaborators and safe for
// concurrent use.
type Aggregator struct {
	store   Store
	grids   Grids
	metrics *metrics.Query
	log     *zap.Logger
}

// New creates an Aggregator.
func New(st Store, grids Grids, m *metrics.Query) *Aggregator {
	return &Aggregator{
		store:   st,
		grids:   grids,
		metrics: m,
		log:     zap.L().With(zap.String("component", "aggregate")),
	}
}

// Aggregate counts the observations matching f in every cell of each named
// grid. Cells without observations are left out. With neither species nor
// families selected every grid maps to an empty result and the store is not
// queried.
func (a *Aggregator) Aggregate(ctx context.Context, gridNames []string, f model.ObservationFilter) (result map[string][]CellCount, err error) {
	defer func(start time.Time) { a.metrics.Observe("grid", start, err) }(time.Now())

	grids := make([]*spatial.Grid, len(gridNames))
	for i, name := range gridNames {
		g, ok := a.grids.Grid(name)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownGrid, "%q", name)
		}
		grids[i] = g
	}

	result = make(map[string][]CellCount, len(gridNames))
	if f.Unconstrained() {
		for _, name := range gridNames {
			result[name] = []CellCount{}
		}
		return result, nil
	}

	points, err := a.store.MatchingPoints(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: matching points")
	}

	counts := make([][]CellCount, len(grids))
	g, gctx := errgroup.WithContext(ctx)
	for i, grid := range grids {
		g.Go(func() error {
			c, err := CountCells(gctx, grid, points)
			if err != nil {
				return err
			}
			counts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, name := range gridNames {
		result[name] = counts[i]
	}
	a.log.Debug("grid aggregation",
		zap.Strings("grids", gridNames),
		zap.Int("points", len(points)),
	)
	return result, nil
}

// CountCells assigns each point to the one cell of grid covering it and
// returns the non-zero cells in grid order.
func CountCells(ctx context.Context, grid *spatial.Grid, points []model.Point) ([]CellCount, error) {
	counts := make([]int, grid.Len())
	for i, p := range points {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if c, ok := grid.Locate(p.Lon, p.Lat); ok {
			counts[c]++
		}
	}

	out := []CellCount{}
	for i, n := range counts {
		if n == 0 {
			continue
		}
		cell := grid.Cell(i)
		out = append(out, CellCount{CellID: cell.ID, Geom: cell.Geom, Count: n})
	}
	return out, nil
}

// ElevationHistogram counts a species' observations per 500 m altitude
// band, lowest band first. Only non-empty bands are returned and
// observations without altitude are ignored. An unknown name yields
// store.ErrSpeciesNotFound.
func (a *Aggregator) ElevationHistogram(ctx context.Context, latinName string) (bands []Band, err error) {
	defer func(start time.Time) { a.metrics.Observe("elevation", start, err) }(time.Now())

	sp, err := a.store.SpeciesByLatinName(ctx, latinName)
	if err != nil {
		return nil, err
	}

	raw, err := a.store.AltitudeBands(ctx, sp.ID, BandWidth)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: altitude bands")
	}
	return toBands(raw), nil
}

func toBands(raw []model.BandCount) []Band {
	bands := make([]Band, 0, len(raw))
	for _, b := range raw {
		if b.Count <= 0 {
			continue
		}
		bands = append(bands, Band{
			Label: fmt.Sprintf("%d-%d", b.Lower, b.Lower+BandWidth-1),
			Lower: b.Lower,
			Count: b.Count,
		})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].Lower < bands[j].Lower })
	return bands
}

// LandCoverDistribution counts observations per land-cover class for one
// species, or for all species when latinName is empty.
func (a *Aggregator) LandCoverDistribution(ctx context.Context, latinName string) (counts []model.ClassCount, err error) {
	defer func(start time.Time) { a.metrics.Observe("landcover", start, err) }(time.Now())

	var speciesID *int
	if latinName != "" {
		sp, err := a.store.SpeciesByLatinName(ctx, latinName)
		if err != nil {
			return nil, err
		}
		speciesID = &sp.ID
	}

	counts, err = a.store.LandCoverCounts(ctx, speciesID)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: land cover counts")
	}
	if counts == nil {
		counts = []model.ClassCount{}
	}
	return counts, nil
}
