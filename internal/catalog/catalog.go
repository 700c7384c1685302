// Package catalog loads the static reference data a process needs: rarity
// levels, the species snapshot, land cover and the aggregation grids. It is
// loaded once at startup and read-only afterwards.
package catalog

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sightings-cli/internal/config"
	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/spatial"
)

// Reference holds the loaded reference datasets.
type Reference struct {
	Rarities  []model.Rarity
	LandCover *spatial.LandCover
	TieBreak  spatial.TieBreak

	grids     map[string]*spatial.Grid
	gridOrder []string
	species   map[int]model.Species
}

// Parts selects which datasets Load reads. Commands only pay for what they
// use.
type Parts struct {
	Rarities  bool
	LandCover bool
	Grids     bool
}

// All loads every dataset.
var All = Parts{Rarities: true, LandCover: true, Grids: true}

// Load reads the selected datasets described by cfg. Land cover and grids
// are read concurrently.
func Load(ctx context.Context, cfg config.ReferenceConfig, parts Parts) (*Reference, error) {
	log := zap.L().With(zap.String("component", "catalog"))

	tb, err := spatial.ParseTieBreak(cfg.TieBreak)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: tie break")
	}

	ref := &Reference{
		TieBreak: tb,
		grids:    make(map[string]*spatial.Grid),
	}

	if parts.Rarities {
		if ref.Rarities, err = LoadRarities(cfg.RarityPath); err != nil {
			return nil, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if parts.LandCover && cfg.LandcoverPath != "" {
		g.Go(func() error {
			lc, err := spatial.LoadLandCover(cfg.LandcoverPath, cfg.LandcoverClassField, tb)
			if err != nil {
				return err
			}
			ref.LandCover = lc
			return nil
		})
	}

	var loaded []*spatial.Grid
	if parts.Grids {
		loaded = make([]*spatial.Grid, len(cfg.Grids))
		for i, gc := range cfg.Grids {
			g.Go(func() error {
				grid, err := spatial.LoadGrid(gctx, gc.Name, gc.Path, gc.Table, gc.IDColumn, tb)
				if err != nil {
					return err
				}
				loaded[i] = grid
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "catalog: load reference data")
	}

	for _, grid := range loaded {
		ref.AddGrid(grid)
	}

	log.Info("reference data loaded",
		zap.Int("rarities", len(ref.Rarities)),
		zap.Bool("landcover", ref.LandCover != nil),
		zap.Strings("grids", ref.gridOrder),
	)
	return ref, nil
}

// LoadRarities reads the ordered rarity levels from a JSON or YAML list. An
// empty path yields model.DefaultRarities.
func LoadRarities(path string) ([]model.Rarity, error) {
	if path == "" {
		return model.DefaultRarities, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read rarity file %s", path)
	}

	// JSON is valid YAML, so one decoder covers both.
	var levels []string
	if err := yaml.Unmarshal(data, &levels); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse rarity file %s", path)
	}

	out := make([]model.Rarity, 0, len(levels))
	for _, l := range levels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, model.Rarity(l))
		}
	}
	if len(out) == 0 {
		return nil, eris.Errorf("catalog: rarity file %s lists no levels", path)
	}
	return out, nil
}

// AddGrid registers a grid. A grid with an existing name replaces it.
func (r *Reference) AddGrid(g *spatial.Grid) {
	if r.grids == nil {
		r.grids = make(map[string]*spatial.Grid)
	}
	if _, ok := r.grids[g.Name]; !ok {
		r.gridOrder = append(r.gridOrder, g.Name)
	}
	r.grids[g.Name] = g
}

// Grid returns the named grid.
func (r *Reference) Grid(name string) (*spatial.Grid, bool) {
	g, ok := r.grids[name]
	return g, ok
}

// GridNames returns the grid names in configuration order.
func (r *Reference) GridNames() []string {
	return append([]string(nil), r.gridOrder...)
}

// SpeciesLister is the store query behind the species snapshot.
type SpeciesLister interface {
	ListSpecies(ctx context.Context) ([]model.Species, error)
}

// LoadSpecies snapshots the species catalog.
func (r *Reference) LoadSpecies(ctx context.Context, lister SpeciesLister) error {
	list, err := lister.ListSpecies(ctx)
	if err != nil {
		return eris.Wrap(err, "catalog: snapshot species")
	}
	r.species = make(map[int]model.Species, len(list))
	for _, sp := range list {
		r.species[sp.ID] = sp
	}
	return nil
}

// SpeciesIDs returns the snapshot's species ids in ascending order.
func (r *Reference) SpeciesIDs() []int {
	ids := make([]int, 0, len(r.species))
	for id := range r.species {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Species returns a snapshot entry.
func (r *Reference) Species(id int) (model.Species, bool) {
	sp, ok := r.species[id]
	return sp, ok
}
