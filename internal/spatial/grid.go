package spatial

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Cell is one polygon of a grid.
type Cell struct {
	ID   int64
	Geom *geom.MultiPolygon
}

// Grid is a named, immutable set of cells of one resolution.
type Grid struct {
	Name  string
	cells []Cell
	index *Index[int]
}

// NewGrid indexes cells. Cell order is the first-match order on shared
// boundaries.
func NewGrid(name string, tb TieBreak, cells []Cell) *Grid {
	g := &Grid{Name: name, index: NewIndex[int](tb)}
	for _, c := range cells {
		if c.Geom == nil || c.Geom.Empty() {
			continue
		}
		g.index.Insert(len(g.cells), c.Geom)
		g.cells = append(g.cells, c)
	}
	return g
}

// LoadGrid reads a grid from a GeoPackage (.gpkg) or a shapefile (.shp or
// zipped). idColumn names the integer cell id column.
func LoadGrid(ctx context.Context, name, path, table, idColumn string, tb TieBreak) (*Grid, error) {
	var features []feature
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gpkg":
		features, err = readGeoPackage(ctx, path, table, idColumn)
	case ".shp", ".zip":
		if idColumn == "" {
			idColumn = "id"
		}
		features, err = readShapefile(path, idColumn)
	default:
		return nil, eris.Errorf("spatial: unsupported grid format %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: load grid %s", name)
	}

	cells := make([]Cell, 0, len(features))
	for _, f := range features {
		id, err := strconv.ParseInt(strings.TrimSpace(f.attr), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: grid %s has non-integer cell id %q", name, f.attr)
		}
		cells = append(cells, Cell{ID: id, Geom: f.geom})
	}

	g := NewGrid(name, tb, cells)
	zap.L().With(zap.String("component", "spatial.grid")).Info("grid loaded",
		zap.String("grid", name),
		zap.String("path", path),
		zap.Int("cells", g.Len()),
	)
	return g, nil
}

// Len returns the number of cells.
func (g *Grid) Len() int { return len(g.cells) }

// Cell returns the cell at position i as reported by Locate.
func (g *Grid) Cell(i int) Cell { return g.cells[i] }

// Locate returns the position of the cell covering (lon, lat).
func (g *Grid) Locate(lon, lat float64) (int, bool) {
	return g.index.Locate(lon, lat)
}
