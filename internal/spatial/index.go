// Package spatial holds the static polygon reference data (land cover and
// grid definitions) and the bounding-box index used to classify points.
package spatial

import (
	"math"
	"sort"

	cgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// TieBreak selects the winner when several polygons cover the same point.
type TieBreak string

const (
	// FirstMatch picks the covering polygon that was inserted first.
	FirstMatch TieBreak = "first_match"
	// SmallestArea picks the covering polygon with the smallest planar area,
	// falling back to insertion order on equal areas.
	SmallestArea TieBreak = "smallest_area"
)

// ParseTieBreak validates a configured tie-break name. Empty means FirstMatch.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(s) {
	case "", FirstMatch:
		return FirstMatch, nil
	case SmallestArea:
		return SmallestArea, nil
	default:
		return "", eris.Errorf("spatial: unknown tie break %q", s)
	}
}

// searchPad widens a point into a tiny box so that points on a bounding box
// edge are always returned as candidates.
const searchPad = 1e-9

// entry is what the R-tree stores: the polygon's bounding box as a ctessum
// polygon plus its insertion position.
type entry struct {
	cgeom.Polygon
	ord int
}

type item[T any] struct {
	value T
	geom  *geom.MultiPolygon
	area  float64
}

// Index answers "which polygon covers this point" over a fixed polygon set.
// It returns exactly what a linear scan in insertion order would return;
// the R-tree only narrows the candidates. Index is not safe for concurrent
// Insert, but concurrent Locate calls after loading are safe.
type Index[T any] struct {
	tree     *rtree.Rtree
	items    []item[T]
	tieBreak TieBreak
}

// NewIndex creates an empty index.
func NewIndex[T any](tb TieBreak) *Index[T] {
	if tb == "" {
		tb = FirstMatch
	}
	return &Index[T]{
		tree:     rtree.NewTree(25, 50),
		tieBreak: tb,
	}
}

// Insert adds a polygon tagged with value. Empty geometries are ignored.
func (ix *Index[T]) Insert(value T, mp *geom.MultiPolygon) {
	if mp == nil || mp.Empty() {
		return
	}
	b := mp.Bounds()
	ord := len(ix.items)
	ix.items = append(ix.items, item[T]{value: value, geom: mp, area: unsignedArea(mp)})

	minX, minY, maxX, maxY := b.Min(0), b.Min(1), b.Max(0), b.Max(1)
	ix.tree.Insert(&entry{
		Polygon: cgeom.Polygon{{
			{X: minX, Y: minY},
			{X: maxX, Y: minY},
			{X: maxX, Y: maxY},
			{X: minX, Y: maxY},
		}},
		ord: ord,
	})
}

// Len returns the number of indexed polygons.
func (ix *Index[T]) Len() int { return len(ix.items) }

// Locate returns the value of the polygon covering (lon, lat) under the
// index's tie-break, and false when no polygon covers the point.
func (ix *Index[T]) Locate(lon, lat float64) (T, bool) {
	pos := ix.locate(lon, lat)
	if pos < 0 {
		var zero T
		return zero, false
	}
	return ix.items[pos].value, true
}

func (ix *Index[T]) locate(lon, lat float64) int {
	box := &cgeom.Bounds{
		Min: cgeom.Point{X: lon - searchPad, Y: lat - searchPad},
		Max: cgeom.Point{X: lon + searchPad, Y: lat + searchPad},
	}
	hits := ix.tree.SearchIntersect(box)
	if len(hits) == 0 {
		return -1
	}

	ords := make([]int, 0, len(hits))
	for _, h := range hits {
		ords = append(ords, h.(*entry).ord)
	}
	sort.Ints(ords)

	pt := geom.Coord{lon, lat}
	best := -1
	for _, ord := range ords {
		it := &ix.items[ord]
		if !coversPoint(it.geom, pt) {
			continue
		}
		if ix.tieBreak == FirstMatch {
			return ord
		}
		if best < 0 || it.area < ix.items[best].area {
			best = ord
		}
	}
	return best
}

// unsignedArea is the planar area of mp regardless of ring orientation:
// outer rings count positive, holes negative.
func unsignedArea(mp *geom.MultiPolygon) float64 {
	var area float64
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		for j := 0; j < p.NumLinearRings(); j++ {
			ring := math.Abs(p.LinearRing(j).Area())
			if j == 0 {
				area += ring
			} else {
				area -= ring
			}
		}
	}
	return area
}

// coversPoint reports whether pt lies in the interior or on the boundary of
// mp. Points strictly inside a hole are not covered.
func coversPoint(mp *geom.MultiPolygon, pt geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		if polygonCovers(mp.Polygon(i), pt) {
			return true
		}
	}
	return false
}

func polygonCovers(p *geom.Polygon, pt geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	switch xy.LocatePointInRing(layout, pt, p.LinearRing(0).FlatCoords()) {
	case location.Exterior:
		return false
	case location.Boundary:
		return true
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, pt, p.LinearRing(i).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}
