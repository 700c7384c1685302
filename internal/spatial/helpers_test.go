package spatial

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
)

// box returns a single-polygon MultiPolygon covering the given rectangle.
func box(minX, minY, maxX, maxY float64) *geom.MultiPolygon {
	return geom.NewMultiPolygonFlat(geom.XY, []float64{
		minX, minY, minX, maxY, maxX, maxY, maxX, minY, minX, minY,
	}, [][]int{{10}})
}

// boxWithHole returns a rectangle with a rectangular hole.
func boxWithHole(outer, hole [4]float64) *geom.MultiPolygon {
	flat := []float64{
		outer[0], outer[1], outer[0], outer[3], outer[2], outer[3], outer[2], outer[1], outer[0], outer[1],
		hole[0], hole[1], hole[2], hole[1], hole[2], hole[3], hole[0], hole[3], hole[0], hole[1],
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, [][]int{{10, 20}})
}

// shpRing returns a closed rectangle ring; clockwise when cw is true.
func shpRing(minX, minY, maxX, maxY float64, cw bool) []shp.Point {
	if cw {
		return []shp.Point{{X: minX, Y: minY}, {X: minX, Y: maxY}, {X: maxX, Y: maxY}, {X: maxX, Y: minY}, {X: minX, Y: minY}}
	}
	return []shp.Point{{X: minX, Y: minY}, {X: maxX, Y: minY}, {X: maxX, Y: maxY}, {X: minX, Y: maxY}, {X: minX, Y: minY}}
}

func shpPolygon(rings ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(rings))
	return &p
}
