package spatial

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// feature is one polygon record read from a dataset with its attribute value.
type feature struct {
	attr string
	geom *geom.MultiPolygon
}

// readShapefile reads every polygon record of a shapefile, or of the first
// shapefile inside a .zip archive, together with the value of field.
func readShapefile(path, field string) ([]feature, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		dir, cleanup, err := extractZIPTemp(path)
		if err != nil {
			return nil, err
		}
		defer cleanup()

		shpPath, err := findFileByExt(dir, ".shp")
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: find shapefile in %s", path)
		}
		path = shpPath
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idx := fieldIndex(reader, field)
	if idx < 0 {
		return nil, eris.Errorf("spatial: field %s not found in %s", field, path)
	}

	var features []feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		mp := shapeToMultiPolygon(shape)
		if mp == nil {
			skipped++
			continue
		}
		attr := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		features = append(features, feature{attr: attr, geom: mp})
	}

	if skipped > 0 {
		zap.L().Debug("spatial: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// shapeToMultiPolygon converts a shapefile polygon to a MultiPolygon. Rings
// wound clockwise start a new polygon; counter-clockwise rings are holes of
// the polygon before them. Non-polygon shapes return nil.
func shapeToMultiPolygon(s shp.Shape) *geom.MultiPolygon {
	var pts []shp.Point
	var parts []int32
	switch p := s.(type) {
	case *shp.Polygon:
		pts, parts = p.Points, p.Parts
	case *shp.PolygonZ:
		pts, parts = p.Points, p.Parts
	case *shp.PolygonM:
		pts, parts = p.Points, p.Parts
	default:
		return nil
	}
	if len(parts) == 0 || len(pts) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	var current *geom.Polygon

	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("spatial: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := range parts {
		start := parts[i]
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(pts)) || end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, pts[j].X, pts[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if current == nil || !xy.IsRingCounterClockwise(geom.XY, flat) {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("spatial: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
