package aggregate

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollection renders cell counts as GeoJSON features carrying "id"
// and "count" properties.
func FeatureCollection(cells []CellCount) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(cells))}
	for _, c := range cells {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: c.Geom,
			Properties: map[string]interface{}{
				"id":    c.CellID,
				"count": c.Count,
			},
		})
	}
	return fc
}

// MarshalGrids renders an Aggregate result as a JSON object mapping each
// grid name to its FeatureCollection.
func MarshalGrids(result map[string][]CellCount) ([]byte, error) {
	out := make(map[string]*geojson.FeatureCollection, len(result))
	for name, cells := range result {
		out[name] = FeatureCollection(cells)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: encode geojson")
	}
	return b, nil
}
