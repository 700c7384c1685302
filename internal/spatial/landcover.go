package spatial

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LandCover classifies points by the land-cover polygon that covers them.
type LandCover struct {
	index *Index[string]
}

// NewLandCover creates an empty land-cover set.
func NewLandCover(tb TieBreak) *LandCover {
	return &LandCover{index: NewIndex[string](tb)}
}

// LoadLandCover reads land-cover polygons from a shapefile (or a zipped
// shapefile), tagging each with the value of classField. Polygons keep file
// order, which is the first-match order.
func LoadLandCover(path, classField string, tb TieBreak) (*LandCover, error) {
	features, err := readShapefile(path, classField)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: load land cover")
	}

	lc := NewLandCover(tb)
	for _, f := range features {
		lc.Add(f.attr, f.geom)
	}

	zap.L().With(zap.String("component", "spatial.landcover")).Info("land cover loaded",
		zap.String("path", path),
		zap.Int("polygons", lc.Len()),
		zap.String("tie_break", string(tb)),
	)
	return lc, nil
}

// Add appends a polygon with its class code.
func (lc *LandCover) Add(class string, mp *geom.MultiPolygon) {
	lc.index.Insert(class, mp)
}

// Len returns the number of polygons.
func (lc *LandCover) Len() int { return lc.index.Len() }

// Resolve returns the class code for (lon, lat), or false when the point is
// unclassified.
func (lc *LandCover) Resolve(lon, lat float64) (string, bool) {
	return lc.index.Locate(lon, lat)
}
