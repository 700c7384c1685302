package spatial

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// geometryColumn is a row of gpkg_geometry_columns.
type geometryColumn struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

type gpkgRow struct {
	ID   int64  `db:"id"`
	Geom []byte `db:"geom"`
}

// readGeoPackage reads polygon features from a GeoPackage. When table is
// empty the first feature table listed in gpkg_geometry_columns is used.
// The id column value becomes the feature attribute.
func readGeoPackage(ctx context.Context, path, table, idColumn string) ([]feature, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "spatial: stat geopackage %s", path)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: open geopackage %s", path)
	}
	defer db.Close() //nolint:errcheck

	var col geometryColumn
	q := `SELECT table_name, column_name FROM gpkg_geometry_columns`
	args := []any{}
	if table != "" {
		q += ` WHERE table_name = ?`
		args = append(args, table)
	}
	q += ` ORDER BY table_name LIMIT 1`
	if err := db.GetContext(ctx, &col, q, args...); err != nil {
		return nil, eris.Wrapf(err, "spatial: find geometry column in %s", path)
	}

	if idColumn == "" {
		idColumn = "fid"
	}
	var rows []gpkgRow
	sel := fmt.Sprintf(`SELECT %s AS id, %s AS geom FROM %s ORDER BY %s`,
		quoteIdent(idColumn), quoteIdent(col.ColumnName), quoteIdent(col.TableName), quoteIdent(idColumn))
	if err := db.SelectContext(ctx, &rows, sel); err != nil {
		return nil, eris.Wrapf(err, "spatial: read features from %s", col.TableName)
	}

	features := make([]feature, 0, len(rows))
	for _, r := range rows {
		mp, err := decodeGPKGGeometry(r.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: decode feature %d", r.ID)
		}
		if mp == nil {
			continue
		}
		features = append(features, feature{attr: fmt.Sprint(r.ID), geom: mp})
	}
	return features, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// decodeGPKGGeometry decodes a GeoPackage binary geometry blob (GP header
// followed by standard WKB). Empty geometries and non-polygonal types return
// nil without error.
func decodeGPKGGeometry(b []byte) (*geom.MultiPolygon, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, eris.New("spatial: missing GP header")
	}
	flags := b[3]
	if flags&0x20 != 0 {
		return nil, eris.New("spatial: extended geopackage geometry not supported")
	}
	if flags&0x10 != 0 {
		return nil, nil
	}

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, eris.Errorf("spatial: invalid envelope code in flags %#x", flags)
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 != 0 {
		order = binary.LittleEndian
	}
	if srid := int32(order.Uint32(b[4:8])); srid != 4326 && srid != 0 && srid != -1 {
		return nil, eris.Errorf("spatial: unsupported srs id %d, expected 4326", srid)
	}

	start := 8 + envelope
	if len(b) < start {
		return nil, eris.New("spatial: truncated geopackage header")
	}

	g, err := wkb.Unmarshal(b[start:])
	if err != nil {
		return nil, eris.Wrap(err, "spatial: decode wkb")
	}
	return toMultiPolygon(g), nil
}

// toMultiPolygon normalises a polygonal geometry to a 2D MultiPolygon.
func toMultiPolygon(g geom.T) *geom.MultiPolygon {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		if t.Layout() == geom.XY {
			return t
		}
		return geom.NewMultiPolygonFlat(geom.XY, dropToXY(t.Layout(), t.FlatCoords()), scaleEndss(t.Endss(), t.Layout().Stride())).SetSRID(4326)
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
		p := t
		if t.Layout() != geom.XY {
			p = geom.NewPolygonFlat(geom.XY, dropToXY(t.Layout(), t.FlatCoords()), scaleEnds(t.Ends(), t.Layout().Stride()))
		}
		if err := mp.Push(p); err != nil {
			return nil
		}
		return mp
	default:
		return nil
	}
}

func dropToXY(layout geom.Layout, flat []float64) []float64 {
	stride := layout.Stride()
	out := make([]float64, 0, len(flat)/stride*2)
	for i := 0; i+1 < len(flat); i += stride {
		out = append(out, flat[i], flat[i+1])
	}
	return out
}

func scaleEnds(ends []int, stride int) []int {
	out := make([]int, len(ends))
	for i, e := range ends {
		out[i] = e / stride * 2
	}
	return out
}

func scaleEndss(endss [][]int, stride int) [][]int {
	out := make([][]int, len(endss))
	for i, ends := range endss {
		out[i] = scaleEnds(ends, stride)
	}
	return out
}
