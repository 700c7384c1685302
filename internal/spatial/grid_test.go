package spatial

import (
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// encodeGPKG builds a GeoPackage geometry blob with an XY envelope.
func encodeGPKG(t *testing.T, g geom.T) []byte {
	t.Helper()
	body, err := wkb.Marshal(g, wkb.NDR)
	require.NoError(t, err)

	b := g.Bounds()
	hdr := make([]byte, 8+32)
	hdr[0], hdr[1] = 'G', 'P'
	hdr[3] = 0x01 | (1 << 1) // little endian, XY envelope
	binary.LittleEndian.PutUint32(hdr[4:8], 4326)
	for i, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
		binary.LittleEndian.PutUint64(hdr[8+i*8:], math.Float64bits(v))
	}
	return append(hdr, body...)
}

func writeGeoPackage(t *testing.T, cells map[int64]geom.T, order []int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.gpkg")
	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	db.MustExec(`CREATE TABLE gpkg_geometry_columns (
		table_name TEXT NOT NULL, column_name TEXT NOT NULL,
		geometry_type_name TEXT NOT NULL, srs_id INTEGER NOT NULL, z TINYINT NOT NULL, m TINYINT NOT NULL)`)
	db.MustExec(`INSERT INTO gpkg_geometry_columns VALUES ('grid_5km', 'geom', 'MULTIPOLYGON', 4326, 0, 0)`)
	db.MustExec(`CREATE TABLE grid_5km (fid INTEGER PRIMARY KEY, id INTEGER, geom BLOB)`)
	for _, id := range order {
		db.MustExec(`INSERT INTO grid_5km (id, geom) VALUES (?, ?)`, id, encodeGPKG(t, cells[id]))
	}
	return path
}

func TestLoadGrid_GeoPackage(t *testing.T) {
	west := box(7.45, 47.15, 7.55, 47.25)
	east := geom.NewPolygonFlat(geom.XY, []float64{7.55, 47.15, 7.55, 47.25, 7.65, 47.25, 7.65, 47.15, 7.55, 47.15}, []int{10})
	path := writeGeoPackage(t, map[int64]geom.T{101: west, 102: east}, []int64{101, 102})

	g, err := LoadGrid(context.Background(), "grid5km", path, "", "id", FirstMatch)
	require.NoError(t, err)
	assert.Equal(t, "grid5km", g.Name)
	require.Equal(t, 2, g.Len())

	pos, ok := g.Locate(7.50, 47.20)
	require.True(t, ok)
	assert.Equal(t, int64(101), g.Cell(pos).ID)

	pos, ok = g.Locate(7.60, 47.20)
	require.True(t, ok)
	assert.Equal(t, int64(102), g.Cell(pos).ID)

	pos, ok = g.Locate(7.55, 47.20)
	require.True(t, ok)
	assert.Equal(t, int64(101), g.Cell(pos).ID, "shared edge goes to the first cell")

	_, ok = g.Locate(8.0, 47.2)
	assert.False(t, ok)
}

func TestLoadGrid_GeoPackageSharedEdgeGoesToLowestID(t *testing.T) {
	west := box(7.45, 47.15, 7.55, 47.25)
	east := box(7.55, 47.15, 7.65, 47.25)
	// Rows stored highest id first; load order follows the id column.
	path := writeGeoPackage(t, map[int64]geom.T{101: west, 102: east}, []int64{102, 101})

	g, err := LoadGrid(context.Background(), "grid5km", path, "", "id", FirstMatch)
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())
	assert.Equal(t, int64(101), g.Cell(0).ID)

	pos, ok := g.Locate(7.55, 47.20)
	require.True(t, ok)
	assert.Equal(t, int64(101), g.Cell(pos).ID)
}

func TestLoadGrid_GeoPackageUnknownTable(t *testing.T) {
	path := writeGeoPackage(t, map[int64]geom.T{1: box(0, 0, 1, 1)}, []int64{1})
	_, err := LoadGrid(context.Background(), "g", path, "grid_1km", "id", FirstMatch)
	assert.Error(t, err)
}

func TestLoadGrid_Shapefile(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "id",
		[]string{"7", "8"},
		[]*shp.Polygon{
			shpPolygon(shpRing(0, 0, 1, 1, true)),
			shpPolygon(shpRing(1, 0, 2, 1, true)),
		})

	g, err := LoadGrid(context.Background(), "grid1km", path, "", "id", FirstMatch)
	require.NoError(t, err)
	pos, ok := g.Locate(1.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, int64(8), g.Cell(pos).ID)
}

func TestLoadGrid_NonIntegerID(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "id", []string{"A1"},
		[]*shp.Polygon{shpPolygon(shpRing(0, 0, 1, 1, true))})

	_, err := LoadGrid(context.Background(), "g", path, "", "id", FirstMatch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-integer")
}

func TestLoadGrid_UnsupportedFormat(t *testing.T) {
	_, err := LoadGrid(context.Background(), "g", "grid.geojson", "", "", FirstMatch)
	assert.Error(t, err)
}

func TestDecodeGPKGGeometry(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XYZ, []float64{0, 0, 5, 0, 1, 5, 1, 1, 5, 0, 0, 5}, []int{12})
	blob := encodeGPKG(t, poly)

	mp, err := decodeGPKGGeometry(blob)
	require.NoError(t, err)
	require.NotNil(t, mp)
	assert.Equal(t, geom.XY, mp.Layout())
	assert.Equal(t, []float64{0, 0, 0, 1, 1, 1, 0, 0}, mp.FlatCoords())

	_, err = decodeGPKGGeometry([]byte("XX\x00\x01\x00\x00\x00\x00"))
	assert.Error(t, err)

	empty := []byte{'G', 'P', 0, 0x11, 0, 0, 0, 0}
	mp, err = decodeGPKGGeometry(empty)
	require.NoError(t, err)
	assert.Nil(t, mp)

	pt, err := wkb.Marshal(geom.NewPointFlat(geom.XY, []float64{1, 2}), wkb.NDR)
	require.NoError(t, err)
	mp, err = decodeGPKGGeometry(append([]byte{'G', 'P', 0, 0x01, 0xE6, 0x10, 0, 0}, pt...))
	require.NoError(t, err)
	assert.Nil(t, mp, "points are not polygonal")
}
