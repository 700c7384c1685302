package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/sightings-cli/internal/db"
	"github.com/sells-group/sightings-cli/internal/model"
)

// PostgresStore implements the observation and catalog store on a pgx pool.
// It holds no connection of its own; every call acquires and releases one
// from the pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "store: ping")
}

// Migrate applies pending schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

const insertObservationSQL = `INSERT INTO observations (date, speciesid, geom, landcover)
VALUES ($1, $2, ST_GeomFromEWKB($3), $4)
ON CONFLICT (date, speciesid, geom) DO NOTHING`

// Insert writes one observation in its own transaction. An existing row with
// the same natural key makes this a no-op that returns InsertDuplicate.
func (s *PostgresStore) Insert(ctx context.Context, obs model.Observation) (InsertResult, error) {
	point, err := encodePointZ(obs.Lon, obs.Lat, obs.Alt)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "store: begin insert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, insertObservationSQL, obs.Date, obs.SpeciesID, point, obs.LandCover)
	if err != nil {
		return 0, eris.Wrapf(err, "store: insert observation of species %d", obs.SpeciesID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "store: commit insert")
	}

	if tag.RowsAffected() == 0 {
		return InsertDuplicate, nil
	}
	return InsertCreated, nil
}

// encodePointZ encodes a WGS84 3D point as EWKB.
func encodePointZ(lon, lat, alt float64) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XYZ, []float64{lon, lat, alt}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode point")
	}
	return data, nil
}

// SpeciesExists reports whether id is in the species catalog right now.
func (s *PostgresStore) SpeciesExists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM species WHERE speciesid = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "store: check species %d", id)
	}
	return exists, nil
}

// filterArgs returns the species/family/day-range arguments shared by the
// filtered read queries ($1..$4).
func filterArgs(f model.ObservationFilter) []any {
	species := f.SpeciesIDs
	if species == nil {
		species = []int{}
	}
	families := f.FamilyIDs
	if families == nil {
		families = []int{}
	}
	start, end := f.DayBounds()
	return []any{species, families, start, end}
}

const matchingPointsSQL = `SELECT ST_X(o.geom), ST_Y(o.geom)
FROM observations o
JOIN species s ON s.speciesid = o.speciesid
WHERE (o.speciesid = ANY($1) OR s.family_id = ANY($2))
  AND o.date >= $3 AND o.date < $4`

// MatchingPoints returns the locations of observations whose species is in
// the species set or whose family is in the family set, within the filter's
// inclusive day range.
func (s *PostgresStore) MatchingPoints(ctx context.Context, f model.ObservationFilter) ([]model.Point, error) {
	rows, err := s.pool.Query(ctx, matchingPointsSQL, filterArgs(f)...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query matching points")
	}
	defer rows.Close()

	var pts []model.Point
	for rows.Next() {
		var p model.Point
		if err := rows.Scan(&p.Lon, &p.Lat); err != nil {
			return nil, eris.Wrap(err, "store: scan point")
		}
		pts = append(pts, p)
	}
	return pts, eris.Wrap(rows.Err(), "store: iterate points")
}

const queryObservationsSQL = `SELECT o.date, o.speciesid, ST_X(o.geom), ST_Y(o.geom), ST_Z(o.geom), o.landcover
FROM observations o
JOIN species s ON s.speciesid = o.speciesid
WHERE (cardinality($1::int[]) + cardinality($2::int[]) = 0
       OR o.speciesid = ANY($1) OR s.family_id = ANY($2))
  AND o.date >= $3 AND o.date < $4
ORDER BY o.date, o.speciesid
LIMIT $5`

// QueryObservations lists raw observations in the filter's day range. Empty
// species and family sets mean every species.
func (s *PostgresStore) QueryObservations(ctx context.Context, f model.ObservationFilter, limit int) ([]model.StoredObservation, error) {
	if limit <= 0 {
		limit = 1000
	}
	args := append(filterArgs(f), limit)

	rows, err := s.pool.Query(ctx, queryObservationsSQL, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query observations")
	}
	defer rows.Close()

	var out []model.StoredObservation
	for rows.Next() {
		var o model.StoredObservation
		if err := rows.Scan(&o.Date, &o.SpeciesID, &o.Lon, &o.Lat, &o.Alt, &o.LandCover); err != nil {
			return nil, eris.Wrap(err, "store: scan observation")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate observations")
}

// AltitudeBands counts observations of a species per altitude band of the
// given width. Observations without an altitude are left out.
func (s *PostgresStore) AltitudeBands(ctx context.Context, speciesID, width int) ([]model.BandCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT (floor(ST_Z(geom) / $2) * $2)::int AS lower, count(*)
		 FROM observations
		 WHERE speciesid = $1 AND ST_Z(geom) IS NOT NULL
		 GROUP BY lower
		 ORDER BY lower`,
		speciesID, width,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: altitude bands for species %d", speciesID)
	}
	defer rows.Close()

	var bands []model.BandCount
	for rows.Next() {
		var b model.BandCount
		if err := rows.Scan(&b.Lower, &b.Count); err != nil {
			return nil, eris.Wrap(err, "store: scan altitude band")
		}
		bands = append(bands, b)
	}
	return bands, eris.Wrap(rows.Err(), "store: iterate altitude bands")
}

// LandCoverCounts counts observations per land-cover class, optionally for a
// single species. Unclassified observations are reported with an empty class.
func (s *PostgresStore) LandCoverCounts(ctx context.Context, speciesID *int) ([]model.ClassCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(landcover, '') AS class, count(*) AS n
		 FROM observations
		 WHERE $1::int IS NULL OR speciesid = $1
		 GROUP BY class
		 ORDER BY n DESC, class`,
		speciesID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: land cover counts")
	}
	defer rows.Close()

	var out []model.ClassCount
	for rows.Next() {
		var c model.ClassCount
		if err := rows.Scan(&c.Class, &c.Count); err != nil {
			return nil, eris.Wrap(err, "store: scan land cover count")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate land cover counts")
}

// SpeciesObservationCounts returns per-species observation totals, most
// observed first.
func (s *PostgresStore) SpeciesObservationCounts(ctx context.Context) ([]model.SpeciesCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(s.germanname, s.latinname), count(*) AS n, COALESCE(s.rarity, '')
		 FROM observations o
		 JOIN species s ON o.speciesid = s.speciesid
		 GROUP BY s.speciesid
		 ORDER BY n DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: species observation counts")
	}
	defer rows.Close()

	var out []model.SpeciesCount
	for rows.Next() {
		var c model.SpeciesCount
		var rarity string
		if err := rows.Scan(&c.GermanName, &c.Count, &rarity); err != nil {
			return nil, eris.Wrap(err, "store: scan species count")
		}
		c.Rarity = model.Rarity(rarity)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate species counts")
}

// LatestObservation returns the newest stored observation time, or nil when
// the table is empty.
func (s *PostgresStore) LatestObservation(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT max(date) FROM observations`).Scan(&t); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "store: latest observation")
	}
	return t, nil
}
