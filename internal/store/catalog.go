package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sightings-cli/internal/db"
	"github.com/sells-group/sightings-cli/internal/model"
)

var familyUpsert = db.UpsertConfig{
	Table:        "public.family",
	Columns:      []string{"id", "latin_name"},
	ConflictKeys: []string{"id"},
}

var speciesUpsert = db.UpsertConfig{
	Table:        "public.species",
	Columns:      []string{"speciesid", "rarity", "latinname", "germanname", "family_id"},
	ConflictKeys: []string{"speciesid"},
}

// UpsertFamilies inserts or refreshes families by id.
func (s *PostgresStore) UpsertFamilies(ctx context.Context, families []model.Family) (int64, error) {
	rows := make([][]any, len(families))
	for i, f := range families {
		rows[i] = []any{f.ID, f.LatinName}
	}
	n, err := db.BulkUpsert(ctx, s.pool, familyUpsert, rows)
	return n, eris.Wrap(err, "store: upsert families")
}

// UpsertSpecies inserts or refreshes species by speciesid. Families must be
// present first.
func (s *PostgresStore) UpsertSpecies(ctx context.Context, species []model.Species) (int64, error) {
	rows := make([][]any, len(species))
	for i, sp := range species {
		rows[i] = []any{sp.ID, string(sp.Rarity), sp.LatinName, sp.GermanName, sp.FamilyID}
	}
	n, err := db.BulkUpsert(ctx, s.pool, speciesUpsert, rows)
	return n, eris.Wrap(err, "store: upsert species")
}

const speciesColumns = `speciesid, COALESCE(rarity, ''), latinname, COALESCE(germanname, ''), COALESCE(family_id, 0)`

// ListSpecies returns the full species catalog ordered by id.
func (s *PostgresStore) ListSpecies(ctx context.Context) ([]model.Species, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+speciesColumns+` FROM species ORDER BY speciesid`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list species")
	}
	defer rows.Close()

	var out []model.Species
	for rows.Next() {
		sp, err := scanSpecies(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate species")
}

// SpeciesByLatinName resolves a latin name to its catalog entry. Unknown
// names return ErrSpeciesNotFound.
func (s *PostgresStore) SpeciesByLatinName(ctx context.Context, latinName string) (model.Species, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+speciesColumns+` FROM species WHERE latinname = $1 ORDER BY speciesid LIMIT 1`,
		latinName,
	)
	sp, err := scanSpecies(row)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return model.Species{}, eris.Wrapf(ErrSpeciesNotFound, "latin name %q", latinName)
		}
		return model.Species{}, err
	}
	return sp, nil
}

func scanSpecies(row pgx.Row) (model.Species, error) {
	var sp model.Species
	var rarity string
	if err := row.Scan(&sp.ID, &rarity, &sp.LatinName, &sp.GermanName, &sp.FamilyID); err != nil {
		return sp, eris.Wrap(err, "store: scan species")
	}
	sp.Rarity = model.Rarity(rarity)
	return sp, nil
}

// SpeciesIDs returns every catalog species id.
func (s *PostgresStore) SpeciesIDs(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT speciesid FROM species`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list species ids")
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan species id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "store: iterate species ids")
}

// ListFamilies returns all families ordered by id.
func (s *PostgresStore) ListFamilies(ctx context.Context) ([]model.Family, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, latin_name FROM family ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list families")
	}
	defer rows.Close()

	var out []model.Family
	for rows.Next() {
		var f model.Family
		if err := rows.Scan(&f.ID, &f.LatinName); err != nil {
			return nil, eris.Wrap(err, "store: scan family")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate families")
}

// FamilyIDs returns every family id.
func (s *PostgresStore) FamilyIDs(ctx context.Context) (map[int]bool, error) {
	families, err := s.ListFamilies(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[int]bool, len(families))
	for _, f := range families {
		ids[f.ID] = true
	}
	return ids, nil
}
