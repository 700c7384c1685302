package ingest

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sightings-cli/internal/model"
)

// ErrUnknownSpecies is returned for a sighting whose species is not in the
// catalog.
var ErrUnknownSpecies = eris.New("ingest: unknown species")

// SpeciesChecker answers whether a species id is in the catalog.
type SpeciesChecker interface {
	Exists(ctx context.Context, id int) (bool, error)
}

// SpeciesExister is the store query behind StoreChecker.
type SpeciesExister interface {
	SpeciesExists(ctx context.Context, id int) (bool, error)
}

// StoreChecker asks the store on every call, so catalog changes made while
// a run is in progress are seen.
type StoreChecker struct {
	store SpeciesExister
}

// NewStoreChecker creates a StoreChecker.
func NewStoreChecker(s SpeciesExister) *StoreChecker {
	return &StoreChecker{store: s}
}

// Exists implements SpeciesChecker.
func (c *StoreChecker) Exists(ctx context.Context, id int) (bool, error) {
	return c.store.SpeciesExists(ctx, id)
}

// SnapshotChecker answers from a set of ids taken at startup.
type SnapshotChecker struct {
	ids map[int]bool
}

// NewSnapshotChecker creates a SnapshotChecker over ids.
func NewSnapshotChecker(ids []int) *SnapshotChecker {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return &SnapshotChecker{ids: set}
}

// Exists implements SpeciesChecker.
func (c *SnapshotChecker) Exists(_ context.Context, id int) (bool, error) {
	return c.ids[id], nil
}

// Validator applies the structural and referential checks a parsed
// observation must pass before it is stored.
type Validator struct {
	species SpeciesChecker
}

// NewValidator creates a Validator.
func NewValidator(species SpeciesChecker) *Validator {
	return &Validator{species: species}
}

// Validate returns ErrMalformedRecord for coordinates outside WGS84 bounds
// and ErrUnknownSpecies when the species is not in the catalog. Any other
// error means the check itself failed.
func (v *Validator) Validate(ctx context.Context, obs model.Observation) error {
	for _, c := range []float64{obs.Lon, obs.Lat, obs.Alt} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return eris.Wrap(ErrMalformedRecord, "non-finite coordinate")
		}
	}
	if obs.Lon < -180 || obs.Lon > 180 || obs.Lat < -90 || obs.Lat > 90 {
		return eris.Wrapf(ErrMalformedRecord, "coordinate (%g, %g) out of range", obs.Lon, obs.Lat)
	}

	ok, err := v.species.Exists(ctx, obs.SpeciesID)
	if err != nil {
		return eris.Wrapf(err, "ingest: check species %d", obs.SpeciesID)
	}
	if !ok {
		return eris.Wrapf(ErrUnknownSpecies, "species %d", obs.SpeciesID)
	}
	return nil
}
