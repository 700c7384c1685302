package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/resilience"
	"github.com/sells-group/sightings-cli/internal/source"
)

// CatalogSource lists the remote species catalog.
type CatalogSource interface {
	Families(ctx context.Context) ([]source.FamilyRecord, error)
	SpeciesByRarity(ctx context.Context, rarity model.Rarity) ([]source.SpeciesRecord, error)
	UsedSpecies(ctx context.Context) ([]source.SpeciesRecord, error)
}

// CatalogWriter persists families and species.
type CatalogWriter interface {
	UpsertFamilies(ctx context.Context, families []model.Family) (int64, error)
	UpsertSpecies(ctx context.Context, species []model.Species) (int64, error)
}

// CatalogStats tallies a catalog sync.
type CatalogStats struct {
	Families       int `json:"families"`
	Species        int `json:"species"`
	SkippedSpecies int `json:"skipped_species"`
	FailedLevels   int `json:"failed_levels"`
}

// Map returns the stats as a JSON-ready map for the run log.
func (s CatalogStats) Map() map[string]any {
	return map[string]any{
		"families":        s.Families,
		"species":         s.Species,
		"skipped_species": s.SkippedSpecies,
		"failed_levels":   s.FailedLevels,
	}
}

// CatalogSync refreshes families and species from the remote source.
type CatalogSync struct {
	src      CatalogSource
	store    CatalogWriter
	attempts int
	delay    time.Duration
	log      *zap.Logger
}

// NewCatalogSync creates a CatalogSync. Each listing request gets the same
// fixed-delay retry as observation windows.
func NewCatalogSync(src CatalogSource, st CatalogWriter, attempts int, delay time.Duration) *CatalogSync {
	return &CatalogSync{
		src:      src,
		store:    st,
		attempts: attempts,
		delay:    delay,
		log:      zap.L().With(zap.String("component", "ingest.catalog")),
	}
}

func (c *CatalogSync) retry(op string) resilience.RetryConfig {
	cfg := resilience.FixedDelay(c.attempts, c.delay)
	cfg.OnRetry = resilience.RetryLogger(c.log, op)
	return cfg
}

// Run upserts all families, then the species of every rarity level (or only
// species in use when usedOnly is set). A failed family listing aborts the
// sync; a failed rarity level is logged and skipped. Species whose family is
// not in the family listing are skipped.
func (c *CatalogSync) Run(ctx context.Context, rarities []model.Rarity, usedOnly bool) (*CatalogStats, error) {
	stats := &CatalogStats{}

	famRecs, err := resilience.DoVal(ctx, c.retry("list families"), c.src.Families)
	if err != nil {
		return stats, eris.Wrap(err, "catalog: list families")
	}

	families := make([]model.Family, 0, len(famRecs))
	known := make(map[int]bool, len(famRecs))
	for _, r := range famRecs {
		id, err := r.ID.Int()
		if err != nil {
			c.log.Warn("family without id skipped", zap.String("latin_name", r.LatinName))
			continue
		}
		if known[id] {
			continue
		}
		known[id] = true
		families = append(families, model.Family{ID: id, LatinName: CleanFamilyName(r.LatinName)})
	}

	if _, err := c.store.UpsertFamilies(ctx, families); err != nil {
		return stats, err
	}
	stats.Families = len(families)
	c.log.Info("families synced", zap.Int("count", stats.Families))

	type listing struct {
		level model.Rarity
		fetch func(context.Context) ([]source.SpeciesRecord, error)
	}
	var listings []listing
	if usedOnly {
		listings = append(listings, listing{fetch: c.src.UsedSpecies})
	} else {
		for _, level := range rarities {
			listings = append(listings, listing{
				level: level,
				fetch: func(ctx context.Context) ([]source.SpeciesRecord, error) {
					return c.src.SpeciesByRarity(ctx, level)
				},
			})
		}
	}

	var species []model.Species
	seen := make(map[int]int)
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		recs, err := resilience.DoVal(ctx, c.retry("list species"), l.fetch)
		if err != nil {
			stats.FailedLevels++
			c.log.Error("species listing failed", zap.String("rarity", string(l.level)), zap.Error(err))
			continue
		}

		for _, r := range recs {
			sp, ok := c.toSpecies(r, l.level, known)
			if !ok {
				stats.SkippedSpecies++
				continue
			}
			// A species listed twice keeps its last entry.
			if i, dup := seen[sp.ID]; dup {
				species[i] = sp
				continue
			}
			seen[sp.ID] = len(species)
			species = append(species, sp)
		}
	}

	if _, err := c.store.UpsertSpecies(ctx, species); err != nil {
		return stats, err
	}
	stats.Species = len(species)
	c.log.Info("species synced",
		zap.Int("count", stats.Species),
		zap.Int("skipped", stats.SkippedSpecies),
		zap.Int("failed_levels", stats.FailedLevels),
	)
	return stats, nil
}

func (c *CatalogSync) toSpecies(r source.SpeciesRecord, level model.Rarity, families map[int]bool) (model.Species, bool) {
	id, err := r.ID.Int()
	if err != nil {
		c.log.Warn("species without id skipped", zap.String("latin_name", r.LatinName))
		return model.Species{}, false
	}
	familyID, err := r.FamilyID.Int()
	if err != nil || !families[familyID] {
		c.log.Warn("species with unknown family skipped",
			zap.Int("species_id", id),
			zap.String("family", string(r.FamilyID)),
		)
		return model.Species{}, false
	}

	rarity := model.Rarity(strings.TrimSpace(r.Rarity))
	if rarity == "" {
		rarity = level
	}
	return model.Species{
		ID:         id,
		LatinName:  norm.NFC.String(strings.TrimSpace(r.LatinName)),
		GermanName: CleanGermanName(r.GermanName),
		Rarity:     rarity,
		FamilyID:   familyID,
	}, true
}

// CleanGermanName drops the source's hyphenation marks and turns
// underscores into spaces.
func CleanGermanName(s string) string {
	s = strings.ReplaceAll(s, "|", "")
	s = strings.ReplaceAll(s, "_", " ")
	return norm.NFC.String(strings.TrimSpace(s))
}

// CleanFamilyName strips the parentheses around family names.
func CleanFamilyName(s string) string {
	s = strings.ReplaceAll(s, "(", "")
	s = strings.ReplaceAll(s, ")", "")
	return norm.NFC.String(strings.TrimSpace(s))
}
