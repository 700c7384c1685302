package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/resilience"
	"github.com/sells-group/sightings-cli/internal/source"
)

type fakeCatalogSource struct {
	families    []source.FamilyRecord
	familiesErr error
	byRarity    map[model.Rarity][]source.SpeciesRecord
	rarityErr   map[model.Rarity]error
	used        []source.SpeciesRecord
	calls       []string
}

func (f *fakeCatalogSource) Families(context.Context) ([]source.FamilyRecord, error) {
	f.calls = append(f.calls, "families")
	return f.families, f.familiesErr
}

func (f *fakeCatalogSource) SpeciesByRarity(_ context.Context, r model.Rarity) ([]source.SpeciesRecord, error) {
	f.calls = append(f.calls, "species:"+string(r))
	return f.byRarity[r], f.rarityErr[r]
}

func (f *fakeCatalogSource) UsedSpecies(context.Context) ([]source.SpeciesRecord, error) {
	f.calls = append(f.calls, "species:used")
	return f.used, nil
}

type memCatalog struct {
	families []model.Family
	species  []model.Species
	order    []string
}

func (m *memCatalog) UpsertFamilies(_ context.Context, families []model.Family) (int64, error) {
	m.order = append(m.order, "families")
	m.families = families
	return int64(len(families)), nil
}

func (m *memCatalog) UpsertSpecies(_ context.Context, species []model.Species) (int64, error) {
	m.order = append(m.order, "species")
	m.species = species
	return int64(len(species)), nil
}

func speciesRec(id, family, latin, german, rarity string) source.SpeciesRecord {
	return source.SpeciesRecord{
		ID:         source.Number(id),
		LatinName:  latin,
		GermanName: german,
		Rarity:     rarity,
		FamilyID:   source.Number(family),
	}
}

func TestCatalogSync_FamiliesThenSpecies(t *testing.T) {
	logs := observeLogs(t)

	src := &fakeCatalogSource{
		families: []source.FamilyRecord{
			{ID: "57", LatinName: "(Turdidae)"},
			{ID: "58", LatinName: "Muscicapidae"},
		},
		byRarity: map[model.Rarity][]source.SpeciesRecord{
			model.RarityVeryCommon: {speciesRec("386", "57", "Turdus merula", "Am|sel", "verycommon")},
			model.RarityRare: {
				speciesRec("412", "58", "Ficedula parva", "Zwerg_schnäpper", ""),
				speciesRec("900", "99", "Avis ignota", "Unbekannt", "rare"),
			},
		},
	}
	st := &memCatalog{}

	stats, err := NewCatalogSync(src, st, 3, time.Millisecond).
		Run(context.Background(), []model.Rarity{model.RarityRare, model.RarityVeryCommon}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"families", "species"}, st.order)
	assert.Equal(t, []string{"families", "species:rare", "species:verycommon"}, src.calls)
	assert.Equal(t, []model.Family{{ID: 57, LatinName: "Turdidae"}, {ID: 58, LatinName: "Muscicapidae"}}, st.families)

	require.Len(t, st.species, 2)
	assert.Equal(t, model.Species{ID: 412, LatinName: "Ficedula parva", GermanName: "Zwerg schnäpper", Rarity: model.RarityRare, FamilyID: 58}, st.species[0])
	assert.Equal(t, model.Species{ID: 386, LatinName: "Turdus merula", GermanName: "Amsel", Rarity: model.RarityVeryCommon, FamilyID: 57}, st.species[1])

	assert.Equal(t, CatalogStats{Families: 2, Species: 2, SkippedSpecies: 1}, *stats)
	assert.Equal(t, 1, countLogs(logs, zapcore.WarnLevel, "species with unknown family skipped"))
}

func TestCatalogSync_UsedOnly(t *testing.T) {
	observeLogs(t)

	src := &fakeCatalogSource{
		families: []source.FamilyRecord{{ID: "57", LatinName: "Turdidae"}},
		used:     []source.SpeciesRecord{speciesRec("386", "57", "Turdus merula", "Amsel", "verycommon")},
	}
	st := &memCatalog{}

	stats, err := NewCatalogSync(src, st, 3, time.Millisecond).Run(context.Background(), model.DefaultRarities, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"families", "species:used"}, src.calls)
	assert.Equal(t, 1, stats.Species)
}

func TestCatalogSync_FailedLevelIsSkipped(t *testing.T) {
	logs := observeLogs(t)

	src := &fakeCatalogSource{
		families: []source.FamilyRecord{{ID: "57", LatinName: "Turdidae"}},
		byRarity: map[model.Rarity][]source.SpeciesRecord{
			model.RarityCommon: {speciesRec("386", "57", "Turdus merula", "Amsel", "common")},
		},
		rarityErr: map[model.Rarity]error{
			model.RarityRare: resilience.NewStatusError(500, "http://source/species"),
		},
	}
	st := &memCatalog{}

	stats, err := NewCatalogSync(src, st, 2, time.Millisecond).
		Run(context.Background(), []model.Rarity{model.RarityRare, model.RarityCommon}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedLevels)
	assert.Equal(t, 1, stats.Species)
	assert.Equal(t, 1, countLogs(logs, zapcore.ErrorLevel, "species listing failed"))
	assert.Equal(t, 1, countLogs(logs, zapcore.WarnLevel, "attempt failed, retrying"))
}

func TestCatalogSync_DuplicateSpeciesKeepsLast(t *testing.T) {
	observeLogs(t)

	src := &fakeCatalogSource{
		families: []source.FamilyRecord{{ID: "57", LatinName: "Turdidae"}},
		byRarity: map[model.Rarity][]source.SpeciesRecord{
			model.RarityRare:   {speciesRec("386", "57", "Turdus merula", "Amsel", "rare")},
			model.RarityCommon: {speciesRec("386", "57", "Turdus merula", "Amsel", "common")},
		},
	}
	st := &memCatalog{}

	_, err := NewCatalogSync(src, st, 1, time.Millisecond).
		Run(context.Background(), []model.Rarity{model.RarityRare, model.RarityCommon}, false)
	require.NoError(t, err)
	require.Len(t, st.species, 1)
	assert.Equal(t, model.RarityCommon, st.species[0].Rarity)
}

func TestCatalogSync_FamilyListingFailureAborts(t *testing.T) {
	observeLogs(t)

	src := &fakeCatalogSource{familiesErr: errors.New("unauthorized")}
	st := &memCatalog{}

	_, err := NewCatalogSync(src, st, 1, time.Millisecond).Run(context.Background(), model.DefaultRarities, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list families")
	assert.Empty(t, st.order)
}

func TestCleanNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Mittelmeer Steinschmätzer", CleanGermanName("Mittel|meer_Stein|schmätzer"))
	assert.Equal(t, "Turdidae", CleanFamilyName(" (Turdidae) "))
	// Decomposed umlaut is recomposed.
	assert.Equal(t, "Gr\u00fcnfink", CleanGermanName("Gru\u0308nfink"))
}

func TestCatalogStats_Map(t *testing.T) {
	m := CatalogStats{Families: 2, Species: 5, SkippedSpecies: 1}.Map()
	assert.Equal(t, 5, m["species"])
	assert.Equal(t, 0, m["failed_levels"])
}
