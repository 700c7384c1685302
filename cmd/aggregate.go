package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sightings-cli/internal/aggregate"
	"github.com/sells-group/sightings-cli/internal/catalog"
	"github.com/sells-group/sightings-cli/internal/model"
)

var aggFlags struct {
	grids    []string
	species  []int
	families []int
	from     string
	to       string
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Count matching observations per grid cell and print GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		f, err := aggregateFilter(time.Now())
		if err != nil {
			return err
		}

		pool, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		ref, err := catalog.Load(ctx, cfg.Reference, catalog.Parts{Grids: true})
		if err != nil {
			return err
		}
		names := aggFlags.grids
		if len(names) == 0 {
			names = ref.GridNames()
		}
		if len(names) == 0 {
			return eris.New("no grids configured (reference.grids)")
		}

		result, err := aggregate.New(st, ref, nil).Aggregate(ctx, names, f)
		if err != nil {
			return err
		}
		return writeGeoJSON(os.Stdout, result)
	},
}

// aggregateFilter turns the flags into a filter. Missing dates default to
// the configured ingest horizon ending today.
func aggregateFilter(now time.Time) (model.ObservationFilter, error) {
	f := model.ObservationFilter{
		SpeciesIDs: aggFlags.species,
		FamilyIDs:  aggFlags.families,
		To:         model.StartOfDay(now),
	}
	var err error
	if aggFlags.to != "" {
		if f.To, err = time.Parse(time.DateOnly, aggFlags.to); err != nil {
			return f, eris.Wrap(err, "parse --to")
		}
	}
	f.From = f.To.AddDate(0, 0, -cfg.Ingest.HorizonDays)
	if aggFlags.from != "" {
		if f.From, err = time.Parse(time.DateOnly, aggFlags.from); err != nil {
			return f, eris.Wrap(err, "parse --from")
		}
	}
	if f.From.After(f.To) {
		return f, eris.New("--from is after --to")
	}
	return f, nil
}

func writeGeoJSON(w io.Writer, result map[string][]aggregate.CellCount) error {
	b, err := aggregate.MarshalGrids(result)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return eris.Wrap(err, "write geojson")
}

func init() {
	aggregateCmd.Flags().StringSliceVar(&aggFlags.grids, "grids", nil, "grid names to aggregate (default: all configured)")
	aggregateCmd.Flags().IntSliceVar(&aggFlags.species, "species", nil, "species ids")
	aggregateCmd.Flags().IntSliceVar(&aggFlags.families, "families", nil, "family ids")
	aggregateCmd.Flags().StringVar(&aggFlags.from, "from", "", "first day (yyyy-mm-dd)")
	aggregateCmd.Flags().StringVar(&aggFlags.to, "to", "", "last day (yyyy-mm-dd)")
	rootCmd.AddCommand(aggregateCmd)
}
