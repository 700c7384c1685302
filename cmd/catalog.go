package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sells-group/sightings-cli/internal/catalog"
	"github.com/sells-group/sightings-cli/internal/ingest"
	"github.com/sells-group/sightings-cli/internal/model"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the species and family catalog",
}

var catalogUsedOnly bool

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh families and species from the remote source",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		src, err := newSourceClient()
		if err != nil {
			return err
		}

		ref, err := catalog.Load(ctx, cfg.Reference, catalog.Parts{Rarities: true})
		if err != nil {
			return err
		}

		syncer := ingest.NewCatalogSync(src, st, cfg.Ingest.MaxAttempts, cfg.Ingest.RetryDelay())
		return tracked(ctx, ingest.NewRunLog(pool), model.RunKindCatalog, func(ctx context.Context) (map[string]any, error) {
			stats, err := syncer.Run(ctx, ref.Rarities, catalogUsedOnly)
			if stats == nil {
				return nil, err
			}
			return stats.Map(), err
		})
	},
}

func init() {
	catalogSyncCmd.Flags().BoolVar(&catalogUsedOnly, "used-only", false, "only sync species in use (is_used=1) instead of every rarity level")

	catalogCmd.AddCommand(catalogSyncCmd)
	rootCmd.AddCommand(catalogCmd)
}
