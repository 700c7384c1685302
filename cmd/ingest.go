package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sightings-cli/internal/catalog"
	"github.com/sells-group/sightings-cli/internal/ingest"
	"github.com/sells-group/sightings-cli/internal/metrics"
	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/store"
)

const ingestPushJob = "sightings_ingest"

var (
	ingestHorizonDays int
	ingestChunkDays   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Import observations for the recent horizon, one window at a time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		horizon := cfg.Ingest.HorizonDays
		if ingestHorizonDays > 0 {
			horizon = ingestHorizonDays
		}
		chunk := cfg.Ingest.ChunkDays
		if ingestChunkDays > 0 {
			chunk = ingestChunkDays
		}
		windows, err := ingest.Chunks(time.Now(), horizon, chunk)
		if err != nil {
			return err
		}

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

		ref, err := catalog.Load(ctx, cfg.Reference, catalog.Parts{LandCover: true})
		if err != nil {
			return err
		}

		checker, err := speciesChecker(ctx, cfg.Ingest.SpeciesCheck, st, ref)
		if err != nil {
			return err
		}

		// A nil *LandCover must not reach the pipeline as a non-nil interface.
		var classifier ingest.Classifier
		if ref.LandCover != nil {
			classifier = ref.LandCover
		} else {
			zap.L().Warn("no land cover configured, observations will be stored unclassified")
		}

		reg := prometheus.NewRegistry()
		m, err := metrics.NewIngest(reg)
		if err != nil {
			return err
		}
		defer publishIngestMetrics(ctx, reg, cfg.Ingest.PushgatewayURL)

		fetcher := ingest.NewFetcher(src, cfg.Ingest.MaxAttempts, cfg.Ingest.RetryDelay(), m)
		p := ingest.New(fetcher, ingest.NewValidator(checker), classifier, st, m)

		return tracked(ctx, ingest.NewRunLog(pool), model.RunKindObservations, func(ctx context.Context) (map[string]any, error) {
			stats, err := p.Run(ctx, windows)
			if stats == nil {
				return nil, err
			}
			return stats.Map(), err
		})
	},
}

// publishIngestMetrics logs the run's counters and, when a gateway is
// configured, pushes them. Failures here never fail the run.
func publishIngestMetrics(ctx context.Context, g prometheus.Gatherer, gatewayURL string) {
	log := zap.L().With(zap.String("component", "ingest.metrics"))

	totals, err := metrics.CounterTotals(g)
	if err != nil {
		log.Warn("failed to gather ingest metrics", zap.Error(err))
	} else {
		log.Info("ingest metrics", zap.Any("counters", totals))
	}

	if gatewayURL == "" {
		return
	}
	if err := metrics.Push(context.WithoutCancel(ctx), gatewayURL, ingestPushJob, g); err != nil {
		log.Warn("failed to push ingest metrics", zap.String("gateway", gatewayURL), zap.Error(err))
	}
}

// speciesChecker builds the referential check: a per-record store lookup, or
// a catalog snapshot taken once before the run.
func speciesChecker(ctx context.Context, mode string, st *store.PostgresStore, ref *catalog.Reference) (ingest.SpeciesChecker, error) {
	switch mode {
	case "snapshot":
		if err := ref.LoadSpecies(ctx, st); err != nil {
			return nil, err
		}
		ids := ref.SpeciesIDs()
		zap.L().Info("species snapshot loaded", zap.Int("species", len(ids)))
		return ingest.NewSnapshotChecker(ids), nil
	case "store", "":
		return ingest.NewStoreChecker(st), nil
	default:
		return nil, eris.Errorf("unknown species check %q", mode)
	}
}

func init() {
	ingestCmd.Flags().IntVar(&ingestHorizonDays, "horizon-days", 0, "days back from today to import (default from config)")
	ingestCmd.Flags().IntVar(&ingestChunkDays, "chunk-days", 0, "days per request window (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
