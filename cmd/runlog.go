package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sightings-cli/internal/ingest"
	"github.com/sells-group/sightings-cli/internal/model"
)

// runTracker is the part of ingest.RunLog the batch commands use.
type runTracker interface {
	Start(ctx context.Context, kind model.RunKind) (string, error)
	Complete(ctx context.Context, id string, stats map[string]any) error
	Fail(ctx context.Context, id string, errMsg string, stats map[string]any) error
}

var _ runTracker = (*ingest.RunLog)(nil)

// tracked runs job between a Start and a Complete/Fail entry of the run log.
// The closing entry is written even when ctx was cancelled.
func tracked(ctx context.Context, runs runTracker, kind model.RunKind, job func(context.Context) (map[string]any, error)) error {
	id, err := runs.Start(ctx, kind)
	if err != nil {
		return eris.Wrap(err, "start run")
	}
	log := zap.L().With(zap.String("run_id", id), zap.String("kind", string(kind)))

	stats, jobErr := job(ctx)

	closeCtx := context.WithoutCancel(ctx)
	if jobErr != nil {
		if err := runs.Fail(closeCtx, id, jobErr.Error(), stats); err != nil {
			log.Error("failed to record run failure", zap.Error(err))
		}
		return jobErr
	}
	if err := runs.Complete(closeCtx, id, stats); err != nil {
		log.Error("failed to record run completion", zap.Error(err))
	}
	log.Info("run complete", zap.Any("stats", stats))
	return nil
}
