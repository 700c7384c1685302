package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sightings-cli/internal/db"
	"github.com/sells-group/sightings-cli/internal/model"
)

// RunLog records ingest and catalog runs in the ingest_runs table.
type RunLog struct {
	pool  db.Pool
	newID func() string
}

// NewRunLog creates a RunLog backed by pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool, newID: uuid.NewString}
}

// Start records the beginning of a run and returns its id.
func (r *RunLog) Start(ctx context.Context, kind model.RunKind) (string, error) {
	id := r.newID()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, kind, status, started_at)
		 VALUES ($1, $2, 'running', now())`,
		id, string(kind),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start %s run", kind)
	}
	return id, nil
}

// Complete marks a run as finished with its stats.
func (r *RunLog) Complete(ctx context.Context, id string, stats map[string]any) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE ingest_runs
		 SET status = 'complete', completed_at = now(), stats = $1
		 WHERE id = $2`,
		statsJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", id)
	}
	return nil
}

// Fail marks a run as failed, keeping whatever stats were gathered.
func (r *RunLog) Fail(ctx context.Context, id string, errMsg string, stats map[string]any) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE ingest_runs
		 SET status = 'failed', completed_at = now(), stats = $1, error = $2
		 WHERE id = $3`,
		statsJSON, errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", id)
	}
	return nil
}

func marshalStats(stats map[string]any) ([]byte, error) {
	if stats == nil {
		return nil, nil
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: marshal stats")
	}
	return b, nil
}

// List returns the most recent runs, newest first.
func (r *RunLog) List(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, kind, status, started_at, completed_at, stats, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		var run model.IngestRun
		var kind, status string
		var completedAt *time.Time
		var statsJSON []byte
		var errStr *string
		if err := rows.Scan(&run.ID, &kind, &status, &run.StartedAt, &completedAt, &statsJSON, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		run.Kind = model.RunKind(kind)
		run.Status = model.RunStatus(status)
		run.CompletedAt = completedAt
		if errStr != nil {
			run.Error = *errStr
		}
		if statsJSON != nil {
			_ = json.Unmarshal(statsJSON, &run.Stats)
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "runlog: iterate runs")
}
