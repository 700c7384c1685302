// Package ingest pulls sightings from the remote source in date windows,
// validates them and writes them to the observation store.
package ingest

import (
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/source"
)

// Window is an inclusive range of calendar days fetched in one request.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) String() string {
	return w.From.Format(source.DateLayout) + "-" + w.To.Format(source.DateLayout)
}

// Days returns the number of calendar days in the window.
func (w Window) Days() int {
	return int(math.Round(w.To.Sub(w.From).Hours()/24)) + 1
}

// Chunks splits [today-horizonDays, today] into consecutive windows of
// chunkDays days. Windows neither overlap nor leave gaps and the last one is
// clipped to today.
func Chunks(now time.Time, horizonDays, chunkDays int) ([]Window, error) {
	if horizonDays <= 0 {
		return nil, eris.Errorf("ingest: horizon must be positive, got %d days", horizonDays)
	}
	if chunkDays <= 0 {
		return nil, eris.Errorf("ingest: chunk size must be positive, got %d days", chunkDays)
	}

	today := model.StartOfDay(now)
	start := today.AddDate(0, 0, -horizonDays)

	windows := make([]Window, 0, (horizonDays+1+chunkDays-1)/chunkDays)
	for from := start; !from.After(today); {
		to := from.AddDate(0, 0, chunkDays-1)
		if to.After(today) {
			to = today
		}
		windows = append(windows, Window{From: from, To: to})
		from = to.AddDate(0, 0, 1)
	}
	return windows, nil
}
