package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sightings-cli/internal/aggregate"
	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/source"
	"github.com/sells-group/sightings-cli/internal/store"
)

// defaultRangeDays is the look-back used when a request gives no dates.
const defaultRangeDays = 365

type handlers struct {
	store Store
	agg   Aggregator
	opts  Options
	log   *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers with a generic 500.
func (h *handlers) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listSpecies(w http.ResponseWriter, r *http.Request) {
	species, err := h.store.ListSpecies(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if species == nil {
		species = []model.Species{}
	}
	writeJSON(w, http.StatusOK, species)
}

func (h *handlers) listFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := h.store.ListFamilies(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if families == nil {
		families = []model.Family{}
	}
	writeJSON(w, http.StatusOK, families)
}

func (h *handlers) speciesCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.SpeciesObservationCounts(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if counts == nil {
		counts = []model.SpeciesCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handlers) observations(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 10000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 10000")
			return
		}
		limit = n
	}

	obs, err := h.store.QueryObservations(r.Context(), f, limit)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if obs == nil {
		obs = []model.StoredObservation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

func (h *handlers) grid(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	names := splitList(r.URL.Query().Get("grids"))
	if len(names) == 0 {
		names = h.opts.DefaultGrids
	}
	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, "no grid requested")
		return
	}

	result, err := h.agg.Aggregate(r.Context(), names, f)
	if err != nil {
		if eris.Is(err, aggregate.ErrUnknownGrid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, r, err)
		return
	}

	body, err := aggregate.MarshalGrids(result)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck
}

func (h *handlers) elevation(w http.ResponseWriter, r *http.Request) {
	name := latinNameParam(r)
	if name == "" {
		writeError(w, http.StatusBadRequest, "species is required")
		return
	}

	bands, err := h.agg.ElevationHistogram(r.Context(), name)
	if err != nil {
		if eris.Is(err, store.ErrSpeciesNotFound) {
			writeError(w, http.StatusNotFound, "species not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	if bands == nil {
		bands = []aggregate.Band{}
	}
	writeJSON(w, http.StatusOK, bands)
}

func (h *handlers) landcover(w http.ResponseWriter, r *http.Request) {
	counts, err := h.agg.LandCoverDistribution(r.Context(), latinNameParam(r))
	if err != nil {
		if eris.Is(err, store.ErrSpeciesNotFound) {
			writeError(w, http.StatusNotFound, "species not found")
			return
		}
		h.internalError(w, r, err)
		return
	}
	if counts == nil {
		counts = []model.ClassCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// latinNameParam accepts both the "species" and "latinName" spellings the
// front end uses.
func latinNameParam(r *http.Request) string {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("species")); v != "" {
		return v
	}
	return strings.TrimSpace(q.Get("latinName"))
}

// parseFilter reads species, families, from and to. Dates are whole days in
// yyyy-mm-dd or dd.mm.yyyy; missing dates default to the last year.
func (h *handlers) parseFilter(r *http.Request) (model.ObservationFilter, error) {
	q := r.URL.Query()
	var f model.ObservationFilter
	var err error

	if f.SpeciesIDs, err = parseIDs(q.Get("species")); err != nil {
		return f, eris.Wrap(err, "species")
	}
	if f.FamilyIDs, err = parseIDs(q.Get("families")); err != nil {
		return f, eris.Wrap(err, "families")
	}

	today := model.StartOfDay(h.opts.Now().UTC())
	f.To = today
	if v := q.Get("to"); v != "" {
		if f.To, err = parseDay(v); err != nil {
			return f, eris.Wrap(err, "to")
		}
	}
	f.From = f.To.AddDate(0, 0, -defaultRangeDays)
	if v := q.Get("from"); v != "" {
		if f.From, err = parseDay(v); err != nil {
			return f, eris.Wrap(err, "from")
		}
	}
	if f.From.After(f.To) {
		return f, eris.New("from is after to")
	}
	return f, nil
}

func parseIDs(s string) ([]int, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(p)
		if err != nil {
			return nil, eris.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, source.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("invalid date %q", s)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
