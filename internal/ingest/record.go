package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sightings-cli/internal/model"
	"github.com/sells-group/sightings-cli/internal/source"
)

// ErrMalformedRecord marks a sighting that cannot become an observation.
var ErrMalformedRecord = eris.New("ingest: malformed record")

// isoLayouts are tried in order. Values without an offset are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseSighting decodes one data.sightings entry. Any of species id,
// timestamp, longitude, latitude or altitude being absent, null or
// unparsable yields ErrMalformedRecord.
func ParseSighting(raw json.RawMessage) (model.Observation, error) {
	var s source.Sighting
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Observation{}, eris.Wrapf(ErrMalformedRecord, "decode: %v", err)
	}

	f, missing := s.Fields()
	if len(missing) > 0 {
		return model.Observation{}, eris.Wrapf(ErrMalformedRecord, "missing %s", strings.Join(missing, ", "))
	}

	var obs model.Observation
	var err error
	if obs.SpeciesID, err = f.SpeciesID.Int(); err != nil {
		return model.Observation{}, eris.Wrapf(ErrMalformedRecord, "species: %v", err)
	}
	if obs.Date, err = parseISO8601(f.Date); err != nil {
		return model.Observation{}, eris.Wrapf(ErrMalformedRecord, "date: %v", err)
	}
	if obs.Lon, err = f.Lon.Float(); err != nil {
		return model.Observation{}, eris.Wrapf(ErrMalformedRecord, "lon: %v", err)
	}
	if obs.Lat, err = f.Lat.Float(); err != nil {
		return model.Observation{}, eris.Wrapf(ErrMalformedRecord, "lat: %v", err)
	}
	if obs.Alt, err = f.Alt.Float(); err != nil {
		return model.Observation{}, eris.Wrapf(ErrMalformedRecord, "alt: %v", err)
	}
	return obs, nil
}

func parseISO8601(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized timestamp %q", s)
}
