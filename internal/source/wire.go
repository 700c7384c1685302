package source

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMalformedChunk is returned when an observation body lacks the
// data.sightings list.
var ErrMalformedChunk = eris.New("source: response has no sightings list")

// Number is a JSON scalar the API sends either as a number or as a numeric
// string. The zero value means the field was empty.
type Number string

// UnmarshalJSON accepts numbers, strings and null.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, string(b) == "null":
		*n = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
	default:
		*n = Number(b)
	}
	return nil
}

// Empty reports whether the value was absent, null or blank.
func (n Number) Empty() bool { return n == "" }

// Int parses the value as an integer.
func (n Number) Int() (int, error) {
	v, err := strconv.Atoi(string(n))
	if err != nil {
		return 0, eris.Wrapf(err, "source: parse integer %q", string(n))
	}
	return v, nil
}

// Float parses the value as a float.
func (n Number) Float() (float64, error) {
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "source: parse number %q", string(n))
	}
	return v, nil
}

// SpeciesRecord is one entry of the /species listing.
type SpeciesRecord struct {
	ID         Number `json:"id"`
	LatinName  string `json:"latin_name"`
	GermanName string `json:"german_name"`
	Rarity     string `json:"rarity"`
	FamilyID   Number `json:"sempach_id_family"`
}

// FamilyRecord is one entry of the /families listing.
type FamilyRecord struct {
	ID        Number `json:"id"`
	LatinName string `json:"latin_name"`
}

// Sighting is one entry of data.sightings. Pointer fields are nil when the
// key was absent or null.
type Sighting struct {
	Species *struct {
		ID *Number `json:"@id"`
	} `json:"species"`
	Date *struct {
		ISO8601 *string `json:"@ISO8601"`
	} `json:"date"`
	Place *struct {
		Lon      *Number `json:"coord_lon"`
		Lat      *Number `json:"coord_lat"`
		Altitude *Number `json:"altitude"`
	} `json:"place"`
}

// SightingFields holds the raw required values of a sighting.
type SightingFields struct {
	SpeciesID Number
	Date      string
	Lon       Number
	Lat       Number
	Alt       Number
}

// Fields extracts the required values. The returned slice names any that
// were absent, null or blank.
func (s Sighting) Fields() (SightingFields, []string) {
	var f SightingFields
	var missing []string

	if s.Species != nil && s.Species.ID != nil && !s.Species.ID.Empty() {
		f.SpeciesID = *s.Species.ID
	} else {
		missing = append(missing, "species")
	}
	if s.Date != nil && s.Date.ISO8601 != nil && strings.TrimSpace(*s.Date.ISO8601) != "" {
		f.Date = strings.TrimSpace(*s.Date.ISO8601)
	} else {
		missing = append(missing, "date")
	}

	if s.Place == nil {
		return f, append(missing, "lon", "lat", "alt")
	}
	pick := func(v *Number, name string) Number {
		if v == nil || v.Empty() {
			missing = append(missing, name)
			return ""
		}
		return *v
	}
	f.Lon = pick(s.Place.Lon, "lon")
	f.Lat = pick(s.Place.Lat, "lat")
	f.Alt = pick(s.Place.Altitude, "alt")
	return f, missing
}

// ParseSightings extracts the data.sightings list from an observation body.
// Each entry is returned undecoded so that one bad record cannot poison the
// rest. A body without a sightings array yields ErrMalformedChunk.
func ParseSightings(body []byte) ([]json.RawMessage, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, eris.Wrap(ErrMalformedChunk, err.Error())
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(envelope.Data, &data); err != nil || data == nil {
		return nil, ErrMalformedChunk
	}

	raw, ok := data["sightings"]
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 || raw[0] != '[' {
		return nil, ErrMalformedChunk
	}

	var sightings []json.RawMessage
	if err := json.Unmarshal(raw, &sightings); err != nil {
		return nil, eris.Wrap(ErrMalformedChunk, err.Error())
	}
	return sightings, nil
}
