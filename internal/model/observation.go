package model

import "time"

// Observation is a single recorded sighting ready for storage.
// The natural key is (Date, SpeciesID, Lon, Lat, Alt).
type Observation struct {
	Date      time.Time `json:"date"`
	SpeciesID int       `json:"speciesid"`
	Lon       float64   `json:"lon"`
	Lat       float64   `json:"lat"`
	Alt       float64   `json:"alt"`
	LandCover *string   `json:"landcover,omitempty"`
}

// StoredObservation is an observation read back from the store, where the
// altitude may be unknown.
type StoredObservation struct {
	Date      time.Time `json:"date"`
	SpeciesID int       `json:"speciesid"`
	Lon       float64   `json:"lon"`
	Lat       float64   `json:"lat"`
	Alt       *float64  `json:"alt,omitempty"`
	LandCover *string   `json:"landcover,omitempty"`
}

// Point is a bare 2D location used by the grid join.
type Point struct {
	Lon float64
	Lat float64
}

// ObservationFilter selects observations by species, family and day range.
// From and To are whole calendar days, both inclusive.
type ObservationFilter struct {
	SpeciesIDs []int
	FamilyIDs  []int
	From       time.Time
	To         time.Time
}

// Unconstrained reports whether neither a species nor a family was selected.
func (f ObservationFilter) Unconstrained() bool {
	return len(f.SpeciesIDs) == 0 && len(f.FamilyIDs) == 0
}

// DayBounds returns the half-open instant range [start, end) covering the
// inclusive day range of the filter.
func (f ObservationFilter) DayBounds() (time.Time, time.Time) {
	return StartOfDay(f.From), StartOfDay(f.To).AddDate(0, 0, 1)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// BandCount is the number of observations whose altitude falls in the band
// starting at Lower.
type BandCount struct {
	Lower int
	Count int64
}

// ClassCount is the number of observations carrying one land-cover class.
// An empty Class stands for unclassified observations.
type ClassCount struct {
	Class string `json:"landcover"`
	Count int64  `json:"count"`
}
