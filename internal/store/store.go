// Package store persists the species catalog and observations in PostGIS.
package store

import (
	"github.com/rotisserie/eris"
)

// InsertResult is the outcome of a single observation insert.
type InsertResult int

const (
	// InsertCreated means a new row was written.
	InsertCreated InsertResult = iota
	// InsertDuplicate means the natural key already existed; nothing was written.
	InsertDuplicate
)

func (r InsertResult) String() string {
	switch r {
	case InsertCreated:
		return "created"
	case InsertDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ErrSpeciesNotFound is returned when a species lookup by name has no match.
var ErrSpeciesNotFound = eris.New("store: species not found")
