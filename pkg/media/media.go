// Package media defines the media item vocabulary shared by the analysis
// pipeline and its collaborators.
package media

import (
	"maps"

	"github.com/google/uuid"
)

// Attributes is one attribute record of an aspect, keyed by attribute name.
type Attributes map[string]any

// Aspects maps an aspect type id to the attribute records of that aspect.
// A media item may carry several records for the same aspect type
// (e.g. one per resource or stream).
type Aspects map[uuid.UUID][]Attributes

// Len returns the number of aspect types present.
func (a Aspects) Len() int {
	return len(a)
}

// AttributeCount returns the total number of attribute records.
func (a Aspects) AttributeCount() int {
	total := 0

	for _, records := range a {
		total += len(records)
	}

	return total
}

// Clone returns a shallow copy whose per-aspect slices are independent.
func (a Aspects) Clone() Aspects {
	if a == nil {
		return nil
	}

	out := make(Aspects, len(a))

	for id, records := range a {
		cloned := make([]Attributes, len(records))

		for i, rec := range records {
			cloned[i] = maps.Clone(rec)
		}

		out[id] = cloned
	}

	return out
}

// Item is a media item as seen by the analyzer.
type Item struct {
	ID      uuid.UUID
	Aspects Aspects
}
