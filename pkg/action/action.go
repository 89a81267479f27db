// Package action defines the unit of work scheduled by the analysis pipeline:
// an analyze or delete request for a single media item.
package action

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/analysisd/pkg/media"
)

// Type is the kind of work an action performs.
type Type int

const (
	// Analyze parses the media item and stores its analysis.
	Analyze Type = iota
	// Delete removes any stored analysis of the media item.
	Delete
)

const (
	typeAnalyze = "analyze"
	typeDelete  = "delete"
)

// Sentinel errors for action decoding and validation.
var (
	ErrUnknownType    = errors.New("unknown action type")
	ErrMissingID      = errors.New("action id is required")
	ErrMissingMediaID = errors.New("media item id is required")
)

// String returns the lower-case name of the type.
func (t Type) String() string {
	switch t {
	case Analyze:
		return typeAnalyze
	case Delete:
		return typeDelete
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	switch t {
	case Analyze, Delete:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, int(t))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// ParseType converts a type name into a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case typeAnalyze:
		return Analyze, nil
	case typeDelete:
		return Delete, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
}

// Action is a scheduled analyze-or-delete request.
type Action struct {
	ID          uuid.UUID     `json:"action_id"`
	Type        Type          `json:"type"`
	MediaItemID uuid.UUID     `json:"media_item_id"`
	Aspects     media.Aspects `json:"aspects,omitempty"`
}

// New creates an action with a fresh random id.
func New(typ Type, mediaItemID uuid.UUID) *Action {
	return &Action{
		ID:          uuid.New(),
		Type:        typ,
		MediaItemID: mediaItemID,
	}
}

// Validate checks that the identifying fields are set and the type is known.
func (a *Action) Validate() error {
	if a.ID == uuid.Nil {
		return ErrMissingID
	}

	if a.MediaItemID == uuid.Nil {
		return ErrMissingMediaID
	}

	if a.Type != Analyze && a.Type != Delete {
		return fmt.Errorf("%w: %d", ErrUnknownType, int(a.Type))
	}

	return nil
}

// NeedsAspects reports whether supporting data must be fetched before the
// action can run.
func (a *Action) NeedsAspects() bool {
	return a.Type == Analyze && len(a.Aspects) == 0
}

// Item returns the media item the action targets.
func (a *Action) Item() media.Item {
	return media.Item{ID: a.MediaItemID, Aspects: a.Aspects}
}

// Record returns the persisted form of the action. Aspects are dropped.
func (a *Action) Record() Record {
	return Record{
		ID:          a.ID,
		Type:        a.Type,
		MediaItemID: a.MediaItemID,
	}
}

// Record is the durable form of an action. Aspects are never persisted since
// they may be stale by the time the record is restored.
type Record struct {
	ID          uuid.UUID `json:"action_id"     yaml:"action_id"`
	Type        Type      `json:"type"          yaml:"type"`
	MediaItemID uuid.UUID `json:"media_item_id" yaml:"media_item_id"`
}

// Action converts the record back into a schedulable action.
func (r Record) Action() *Action {
	return &Action{
		ID:          r.ID,
		Type:        r.Type,
		MediaItemID: r.MediaItemID,
	}
}

// FromRecord converts a persisted record into a schedulable action.
func FromRecord(r Record) *Action {
	return r.Action()
}
