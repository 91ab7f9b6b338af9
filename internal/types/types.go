// Package types provides domain models shared across Watchkeeper components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library. ID utilities in ids.go import uuid but are isolated for selective
// inclusion.
//
// The rule engine in internal/rules consumes these types read-only; the
// stores in internal/store own their persistence.
package types

import "time"

// Level classifies event severity. Free-form on the wire; the engine does
// not interpret it.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// Tag is a single key/value pair attached to an event.
// Tags form a multi-map: duplicate keys are allowed and evaluated
// independently by the rule engine.
type Tag struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}

// TagList is the ordered multi-map of an event's tags.
type TagList []Tag

// Values returns all values stored under key, in tag order.
// Returns nil when the key is absent.
func (t TagList) Values(key string) []string {
	var values []string
	for _, tag := range t {
		if tag.Key == key {
			values = append(values, tag.Value)
		}
	}
	return values
}

// Has reports whether any tag entry uses the given key.
func (t TagList) Has(key string) bool {
	for _, tag := range t {
		if tag.Key == key {
			return true
		}
	}
	return false
}

// Event is a single error/event record as seen by the rule engine.
// TimesSeen is the repeat count of the event's group at evaluation time,
// maintained by the event store.
type Event struct {
	ID        EventID   `json:"event_id" db:"event_id"`
	ProjectID ProjectID `json:"project_id" db:"project_id"`
	GroupID   GroupID   `json:"group_id,omitempty" db:"group_id"`
	Message   string    `json:"message" db:"message"`
	Logger    string    `json:"logger,omitempty" db:"logger"`
	Level     Level     `json:"level,omitempty" db:"level"`
	Tags      TagList   `json:"tags,omitempty"`
	TimesSeen int       `json:"times_seen" db:"times_seen"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// EventFacts carries the lifecycle facts the ingestion layer computes when
// an event is persisted. The engine never derives these itself.
type EventFacts struct {
	// IsNew is true the first time an event's signature was seen.
	IsNew bool `json:"is_new"`

	// IsRegression is true when the event's group transitioned from
	// resolved back to unresolved.
	IsRegression bool `json:"is_regression"`
}

// GroupStatus tracks the resolution state of an event group.
type GroupStatus string

const (
	GroupUnresolved GroupStatus = "unresolved"
	GroupResolved   GroupStatus = "resolved"
)

// Group aggregates repeated events sharing a fingerprint within a project.
// TimesSeen counts every event folded into the group since creation, across
// resolve/regress cycles.
type Group struct {
	ID          GroupID     `json:"group_id" db:"group_id"`
	ProjectID   ProjectID   `json:"project_id" db:"project_id"`
	Fingerprint string      `json:"fingerprint" db:"fingerprint"`
	Status      GroupStatus `json:"status" db:"status"`
	TimesSeen   int         `json:"times_seen" db:"times_seen"`
	FirstSeen   time.Time   `json:"first_seen" db:"first_seen"`
	LastSeen    time.Time   `json:"last_seen" db:"last_seen"`
}

// Resource limits enforced at the ingestion boundary.
const (
	// MaxLabelLength caps rule display labels, matching the authoring form
	// contract (non-empty, at most 64 characters).
	MaxLabelLength = 64

	// MaxTagPairs limits tag pairs per event to bound rule evaluation cost.
	MaxTagPairs = 64

	// MaxTagKeyLength and MaxTagValueLength bound individual tag entries.
	MaxTagKeyLength   = 128
	MaxTagValueLength = 1024

	// MaxMessageLength bounds the event message; longer payloads belong in
	// external storage.
	MaxMessageLength = 8 * 1024
)
