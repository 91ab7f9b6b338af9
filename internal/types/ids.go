package types

import (
	"time"

	"github.com/google/uuid"
)

// EventID represents a UUIDv7 event identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type EventID string

// RuleID represents a UUIDv7 rule identifier.
type RuleID string

// ProjectID represents a UUIDv7 project identifier. Rules and events are
// scoped to a project; the engine never crosses project boundaries.
type ProjectID string

// GroupID represents a UUIDv7 event-group identifier.
type GroupID string

// NewEventID generates a UUIDv7 event identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewEventID() EventID {
	return EventID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleID generates a UUIDv7 rule identifier.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewProjectID generates a UUIDv7 project identifier.
func NewProjectID() ProjectID {
	return ProjectID(uuid.Must(uuid.NewV7()).String())
}

// NewGroupID generates a UUIDv7 event-group identifier.
func NewGroupID() GroupID {
	return GroupID(uuid.Must(uuid.NewV7()).String())
}

// ParseEventID validates and converts a string to EventID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseEventID(s string) (EventID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return EventID(s), nil
}

// ParseRuleID validates and converts a string to RuleID.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParseProjectID validates and converts a string to ProjectID.
func ParseProjectID(s string) (ProjectID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ProjectID(s), nil
}

// EventIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Enables time-based queries without database lookup.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func EventIDTime(id EventID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
