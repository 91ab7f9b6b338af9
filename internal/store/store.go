// Package store persists rules, events, and event groups.
//
// Two implementations per store: SQL-backed (sqlite/postgres via the db
// package's named queries) for deployments, and in-memory for tests and
// single-process development. Both enforce the same grouping semantics, so
// the ingestion pipeline observes identical lifecycle facts either way.
package store

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

// RuleStore manages rule definition persistence, scoped by project.
type RuleStore interface {
	// Create stores a new rule. Returns types.ErrRuleExists on id collision.
	Create(ctx context.Context, rule *types.RuleDefinition) error

	// Get returns a rule by id. Returns types.ErrRuleNotFound when absent
	// or owned by another project.
	Get(ctx context.Context, projectID types.ProjectID, ruleID types.RuleID) (*types.RuleDefinition, error)

	// List returns all of a project's rules in creation order.
	List(ctx context.Context, projectID types.ProjectID) ([]*types.RuleDefinition, error)

	// ListEnabled returns the project's enabled rules in creation order.
	// The evaluator consumes this on every ingested event.
	ListEnabled(ctx context.Context, projectID types.ProjectID) ([]*types.RuleDefinition, error)

	// Update replaces a rule's definition. Returns types.ErrRuleNotFound
	// when absent.
	Update(ctx context.Context, rule *types.RuleDefinition) error

	// Delete removes a rule. Returns types.ErrRuleNotFound when absent.
	Delete(ctx context.Context, projectID types.ProjectID, ruleID types.RuleID) error
}

// EventStore persists events and maintains their groups' lifecycle state.
type EventStore interface {
	// Record persists an event, folding it into its fingerprint group, and
	// returns the stored event (group id and repeat count populated) plus
	// the lifecycle facts observed at this exact ingestion:
	//
	//   IsNew          the group was created by this event
	//   IsRegression   the group was resolved and this event reopened it
	//
	// Recording also reopens a resolved group.
	Record(ctx context.Context, event *types.Event) (*types.Event, types.EventFacts, error)

	// GetGroup returns a group's current state.
	GetGroup(ctx context.Context, projectID types.ProjectID, groupID types.GroupID) (*types.Group, error)

	// ResolveGroup marks a group resolved. The next recorded event in the
	// group is a regression.
	ResolveGroup(ctx context.Context, projectID types.ProjectID, groupID types.GroupID) error

	// GetEvent returns a stored event by id.
	GetEvent(ctx context.Context, projectID types.ProjectID, eventID types.EventID) (*types.Event, error)
}

// Fingerprint derives the grouping signature of an event. Events with the
// same logger and message within a project fold into one group. The NUL
// separator keeps ("ab","c") and ("a","bc") distinct.
func Fingerprint(logger, message string) string {
	h := sha256.New()
	h.Write([]byte(logger))
	h.Write([]byte{0})
	h.Write([]byte(message))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ValidateEvent enforces the ingestion resource limits before an event
// touches storage.
func ValidateEvent(event *types.Event) error {
	if len(event.Message) > types.MaxMessageLength {
		return types.ErrMessageTooLarge
	}
	if len(event.Tags) > types.MaxTagPairs {
		return types.ErrTooManyTags
	}
	for _, tag := range event.Tags {
		if len(tag.Key) > types.MaxTagKeyLength {
			return types.ErrTagKeyTooLong
		}
		if len(tag.Value) > types.MaxTagValueLength {
			return types.ErrTagValueTooLong
		}
	}
	return nil
}
