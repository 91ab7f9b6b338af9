// internal/types/rules.go
package types

/*
 * Domain types for rule definitions.
 *
 * A RuleDefinition is the persisted configuration a user authored: a display
 * label, a condition match policy, and ordered condition/action node
 * configurations. These types are storage-format agnostic; the stores in
 * internal/store serialize node configurations as JSON.
 *
 * Parameter values are strings at this boundary. Type coercion happens when
 * internal/rules binds and validates an instance against the node's schema;
 * raw strings are never trusted during evaluation.
 */

// MatchPolicy combines a rule's condition results.
type MatchPolicy string

const (
	// MatchAll requires every condition to pass (conjunction; vacuously
	// true over an empty condition list).
	MatchAll MatchPolicy = "all"

	// MatchAny requires at least one condition to pass (disjunction;
	// vacuously false over an empty condition list).
	MatchAny MatchPolicy = "any"
)

// NodeConfig is one condition or action occurrence within a rule: a node id
// plus the raw string parameters bound for that occurrence. The same node id
// may appear multiple times in one rule with independent parameters.
type NodeConfig struct {
	ID     string            `json:"id"`
	Params map[string]string `json:"params,omitempty"`
}

// Param returns a bound parameter value, or "" when absent.
func (c NodeConfig) Param(name string) string {
	return c.Params[name]
}

// RuleDefinition is a saved combination of match policy, conditions, and
// actions for a project. Created and edited by the authoring API, consumed
// read-only by the evaluator.
type RuleDefinition struct {
	ID         RuleID       `json:"rule_id" db:"rule_id"`
	ProjectID  ProjectID    `json:"project_id" db:"project_id"`
	Label      string       `json:"label" db:"label"`
	Policy     MatchPolicy  `json:"action_match" db:"action_match"`
	Conditions []NodeConfig `json:"conditions"`
	Actions    []NodeConfig `json:"actions"`
	Enabled    bool         `json:"enabled" db:"enabled"`
}

// Validate checks the definition's structural invariants: label present and
// within MaxLabelLength, policy one of all/any. Node-level parameter
// validation is the rule engine's concern.
func (r *RuleDefinition) Validate() error {
	if r.Label == "" {
		return ErrLabelRequired
	}
	if len(r.Label) > MaxLabelLength {
		return ErrLabelTooLong
	}
	switch r.Policy {
	case MatchAll, MatchAny:
	default:
		return ErrUnknownMatchPolicy
	}
	return nil
}
