// internal/rules/node.go
package rules

import (
	"context"
	"strconv"
	"strings"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

/*
 * Rule node contract.
 *
 * Every condition and action node type is described by a Descriptor: a
 * stable string id (part of the storage format, immutable once published),
 * a label template with {name} placeholders, an optional parameter schema,
 * and a factory constructing the typed node from a bound instance.
 *
 * Bind constructs an instance without validating; Validate checks the raw
 * string parameters against the schema; the factory coerces them to typed
 * fields. Passes/Before/After never read raw strings.
 *
 * Instances are immutable once bound and safe for concurrent read-only use.
 */

// Kind discriminates condition node types from action node types.
type Kind string

const (
	KindCondition Kind = "condition"
	KindAction    Kind = "action"
)

// Condition answers whether a single predicate holds for an event plus its
// lifecycle facts. Implementations are stateless and side-effect free.
type Condition interface {
	Passes(event *types.Event, facts types.EventFacts) bool
}

// Action performs a side effect for a matched rule and may transform an
// event before it is persisted.
//
// Before runs pre-persist for every active rule, conditions unseen; the
// returned event threads into the next action and then into persistence.
// After runs post-persist once the rule's conditions are satisfied; failures
// wrap types.ErrDispatchFailed and are isolated per action.
type Action interface {
	Before(event *types.Event) *types.Event
	After(ctx context.Context, event *types.Event, facts types.EventFacts) error
}

// Descriptor is the identity and contract of a node type.
type Descriptor struct {
	// ID is the globally unique node id, stable across versions. Changing
	// a published id orphans every persisted instance referencing it.
	ID string

	// Kind is KindCondition or KindAction.
	Kind Kind

	// Label is a human-readable template with {name} placeholders for
	// bound parameter values, e.g. "An event's {key} value {match} {value}".
	Label string

	// Schema declares the node's parameters. Nil means the node takes no
	// parameters and always validates.
	Schema *Schema

	// NewCondition builds the typed condition from a bound, validated
	// instance. Set only when Kind is KindCondition.
	NewCondition func(inst *Instance) (Condition, error)

	// NewAction builds the typed action from a bound, validated instance.
	// Set only when Kind is KindAction.
	NewAction func(inst *Instance) (Action, error)
}

// Instance is one bound occurrence of a node type within a rule: the
// descriptor plus the raw string parameters for this occurrence.
type Instance struct {
	Desc      *Descriptor
	ProjectID types.ProjectID
	params    map[string]string
}

// Bind constructs a bound instance for the given project scope.
// Parameters are copied; Bind performs no validation.
func (d *Descriptor) Bind(projectID types.ProjectID, params map[string]string) *Instance {
	bound := make(map[string]string, len(params))
	for k, v := range params {
		bound[k] = v
	}
	return &Instance{Desc: d, ProjectID: projectID, params: bound}
}

// Validate checks the instance's parameters against the descriptor's
// schema. Returns a *ValidationError listing every failing field, or nil.
// A node with no schema always validates.
func (d *Descriptor) Validate(inst *Instance) error {
	if d.Schema == nil {
		return nil
	}
	return d.Schema.Validate(d.ID, inst.params)
}

// Param returns the raw string value bound under name, or "".
func (i *Instance) Param(name string) string {
	return i.params[name]
}

// IntParam coerces the parameter bound under name to an integer. Leading
// and trailing whitespace is ignored, matching schema validation.
func (i *Instance) IntParam(name string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(i.params[name]))
}

// Params returns a copy of the bound parameters, preserving the instance's
// immutability.
func (i *Instance) Params() map[string]string {
	out := make(map[string]string, len(i.params))
	for k, v := range i.params {
		out[k] = v
	}
	return out
}
