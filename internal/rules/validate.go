// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

// ValidateDefinition applies authoring-time validation to a rule
// definition: structural checks (label, match policy), then every condition
// and action instance against its node's schema. A malformed definition
// must never reach the store, while evaluation-time validation stays
// permissive (skip-and-continue).
//
// Returns the first structural error, or a *DefinitionError aggregating all
// failing instances.
func ValidateDefinition(registry *Registry, def *types.RuleDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	var invalid []InstanceError
	invalid = appendInstanceErrors(invalid, registry, KindCondition, def)
	invalid = appendInstanceErrors(invalid, registry, KindAction, def)

	if len(invalid) > 0 {
		return &DefinitionError{Instances: invalid}
	}
	return nil
}

// InstanceError identifies one failing node instance by its position within
// the rule's condition or action list.
type InstanceError struct {
	Kind   Kind   `json:"kind"`
	Index  int    `json:"index"`
	NodeID string `json:"node_id"`
	Err    error  `json:"-"`
}

// DefinitionError aggregates all instance-level failures of one rule
// definition so the authoring UI can surface them together.
type DefinitionError struct {
	Instances []InstanceError `json:"instances"`
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	first := e.Instances[0]
	if len(e.Instances) == 1 {
		return fmt.Sprintf("%s[%d] %s: %v", first.Kind, first.Index, first.NodeID, first.Err)
	}
	return fmt.Sprintf("%s[%d] %s: %v (and %d more)", first.Kind, first.Index, first.NodeID, first.Err, len(e.Instances)-1)
}

// appendInstanceErrors validates every instance of one kind, collecting
// failures. The node's factory runs too: a parameter that validates but
// fails coercion is still an authoring error.
func appendInstanceErrors(invalid []InstanceError, registry *Registry, kind Kind, def *types.RuleDefinition) []InstanceError {
	configs := def.Conditions
	if kind == KindAction {
		configs = def.Actions
	}

	for i, cfg := range configs {
		if err := validateInstance(registry, kind, def.ProjectID, cfg); err != nil {
			invalid = append(invalid, InstanceError{Kind: kind, Index: i, NodeID: cfg.ID, Err: err})
		}
	}
	return invalid
}

// validateInstance checks one node config: id registered under the expected
// kind, parameters valid against the schema, factory constructs cleanly.
func validateInstance(registry *Registry, kind Kind, projectID types.ProjectID, cfg types.NodeConfig) error {
	desc, err := registry.Lookup(cfg.ID)
	if err != nil {
		return err
	}
	if desc.Kind != kind {
		return fmt.Errorf("%w: %s is not a %s", types.ErrUnknownNode, cfg.ID, kind)
	}

	inst := desc.Bind(projectID, cfg.Params)
	if err := desc.Validate(inst); err != nil {
		return err
	}

	switch kind {
	case KindCondition:
		_, err = desc.NewCondition(inst)
	case KindAction:
		_, err = desc.NewAction(inst)
	}
	return err
}
