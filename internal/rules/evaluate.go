// internal/rules/evaluate.go
package rules

import (
	"context"
	"log/slog"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

/*
 * Rule evaluation orchestration.
 *
 * Two phases per (rule, event):
 *
 *   1. Before-persist: every action's Before runs, threading the possibly
 *      transformed event into the next action and then into persistence.
 *      Conditions are never consulted here.
 *   2. After-persist: each condition is bound, validated, built, and
 *      evaluated; results combine per the rule's match policy with
 *      short-circuit (all = AND, any = OR). On a match, After runs on every
 *      action in order.
 *
 * Degradation is skip-and-continue: an unknown node id or an instance
 * failing validation is never evaluated. A skipped condition forces the
 * rule's combined result to false (fail closed) without preventing sibling
 * instances from being checked; a skipped action leaves the remaining
 * actions untouched. A failing action is logged and isolated. No error from
 * one rule reaches another rule, and no error from one event reaches the
 * next.
 *
 * The evaluator is stateless across events and safe for concurrent use;
 * bound instances are immutable and the registry is read-only here.
 */

// Result reports the outcome of one rule's after-persist evaluation.
type Result struct {
	RuleID  types.RuleID `json:"rule_id"`
	Matched bool         `json:"matched"`

	// SkippedConditions and SkippedActions count instances that were not
	// evaluated because their node id was unknown or their parameters
	// failed validation.
	SkippedConditions int `json:"skipped_conditions,omitempty"`
	SkippedActions    int `json:"skipped_actions,omitempty"`

	// ActionsRun counts actions whose After completed without error;
	// ActionErrors counts those that returned one.
	ActionsRun   int `json:"actions_run,omitempty"`
	ActionErrors int `json:"action_errors,omitempty"`
}

// Evaluator runs rule definitions against events.
type Evaluator struct {
	registry *Registry
	log      *slog.Logger
}

// NewEvaluator creates an evaluator over the given registry.
// A nil logger falls back to slog.Default().
func NewEvaluator(registry *Registry, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{registry: registry, log: log}
}

// Before runs the before-persist phase for every rule against the event.
// The returned event (possibly transformed by actions) is what the caller
// persists. Unknown or invalid action instances are skipped.
func (e *Evaluator) Before(rules []*types.RuleDefinition, event *types.Event) *types.Event {
	for _, rule := range rules {
		for _, cfg := range rule.Actions {
			action, err := e.buildAction(rule, cfg)
			if err != nil {
				continue
			}
			if next := action.Before(event); next != nil {
				event = next
			}
		}
	}
	return event
}

// After runs the after-persist phase for one rule: conditions combined per
// the match policy, then every action's After on a match. Action failures
// are isolated and reported in the result.
func (e *Evaluator) After(ctx context.Context, rule *types.RuleDefinition, event *types.Event, facts types.EventFacts) Result {
	result := Result{RuleID: rule.ID}

	matched, skipped := e.conditionsMatch(rule, event, facts)
	result.Matched = matched
	result.SkippedConditions = skipped

	if !matched {
		return result
	}

	for _, cfg := range rule.Actions {
		action, err := e.buildAction(rule, cfg)
		if err != nil {
			result.SkippedActions++
			continue
		}
		if err := action.After(ctx, event, facts); err != nil {
			result.ActionErrors++
			e.log.Error("rule action failed",
				"rule_id", rule.ID,
				"node_id", cfg.ID,
				"event_id", event.ID,
				"error", err)
			continue
		}
		result.ActionsRun++
	}

	return result
}

// conditionsMatch combines the rule's conditions per its match policy.
// Returns the combined result and the count of skipped instances. All
// instances are resolved and validated up front so a skip is detected even
// when evaluation would short-circuit past it; skips force the combined
// result to false.
func (e *Evaluator) conditionsMatch(rule *types.RuleDefinition, event *types.Event, facts types.EventFacts) (bool, int) {
	conditions := make([]Condition, 0, len(rule.Conditions))
	skipped := 0

	for _, cfg := range rule.Conditions {
		cond, err := e.buildCondition(rule, cfg)
		if err != nil {
			skipped++
			continue
		}
		conditions = append(conditions, cond)
	}

	var matched bool
	switch rule.Policy {
	case types.MatchAny:
		matched = false
		for _, cond := range conditions {
			if cond.Passes(event, facts) {
				matched = true
				break
			}
		}
	default:
		// MatchAll: conjunction over the empty set is true.
		matched = true
		for _, cond := range conditions {
			if !cond.Passes(event, facts) {
				matched = false
				break
			}
		}
		if skipped > 0 {
			matched = false
		}
	}

	return matched, skipped
}

// buildCondition resolves, binds, validates, and constructs one condition
// instance. Failures are logged and reported to the caller for skipping.
func (e *Evaluator) buildCondition(rule *types.RuleDefinition, cfg types.NodeConfig) (Condition, error) {
	desc, err := e.registry.Lookup(cfg.ID)
	if err != nil {
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	inst := desc.Bind(rule.ProjectID, cfg.Params)
	if err := desc.Validate(inst); err != nil {
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	if desc.Kind != KindCondition {
		err := types.ErrUnknownNode
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	cond, err := desc.NewCondition(inst)
	if err != nil {
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	return cond, nil
}

// buildAction resolves, binds, validates, and constructs one action
// instance.
func (e *Evaluator) buildAction(rule *types.RuleDefinition, cfg types.NodeConfig) (Action, error) {
	desc, err := e.registry.Lookup(cfg.ID)
	if err != nil {
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	inst := desc.Bind(rule.ProjectID, cfg.Params)
	if err := desc.Validate(inst); err != nil {
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	if desc.Kind != KindAction {
		err := types.ErrUnknownNode
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	action, err := desc.NewAction(inst)
	if err != nil {
		e.logSkip(rule, cfg, err)
		return nil, err
	}
	return action, nil
}

// logSkip records an instance the evaluator refused to evaluate.
func (e *Evaluator) logSkip(rule *types.RuleDefinition, cfg types.NodeConfig, err error) {
	e.log.Warn("skipping rule node instance",
		"rule_id", rule.ID,
		"node_id", cfg.ID,
		"error", err)
}
