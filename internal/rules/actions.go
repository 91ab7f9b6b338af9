// internal/rules/actions.go
package rules

import (
	"context"
	"fmt"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

/*
 * Built-in action nodes.
 *
 * NotifyAction invokes the injected Dispatcher whenever its shouldNotify
 * predicate holds. The evaluator-driven notify_event action has no predicate
 * of its own: the rule's conditions already decided, so it always notifies.
 * The notify_on_* variants carry the predicate themselves, for standalone
 * notify-only rules that bypass the evaluator's condition list.
 *
 * Before is the identity transform for the whole notify family; the hook
 * exists for action types that scrub or annotate events pre-persist.
 */

// Action node ids. Part of the storage format; never change a published id.
const (
	NotifyActionID             = "watchkeeper.actions.notify_event"
	NotifyOnFirstSeenActionID  = "watchkeeper.actions.notify_on_first_seen"
	NotifyOnRegressionActionID = "watchkeeper.actions.notify_on_regression"
	NotifyOnTimesSeenActionID  = "watchkeeper.actions.notify_on_times_seen"
)

// Dispatcher is the external notification collaborator. Implementations may
// deliver asynchronously; the engine does not wait beyond the returned
// error. Failures wrap types.ErrDispatchFailed.
type Dispatcher interface {
	Notify(ctx context.Context, event *types.Event) error
}

// NotifyAction sends a notification through the dispatcher when its
// predicate holds. A nil predicate always notifies.
type NotifyAction struct {
	dispatcher   Dispatcher
	shouldNotify func(event *types.Event, facts types.EventFacts) bool
}

// Before implements Action; notify actions do not transform events.
func (a *NotifyAction) Before(event *types.Event) *types.Event {
	return event
}

// After implements Action, invoking the dispatcher when shouldNotify holds.
func (a *NotifyAction) After(ctx context.Context, event *types.Event, facts types.EventFacts) error {
	if a.shouldNotify != nil && !a.shouldNotify(event, facts) {
		return nil
	}
	if a.dispatcher == nil {
		return fmt.Errorf("%w: no dispatcher configured", types.ErrDispatchFailed)
	}
	if err := a.dispatcher.Notify(ctx, event); err != nil {
		return fmt.Errorf("%s: %w", event.ID, err)
	}
	return nil
}

// NotifyDescriptor describes the evaluator-driven notify action: it fires
// for every event whose rule conditions matched.
func NotifyDescriptor(dispatcher Dispatcher) *Descriptor {
	return &Descriptor{
		ID:    NotifyActionID,
		Kind:  KindAction,
		Label: "Send a notification",
		NewAction: func(_ *Instance) (Action, error) {
			return &NotifyAction{dispatcher: dispatcher}, nil
		},
	}
}

// NotifyOnFirstSeenDescriptor describes the standalone first-seen notify
// action.
func NotifyOnFirstSeenDescriptor(dispatcher Dispatcher) *Descriptor {
	return &Descriptor{
		ID:    NotifyOnFirstSeenActionID,
		Kind:  KindAction,
		Label: "Send a notification when an event is first seen",
		NewAction: func(_ *Instance) (Action, error) {
			return &NotifyAction{
				dispatcher: dispatcher,
				shouldNotify: func(_ *types.Event, facts types.EventFacts) bool {
					return facts.IsNew
				},
			}, nil
		},
	}
}

// NotifyOnRegressionDescriptor describes the standalone regression notify
// action.
func NotifyOnRegressionDescriptor(dispatcher Dispatcher) *Descriptor {
	return &Descriptor{
		ID:    NotifyOnRegressionActionID,
		Kind:  KindAction,
		Label: "Send a notification when an event changes state from resolved to unresolved",
		NewAction: func(_ *Instance) (Action, error) {
			return &NotifyAction{
				dispatcher: dispatcher,
				shouldNotify: func(_ *types.Event, facts types.EventFacts) bool {
					return facts.IsRegression
				},
			}, nil
		},
	}
}

// NotifyOnTimesSeenDescriptor describes the standalone times-seen notify
// action. Same exact-equality semantics as the TimesSeen condition.
func NotifyOnTimesSeenDescriptor(dispatcher Dispatcher) *Descriptor {
	return &Descriptor{
		ID:    NotifyOnTimesSeenActionID,
		Kind:  KindAction,
		Label: "Send a notification when an event is seen exactly {num} times",
		Schema: &Schema{Fields: []Field{
			{Name: "num", Type: FieldNumber, Required: true},
		}},
		NewAction: func(inst *Instance) (Action, error) {
			num, err := inst.IntParam("num")
			if err != nil {
				return nil, fmt.Errorf("%s: num: %w", NotifyOnTimesSeenActionID, err)
			}
			return &NotifyAction{
				dispatcher: dispatcher,
				shouldNotify: func(event *types.Event, _ types.EventFacts) bool {
					return event.TimesSeen == num
				},
			}, nil
		},
	}
}

// RegisterBuiltins registers every built-in condition and action node with
// the registry. Called once at process start; actions close over the
// notification dispatcher.
func RegisterBuiltins(r *Registry, dispatcher Dispatcher) error {
	descriptors := []*Descriptor{
		FirstSeenDescriptor(),
		RegressionDescriptor(),
		TaggedDescriptor(),
		TimesSeenDescriptor(),
		NotifyDescriptor(dispatcher),
		NotifyOnFirstSeenDescriptor(dispatcher),
		NotifyOnRegressionDescriptor(dispatcher),
		NotifyOnTimesSeenDescriptor(dispatcher),
	}
	for _, desc := range descriptors {
		if err := r.Register(desc); err != nil {
			return fmt.Errorf("register builtins: %w", err)
		}
	}
	return nil
}
