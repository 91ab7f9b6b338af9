// internal/rules/conditions.go
package rules

import (
	"fmt"
	"strings"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

/*
 * Built-in condition nodes.
 *
 * FirstSeen and Regression read only the lifecycle facts. TagMatch scans the
 * event's tag multi-map: positive matches (eq/sw/ew/co) succeed as soon as
 * one entry under the key satisfies the comparison, negative matches (ne/nc)
 * succeed only when no entry does. An absent key makes the positive matches
 * false and the negative matches vacuously true.
 *
 * TimesSeen fires when the group's repeat count equals num exactly, not >=.
 * A counter that skips past num never fires this condition again; preserved
 * intentionally, see the descriptor comment.
 */

// Condition node ids. Part of the storage format; never change a published id.
const (
	FirstSeenConditionID  = "watchkeeper.conditions.first_seen_event"
	RegressionConditionID = "watchkeeper.conditions.regression_event"
	TaggedConditionID     = "watchkeeper.conditions.tagged_event"
	TimesSeenConditionID  = "watchkeeper.conditions.times_seen_event"
)

// MatchType enumerates TagMatch comparison modes. The short values are the
// stored parameter representation.
type MatchType string

const (
	MatchEqual       MatchType = "eq"
	MatchNotEqual    MatchType = "ne"
	MatchStartsWith  MatchType = "sw"
	MatchEndsWith    MatchType = "ew"
	MatchContains    MatchType = "co"
	MatchNotContains MatchType = "nc"
)

// matchChoices is the TagMatch match parameter's choice set, in display order.
var matchChoices = []Choice{
	{Value: string(MatchEqual), Label: "equals"},
	{Value: string(MatchNotEqual), Label: "does not equal"},
	{Value: string(MatchStartsWith), Label: "starts with"},
	{Value: string(MatchEndsWith), Label: "ends with"},
	{Value: string(MatchContains), Label: "contains"},
	{Value: string(MatchNotContains), Label: "does not contain"},
}

// FirstSeenCondition passes when the event's signature is seen for the
// first time.
type FirstSeenCondition struct{}

// Passes implements Condition.
func (FirstSeenCondition) Passes(_ *types.Event, facts types.EventFacts) bool {
	return facts.IsNew
}

// RegressionCondition passes when the event's group changed state from
// resolved to unresolved.
type RegressionCondition struct{}

// Passes implements Condition.
func (RegressionCondition) Passes(_ *types.Event, facts types.EventFacts) bool {
	return facts.IsRegression
}

// TaggedEventCondition compares the event's tag values under a key against
// a configured value. Comparisons are case-sensitive.
type TaggedEventCondition struct {
	Key   string
	Match MatchType
	Value string
}

// Passes implements Condition.
func (c *TaggedEventCondition) Passes(event *types.Event, _ types.EventFacts) bool {
	values := event.Tags.Values(c.Key)

	switch c.Match {
	case MatchEqual:
		return anyValue(values, func(v string) bool { return v == c.Value })
	case MatchNotEqual:
		return !anyValue(values, func(v string) bool { return v == c.Value })
	case MatchStartsWith:
		return anyValue(values, func(v string) bool { return strings.HasPrefix(v, c.Value) })
	case MatchEndsWith:
		return anyValue(values, func(v string) bool { return strings.HasSuffix(v, c.Value) })
	case MatchContains:
		return anyValue(values, func(v string) bool { return strings.Contains(v, c.Value) })
	case MatchNotContains:
		return !anyValue(values, func(v string) bool { return strings.Contains(v, c.Value) })
	default:
		return false
	}
}

// anyValue reports whether pred holds for any value, short-circuiting on the
// first satisfying entry.
func anyValue(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}

// TimesSeenCondition passes when the group's repeat count equals Num
// exactly. Exact equality means each configured count fires at most once
// per group; a counter incremented past Num in a single batch never fires.
type TimesSeenCondition struct {
	Num int
}

// Passes implements Condition.
func (c *TimesSeenCondition) Passes(event *types.Event, _ types.EventFacts) bool {
	return event.TimesSeen == c.Num
}

// FirstSeenDescriptor describes the FirstSeen condition node.
func FirstSeenDescriptor() *Descriptor {
	return &Descriptor{
		ID:    FirstSeenConditionID,
		Kind:  KindCondition,
		Label: "An event is first seen",
		NewCondition: func(_ *Instance) (Condition, error) {
			return FirstSeenCondition{}, nil
		},
	}
}

// RegressionDescriptor describes the Regression condition node.
func RegressionDescriptor() *Descriptor {
	return &Descriptor{
		ID:    RegressionConditionID,
		Kind:  KindCondition,
		Label: "An event changes state from resolved to unresolved",
		NewCondition: func(_ *Instance) (Condition, error) {
			return RegressionCondition{}, nil
		},
	}
}

// TaggedDescriptor describes the TagMatch condition node.
func TaggedDescriptor() *Descriptor {
	return &Descriptor{
		ID:    TaggedConditionID,
		Kind:  KindCondition,
		Label: "An event's {key} value {match} {value}",
		Schema: &Schema{Fields: []Field{
			{Name: "key", Type: FieldString, Required: true},
			{Name: "match", Type: FieldChoice, Required: true, Choices: matchChoices},
			{Name: "value", Type: FieldString, Required: true},
		}},
		NewCondition: func(inst *Instance) (Condition, error) {
			return &TaggedEventCondition{
				Key:   inst.Param("key"),
				Match: MatchType(inst.Param("match")),
				Value: inst.Param("value"),
			}, nil
		},
	}
}

// TimesSeenDescriptor describes the TimesSeen condition node.
func TimesSeenDescriptor() *Descriptor {
	return &Descriptor{
		ID:    TimesSeenConditionID,
		Kind:  KindCondition,
		Label: "An event is seen exactly {num} times",
		Schema: &Schema{Fields: []Field{
			{Name: "num", Type: FieldNumber, Required: true},
		}},
		NewCondition: func(inst *Instance) (Condition, error) {
			num, err := inst.IntParam("num")
			if err != nil {
				return nil, fmt.Errorf("%s: num: %w", TimesSeenConditionID, err)
			}
			return &TimesSeenCondition{Num: num}, nil
		},
	}
}
