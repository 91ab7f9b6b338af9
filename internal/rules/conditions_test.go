// internal/rules/conditions_test.go
package rules

import (
	"testing"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

// taggedEvent returns an event with the shared tag fixture used across
// TagMatch tests: duplicate keys under "logger", unrelated keys alongside.
func taggedEvent() *types.Event {
	return &types.Event{
		ID:      types.EventID("00000000-0000-7000-8000-000000000001"),
		Message: "connection reset by peer",
		Tags: types.TagList{
			{Key: "logger", Value: "sentry.example"},
			{Key: "logger", Value: "foo.bar"},
			{Key: "notlogger", Value: "sentry.other.example"},
			{Key: "notlogger", Value: "bar.foo.baz"},
		},
	}
}

func TestFirstSeenCondition(t *testing.T) {
	cond := FirstSeenCondition{}
	event := taggedEvent()

	if !cond.Passes(event, types.EventFacts{IsNew: true}) {
		t.Errorf("Passes(is_new=true) = false, want true")
	}
	if cond.Passes(event, types.EventFacts{IsNew: false, IsRegression: true}) {
		t.Errorf("Passes(is_new=false) = true, want false")
	}
}

func TestRegressionCondition(t *testing.T) {
	cond := RegressionCondition{}
	event := taggedEvent()

	if !cond.Passes(event, types.EventFacts{IsRegression: true}) {
		t.Errorf("Passes(is_regression=true) = false, want true")
	}
	if cond.Passes(event, types.EventFacts{IsRegression: false, IsNew: true}) {
		t.Errorf("Passes(is_regression=false) = true, want false")
	}
}

func TestTaggedEventCondition(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		match MatchType
		value string
		want  bool
	}{
		{name: "equals matching entry", key: "logger", match: MatchEqual, value: "sentry.example", want: true},
		{name: "equals value under other key", key: "logger", match: MatchEqual, value: "sentry.other.example", want: false},
		{name: "starts with", key: "logger", match: MatchStartsWith, value: "sentry.", want: true},
		{name: "starts with no entry", key: "logger", match: MatchStartsWith, value: "bar.", want: false},
		{name: "ends with", key: "logger", match: MatchEndsWith, value: ".example", want: true},
		{name: "ends with no entry", key: "logger", match: MatchEndsWith, value: ".foo", want: false},
		{name: "contains", key: "logger", match: MatchContains, value: "sentry", want: true},
		{name: "contains no entry", key: "logger", match: MatchContains, value: "bar.foo", want: false},
		{name: "not equal with matching entry", key: "logger", match: MatchNotEqual, value: "sentry.example", want: false},
		{name: "not equal without matching entry", key: "logger", match: MatchNotEqual, value: "sentry.other.example", want: true},
		{name: "not contains with matching entry", key: "logger", match: MatchNotContains, value: "sentry", want: false},
		{name: "not contains without matching entry", key: "logger", match: MatchNotContains, value: "bar.foo", want: true},
		// Absent key: positive matches false, negations vacuously true.
		{name: "equals absent key", key: "missing", match: MatchEqual, value: "anything", want: false},
		{name: "starts with absent key", key: "missing", match: MatchStartsWith, value: "a", want: false},
		{name: "ends with absent key", key: "missing", match: MatchEndsWith, value: "a", want: false},
		{name: "contains absent key", key: "missing", match: MatchContains, value: "a", want: false},
		{name: "not equal absent key", key: "missing", match: MatchNotEqual, value: "anything", want: true},
		{name: "not contains absent key", key: "missing", match: MatchNotContains, value: "anything", want: true},
		{name: "unknown match type", key: "logger", match: MatchType("xx"), value: "sentry", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &TaggedEventCondition{Key: tt.key, Match: tt.match, Value: tt.value}
			got := cond.Passes(taggedEvent(), types.EventFacts{})
			if got != tt.want {
				t.Errorf("Passes(%s %s %q) = %v, want %v", tt.key, tt.match, tt.value, got, tt.want)
			}
		})
	}
}

func TestTimesSeenCondition_ExactEquality(t *testing.T) {
	tests := []struct {
		name      string
		timesSeen int
		num       int
		want      bool
	}{
		{name: "exact hit", timesSeen: 100, num: 100, want: true},
		{name: "below", timesSeen: 99, num: 100, want: false},
		// Counter past num never fires: equality, not >=.
		{name: "past", timesSeen: 101, num: 100, want: false},
		{name: "zero", timesSeen: 0, num: 0, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &TimesSeenCondition{Num: tt.num}
			event := taggedEvent()
			event.TimesSeen = tt.timesSeen
			if got := cond.Passes(event, types.EventFacts{}); got != tt.want {
				t.Errorf("Passes(times_seen=%d, num=%d) = %v, want %v", tt.timesSeen, tt.num, got, tt.want)
			}
		})
	}
}

func TestTimesSeenDescriptor_CoercesNum(t *testing.T) {
	desc := TimesSeenDescriptor()

	inst := desc.Bind("", map[string]string{"num": "42"})
	if err := desc.Validate(inst); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	cond, err := desc.NewCondition(inst)
	if err != nil {
		t.Fatalf("NewCondition() error = %v, want nil", err)
	}

	event := taggedEvent()
	event.TimesSeen = 42
	if !cond.Passes(event, types.EventFacts{}) {
		t.Errorf("Passes(times_seen=42, num=42) = false, want true")
	}
}
