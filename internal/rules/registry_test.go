// internal/rules/registry_test.go
package rules

import (
	"errors"
	"testing"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

func testConditionDescriptor(id string) *Descriptor {
	return &Descriptor{
		ID:   id,
		Kind: KindCondition,
		NewCondition: func(_ *Instance) (Condition, error) {
			return FirstSeenCondition{}, nil
		},
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	desc := testConditionDescriptor("test.conditions.one")
	if err := r.Register(desc); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}

	got, err := r.Lookup("test.conditions.one")
	if err != nil {
		t.Fatalf("Lookup() error = %v, want nil", err)
	}
	if got != desc {
		t.Errorf("Lookup() returned different descriptor")
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("test.conditions.absent")
	if !errors.Is(err, types.ErrUnknownNode) {
		t.Errorf("Lookup() error = %v, want ErrUnknownNode", err)
	}
}

func TestRegistry_DuplicateID(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(testConditionDescriptor("test.conditions.dup")); err != nil {
		t.Fatalf("Register() error = %v, want nil", err)
	}
	if err := r.Register(testConditionDescriptor("test.conditions.dup")); err == nil {
		t.Errorf("Register() duplicate id error = nil, want error")
	}
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()

	ids := []string{"test.conditions.c", "test.conditions.a", "test.conditions.b"}
	for _, id := range ids {
		if err := r.Register(testConditionDescriptor(id)); err != nil {
			t.Fatalf("Register(%s) error = %v, want nil", id, err)
		}
	}

	listed := r.List(KindCondition)
	if len(listed) != len(ids) {
		t.Fatalf("List() returned %d descriptors, want %d", len(listed), len(ids))
	}
	for i, desc := range listed {
		if desc.ID != ids[i] {
			t.Errorf("List()[%d].ID = %s, want %s", i, desc.ID, ids[i])
		}
	}
}

func TestRegistry_ListByKind(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r, nil); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v, want nil", err)
	}

	for _, desc := range r.List(KindCondition) {
		if desc.Kind != KindCondition {
			t.Errorf("List(condition) contains %s of kind %s", desc.ID, desc.Kind)
		}
	}
	for _, desc := range r.List(KindAction) {
		if desc.Kind != KindAction {
			t.Errorf("List(action) contains %s of kind %s", desc.ID, desc.Kind)
		}
	}

	if got := len(r.List(KindCondition)); got != 4 {
		t.Errorf("List(condition) returned %d descriptors, want 4", got)
	}
	if got := len(r.List(KindAction)); got != 4 {
		t.Errorf("List(action) returned %d descriptors, want 4", got)
	}
}

func TestRegistry_RejectsMalformedDescriptors(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		desc *Descriptor
	}{
		{name: "nil descriptor", desc: nil},
		{name: "empty id", desc: &Descriptor{Kind: KindCondition}},
		{name: "unknown kind", desc: &Descriptor{ID: "test.x", Kind: Kind("widget")}},
		{name: "condition without factory", desc: &Descriptor{ID: "test.y", Kind: KindCondition}},
		{name: "action without factory", desc: &Descriptor{ID: "test.z", Kind: KindAction}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.desc); err == nil {
				t.Errorf("Register() error = nil, want error")
			}
		})
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry()
	if err := RegisterBuiltins(r, nil); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v, want nil", err)
	}

	r.Reset()

	if _, err := r.Lookup(FirstSeenConditionID); !errors.Is(err, types.ErrUnknownNode) {
		t.Errorf("Lookup() after Reset error = %v, want ErrUnknownNode", err)
	}
	if got := len(r.List(KindCondition)); got != 0 {
		t.Errorf("List() after Reset returned %d descriptors, want 0", got)
	}
}
