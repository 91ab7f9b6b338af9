// internal/rules/registry.go
package rules

import (
	"fmt"
	"sync"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

/*
 * Node registry.
 *
 * Catalog of available condition and action node types, keyed by their
 * stable string id. Populated once during startup (see RegisterBuiltins) and
 * read-only afterward from the evaluator's perspective; an RWMutex guards
 * the tables so dynamic re-registration stays safe if a deployment needs it.
 *
 * Registration order is preserved per kind: List() is the default display
 * order for the authoring UI. Order carries no evaluation semantics.
 */

// Registry holds the catalog of registered node descriptors.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Descriptor
	order map[Kind][]*Descriptor
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Descriptor),
		order: make(map[Kind][]*Descriptor),
	}
}

// Register adds a node descriptor under its id.
// Duplicate ids and malformed descriptors are rejected: ids are part of the
// storage format, so a collision would silently rewire persisted rules.
func (r *Registry) Register(desc *Descriptor) error {
	if desc == nil {
		return fmt.Errorf("nil descriptor")
	}
	if desc.ID == "" {
		return fmt.Errorf("descriptor id required")
	}
	switch desc.Kind {
	case KindCondition:
		if desc.NewCondition == nil {
			return fmt.Errorf("register %s: condition factory required", desc.ID)
		}
	case KindAction:
		if desc.NewAction == nil {
			return fmt.Errorf("register %s: action factory required", desc.ID)
		}
	default:
		return fmt.Errorf("register %s: unknown node kind %q", desc.ID, desc.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[desc.ID]; exists {
		return fmt.Errorf("node %s already registered", desc.ID)
	}
	r.byID[desc.ID] = desc
	r.order[desc.Kind] = append(r.order[desc.Kind], desc)
	return nil
}

// Lookup returns the descriptor registered under id.
// Fails with types.ErrUnknownNode when absent.
func (r *Registry) Lookup(id string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownNode, id)
	}
	return desc, nil
}

// List returns all registered descriptors of the given kind in registration
// order. The returned slice is a copy; callers may not mutate the registry
// through it.
func (r *Registry) List(kind Kind) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := r.order[kind]
	out := make([]*Descriptor, len(descs))
	copy(out, descs)
	return out
}

// Reset removes all registered descriptors. Test isolation only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[string]*Descriptor)
	r.order = make(map[Kind][]*Descriptor)
}
