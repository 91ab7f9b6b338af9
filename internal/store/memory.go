// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cinderhouse/watchkeeper/internal/types"
)

// MemoryRuleStore implements RuleStore with an in-process map. Used by
// tests and single-process development runs; semantics mirror SQLRuleStore.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[types.RuleID]*types.RuleDefinition
	order []types.RuleID
}

// NewMemoryRuleStore creates an empty in-memory rule store.
func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		rules: make(map[types.RuleID]*types.RuleDefinition),
	}
}

// Create implements RuleStore.
func (s *MemoryRuleStore) Create(_ context.Context, rule *types.RuleDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return types.ErrRuleExists
	}
	s.rules[rule.ID] = cloneRule(rule)
	s.order = append(s.order, rule.ID)
	return nil
}

// Get implements RuleStore.
func (s *MemoryRuleStore) Get(_ context.Context, projectID types.ProjectID, ruleID types.RuleID) (*types.RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[ruleID]
	if !exists || rule.ProjectID != projectID {
		return nil, types.ErrRuleNotFound
	}
	return cloneRule(rule), nil
}

// List implements RuleStore.
func (s *MemoryRuleStore) List(_ context.Context, projectID types.ProjectID) ([]*types.RuleDefinition, error) {
	return s.listWhere(projectID, func(*types.RuleDefinition) bool { return true }), nil
}

// ListEnabled implements RuleStore.
func (s *MemoryRuleStore) ListEnabled(_ context.Context, projectID types.ProjectID) ([]*types.RuleDefinition, error) {
	return s.listWhere(projectID, func(r *types.RuleDefinition) bool { return r.Enabled }), nil
}

// Update implements RuleStore.
func (s *MemoryRuleStore) Update(_ context.Context, rule *types.RuleDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists || existing.ProjectID != rule.ProjectID {
		return types.ErrRuleNotFound
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Delete implements RuleStore.
func (s *MemoryRuleStore) Delete(_ context.Context, projectID types.ProjectID, ruleID types.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, exists := s.rules[ruleID]
	if !exists || rule.ProjectID != projectID {
		return types.ErrRuleNotFound
	}
	delete(s.rules, ruleID)
	for i, id := range s.order {
		if id == ruleID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryRuleStore) listWhere(projectID types.ProjectID, keep func(*types.RuleDefinition) bool) []*types.RuleDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*types.RuleDefinition, 0)
	for _, id := range s.order {
		rule := s.rules[id]
		if rule.ProjectID == projectID && keep(rule) {
			result = append(result, cloneRule(rule))
		}
	}
	return result
}

// cloneRule deep-copies a definition so callers cannot mutate stored state.
func cloneRule(rule *types.RuleDefinition) *types.RuleDefinition {
	clone := *rule
	clone.Conditions = cloneNodes(rule.Conditions)
	clone.Actions = cloneNodes(rule.Actions)
	return &clone
}

func cloneNodes(nodes []types.NodeConfig) []types.NodeConfig {
	if nodes == nil {
		return nil
	}
	out := make([]types.NodeConfig, len(nodes))
	for i, n := range nodes {
		out[i] = types.NodeConfig{ID: n.ID}
		if n.Params != nil {
			out[i].Params = make(map[string]string, len(n.Params))
			for k, v := range n.Params {
				out[i].Params[k] = v
			}
		}
	}
	return out
}

// MemoryEventStore implements EventStore with in-process maps, applying the
// same grouping transitions as SQLEventStore.
type MemoryEventStore struct {
	mu       sync.Mutex
	groups   map[types.GroupID]*types.Group
	byFinger map[string]types.GroupID
	events   map[types.EventID]*types.Event
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		groups:   make(map[types.GroupID]*types.Group),
		byFinger: make(map[string]types.GroupID),
		events:   make(map[types.EventID]*types.Event),
	}
}

// Record implements EventStore.
func (s *MemoryEventStore) Record(_ context.Context, event *types.Event) (*types.Event, types.EventFacts, error) {
	if err := ValidateEvent(event); err != nil {
		return nil, types.EventFacts{}, err
	}

	now := event.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	key := string(event.ProjectID) + "/" + Fingerprint(event.Logger, event.Message)

	s.mu.Lock()
	defer s.mu.Unlock()

	var facts types.EventFacts
	groupID, exists := s.byFinger[key]
	if !exists {
		groupID = types.NewGroupID()
		s.byFinger[key] = groupID
		s.groups[groupID] = &types.Group{
			ID:          groupID,
			ProjectID:   event.ProjectID,
			Fingerprint: Fingerprint(event.Logger, event.Message),
			Status:      types.GroupUnresolved,
			TimesSeen:   1,
			FirstSeen:   now,
			LastSeen:    now,
		}
		facts.IsNew = true
	} else {
		group := s.groups[groupID]
		facts.IsRegression = group.Status == types.GroupResolved
		group.TimesSeen++
		group.LastSeen = now
		group.Status = types.GroupUnresolved
	}

	stored := *event
	stored.GroupID = groupID
	stored.TimesSeen = s.groups[groupID].TimesSeen
	stored.Timestamp = now
	if stored.ID == "" {
		stored.ID = types.NewEventID()
	}
	if stored.Level == "" {
		stored.Level = types.LevelError
	}
	s.events[stored.ID] = &stored

	returned := stored
	return &returned, facts, nil
}

// GetGroup implements EventStore.
func (s *MemoryEventStore) GetGroup(_ context.Context, projectID types.ProjectID, groupID types.GroupID) (*types.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[groupID]
	if !exists || group.ProjectID != projectID {
		return nil, types.ErrGroupNotFound
	}
	clone := *group
	return &clone, nil
}

// ResolveGroup implements EventStore.
func (s *MemoryEventStore) ResolveGroup(_ context.Context, projectID types.ProjectID, groupID types.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[groupID]
	if !exists || group.ProjectID != projectID {
		return types.ErrGroupNotFound
	}
	group.Status = types.GroupResolved
	return nil
}

// GetEvent implements EventStore.
func (s *MemoryEventStore) GetEvent(_ context.Context, projectID types.ProjectID, eventID types.EventID) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, exists := s.events[eventID]
	if !exists || event.ProjectID != projectID {
		return nil, fmt.Errorf("event %s not found", eventID)
	}
	clone := *event
	return &clone, nil
}
