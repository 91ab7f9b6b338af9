// internal/store/rules.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cinderhouse/watchkeeper/internal/core/db"
	"github.com/cinderhouse/watchkeeper/internal/types"
)

// SQLRuleStore implements RuleStore on the shared named-query layer.
// Condition and action node lists serialize to JSON text columns; the
// structural columns (label, policy, enabled) stay relational for listing
// and filtering.
type SQLRuleStore struct {
	q *db.Queries
}

// NewSQLRuleStore wraps a loaded query set in a RuleStore.
func NewSQLRuleStore(q *db.Queries) *SQLRuleStore {
	return &SQLRuleStore{q: q}
}

// ruleRow is the relational shape of a rule definition.
type ruleRow struct {
	RuleID     string `db:"rule_id"`
	ProjectID  string `db:"project_id"`
	Label      string `db:"label"`
	Policy     string `db:"action_match"`
	Conditions string `db:"conditions"`
	Actions    string `db:"actions"`
	Enabled    bool   `db:"enabled"`
}

// Create implements RuleStore.
func (s *SQLRuleStore) Create(ctx context.Context, rule *types.RuleDefinition) error {
	conditions, actions, err := marshalNodes(rule)
	if err != nil {
		return err
	}

	if _, err := s.Get(ctx, rule.ProjectID, rule.ID); err == nil {
		return types.ErrRuleExists
	}

	now := time.Now().UTC()
	_, err = s.q.Exec("insert-rule",
		rule.ID, rule.ProjectID, rule.Label, rule.Policy,
		conditions, actions, boolToInt(rule.Enabled), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// Get implements RuleStore.
func (s *SQLRuleStore) Get(_ context.Context, projectID types.ProjectID, ruleID types.RuleID) (*types.RuleDefinition, error) {
	var row ruleRow
	err := s.q.Get("get-rule", &row, ruleID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return unmarshalRule(row)
}

// List implements RuleStore.
func (s *SQLRuleStore) List(_ context.Context, projectID types.ProjectID) ([]*types.RuleDefinition, error) {
	return s.selectRules("list-rules", projectID)
}

// ListEnabled implements RuleStore.
func (s *SQLRuleStore) ListEnabled(_ context.Context, projectID types.ProjectID) ([]*types.RuleDefinition, error) {
	return s.selectRules("list-enabled-rules", projectID)
}

// Update implements RuleStore.
func (s *SQLRuleStore) Update(_ context.Context, rule *types.RuleDefinition) error {
	conditions, actions, err := marshalNodes(rule)
	if err != nil {
		return err
	}

	result, err := s.q.Exec("update-rule",
		rule.Label, rule.Policy, conditions, actions,
		boolToInt(rule.Enabled), time.Now().UTC(),
		rule.ID, rule.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return requireRowAffected(result)
}

// Delete implements RuleStore.
func (s *SQLRuleStore) Delete(_ context.Context, projectID types.ProjectID, ruleID types.RuleID) error {
	result, err := s.q.Exec("delete-rule", ruleID, projectID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireRowAffected(result)
}

func (s *SQLRuleStore) selectRules(query string, projectID types.ProjectID) ([]*types.RuleDefinition, error) {
	var rows []ruleRow
	if err := s.q.Select(query, &rows, projectID); err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}

	rules := make([]*types.RuleDefinition, 0, len(rows))
	for _, row := range rows {
		rule, err := unmarshalRule(row)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// marshalNodes serializes a rule's condition and action lists. An empty
// list serializes to [] rather than null, keeping the column NOT NULL.
func marshalNodes(rule *types.RuleDefinition) (conditions, actions string, err error) {
	c, err := json.Marshal(nodeSlice(rule.Conditions))
	if err != nil {
		return "", "", fmt.Errorf("marshal conditions: %w", err)
	}
	a, err := json.Marshal(nodeSlice(rule.Actions))
	if err != nil {
		return "", "", fmt.Errorf("marshal actions: %w", err)
	}
	return string(c), string(a), nil
}

func nodeSlice(nodes []types.NodeConfig) []types.NodeConfig {
	if nodes == nil {
		return []types.NodeConfig{}
	}
	return nodes
}

func unmarshalRule(row ruleRow) (*types.RuleDefinition, error) {
	rule := &types.RuleDefinition{
		ID:        types.RuleID(row.RuleID),
		ProjectID: types.ProjectID(row.ProjectID),
		Label:     row.Label,
		Policy:    types.MatchPolicy(row.Policy),
		Enabled:   row.Enabled,
	}
	if err := json.Unmarshal([]byte(row.Conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions for rule %s: %w", row.RuleID, err)
	}
	if err := json.Unmarshal([]byte(row.Actions), &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions for rule %s: %w", row.RuleID, err)
	}
	return rule, nil
}

// boolToInt maps Go bools onto the INTEGER flag columns shared by both
// dialects.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireRowAffected maps a zero-row write to ErrRuleNotFound.
func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrRuleNotFound
	}
	return nil
}
