// internal/store/events.go
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

// SQLEventStore implements EventStore on the shared named-query layer.
//
// Record runs inside a transaction: the group read, the counter update, and
// the event insert commit atomically, so the facts returned describe the
// exact state transition this event caused. SQLite serializes writers;
// PostgreSQL relies on the (project_id, fingerprint) unique constraint to
// surface concurrent group creation as a retryable error.
type SQLEventStore struct {
	q *db.Queries
}

// NewSQLEventStore wraps a loaded query set in an EventStore.
func NewSQLEventStore(q *db.Queries) *SQLEventStore {
	return &SQLEventStore{q: q}
}

// groupRow is the relational shape of an event group.
type groupRow struct {
	GroupID     string    `db:"group_id"`
	ProjectID   string    `db:"project_id"`
	Fingerprint string    `db:"fingerprint"`
	Status      string    `db:"status"`
	TimesSeen   int       `db:"times_seen"`
	FirstSeen   time.Time `db:"first_seen"`
	LastSeen    time.Time `db:"last_seen"`
}

// eventRow is the relational shape of a stored event. times_seen captures
// the group counter at fold time, so a fetched event reads exactly what
// rule evaluation saw rather than the group's current count.
type eventRow struct {
	EventID   string    `db:"event_id"`
	ProjectID string    `db:"project_id"`
	GroupID   string    `db:"group_id"`
	Message   string    `db:"message"`
	Logger    string    `db:"logger"`
	Level     string    `db:"level"`
	Tags      string    `db:"tags"`
	TimesSeen int       `db:"times_seen"`
	CreatedAt time.Time `db:"created_at"`
}

// Record implements EventStore.
func (s *SQLEventStore) Record(_ context.Context, event *types.Event) (*types.Event, types.EventFacts, error) {
	if err := ValidateEvent(event); err != nil {
		return nil, types.EventFacts{}, err
	}

	now := event.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}
	fingerprint := Fingerprint(event.Logger, event.Message)

	tx, err := s.q.Beginx()
	if err != nil {
		return nil, types.EventFacts{}, fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback()

	var facts types.EventFacts
	var groupID types.GroupID
	timesSeen := 1

	var row groupRow
	err = s.q.GetTx(tx, "get-group-by-fingerprint", &row, event.ProjectID, fingerprint)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		groupID = types.NewGroupID()
		facts.IsNew = true
		if _, err := s.q.ExecTx(tx, "insert-group", groupID, event.ProjectID, fingerprint, now, now); err != nil {
			return nil, types.EventFacts{}, fmt.Errorf("insert group: %w", err)
		}
	case err != nil:
		return nil, types.EventFacts{}, fmt.Errorf("lookup group: %w", err)
	default:
		groupID = types.GroupID(row.GroupID)
		facts.IsRegression = row.Status == string(types.GroupResolved)
		timesSeen = row.TimesSeen + 1
		if _, err := s.q.ExecTx(tx, "touch-group", now, groupID); err != nil {
			return nil, types.EventFacts{}, fmt.Errorf("touch group: %w", err)
		}
	}

	stored := *event
	stored.GroupID = groupID
	stored.TimesSeen = timesSeen
	stored.Timestamp = now
	if stored.ID == "" {
		stored.ID = types.NewEventID()
	}
	if stored.Level == "" {
		stored.Level = types.LevelError
	}

	tags, err := json.Marshal(tagSlice(stored.Tags))
	if err != nil {
		return nil, types.EventFacts{}, fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.q.ExecTx(tx, "insert-event",
		stored.ID, stored.ProjectID, stored.GroupID,
		stored.Message, stored.Logger, stored.Level, string(tags), stored.TimesSeen, now,
	)
	if err != nil {
		return nil, types.EventFacts{}, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, types.EventFacts{}, fmt.Errorf("commit record: %w", err)
	}
	return &stored, facts, nil
}

// GetGroup implements EventStore.
func (s *SQLEventStore) GetGroup(_ context.Context, projectID types.ProjectID, groupID types.GroupID) (*types.Group, error) {
	var row groupRow
	err := s.q.Get("get-group", &row, groupID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &types.Group{
		ID:          types.GroupID(row.GroupID),
		ProjectID:   types.ProjectID(row.ProjectID),
		Fingerprint: row.Fingerprint,
		Status:      types.GroupStatus(row.Status),
		TimesSeen:   row.TimesSeen,
		FirstSeen:   row.FirstSeen,
		LastSeen:    row.LastSeen,
	}, nil
}

// ResolveGroup implements EventStore.
func (s *SQLEventStore) ResolveGroup(_ context.Context, projectID types.ProjectID, groupID types.GroupID) error {
	result, err := s.q.Exec("resolve-group", groupID, projectID)
	if err != nil {
		return fmt.Errorf("resolve group: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrGroupNotFound
	}
	return nil
}

// GetEvent implements EventStore.
func (s *SQLEventStore) GetEvent(_ context.Context, projectID types.ProjectID, eventID types.EventID) (*types.Event, error) {
	var row eventRow
	err := s.q.Get("get-event", &row, eventID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	event := &types.Event{
		ID:        types.EventID(row.EventID),
		ProjectID: types.ProjectID(row.ProjectID),
		GroupID:   types.GroupID(row.GroupID),
		Message:   row.Message,
		Logger:    row.Logger,
		Level:     types.Level(row.Level),
		TimesSeen: row.TimesSeen,
		Timestamp: row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Tags), &event.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags for event %s: %w", row.EventID, err)
	}
	return event, nil
}

func tagSlice(tags types.TagList) types.TagList {
	if tags == nil {
		return types.TagList{}
	}
	return tags
}
