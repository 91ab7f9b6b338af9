package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinderhouse/watchkeeper/internal/core/metrics"
	"github.com/cinderhouse/watchkeeper/internal/rules"
	"github.com/cinderhouse/watchkeeper/internal/store"
	"github.com/cinderhouse/watchkeeper/internal/types"
)

const testProject = types.ProjectID("0191c1a0-0000-7000-8000-000000000001")

type recordingDispatcher struct {
	notified []types.EventID
	fail     bool
}

func (d *recordingDispatcher) Notify(_ context.Context, event *types.Event) error {
	if d.fail {
		return types.ErrDispatchFailed
	}
	d.notified = append(d.notified, event.ID)
	return nil
}

type fixture struct {
	router     chi.Router
	ruleStore  *store.MemoryRuleStore
	eventStore *store.MemoryEventStore
	dispatcher *recordingDispatcher
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := rules.NewRegistry()
	dispatcher := &recordingDispatcher{}
	require.NoError(t, rules.RegisterBuiltins(registry, dispatcher))

	ruleStore := store.NewMemoryRuleStore()
	eventStore := store.NewMemoryEventStore()
	m := metrics.New()

	service, err := NewService(ruleStore, eventStore, registry, rules.NewEvaluator(registry, nil), m)
	require.NoError(t, err)

	router := NewRouter(RouterConfig{Service: service, Metrics: m})
	return &fixture{
		router:     router,
		ruleStore:  ruleStore,
		eventStore: eventStore,
		dispatcher: dispatcher,
		metrics:    m,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func projectPath(suffix string) string {
	return fmt.Sprintf("/api/v1/projects/%s%s", testProject, suffix)
}

func validRule() map[string]any {
	return map[string]any{
		"label":        "notify on new groups",
		"action_match": "all",
		"conditions": []map[string]any{
			{"id": rules.FirstSeenConditionID},
		},
		"actions": []map[string]any{
			{"id": rules.NotifyActionID},
		},
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNodeCatalog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var catalog struct {
		Conditions []rules.NodeDescription `json:"conditions"`
		Actions    []rules.NodeDescription `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	assert.Len(t, catalog.Conditions, 4)
	assert.Len(t, catalog.Actions, 4)
	for _, desc := range catalog.Conditions {
		assert.NotEmpty(t, desc.Label)
	}
}

func TestCreateRule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, projectPath("/rules"), validRule())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created types.RuleDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testProject, created.ProjectID)
	assert.True(t, created.Enabled)

	stored, err := f.ruleStore.Get(context.Background(), testProject, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "notify on new groups", stored.Label)
}

func TestCreateRule_RejectsUnknownNode(t *testing.T) {
	f := newFixture(t)

	rule := validRule()
	rule["conditions"] = []map[string]any{{"id": "watchkeeper.conditions.no_such"}}

	rec := f.do(t, http.MethodPost, projectPath("/rules"), rule)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Instances []rules.InstanceError `json:"instances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Instances, 1)
	assert.Equal(t, "watchkeeper.conditions.no_such", resp.Instances[0].NodeID)
}

func TestCreateRule_RejectsInvalidParams(t *testing.T) {
	f := newFixture(t)

	rule := validRule()
	rule["conditions"] = []map[string]any{
		{"id": rules.TimesSeenConditionID, "params": map[string]string{"num": "often"}},
	}

	rec := f.do(t, http.MethodPost, projectPath("/rules"), rule)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateRule_RejectsEmptyLabel(t *testing.T) {
	f := newFixture(t)

	rule := validRule()
	rule["label"] = ""

	rec := f.do(t, http.MethodPost, projectPath("/rules"), rule)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRuleLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, projectPath("/rules"), validRule())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.RuleDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodGet, projectPath("/rules"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Rules []types.RuleDefinition `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Rules, 1)

	update := validRule()
	update["label"] = "renamed"
	update["enabled"] = false
	rec = f.do(t, http.MethodPut, projectPath("/rules/"+string(created.ID)), update)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, projectPath("/rules/"+string(created.ID)), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched types.RuleDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "renamed", fetched.Label)
	assert.False(t, fetched.Enabled)

	rec = f.do(t, http.MethodDelete, projectPath("/rules/"+string(created.ID)), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, projectPath("/rules/"+string(created.ID)), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRule_InvalidID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, projectPath("/rules/not-a-uuid"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, projectPath("/rules"), validRule())
	require.Equal(t, http.StatusCreated, rec.Code)

	event := map[string]any{
		"message": "connection refused",
		"logger":  "app.db",
		"level":   "error",
		"tags":    []map[string]string{{"key": "env", "value": "prod"}},
	}
	rec = f.do(t, http.MethodPost, projectPath("/events"), event)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Facts.IsNew)
	assert.Equal(t, 1, result.Event.TimesSeen)
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Matched)
	assert.Len(t, f.dispatcher.notified, 1)

	// Second occurrence folds into the same group and no longer matches
	// the first-seen rule.
	rec = f.do(t, http.MethodPost, projectPath("/events"), event)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Facts.IsNew)
	assert.Equal(t, 2, result.Event.TimesSeen)
	assert.False(t, result.Results[0].Matched)
	assert.Len(t, f.dispatcher.notified, 1)
}

func TestIngest_CountsDispatchesByStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, projectPath("/rules"), validRule())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, projectPath("/events"), map[string]any{"message": "dispatch ok"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.dispatcher.notified, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsDispatched.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.ActionsDispatched.WithLabelValues(metrics.StatusFailed)))

	// A failing dispatch counts under the failed label and never as ok.
	f.dispatcher.fail = true
	rec = f.do(t, http.MethodPost, projectPath("/events"), map[string]any{"message": "dispatch down"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsDispatched.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActionsDispatched.WithLabelValues(metrics.StatusFailed)))
}

func TestIngest_MissingMessage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, projectPath("/events"), map[string]any{"logger": "app"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_OversizedMessage(t *testing.T) {
	f := newFixture(t)

	big := make([]byte, types.MaxMessageLength+1)
	for i := range big {
		big[i] = 'x'
	}
	rec := f.do(t, http.MethodPost, projectPath("/events"), map[string]any{"message": string(big)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_MalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, projectPath("/events"), bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveGroup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, projectPath("/events"), map[string]any{"message": "boom"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var result IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	rec = f.do(t, http.MethodPost, projectPath("/groups/"+string(result.Event.GroupID)+"/resolve"), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Next occurrence reopens the group as a regression.
	rec = f.do(t, http.MethodPost, projectPath("/events"), map[string]any{"message": "boom"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Facts.IsRegression)
}

func TestResolveGroup_Missing(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, projectPath("/groups/"+string(types.NewGroupID())+"/resolve"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectScoping_InvalidProjectID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/projects/not-a-uuid/rules", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
