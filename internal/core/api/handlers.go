// internal/core/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/cinderhouse/watchkeeper/internal/core/auth"
	"github.com/cinderhouse/watchkeeper/internal/core/metrics"
	"github.com/cinderhouse/watchkeeper/internal/rules"
	"github.com/cinderhouse/watchkeeper/internal/types"
)

// RouterConfig assembles the HTTP surface's collaborators.
type RouterConfig struct {
	Service *Service
	Auth    *auth.Authenticator
	Metrics *metrics.Metrics
	DB      *sqlx.DB
	Log     *slog.Logger

	// RequestTimeout bounds each request through the chi timeout middleware.
	RequestTimeout time.Duration
}

// NewRouter builds the service's chi router.
//
// Project-scoped routes sit behind the HMAC authenticator; the URL project
// must match the key's project. The node catalog, health, and metrics
// endpoints are unauthenticated.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	h := &handlers{service: cfg.Service, db: cfg.DB, log: cfg.Log}
	if h.log == nil {
		h.log = slog.Default()
	}

	r.Get("/healthz", h.handleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/nodes", h.handleNodeCatalog)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			if cfg.Auth != nil {
				r.Use(cfg.Auth.Middleware)
			}
			r.Use(requireProjectMatch)

			r.Post("/events", h.handleIngest)

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", h.handleListRules)
				r.Post("/", h.handleCreateRule)
				r.Get("/{ruleID}", h.handleGetRule)
				r.Put("/{ruleID}", h.handleUpdateRule)
				r.Delete("/{ruleID}", h.handleDeleteRule)
			})

			r.Post("/groups/{groupID}/resolve", h.handleResolveGroup)
		})
	})

	return r
}

// requireProjectMatch rejects requests whose URL project differs from the
// authenticated one. Without an authenticator in the chain (tests, trusted
// internal deployments) the URL project becomes the scope.
func requireProjectMatch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlProject, err := types.ParseProjectID(chi.URLParam(r, "projectID"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid project id", err)
			return
		}

		if authed := auth.ProjectIDFromContext(r.Context()); authed != "" && authed != urlProject {
			respondError(w, http.StatusForbidden, "key not valid for project", nil)
			return
		}

		ctx := auth.WithProjectID(r.Context(), urlProject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type handlers struct {
	service *Service
	db      *sqlx.DB
	log     *slog.Logger
}

// handleHealth reports liveness, including database reachability when a
// connection is wired.
func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleNodeCatalog serves the registered node descriptions for editing UIs.
func (h *handlers) handleNodeCatalog(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"conditions": rules.Catalog(h.service.registry, rules.KindCondition),
		"actions":    rules.Catalog(h.service.registry, rules.KindAction),
	})
}

// ingestRequest is the wire shape of an incoming event.
type ingestRequest struct {
	Message   string        `json:"message"`
	Logger    string        `json:"logger,omitempty"`
	Level     types.Level   `json:"level,omitempty"`
	Tags      types.TagList `json:"tags,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitempty"`
}

func (h *handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	projectID := auth.ProjectIDFromContext(r.Context())

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	event := &types.Event{
		Message:   req.Message,
		Logger:    req.Logger,
		Level:     req.Level,
		Tags:      req.Tags,
		Timestamp: req.Timestamp,
	}

	result, err := h.service.Ingest(r.Context(), projectID, event)
	if err != nil {
		if isLimitError(err) {
			respondError(w, http.StatusBadRequest, "event rejected", err)
			return
		}
		h.log.Error("ingest failed", "project_id", projectID, "error", err)
		respondError(w, http.StatusInternalServerError, "ingest failed", nil)
		return
	}

	respondJSON(w, http.StatusAccepted, result)
}

// ruleRequest is the wire shape of an authored rule definition.
type ruleRequest struct {
	Label      string             `json:"label"`
	Policy     types.MatchPolicy  `json:"action_match"`
	Conditions []types.NodeConfig `json:"conditions"`
	Actions    []types.NodeConfig `json:"actions"`
	Enabled    *bool              `json:"enabled,omitempty"`
}

func (req *ruleRequest) toDefinition(projectID types.ProjectID, ruleID types.RuleID) *types.RuleDefinition {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &types.RuleDefinition{
		ID:         ruleID,
		ProjectID:  projectID,
		Label:      req.Label,
		Policy:     req.Policy,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		Enabled:    enabled,
	}
}

func (h *handlers) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	projectID := auth.ProjectIDFromContext(r.Context())

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toDefinition(projectID, types.NewRuleID())
	if err := h.service.SaveRule(r.Context(), rule, true); err != nil {
		respondRuleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (h *handlers) handleListRules(w http.ResponseWriter, r *http.Request) {
	projectID := auth.ProjectIDFromContext(r.Context())

	list, err := h.service.ruleStore.List(r.Context(), projectID)
	if err != nil {
		h.log.Error("list rules failed", "project_id", projectID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list rules", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": list})
}

func (h *handlers) handleGetRule(w http.ResponseWriter, r *http.Request) {
	projectID := auth.ProjectIDFromContext(r.Context())
	ruleID, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	rule, err := h.service.ruleStore.Get(r.Context(), projectID, ruleID)
	if err != nil {
		respondRuleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (h *handlers) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	projectID := auth.ProjectIDFromContext(r.Context())
	ruleID, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toDefinition(projectID, ruleID)
	if err := h.service.SaveRule(r.Context(), rule, false); err != nil {
		respondRuleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (h *handlers) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	projectID := auth.ProjectIDFromContext(r.Context())
	ruleID, err := types.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id", err)
		return
	}

	if err := h.service.ruleStore.Delete(r.Context(), projectID, ruleID); err != nil {
		respondRuleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleResolveGroup(w http.ResponseWriter, r *http.Request) {
	projectID := auth.ProjectIDFromContext(r.Context())
	groupID := types.GroupID(chi.URLParam(r, "groupID"))

	if err := h.service.eventStore.ResolveGroup(r.Context(), projectID, groupID); err != nil {
		if errors.Is(err, types.ErrGroupNotFound) {
			respondError(w, http.StatusNotFound, "group not found", nil)
			return
		}
		h.log.Error("resolve group failed", "project_id", projectID, "group_id", groupID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to resolve group", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondRuleError maps authoring and store errors onto HTTP statuses.
func respondRuleError(w http.ResponseWriter, err error) {
	var defErr *rules.DefinitionError
	switch {
	case errors.Is(err, types.ErrRuleNotFound):
		respondError(w, http.StatusNotFound, "rule not found", nil)
	case errors.Is(err, types.ErrRuleExists):
		respondError(w, http.StatusConflict, "rule already exists", nil)
	case errors.As(err, &defErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "invalid rule definition",
			"details":   defErr.Error(),
			"instances": defErr.Instances,
		})
	case errors.Is(err, types.ErrLabelRequired),
		errors.Is(err, types.ErrLabelTooLong),
		errors.Is(err, types.ErrUnknownMatchPolicy):
		respondError(w, http.StatusUnprocessableEntity, "invalid rule definition", err)
	default:
		respondError(w, http.StatusInternalServerError, "rule operation failed", nil)
	}
}

// isLimitError reports whether err is one of the ingestion resource limits.
func isLimitError(err error) bool {
	return errors.Is(err, types.ErrMessageTooLarge) ||
		errors.Is(err, types.ErrTooManyTags) ||
		errors.Is(err, types.ErrTagKeyTooLong) ||
		errors.Is(err, types.ErrTagValueTooLong)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
