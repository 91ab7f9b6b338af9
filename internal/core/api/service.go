// Package api provides the ingestion and rule-authoring service surface.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/cinderhouse/watchkeeper/internal/core/metrics"
	"github.com/cinderhouse/watchkeeper/internal/rules"
	"github.com/cinderhouse/watchkeeper/internal/store"
	"github.com/cinderhouse/watchkeeper/internal/types"
)

// Service orchestrates ingestion: store the event, compute lifecycle facts,
// and run the project's enabled rules through both evaluation phases.
// Thin orchestration layer delegating to the stores and the rule engine.
type Service struct {
	ruleStore  store.RuleStore
	eventStore store.EventStore
	registry   *rules.Registry
	evaluator  *rules.Evaluator
	metrics    *metrics.Metrics
}

// NewService creates a service instance with its dependencies.
func NewService(ruleStore store.RuleStore, eventStore store.EventStore, registry *rules.Registry, evaluator *rules.Evaluator, m *metrics.Metrics) (*Service, error) {
	if ruleStore == nil {
		return nil, fmt.Errorf("ruleStore cannot be nil")
	}
	if eventStore == nil {
		return nil, fmt.Errorf("eventStore cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}
	return &Service{
		ruleStore:  ruleStore,
		eventStore: eventStore,
		registry:   registry,
		evaluator:  evaluator,
		metrics:    m,
	}, nil
}

// IngestResult reports one event's trip through the pipeline.
type IngestResult struct {
	Event   *types.Event     `json:"event"`
	Facts   types.EventFacts `json:"facts"`
	Results []rules.Result   `json:"results"`
}

// Ingest runs the full pipeline for one event:
//
//  1. validate against the resource limits
//  2. before-persist phase across the project's enabled rules
//  3. persist, folding the event into its group and computing the facts
//  4. after-persist phase per rule, action failures isolated
//
// Rule evaluation errors never fail the ingest; the event is durable once
// step 3 commits.
func (s *Service) Ingest(ctx context.Context, projectID types.ProjectID, event *types.Event) (*IngestResult, error) {
	start := time.Now()
	event.ProjectID = projectID

	if err := store.ValidateEvent(event); err != nil {
		s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	enabled, err := s.ruleStore.ListEnabled(ctx, projectID)
	if err != nil {
		s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("load enabled rules: %w", err)
	}

	prepared := s.evaluator.Before(enabled, event)

	stored, facts, err := s.eventStore.Record(ctx, prepared)
	if err != nil {
		s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("record event: %w", err)
	}

	results := make([]rules.Result, 0, len(enabled))
	for _, rule := range enabled {
		result := s.evaluator.After(ctx, rule, stored, facts)
		results = append(results, result)
		s.observeResult(result)
	}

	s.metrics.EventsIngested.WithLabelValues(metrics.OutcomeAccepted).Inc()
	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())

	return &IngestResult{Event: stored, Facts: facts, Results: results}, nil
}

func (s *Service) observeResult(result rules.Result) {
	if result.Matched {
		s.metrics.RulesEvaluated.WithLabelValues(metrics.ResultMatched).Inc()
	} else {
		s.metrics.RulesEvaluated.WithLabelValues(metrics.ResultUnmatched).Inc()
	}
	if skipped := result.SkippedConditions + result.SkippedActions; skipped > 0 {
		s.metrics.NodesSkipped.Add(float64(skipped))
	}
	if result.ActionsRun > 0 {
		s.metrics.ActionsDispatched.WithLabelValues(metrics.StatusOK).Add(float64(result.ActionsRun))
	}
	if result.ActionErrors > 0 {
		s.metrics.ActionsDispatched.WithLabelValues(metrics.StatusFailed).Add(float64(result.ActionErrors))
	}
}

// SaveRule validates a definition strictly and stores it. Used for create
// and update; authoring rejects what evaluation would merely skip.
func (s *Service) SaveRule(ctx context.Context, rule *types.RuleDefinition, create bool) error {
	if err := rules.ValidateDefinition(s.registry, rule); err != nil {
		return err
	}
	if create {
		return s.ruleStore.Create(ctx, rule)
	}
	return s.ruleStore.Update(ctx, rule)
}
