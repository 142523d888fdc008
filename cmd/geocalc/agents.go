package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/aristath/geocalc/internal/backend"
	"github.com/aristath/geocalc/internal/calc"
	"github.com/aristath/geocalc/internal/config"
	"github.com/aristath/geocalc/internal/orchestrator"
	"github.com/aristath/geocalc/internal/persistence"
	"github.com/aristath/geocalc/internal/scheduler"
)

// agent is one configured backend behind the resilience layer.
type agent struct {
	provider string
	backend  backend.Backend
}

// agentSet holds the calculation agents, one per task type, and the optional merger.
type agentSet struct {
	agents     map[string]agent // keyed by agent name
	dispatch   *scheduler.DispatchTable
	planWriter *calc.PlanWriter
}

// newAgents creates a backend for every task type and the merger, each wrapped
// in retries and a per-provider circuit breaker.
func newAgents(ctx context.Context, cfg *config.Config, pm *backend.ProcessManager, problem string) (*agentSet, error) {
	registry := orchestrator.NewCircuitBreakerRegistry(orchestrator.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout.Std(),
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
	})
	retry := orchestrator.DefaultRetryConfig()
	retry.InitialInterval = cfg.Retry.InitialInterval.Std()
	retry.MaxInterval = cfg.Retry.MaxInterval.Std()
	retry.MaxElapsedTime = cfg.Retry.MaxElapsedTime.Std()
	retry.Multiplier = cfg.Retry.Multiplier
	retry.MaxRetries = cfg.Retry.MaxRetries

	set := &agentSet{agents: make(map[string]agent)}
	names := make([]string, 0, len(scheduler.TaskTypes())+1)
	for _, t := range scheduler.TaskTypes() {
		names = append(names, string(t))
	}
	if _, ok := cfg.Agents[config.MergerAgent]; ok {
		names = append(names, config.MergerAgent)
	}

	for _, name := range names {
		bcfg, err := cfg.BackendConfig(name)
		if err != nil {
			set.Close()
			return nil, err
		}
		b, err := backend.New(ctx, bcfg, pm)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}
		provider := cfg.Agents[name].Provider
		set.agents[name] = agent{
			provider: provider,
			backend:  orchestrator.NewResilientBackend(b, registry, provider, retry),
		}
	}

	backends := make(map[scheduler.TaskType]backend.Backend, len(scheduler.TaskTypes()))
	for _, t := range scheduler.TaskTypes() {
		backends[t] = set.agents[string(t)].backend
	}
	dispatch, err := calc.NewDispatchTable(backends, problem)
	if err != nil {
		set.Close()
		return nil, err
	}
	set.dispatch = dispatch

	if merger, ok := set.agents[config.MergerAgent]; ok {
		set.planWriter = calc.NewPlanWriter(merger.backend, problem)
	}
	return set, nil
}

// journal records which backend session serves each agent.
func (s *agentSet) journal(ctx context.Context, store persistence.Store, runID string) {
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a := s.agents[name]
		err := store.SaveAgentSession(ctx, runID, persistence.AgentSession{
			TaskType:  name,
			Provider:  a.provider,
			SessionID: a.backend.SessionID(),
		})
		if err != nil {
			log.Printf("WARNING: journal: failed to save agent session %q: %v", name, err)
		}
	}
}

// Close closes every backend.
func (s *agentSet) Close() error {
	var errs []error
	for name, a := range s.agents {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close agent %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
