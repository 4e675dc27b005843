// Package scheduler drives periodic agent runs and nightly performance
// rollups.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"agent-trader/internal/engine"
	"agent-trader/internal/errors"
	"agent-trader/internal/ledger"
	"agent-trader/internal/models"
)

// Config holds the cron specs for the two jobs.
type Config struct {
	// RunSpec triggers a decision run for every active agent.
	RunSpec string
	// RollupSpec triggers the performance rollup for every agent.
	RollupSpec string
	// Task is the instruction passed to scheduled runs.
	Task string
}

// DefaultConfig runs agents every 30 minutes and rolls up performance just
// before midnight.
func DefaultConfig() Config {
	return Config{
		RunSpec:    "*/30 * * * *",
		RollupSpec: "55 23 * * *",
		Task:       "Review the portfolio and trade if warranted.",
	}
}

// Scheduler owns the cron instance.
type Scheduler struct {
	cron   *cron.Cron
	engine *engine.Engine
	store  ledger.Store
	config Config
	logger zerolog.Logger
}

// New creates a scheduler. Call Start to begin scheduling.
func New(eng *engine.Engine, store ledger.Store, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: eng,
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.config.RunSpec != "" {
		if _, err := s.cron.AddFunc(s.config.RunSpec, s.runAgents); err != nil {
			return errors.Wrap(err, "invalid run schedule")
		}
	}
	if s.config.RollupSpec != "" {
		if _, err := s.cron.AddFunc(s.config.RollupSpec, s.rollupPerformance); err != nil {
			return errors.Wrap(err, "invalid rollup schedule")
		}
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runAgents starts a session for every active agent. An agent that is
// already running is skipped silently.
func (s *Scheduler) runAgents() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled run: listing agents failed")
		return
	}

	for _, agent := range agents {
		if agent.Status != models.AgentActive {
			continue
		}
		if _, err := s.engine.Start(ctx, agent.ID, agent.Mode, s.config.Task); err != nil {
			if errors.Is(err, errors.ErrAlreadyRunning) {
				continue
			}
			s.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("scheduled run failed to start")
		}
	}
}

// rollupPerformance recomputes today's snapshot for every agent.
func (s *Scheduler) rollupPerformance() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("rollup: listing agents failed")
		return
	}

	now := time.Now().UTC()
	for _, agent := range agents {
		if _, err := s.store.RecomputePerformance(ctx, agent.ID, now); err != nil {
			s.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("performance rollup failed")
		}
	}
}
