// Package engine orchestrates agent execution sessions: single-flight per
// agent, lifecycle state machine, advisory fan-out, decision and trade
// application.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agent-trader/internal/advisors"
	"agent-trader/internal/decision"
	"agent-trader/internal/errors"
	"agent-trader/internal/events"
	"agent-trader/internal/ledger"
	"agent-trader/internal/logging"
	"agent-trader/internal/models"
	"agent-trader/internal/modes"
)

// CommissionFunc computes the commission for a trade before it is applied.
type CommissionFunc func(action models.TradeAction, quantity int64, price decimal.Decimal) decimal.Decimal

// ZeroCommission charges nothing. Used when no commission model is configured.
func ZeroCommission(models.TradeAction, int64, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// RateCommission charges a flat fraction of the trade's total, rounded to
// cash precision.
func RateCommission(rate float64) CommissionFunc {
	r := decimal.NewFromFloat(rate)
	return func(_ models.TradeAction, quantity int64, price decimal.Decimal) decimal.Decimal {
		return price.Mul(decimal.NewFromInt(quantity)).Mul(r).Round(ledger.CashScale)
	}
}

// Config holds engine tunables.
type Config struct {
	// DecisionTimeout bounds the decision collaborator call.
	DecisionTimeout time.Duration
	// AdvisorTimeout bounds each advisor individually (applied by the fan-out).
	AdvisorTimeout time.Duration
	// HistoryLimit caps the recent transactions fed to advisors and decider.
	HistoryLimit int
	// Commission computes per-trade commission. Nil means zero commission.
	Commission CommissionFunc
}

// DefaultConfig returns default engine tunables.
func DefaultConfig() Config {
	return Config{
		DecisionTimeout: 90 * time.Second,
		AdvisorTimeout:  30 * time.Second,
		HistoryLimit:    20,
		Commission:      ZeroCommission,
	}
}

// Engine drives execution sessions. At most one non-terminal session exists
// per agent at any instant; the in-memory guard is checked and set under one
// mutex, which is the engine's sole concurrency primitive.
type Engine struct {
	store    ledger.Store
	fanout   *advisors.Fanout
	decider  decision.Decider
	notifier *events.Notifier
	config   Config
	logger   zerolog.Logger

	mu     sync.Mutex
	active map[string]*runHandle
	wg     sync.WaitGroup
}

// runHandle tracks one in-flight session.
type runHandle struct {
	sessionID string
	cancel    context.CancelFunc
}

// New creates a session engine.
func New(store ledger.Store, fanout *advisors.Fanout, decider decision.Decider, notifier *events.Notifier, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Commission == nil {
		cfg.Commission = ZeroCommission
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	return &Engine{
		store:    store,
		fanout:   fanout,
		decider:  decider,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		active:   make(map[string]*runHandle),
	}
}

// Start accepts a run for the agent and returns its session immediately; the
// run body executes in the background. mode selects the capability set for
// this run only; empty means the agent's configured mode. Returns
// ErrAlreadyRunning when the agent already has a non-terminal session.
func (e *Engine) Start(ctx context.Context, agentID string, mode models.Mode, task string) (*models.Session, error) {
	agent, err := e.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status == models.AgentSuspended {
		return nil, errors.Wrapf(errors.ErrActionNotAllowed, "agent %s is suspended", agentID)
	}

	if mode == "" {
		mode = agent.Mode
	}
	caps, err := modes.Resolve(mode)
	if err != nil {
		return nil, errors.NewValidationError("mode", string(mode), "unknown mode")
	}

	e.mu.Lock()
	if _, running := e.active[agentID]; running {
		e.mu.Unlock()
		return nil, errors.ErrAlreadyRunning
	}

	// Survives restarts: a non-terminal session row left behind by a
	// previous process also blocks a new start.
	existing, err := e.store.GetActiveSession(ctx, agentID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if existing != nil {
		e.mu.Unlock()
		return nil, errors.ErrAlreadyRunning
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Mode:      mode,
		Status:    models.SessionPending,
		Task:      task,
		CreatedAt: now,
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.active[agentID] = &runHandle{sessionID: session.ID, cancel: cancel}
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(runCtx, session, agent, caps)

	return session, nil
}

// Cancel requests cooperative cancellation of the agent's running session.
// Trades already applied stay committed. Returns ErrSessionNotRunning when
// the agent is idle.
func (e *Engine) Cancel(ctx context.Context, agentID string) error {
	e.mu.Lock()
	handle, ok := e.active[agentID]
	e.mu.Unlock()

	if !ok {
		return errors.ErrSessionNotRunning
	}
	handle.cancel()
	return nil
}

// IsRunning reports whether the agent has an in-flight session. Configuration
// edits are rejected while this is true.
func (e *Engine) IsRunning(agentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[agentID]
	return ok
}

// Status returns the agent's active session, or its most recent one when
// idle, together with the current financial snapshot.
func (e *Engine) Status(ctx context.Context, agentID string) (*models.Session, *models.FinancialSnapshot, error) {
	session, err := e.store.GetActiveSession(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		recent, err := e.store.GetSessions(ctx, ledger.SessionFilter{AgentID: agentID, Limit: 1})
		if err != nil {
			return nil, nil, err
		}
		if len(recent) > 0 {
			session = &recent[0]
		}
	}

	snapshot, err := e.store.FinancialSnapshot(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	return session, snapshot, nil
}

// History returns past sessions for the agent, newest first.
func (e *Engine) History(ctx context.Context, agentID string, limit int, status models.SessionStatus) ([]models.Session, error) {
	return e.store.GetSessions(ctx, ledger.SessionFilter{
		AgentID: agentID,
		Status:  status,
		Limit:   limit,
	})
}

// Wait blocks until all in-flight sessions have finished. Used on shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// run is the session body. It owns the session row from running to terminal
// and releases the single-flight guard on exit.
func (e *Engine) run(ctx context.Context, session *models.Session, agent *models.Agent, caps modes.Capabilities) {
	defer e.wg.Done()
	defer func() {
		e.mu.Lock()
		delete(e.active, session.AgentID)
		e.mu.Unlock()
	}()

	logger := logging.WithSession(logging.WithAgent(e.logger, session.AgentID), session.ID)
	started := time.Now().UTC()

	session.Status = models.SessionRunning
	session.StartedAt = started
	if err := e.store.UpdateSession(ctx, session); err != nil {
		logger.Error().Err(err).Msg("failed to mark session running")
		e.finish(ctx, session, started, models.SessionFailed, err)
		return
	}
	e.publish(models.Event{
		Type:      models.EventExecutionStarted,
		AgentID:   session.AgentID,
		SessionID: session.ID,
	})
	if err := e.store.UpdateAgentStatus(ctx, session.AgentID, models.AgentActive, started); err != nil {
		logger.Warn().Err(err).Msg("failed to update agent status")
	}

	// Checkpoint before the advisory fan-out.
	if e.cancelled(ctx) {
		e.finish(ctx, session, started, models.SessionCancelled, nil)
		return
	}

	snapshot, holdings, transactions, err := e.portfolioContext(ctx, session.AgentID)
	if err != nil {
		e.finish(ctx, session, started, models.SessionFailed, err)
		return
	}

	advice := e.consultAdvisors(ctx, session, agent, caps, snapshot, holdings, transactions)

	// Checkpoint before the decision call.
	if e.cancelled(ctx) {
		e.finish(ctx, session, started, models.SessionCancelled, nil)
		return
	}

	decisionCtx, cancelDecision := context.WithTimeout(ctx, e.config.DecisionTimeout)
	result, err := e.decider.Decide(decisionCtx, decision.Request{
		AgentID:        session.AgentID,
		Task:           session.Task,
		Mode:           session.Mode,
		AllowedActions: caps.ActionList(),
		Portfolio:      snapshot,
		Holdings:       holdings,
		Advice:         advice,
	})
	cancelDecision()
	if err != nil {
		if e.cancelled(ctx) {
			e.finish(ctx, session, started, models.SessionCancelled, nil)
			return
		}
		e.finish(ctx, session, started, models.SessionFailed, err)
		return
	}

	session.Rationale = result.Rationale
	session.Summary = result.Summary
	logging.LogDecision(logger, session.AgentID, len(result.Intents), result.Rationale)

	// Apply intents one at a time in the order returned. Trades committed
	// before a failure or cancellation stay committed.
	for _, intent := range result.Intents {
		if e.cancelled(ctx) {
			e.finish(ctx, session, started, models.SessionCancelled, nil)
			return
		}
		if !caps.ActionAllowed(intent.Action) {
			e.finish(ctx, session, started, models.SessionFailed,
				errors.NewTradeError(intent.Ticker, string(intent.Action), intent.Quantity,
					"action not permitted in mode "+string(session.Mode), errors.ErrActionNotAllowed))
			return
		}

		commission := e.config.Commission(intent.Action, intent.Quantity, intent.Price)
		if _, err := e.store.ApplyTrade(ctx, session.AgentID, session.ID, intent, commission); err != nil {
			e.finish(ctx, session, started, models.SessionFailed, err)
			return
		}
		session.TradesApplied++
		logging.LogTrade(logger, session.AgentID, intent.Ticker, string(intent.Action), intent.Quantity, intent.Price.String())
	}

	e.finish(ctx, session, started, models.SessionCompleted, nil)
}

// consultAdvisors runs the mode's allowed advisors and records their names
// on the session. Advisor failures degrade to unavailability entries.
func (e *Engine) consultAdvisors(ctx context.Context, session *models.Session, agent *models.Agent,
	caps modes.Capabilities, snapshot *models.FinancialSnapshot, holdings []models.Holding,
	transactions []models.Transaction) []advisors.Result {

	names := caps.AdvisorNames()
	session.ToolsInvoked = append([]string(nil), names...)
	if e.fanout == nil || len(names) == 0 {
		return nil
	}

	return e.fanout.Consult(ctx, names, advisors.Request{
		AgentID:      session.AgentID,
		Task:         session.Task,
		Mode:         session.Mode,
		Portfolio:    snapshot,
		Holdings:     holdings,
		Transactions: transactions,
	})
}

func (e *Engine) portfolioContext(ctx context.Context, agentID string) (*models.FinancialSnapshot, []models.Holding, []models.Transaction, error) {
	snapshot, err := e.store.FinancialSnapshot(ctx, agentID)
	if err != nil {
		return nil, nil, nil, err
	}
	holdings, err := e.store.GetHoldings(ctx, agentID)
	if err != nil {
		return nil, nil, nil, err
	}
	transactions, err := e.store.GetTransactions(ctx, agentID, e.config.HistoryLimit, 0)
	if err != nil {
		return nil, nil, nil, err
	}
	return snapshot, holdings, transactions, nil
}

func (e *Engine) cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// finish moves the session to a terminal status, persists it and emits the
// matching lifecycle event with the post-trade financial snapshot. The
// snapshot reports funds and holdings as they stand, including any partially
// applied trades.
func (e *Engine) finish(ctx context.Context, session *models.Session, started time.Time, status models.SessionStatus, cause error) {
	// The run context may already be cancelled; terminal persistence and
	// the snapshot read must still go through.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	session.Status = status
	session.EndedAt = now
	if cause != nil {
		session.Error = cause.Error()
	}
	if status == models.SessionCancelled && session.Error == "" {
		session.Error = errors.ErrCancelled.Error()
	}

	logger := logging.WithSession(logging.WithAgent(e.logger, session.AgentID), session.ID)
	if err := e.store.UpdateSession(persistCtx, session); err != nil {
		logger.Error().Err(err).Msg("failed to persist terminal session")
	}
	logging.LogSession(logger, session.AgentID, session.ID, string(status), now.Sub(started))

	agentStatus := models.AgentActive
	if status == models.SessionFailed {
		agentStatus = models.AgentError
	}
	if err := e.store.UpdateAgentStatus(persistCtx, session.AgentID, agentStatus, now); err != nil {
		logger.Warn().Err(err).Msg("failed to update agent status")
	}

	snapshot, err := e.store.FinancialSnapshot(persistCtx, session.AgentID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read financial snapshot")
		snapshot = nil
	}

	event := models.Event{
		AgentID:   session.AgentID,
		SessionID: session.ID,
		Snapshot:  snapshot,
	}
	switch status {
	case models.SessionCompleted:
		event.Type = models.EventExecutionCompleted
		event.ExecutionTimeMs = now.Sub(started).Milliseconds()
	case models.SessionFailed:
		event.Type = models.EventExecutionFailed
		event.Error = session.Error
	case models.SessionCancelled:
		event.Type = models.EventExecutionCancelled
	}
	e.publish(event)
}

func (e *Engine) publish(event models.Event) {
	if e.notifier != nil {
		e.notifier.Publish(event)
	}
}
