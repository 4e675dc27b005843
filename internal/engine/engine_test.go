package engine

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"agent-trader/internal/advisors"
	"agent-trader/internal/decision"
	"agent-trader/internal/errors"
	"agent-trader/internal/ledger"
	"agent-trader/internal/models"
)

// stubDecider returns canned intents, optionally blocking until released so
// tests can observe a session mid-flight.
type stubDecider struct {
	intents []models.TradeIntent
	err     error
	block   chan struct{}
}

func (d *stubDecider) Decide(ctx context.Context, req decision.Request) (*decision.Decision, error) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return &decision.Decision{
		Intents:   d.intents,
		Rationale: "stub rationale",
		Summary:   "stub summary",
	}, nil
}

// failingAdvisor always reports unavailability.
type failingAdvisor struct {
	name string
}

func (a *failingAdvisor) Name() string { return a.name }

func (a *failingAdvisor) Advise(ctx context.Context, req advisors.Request) (*advisors.Opinion, error) {
	return nil, errors.NewAdvisorError(a.name, errors.ErrAdvisorUnavailable)
}

func newTestStore(t *testing.T) ledger.Store {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func seedAgent(t *testing.T, store ledger.Store, mode models.Mode, funds string) *models.Agent {
	t.Helper()
	initial, err := decimal.NewFromString(funds)
	if err != nil {
		t.Fatalf("bad funds %q: %v", funds, err)
	}
	now := time.Now().UTC()
	agent := &models.Agent{
		ID:              uuid.NewString(),
		Name:            "test-agent",
		Model:           "gpt-4o-mini",
		InitialFunds:    initial,
		CurrentFunds:    initial,
		MaxPositionSize: 0.2,
		Status:          models.AgentActive,
		Mode:            mode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	return agent
}

func newTestEngine(store ledger.Store, decider decision.Decider) *Engine {
	cfg := DefaultConfig()
	cfg.DecisionTimeout = 5 * time.Second
	return New(store, nil, decider, nil, cfg, zerolog.Nop())
}

func waitForTerminal(t *testing.T, store ledger.Store, sessionID string) *models.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		session, err := store.GetSession(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if session.Status.Terminal() {
			return session
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s never reached a terminal state", sessionID)
	return nil
}

func TestStartAppliesTrades(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	decider := &stubDecider{intents: []models.TradeIntent{
		{Ticker: "ACME", Action: models.ActionBuy, Quantity: 100, Price: decimal.NewFromInt(500)},
	}}
	eng := newTestEngine(store, decider)

	session, err := eng.Start(context.Background(), agent.ID, "", "buy some acme")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	eng.Wait()

	final := waitForTerminal(t, store, session.ID)
	if final.Status != models.SessionCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", final.Status, final.Error)
	}
	if final.TradesApplied != 1 {
		t.Errorf("trades applied = %d, want 1", final.TradesApplied)
	}

	got, err := store.GetAgent(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if !got.CurrentFunds.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("funds = %s, want 50000", got.CurrentFunds)
	}
}

func TestStartSingleFlight(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	decider := &stubDecider{block: make(chan struct{})}
	eng := newTestEngine(store, decider)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	ids := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := eng.Start(context.Background(), agent.ID, "", "race")
			if err != nil {
				results <- err
				return
			}
			results <- nil
			ids <- session.ID
		}()
	}
	wg.Wait()
	close(results)
	close(ids)

	var started, rejected int
	for err := range results {
		if err == nil {
			started++
		} else if errors.Is(err, errors.ErrAlreadyRunning) {
			rejected++
		} else {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if started != 1 {
		t.Errorf("started = %d, want exactly 1", started)
	}
	if rejected != n-1 {
		t.Errorf("rejected = %d, want %d", rejected, n-1)
	}
	if len(ids) != 1 {
		t.Errorf("session ids = %d, want 1", len(ids))
	}

	close(decider.block)
	eng.Wait()
}

func TestStartRejectsWhileSessionRowActive(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	// A running session row left behind by another process blocks a new
	// start even with an empty in-memory guard.
	orphan := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   agent.ID,
		Mode:      agent.Mode,
		Status:    models.SessionRunning,
		CreatedAt: time.Now().UTC(),
		StartedAt: time.Now().UTC(),
	}
	if err := store.CreateSession(context.Background(), orphan); err != nil {
		t.Fatalf("create session: %v", err)
	}

	eng := newTestEngine(store, &stubDecider{})
	_, err := eng.Start(context.Background(), agent.ID, "", "blocked")
	if !errors.Is(err, errors.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestCancelStopsBeforeDecision(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	decider := &stubDecider{block: make(chan struct{}), intents: []models.TradeIntent{
		{Ticker: "ACME", Action: models.ActionBuy, Quantity: 10, Price: decimal.NewFromInt(100)},
	}}
	eng := newTestEngine(store, decider)

	session, err := eng.Start(context.Background(), agent.ID, "", "cancel me")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Wait until the run is inside the decision call, then cancel.
	deadline := time.Now().Add(2 * time.Second)
	for !eng.IsRunning(agent.ID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if err := eng.Cancel(context.Background(), agent.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	eng.Wait()

	final := waitForTerminal(t, store, session.ID)
	if final.Status != models.SessionCancelled {
		t.Fatalf("status = %s, want cancelled", final.Status)
	}
	if final.TradesApplied != 0 {
		t.Errorf("trades applied = %d, want 0", final.TradesApplied)
	}

	// The guard is released; the agent can start again.
	if eng.IsRunning(agent.ID) {
		t.Errorf("agent still reported running after cancellation")
	}
}

func TestCancelIdleAgent(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")
	eng := newTestEngine(store, &stubDecider{})

	err := eng.Cancel(context.Background(), agent.ID)
	if !errors.Is(err, errors.ErrSessionNotRunning) {
		t.Fatalf("err = %v, want ErrSessionNotRunning", err)
	}
}

func TestRunFailsOnDisallowedAction(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeRebalanceOnly, "100000")

	decider := &stubDecider{intents: []models.TradeIntent{
		{Ticker: "ACME", Action: models.ActionBuy, Quantity: 10, Price: decimal.NewFromInt(100)},
	}}
	eng := newTestEngine(store, decider)

	session, err := eng.Start(context.Background(), agent.ID, "", "try to buy")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	eng.Wait()

	final := waitForTerminal(t, store, session.ID)
	if final.Status != models.SessionFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.TradesApplied != 0 {
		t.Errorf("trades applied = %d, want 0", final.TradesApplied)
	}

	// No cash moved.
	got, err := store.GetAgent(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if !got.CurrentFunds.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("funds = %s, want 100000", got.CurrentFunds)
	}
}

func TestRunKeepsPartialTradesOnFailure(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	// First intent fits the funds; the second cannot be afforded.
	decider := &stubDecider{intents: []models.TradeIntent{
		{Ticker: "ACME", Action: models.ActionBuy, Quantity: 100, Price: decimal.NewFromInt(500)},
		{Ticker: "OMNI", Action: models.ActionBuy, Quantity: 1000, Price: decimal.NewFromInt(500)},
	}}
	eng := newTestEngine(store, decider)

	session, err := eng.Start(context.Background(), agent.ID, "", "overreach")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	eng.Wait()

	final := waitForTerminal(t, store, session.ID)
	if final.Status != models.SessionFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.TradesApplied != 1 {
		t.Errorf("trades applied = %d, want 1", final.TradesApplied)
	}

	// The first trade stays committed.
	holdings, err := store.GetHoldings(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("get holdings: %v", err)
	}
	if len(holdings) != 1 || holdings[0].Ticker != "ACME" {
		t.Errorf("holdings = %+v, want the ACME position", holdings)
	}
}

func TestRunDegradesWhenAdvisorsUnavailable(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	pool := []advisors.Advisor{
		&failingAdvisor{name: "technical"},
		&failingAdvisor{name: "sentiment"},
		&failingAdvisor{name: "fundamental"},
		&failingAdvisor{name: "risk"},
	}
	fanout := advisors.NewFanout(pool, time.Second, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.DecisionTimeout = 5 * time.Second
	eng := New(store, fanout, &stubDecider{}, nil, cfg, zerolog.Nop())

	session, err := eng.Start(context.Background(), agent.ID, "", "no advice")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	eng.Wait()

	final := waitForTerminal(t, store, session.ID)
	if final.Status != models.SessionCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", final.Status, final.Error)
	}
	if len(final.ToolsInvoked) != 4 {
		t.Errorf("tools invoked = %v, want all four advisors", final.ToolsInvoked)
	}
}

func TestStartRejectsSuspendedAgent(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")
	if err := store.UpdateAgentStatus(context.Background(), agent.ID, models.AgentSuspended, time.Now().UTC()); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	eng := newTestEngine(store, &stubDecider{})
	if _, err := eng.Start(context.Background(), agent.ID, "", "nope"); !errors.Is(err, errors.ErrActionNotAllowed) {
		t.Fatalf("err = %v, want ErrActionNotAllowed", err)
	}
}

func TestStartUnknownAgent(t *testing.T) {
	store := newTestStore(t)
	eng := newTestEngine(store, &stubDecider{})

	if _, err := eng.Start(context.Background(), "no-such-agent", "", "task"); !errors.Is(err, errors.ErrAgentNotFound) {
		t.Fatalf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestStartModeOverridesAgentMode(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	decider := &stubDecider{intents: []models.TradeIntent{
		{Ticker: "ACME", Action: models.ActionBuy, Quantity: 10, Price: decimal.NewFromInt(100)},
	}}
	eng := newTestEngine(store, decider)

	// The per-run mode narrows a full-trading agent to rebalance-only, so
	// the BUY intent must be rejected for this session.
	session, err := eng.Start(context.Background(), agent.ID, models.ModeRebalanceOnly, "rebalance")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if session.Mode != models.ModeRebalanceOnly {
		t.Errorf("session mode = %s, want %s", session.Mode, models.ModeRebalanceOnly)
	}
	eng.Wait()

	final := waitForTerminal(t, store, session.ID)
	if final.Status != models.SessionFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.Mode != models.ModeRebalanceOnly {
		t.Errorf("persisted mode = %s, want %s", final.Mode, models.ModeRebalanceOnly)
	}
	if final.TradesApplied != 0 {
		t.Errorf("trades applied = %d, want 0", final.TradesApplied)
	}

	// The override is per-run: the agent's configured mode is untouched.
	got, err := store.GetAgent(context.Background(), agent.ID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got.Mode != models.ModeFullTrading {
		t.Errorf("agent mode = %s, want %s", got.Mode, models.ModeFullTrading)
	}
}

func TestStartEmptyModeUsesAgentMode(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeRebalanceOnly, "100000")
	eng := newTestEngine(store, &stubDecider{})

	session, err := eng.Start(context.Background(), agent.ID, "", "default mode")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if session.Mode != models.ModeRebalanceOnly {
		t.Errorf("session mode = %s, want the agent's %s", session.Mode, models.ModeRebalanceOnly)
	}
	eng.Wait()
}

func TestStartUnknownModeRejected(t *testing.T) {
	store := newTestStore(t)
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")
	eng := newTestEngine(store, &stubDecider{})

	_, err := eng.Start(context.Background(), agent.ID, models.Mode("yolo"), "task")
	var vErr *errors.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if vErr.Field != "mode" {
		t.Errorf("field = %s, want mode", vErr.Field)
	}

	// Nothing was started or persisted.
	if eng.IsRunning(agent.ID) {
		t.Errorf("agent reported running after rejected start")
	}
	sessions, err := store.GetSessions(context.Background(), ledger.SessionFilter{AgentID: agent.ID})
	if err != nil {
		t.Fatalf("get sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(sessions))
	}
}

// statusFailStore fails every agent status update so tests can observe how
// the engine reports the failure.
type statusFailStore struct {
	ledger.Store
}

func (s *statusFailStore) UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus, updatedAt time.Time) error {
	return errors.NewStorageError("update agent status", errors.ErrStorage)
}

func TestRunLogsAgentStatusUpdateFailure(t *testing.T) {
	store := &statusFailStore{Store: newTestStore(t)}
	agent := seedAgent(t, store, models.ModeFullTrading, "100000")

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.DecisionTimeout = 5 * time.Second
	eng := New(store, nil, &stubDecider{}, nil, cfg, zerolog.New(&buf))

	session, err := eng.Start(context.Background(), agent.ID, "", "status update fails")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	eng.Wait()

	// The session still completes; the failure is logged, not fatal.
	final := waitForTerminal(t, store, session.ID)
	if final.Status != models.SessionCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", final.Status, final.Error)
	}
	if !strings.Contains(buf.String(), "failed to update agent status") {
		t.Errorf("log output missing status update warning:\n%s", buf.String())
	}
}

func TestRateCommission(t *testing.T) {
	fn := RateCommission(0.001)
	got := fn(models.ActionBuy, 100, decimal.NewFromInt(500))
	if !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("commission = %s, want 50", got)
	}
}
