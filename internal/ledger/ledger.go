// Package ledger owns holdings, cash balances, transaction history and
// derived performance metrics for each agent.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3"

	"agent-trader/internal/models"
)

// Money rounding: cash and totals carry 2 decimal places, average cost 4.
const (
	CashScale    = 2
	AvgCostScale = 4
)

// Store defines the persistence surface consumed by the session engine and
// the query layer.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus, lastActive time.Time) error

	// Sessions
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	GetActiveSession(ctx context.Context, agentID string) (*models.Session, error)
	GetSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error)

	// Trades
	ApplyTrade(ctx context.Context, agentID, sessionID string, intent models.TradeIntent, commission decimal.Decimal) (*models.Transaction, error)
	GetHoldings(ctx context.Context, agentID string) ([]models.Holding, error)
	GetTransactions(ctx context.Context, agentID string, limit, offset int) ([]models.Transaction, error)
	FinancialSnapshot(ctx context.Context, agentID string) (*models.FinancialSnapshot, error)

	// Performance
	RecomputePerformance(ctx context.Context, agentID string, date time.Time) (*models.PerformanceSnapshot, error)
	GetPerformance(ctx context.Context, agentID string, from, to time.Time) ([]models.PerformanceSnapshot, error)

	// Lifecycle
	Close() error
}

// SQLiteLedger implements Store using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

var _ Store = (*SQLiteLedger)(nil)

// Open creates a SQLite-backed ledger at dbPath. Tests should point dbPath at
// a file under t.TempDir(); ":memory:" does not work here because the pooled
// driver gives each connection its own empty in-memory database.
func Open(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	l := &SQLiteLedger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return l, nil
}

// initSchema creates all required tables and indexes.
func (l *SQLiteLedger) initSchema() error {
	schema := `
	-- Agents table: configuration plus live financial state
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		model TEXT NOT NULL,
		initial_funds TEXT NOT NULL,
		current_funds TEXT NOT NULL,
		max_position_size REAL NOT NULL DEFAULT 0.2,
		status TEXT NOT NULL DEFAULT 'active',
		mode TEXT NOT NULL,
		last_active_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Sessions table: one row per execution attempt
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		task TEXT,
		rationale TEXT,
		summary TEXT,
		tools_invoked TEXT,
		trades_applied INTEGER DEFAULT 0,
		error TEXT,
		started_at DATETIME,
		ended_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (agent_id) REFERENCES agents(id)
	);

	-- Holdings table: one row per (agent, ticker) with quantity > 0
	CREATE TABLE IF NOT EXISTS holdings (
		agent_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		average_cost TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (agent_id, ticker),
		FOREIGN KEY (agent_id) REFERENCES agents(id)
	);

	-- Transactions table: append-only trade records
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		session_id TEXT,
		ticker TEXT NOT NULL,
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		total TEXT NOT NULL,
		commission TEXT NOT NULL,
		status TEXT NOT NULL,
		rationale TEXT,
		executed_at DATETIME NOT NULL,
		FOREIGN KEY (agent_id) REFERENCES agents(id)
	);

	-- Performance snapshots: one row per (agent, date), upserted
	CREATE TABLE IF NOT EXISTS performance_snapshots (
		agent_id TEXT NOT NULL,
		date DATE NOT NULL,
		total_value TEXT NOT NULL,
		cash_balance TEXT NOT NULL,
		realized_pnl TEXT NOT NULL,
		unrealized_pnl TEXT NOT NULL,
		daily_return REAL NOT NULL,
		total_return REAL NOT NULL,
		win_rate REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe REAL,
		sortino REAL,
		calmar REAL,
		PRIMARY KEY (agent_id, date),
		FOREIGN KEY (agent_id) REFERENCES agents(id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(agent_id, status);
	CREATE INDEX IF NOT EXISTS idx_tx_agent_time ON transactions(agent_id, executed_at);
	CREATE INDEX IF NOT EXISTS idx_tx_ticker ON transactions(agent_id, ticker);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// SessionFilter represents filters for querying sessions.
type SessionFilter struct {
	AgentID string
	Status  models.SessionStatus
	Limit   int
	Offset  int
}

func scanDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid stored decimal %q: %w", raw, err)
	}
	return d, nil
}
