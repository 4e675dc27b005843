package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agent-trader/internal/errors"
	"agent-trader/internal/models"
)

// CreateAgent inserts a new agent with its initial cash balance.
func (l *SQLiteLedger) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.InitialFunds.IsNegative() {
		return errors.NewValidationError("initial_funds", agent.InitialFunds.String(), "must be non-negative")
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, description, model, initial_funds, current_funds, max_position_size, status, mode, last_active_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, agent.ID, agent.Name, agent.Description, agent.Model,
		agent.InitialFunds.StringFixed(CashScale), agent.CurrentFunds.StringFixed(CashScale),
		agent.MaxPositionSize, string(agent.Status), string(agent.Mode),
		agent.LastActiveAt, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return errors.NewStorageError("create agent", err)
	}
	return nil
}

// GetAgent retrieves an agent by id.
func (l *SQLiteLedger) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), model, initial_funds, current_funds, max_position_size, status, mode,
		       COALESCE(last_active_at, created_at), created_at, updated_at
		FROM agents WHERE id = ?
	`, agentID)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAgentNotFound
	}
	if err != nil {
		return nil, errors.NewStorageError("get agent", err)
	}
	return agent, nil
}

// ListAgents retrieves all agents ordered by creation time.
func (l *SQLiteLedger) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), model, initial_funds, current_funds, max_position_size, status, mode,
		       COALESCE(last_active_at, created_at), created_at, updated_at
		FROM agents ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, errors.NewStorageError("list agents", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, errors.NewStorageError("scan agent", err)
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

// UpdateAgent updates an agent's configuration. Funds are not touched here;
// they change only through ApplyTrade.
func (l *SQLiteLedger) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE agents SET name = ?, description = ?, model = ?, max_position_size = ?, status = ?, mode = ?, updated_at = ?
		WHERE id = ?
	`, agent.Name, agent.Description, agent.Model, agent.MaxPositionSize,
		string(agent.Status), string(agent.Mode), time.Now().UTC(), agent.ID)
	if err != nil {
		return errors.NewStorageError("update agent", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errors.ErrAgentNotFound
	}
	return nil
}

// UpdateAgentStatus updates the lifecycle status and last-active timestamp.
func (l *SQLiteLedger) UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus, lastActive time.Time) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE agents SET status = ?, last_active_at = ?, updated_at = ? WHERE id = ?
	`, string(status), lastActive, time.Now().UTC(), agentID)
	if err != nil {
		return errors.NewStorageError("update agent status", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return errors.ErrAgentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var a models.Agent
	var initialFunds, currentFunds, status, mode string
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &a.Model, &initialFunds, &currentFunds,
		&a.MaxPositionSize, &status, &mode, &a.LastActiveAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.InitialFunds, err = scanDecimal(initialFunds); err != nil {
		return nil, fmt.Errorf("initial_funds: %w", err)
	}
	if a.CurrentFunds, err = scanDecimal(currentFunds); err != nil {
		return nil, fmt.Errorf("current_funds: %w", err)
	}
	a.Status = models.AgentStatus(status)
	a.Mode = models.Mode(mode)
	return &a, nil
}
