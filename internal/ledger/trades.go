package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"agent-trader/internal/errors"
	"agent-trader/internal/models"
)

// ApplyTrade applies a single trade intent to the agent's ledger. Cash
// movement, holding mutation and the transaction append happen in one
// database transaction: a crash leaves either all three effects or none.
//
// BUY debits quantity*price + commission and blends the purchase into the
// holding's average cost. SELL credits quantity*price - commission and
// reduces quantity, leaving the average cost untouched. Validation failures
// (insufficient funds or shares) reject the trade before any mutation.
func (l *SQLiteLedger) ApplyTrade(ctx context.Context, agentID, sessionID string, intent models.TradeIntent, commission decimal.Decimal) (*models.Transaction, error) {
	if err := validateIntent(intent, commission); err != nil {
		return nil, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewStorageError("begin trade", err)
	}
	defer tx.Rollback()

	var fundsRaw string
	err = tx.QueryRowContext(ctx, `SELECT current_funds FROM agents WHERE id = ?`, agentID).Scan(&fundsRaw)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAgentNotFound
	}
	if err != nil {
		return nil, errors.NewStorageError("read agent funds", err)
	}
	funds, err := scanDecimal(fundsRaw)
	if err != nil {
		return nil, errors.NewStorageError("read agent funds", err)
	}

	qty := decimal.NewFromInt(intent.Quantity)
	total := intent.Price.Mul(qty).Round(CashScale)
	now := time.Now().UTC()

	var newFunds decimal.Decimal
	switch intent.Action {
	case models.ActionBuy:
		cost := total.Add(commission)
		if cost.GreaterThan(funds) {
			return nil, errors.NewTradeError(intent.Ticker, string(intent.Action), intent.Quantity,
				"cost "+cost.StringFixed(CashScale)+" exceeds funds "+funds.StringFixed(CashScale),
				errors.ErrInsufficientFunds)
		}
		newFunds = funds.Sub(cost)
		if err := l.applyBuyHolding(ctx, tx, agentID, intent, now); err != nil {
			return nil, err
		}
	case models.ActionSell:
		held, err := holdingQuantity(ctx, tx, agentID, intent.Ticker)
		if err != nil {
			return nil, err
		}
		if intent.Quantity > held {
			return nil, errors.NewTradeError(intent.Ticker, string(intent.Action), intent.Quantity,
				"held quantity is "+decimal.NewFromInt(held).String(),
				errors.ErrInsufficientShares)
		}
		newFunds = funds.Add(total).Sub(commission)
		if err := l.applySellHolding(ctx, tx, agentID, intent, held, now); err != nil {
			return nil, err
		}
	default:
		return nil, errors.NewValidationError("action", string(intent.Action), "must be BUY or SELL")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE agents SET current_funds = ?, last_active_at = ?, updated_at = ? WHERE id = ?`,
		newFunds.StringFixed(CashScale), now, now, agentID); err != nil {
		return nil, errors.NewStorageError("update funds", err)
	}

	record := &models.Transaction{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		SessionID:  sessionID,
		Ticker:     intent.Ticker,
		Action:     intent.Action,
		Quantity:   intent.Quantity,
		Price:      intent.Price,
		Total:      total,
		Commission: commission,
		Status:     models.TxExecuted,
		Rationale:  intent.Rationale,
		ExecutedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, agent_id, session_id, ticker, action, quantity, price, total, commission, status, rationale, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.AgentID, record.SessionID, record.Ticker, string(record.Action),
		record.Quantity, record.Price.String(), record.Total.StringFixed(CashScale),
		record.Commission.StringFixed(CashScale), string(record.Status), record.Rationale, record.ExecutedAt); err != nil {
		return nil, errors.NewStorageError("append transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageError("commit trade", err)
	}
	return record, nil
}

func validateIntent(intent models.TradeIntent, commission decimal.Decimal) error {
	if intent.Ticker == "" {
		return errors.NewValidationError("ticker", intent.Ticker, "is required")
	}
	if intent.Quantity <= 0 {
		return errors.NewValidationError("quantity", intent.Quantity, "must be positive")
	}
	if !intent.Price.IsPositive() {
		return errors.NewValidationError("price", intent.Price.String(), "must be positive")
	}
	if commission.IsNegative() {
		return errors.NewValidationError("commission", commission.String(), "must be non-negative")
	}
	return nil
}

// applyBuyHolding blends a purchase into the holding via cost-average:
// new_avg = (old_qty*old_avg + qty*price) / (old_qty+qty).
func (l *SQLiteLedger) applyBuyHolding(ctx context.Context, tx *sql.Tx, agentID string, intent models.TradeIntent, now time.Time) error {
	var oldQty int64
	var avgRaw, totalRaw string
	err := tx.QueryRowContext(ctx, `
		SELECT quantity, average_cost, total_cost FROM holdings WHERE agent_id = ? AND ticker = ?
	`, agentID, intent.Ticker).Scan(&oldQty, &avgRaw, &totalRaw)

	qty := decimal.NewFromInt(intent.Quantity)
	purchase := intent.Price.Mul(qty)

	if err == sql.ErrNoRows {
		avg := purchase.DivRound(qty, AvgCostScale)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO holdings (agent_id, ticker, quantity, average_cost, total_cost, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, agentID, intent.Ticker, intent.Quantity, avg.StringFixed(AvgCostScale), purchase.StringFixed(CashScale), now)
		if err != nil {
			return errors.NewStorageError("insert holding", err)
		}
		return nil
	}
	if err != nil {
		return errors.NewStorageError("read holding", err)
	}

	oldAvg, err := scanDecimal(avgRaw)
	if err != nil {
		return errors.NewStorageError("read holding", err)
	}
	oldTotal, err := scanDecimal(totalRaw)
	if err != nil {
		return errors.NewStorageError("read holding", err)
	}

	newQty := oldQty + intent.Quantity
	newTotal := oldTotal.Add(purchase)
	newAvg := decimal.NewFromInt(oldQty).Mul(oldAvg).Add(purchase).
		DivRound(decimal.NewFromInt(newQty), AvgCostScale)

	if _, err := tx.ExecContext(ctx, `
		UPDATE holdings SET quantity = ?, average_cost = ?, total_cost = ?, updated_at = ?
		WHERE agent_id = ? AND ticker = ?
	`, newQty, newAvg.StringFixed(AvgCostScale), newTotal.StringFixed(CashScale), now, agentID, intent.Ticker); err != nil {
		return errors.NewStorageError("update holding", err)
	}
	return nil
}

// applySellHolding reduces the holding quantity. The average cost is
// unchanged on sells; the row is deleted when quantity reaches zero.
func (l *SQLiteLedger) applySellHolding(ctx context.Context, tx *sql.Tx, agentID string, intent models.TradeIntent, held int64, now time.Time) error {
	remaining := held - intent.Quantity
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE agent_id = ? AND ticker = ?`,
			agentID, intent.Ticker); err != nil {
			return errors.NewStorageError("delete holding", err)
		}
		return nil
	}

	var avgRaw string
	if err := tx.QueryRowContext(ctx, `SELECT average_cost FROM holdings WHERE agent_id = ? AND ticker = ?`,
		agentID, intent.Ticker).Scan(&avgRaw); err != nil {
		return errors.NewStorageError("read holding", err)
	}
	avg, err := scanDecimal(avgRaw)
	if err != nil {
		return errors.NewStorageError("read holding", err)
	}
	newTotal := avg.Mul(decimal.NewFromInt(remaining)).Round(CashScale)

	if _, err := tx.ExecContext(ctx, `
		UPDATE holdings SET quantity = ?, total_cost = ?, updated_at = ?
		WHERE agent_id = ? AND ticker = ?
	`, remaining, newTotal.StringFixed(CashScale), now, agentID, intent.Ticker); err != nil {
		return errors.NewStorageError("update holding", err)
	}
	return nil
}

func holdingQuantity(ctx context.Context, tx *sql.Tx, agentID, ticker string) (int64, error) {
	var held int64
	err := tx.QueryRowContext(ctx, `SELECT quantity FROM holdings WHERE agent_id = ? AND ticker = ?`,
		agentID, ticker).Scan(&held)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewStorageError("read holding", err)
	}
	return held, nil
}

// GetHoldings retrieves all holdings for an agent in ticker order.
func (l *SQLiteLedger) GetHoldings(ctx context.Context, agentID string) ([]models.Holding, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT agent_id, ticker, quantity, average_cost, total_cost, updated_at
		FROM holdings WHERE agent_id = ? ORDER BY ticker ASC
	`, agentID)
	if err != nil {
		return nil, errors.NewStorageError("query holdings", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		var avgRaw, totalRaw string
		if err := rows.Scan(&h.AgentID, &h.Ticker, &h.Quantity, &avgRaw, &totalRaw, &h.UpdatedAt); err != nil {
			return nil, errors.NewStorageError("scan holding", err)
		}
		if h.AverageCost, err = scanDecimal(avgRaw); err != nil {
			return nil, errors.NewStorageError("scan holding", err)
		}
		if h.TotalCost, err = scanDecimal(totalRaw); err != nil {
			return nil, errors.NewStorageError("scan holding", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetTransactions retrieves executed transactions for an agent, newest first.
func (l *SQLiteLedger) GetTransactions(ctx context.Context, agentID string, limit, offset int) ([]models.Transaction, error) {
	query := `
		SELECT id, agent_id, COALESCE(session_id, ''), ticker, action, quantity, price, total, commission, status, COALESCE(rationale, ''), executed_at
		FROM transactions WHERE agent_id = ? ORDER BY executed_at DESC, id DESC
	`
	args := []interface{}{agentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("query transactions", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.NewStorageError("scan transaction", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var action, priceRaw, totalRaw, commissionRaw, status string
	if err := row.Scan(&t.ID, &t.AgentID, &t.SessionID, &t.Ticker, &action, &t.Quantity,
		&priceRaw, &totalRaw, &commissionRaw, &status, &t.Rationale, &t.ExecutedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Price, err = scanDecimal(priceRaw); err != nil {
		return nil, err
	}
	if t.Total, err = scanDecimal(totalRaw); err != nil {
		return nil, err
	}
	if t.Commission, err = scanDecimal(commissionRaw); err != nil {
		return nil, err
	}
	t.Action = models.TradeAction(action)
	t.Status = models.TransactionStatus(status)
	return &t, nil
}

// FinancialSnapshot computes the agent's current financial state. Holdings
// are marked at the last executed trade price per ticker; market-data
// retrieval is outside the ledger's scope.
func (l *SQLiteLedger) FinancialSnapshot(ctx context.Context, agentID string) (*models.FinancialSnapshot, error) {
	agent, err := l.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	holdings, err := l.GetHoldings(ctx, agentID)
	if err != nil {
		return nil, err
	}

	holdingsValue := decimal.Zero
	for _, h := range holdings {
		mark, err := l.lastTradePrice(ctx, agentID, h.Ticker)
		if err != nil {
			return nil, err
		}
		if mark.IsZero() {
			mark = h.AverageCost
		}
		holdingsValue = holdingsValue.Add(h.MarketValue(mark))
	}
	holdingsValue = holdingsValue.Round(CashScale)

	return &models.FinancialSnapshot{
		CurrentFunds:        agent.CurrentFunds,
		HoldingsValue:       holdingsValue,
		TotalPortfolioValue: agent.CurrentFunds.Add(holdingsValue),
	}, nil
}

func (l *SQLiteLedger) lastTradePrice(ctx context.Context, agentID, ticker string) (decimal.Decimal, error) {
	var priceRaw string
	err := l.db.QueryRowContext(ctx, `
		SELECT price FROM transactions
		WHERE agent_id = ? AND ticker = ? AND status = 'executed'
		ORDER BY executed_at DESC, id DESC LIMIT 1
	`, agentID, ticker).Scan(&priceRaw)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.NewStorageError("read last trade price", err)
	}
	return scanDecimal(priceRaw)
}
