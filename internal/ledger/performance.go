package ledger

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"agent-trader/internal/errors"
	"agent-trader/internal/models"
)

const tradingDaysPerYear = 252

// RecomputePerformance rolls up the agent's performance for a date. The
// rollup replays all executed transactions up to the end of that date, so
// re-running it with unchanged history produces an identical row; the result
// is upserted by (agent, date).
func (l *SQLiteLedger) RecomputePerformance(ctx context.Context, agentID string, date time.Time) (*models.PerformanceSnapshot, error) {
	agent, err := l.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	day := models.DateKey(date)
	cutoff := day.Add(24 * time.Hour)

	txs, err := l.transactionsBefore(ctx, agentID, cutoff)
	if err != nil {
		return nil, err
	}

	replay := replayTransactions(agent.InitialFunds, txs)

	holdingsValue := decimal.Zero
	unrealized := decimal.Zero
	for _, pos := range replay.positions {
		if pos.quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(pos.quantity)
		holdingsValue = holdingsValue.Add(pos.lastPrice.Mul(qty))
		unrealized = unrealized.Add(pos.lastPrice.Sub(pos.avgCost).Mul(qty))
	}
	holdingsValue = holdingsValue.Round(CashScale)
	unrealized = unrealized.Round(CashScale)

	totalValue := replay.cash.Add(holdingsValue)

	totalReturn := 0.0
	if agent.InitialFunds.IsPositive() {
		tr, _ := totalValue.Sub(agent.InitialFunds).Div(agent.InitialFunds).Float64()
		totalReturn = tr
	}

	winRate := 0.0
	if replay.sells > 0 {
		winRate = float64(replay.wins) / float64(replay.sells)
	}

	history, err := l.GetPerformance(ctx, agentID, time.Time{}, day.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}

	dailyReturn := 0.0
	if len(history) > 0 {
		prev := history[len(history)-1].TotalValue
		if prev.IsPositive() {
			dr, _ := totalValue.Sub(prev).Div(prev).Float64()
			dailyReturn = dr
		}
	}

	values := make([]float64, 0, len(history)+1)
	returns := make([]float64, 0, len(history)+1)
	for _, h := range history {
		v, _ := h.TotalValue.Float64()
		values = append(values, v)
		returns = append(returns, h.DailyReturn)
	}
	tv, _ := totalValue.Float64()
	values = append(values, tv)
	returns = append(returns, dailyReturn)

	maxDrawdown := maxDrawdown(values)

	snap := &models.PerformanceSnapshot{
		AgentID:       agentID,
		Date:          day,
		TotalValue:    totalValue,
		CashBalance:   replay.cash,
		RealizedPnL:   replay.realized.Round(CashScale),
		UnrealizedPnL: unrealized,
		DailyReturn:   dailyReturn,
		TotalReturn:   totalReturn,
		WinRate:       winRate,
		MaxDrawdown:   maxDrawdown,
	}
	// Risk ratios stay nil until enough daily history has accumulated.
	if len(returns) >= models.MinRiskSamples {
		snap.Sharpe = sharpeRatio(returns)
		snap.Sortino = sortinoRatio(returns)
		snap.Calmar = calmarRatio(returns, maxDrawdown)
	}

	if err := l.upsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetPerformance retrieves snapshots in date order. Zero times are treated
// as unbounded.
func (l *SQLiteLedger) GetPerformance(ctx context.Context, agentID string, from, to time.Time) ([]models.PerformanceSnapshot, error) {
	query := `
		SELECT agent_id, date, total_value, cash_balance, realized_pnl, unrealized_pnl,
		       daily_return, total_return, win_rate, max_drawdown, sharpe, sortino, calmar
		FROM performance_snapshots WHERE agent_id = ?
	`
	args := []interface{}{agentID}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, models.DateKey(from))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, models.DateKey(to))
	}
	query += " ORDER BY date ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageError("query performance", err)
	}
	defer rows.Close()

	var snaps []models.PerformanceSnapshot
	for rows.Next() {
		var s models.PerformanceSnapshot
		var totalRaw, cashRaw, realizedRaw, unrealizedRaw string
		if err := rows.Scan(&s.AgentID, &s.Date, &totalRaw, &cashRaw, &realizedRaw, &unrealizedRaw,
			&s.DailyReturn, &s.TotalReturn, &s.WinRate, &s.MaxDrawdown, &s.Sharpe, &s.Sortino, &s.Calmar); err != nil {
			return nil, errors.NewStorageError("scan performance", err)
		}
		if s.TotalValue, err = scanDecimal(totalRaw); err != nil {
			return nil, errors.NewStorageError("scan performance", err)
		}
		if s.CashBalance, err = scanDecimal(cashRaw); err != nil {
			return nil, errors.NewStorageError("scan performance", err)
		}
		if s.RealizedPnL, err = scanDecimal(realizedRaw); err != nil {
			return nil, errors.NewStorageError("scan performance", err)
		}
		if s.UnrealizedPnL, err = scanDecimal(unrealizedRaw); err != nil {
			return nil, errors.NewStorageError("scan performance", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (l *SQLiteLedger) upsertSnapshot(ctx context.Context, s *models.PerformanceSnapshot) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO performance_snapshots
			(agent_id, date, total_value, cash_balance, realized_pnl, unrealized_pnl,
			 daily_return, total_return, win_rate, max_drawdown, sharpe, sortino, calmar)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.AgentID, s.Date, s.TotalValue.StringFixed(CashScale), s.CashBalance.StringFixed(CashScale),
		s.RealizedPnL.StringFixed(CashScale), s.UnrealizedPnL.StringFixed(CashScale),
		s.DailyReturn, s.TotalReturn, s.WinRate, s.MaxDrawdown, s.Sharpe, s.Sortino, s.Calmar)
	if err != nil {
		return errors.NewStorageError("upsert performance snapshot", err)
	}
	return nil
}

func (l *SQLiteLedger) transactionsBefore(ctx context.Context, agentID string, cutoff time.Time) ([]models.Transaction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, agent_id, COALESCE(session_id, ''), ticker, action, quantity, price, total, commission, status, COALESCE(rationale, ''), executed_at
		FROM transactions
		WHERE agent_id = ? AND status = 'executed' AND executed_at < ?
		ORDER BY executed_at ASC, id ASC
	`, agentID, cutoff)
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

type position struct {
	quantity  int64
	avgCost   decimal.Decimal
	lastPrice decimal.Decimal
}

type replayResult struct {
	cash      decimal.Decimal
	realized  decimal.Decimal
	positions map[string]*position
	sells     int
	wins      int
}

// replayTransactions derives cash, positions and realized P&L from the
// executed transaction history alone, so the rollup never depends on
// mutable state.
func replayTransactions(initialFunds decimal.Decimal, txs []models.Transaction) replayResult {
	r := replayResult{
		cash:      initialFunds,
		realized:  decimal.Zero,
		positions: make(map[string]*position),
	}

	for _, t := range txs {
		pos := r.positions[t.Ticker]
		if pos == nil {
			pos = &position{avgCost: decimal.Zero}
			r.positions[t.Ticker] = pos
		}
		qty := decimal.NewFromInt(t.Quantity)
		pos.lastPrice = t.Price

		switch t.Action {
		case models.ActionBuy:
			r.cash = r.cash.Sub(t.Total).Sub(t.Commission)
			newQty := pos.quantity + t.Quantity
			pos.avgCost = decimal.NewFromInt(pos.quantity).Mul(pos.avgCost).
				Add(t.Price.Mul(qty)).
				DivRound(decimal.NewFromInt(newQty), AvgCostScale)
			pos.quantity = newQty
		case models.ActionSell:
			r.cash = r.cash.Add(t.Total).Sub(t.Commission)
			pnl := t.Price.Sub(pos.avgCost).Mul(qty).Sub(t.Commission)
			r.realized = r.realized.Add(pnl)
			pos.quantity -= t.Quantity
			r.sells++
			if pnl.IsPositive() {
				r.wins++
			}
		}
	}
	r.cash = r.cash.Round(CashScale)
	return r
}

func maxDrawdown(values []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func sharpeRatio(returns []float64) *float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return nil
	}
	v := mean / std * math.Sqrt(tradingDaysPerYear)
	return &v
}

func sortinoRatio(returns []float64) *float64 {
	mean, _ := meanStd(returns)
	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return nil
	}
	var sumSq float64
	for _, r := range downside {
		sumSq += r * r
	}
	dd := math.Sqrt(sumSq / float64(len(downside)))
	if dd == 0 {
		return nil
	}
	v := mean / dd * math.Sqrt(tradingDaysPerYear)
	return &v
}

func calmarRatio(returns []float64, maxDD float64) *float64 {
	if maxDD == 0 {
		return nil
	}
	mean, _ := meanStd(returns)
	v := mean * tradingDaysPerYear / maxDD
	return &v
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	std = math.Sqrt(sumSq / float64(len(values)))
	return mean, std
}
