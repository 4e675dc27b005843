package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"agent-trader/internal/models"
)

func TestRecomputePerformanceReplay(t *testing.T) {
	l := newTestLedger(t)
	agent := seedAgent(t, l, "100000")
	ctx := context.Background()

	if _, err := l.ApplyTrade(ctx, agent.ID, "s1", models.TradeIntent{
		Ticker: "ACME", Action: models.ActionBuy, Quantity: 100, Price: mustDecimal(t, "500"),
	}, mustDecimal(t, "71")); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if _, err := l.ApplyTrade(ctx, agent.ID, "s2", models.TradeIntent{
		Ticker: "ACME", Action: models.ActionSell, Quantity: 40, Price: mustDecimal(t, "600"),
	}, mustDecimal(t, "34")); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	snap, err := l.RecomputePerformance(ctx, agent.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}

	if !snap.CashBalance.Equal(mustDecimal(t, "73895")) {
		t.Errorf("cash = %s, want 73895", snap.CashBalance)
	}
	// (600-500)*40 - 34
	if !snap.RealizedPnL.Equal(mustDecimal(t, "3966")) {
		t.Errorf("realized = %s, want 3966", snap.RealizedPnL)
	}
	// 60 shares marked at the last trade price of 600.
	if !snap.UnrealizedPnL.Equal(mustDecimal(t, "6000")) {
		t.Errorf("unrealized = %s, want 6000", snap.UnrealizedPnL)
	}
	if !snap.TotalValue.Equal(mustDecimal(t, "109895")) {
		t.Errorf("total value = %s, want 109895", snap.TotalValue)
	}
	if math.Abs(snap.TotalReturn-0.09895) > 1e-9 {
		t.Errorf("total return = %f, want 0.09895", snap.TotalReturn)
	}
	if snap.WinRate != 1.0 {
		t.Errorf("win rate = %f, want 1.0", snap.WinRate)
	}
	// A single data point is not enough history for risk ratios.
	if snap.Sharpe != nil || snap.Sortino != nil || snap.Calmar != nil {
		t.Errorf("risk ratios should be nil with insufficient history")
	}
}

func TestRecomputePerformanceIdempotent(t *testing.T) {
	l := newTestLedger(t)
	agent := seedAgent(t, l, "100000")
	ctx := context.Background()

	if _, err := l.ApplyTrade(ctx, agent.ID, "s1", models.TradeIntent{
		Ticker: "ACME", Action: models.ActionBuy, Quantity: 50, Price: mustDecimal(t, "200"),
	}, mustDecimal(t, "10")); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	now := time.Now().UTC()
	first, err := l.RecomputePerformance(ctx, agent.ID, now)
	if err != nil {
		t.Fatalf("first recompute failed: %v", err)
	}
	second, err := l.RecomputePerformance(ctx, agent.ID, now)
	if err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}

	if !first.TotalValue.Equal(second.TotalValue) ||
		!first.CashBalance.Equal(second.CashBalance) ||
		!first.RealizedPnL.Equal(second.RealizedPnL) ||
		!first.UnrealizedPnL.Equal(second.UnrealizedPnL) ||
		first.WinRate != second.WinRate ||
		first.TotalReturn != second.TotalReturn {
		t.Errorf("recompute is not idempotent: %+v vs %+v", first, second)
	}

	// The rollup upserts by (agent, date): re-running must not add rows.
	snaps, err := l.GetPerformance(ctx, agent.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("get performance failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("snapshot count = %d, want 1", len(snaps))
	}
}

func TestRecomputePerformanceNoTrades(t *testing.T) {
	l := newTestLedger(t)
	agent := seedAgent(t, l, "50000")
	ctx := context.Background()

	snap, err := l.RecomputePerformance(ctx, agent.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if !snap.TotalValue.Equal(mustDecimal(t, "50000")) {
		t.Errorf("total value = %s, want 50000", snap.TotalValue)
	}
	if snap.TotalReturn != 0 || snap.WinRate != 0 {
		t.Errorf("expected zero return and win rate, got %f / %f", snap.TotalReturn, snap.WinRate)
	}
}

func TestReplayTransactionsWinRate(t *testing.T) {
	initial := decimal.NewFromInt(100000)
	price := func(s string) decimal.Decimal { return mustDecimal(t, s) }

	txs := []models.Transaction{
		{Ticker: "A", Action: models.ActionBuy, Quantity: 10, Price: price("100"), Total: price("1000"), Commission: decimal.Zero},
		{Ticker: "A", Action: models.ActionSell, Quantity: 5, Price: price("120"), Total: price("600"), Commission: decimal.Zero},
		{Ticker: "A", Action: models.ActionSell, Quantity: 5, Price: price("80"), Total: price("400"), Commission: decimal.Zero},
	}
	r := replayTransactions(initial, txs)

	if r.sells != 2 || r.wins != 1 {
		t.Errorf("sells/wins = %d/%d, want 2/1", r.sells, r.wins)
	}
	// +100 on the first sell, -100 on the second.
	if !r.realized.Equal(decimal.Zero) {
		t.Errorf("realized = %s, want 0", r.realized)
	}
	if !r.cash.Equal(initial) {
		t.Errorf("cash = %s, want %s", r.cash, initial)
	}
}

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 80, 120}, 0.2},
		{"deepest dip wins", []float64{100, 90, 120, 60}, 0.5},
		{"empty", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := maxDrawdown(tc.values); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("maxDrawdown = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestSharpeRatioFlatSeries(t *testing.T) {
	flat := make([]float64, 30)
	if sharpeRatio(flat) != nil {
		t.Errorf("sharpe of a zero-variance series should be nil")
	}
}
