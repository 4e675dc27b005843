package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceSnapshot is the daily performance rollup for an agent. Rows are
// keyed by (agent, date) and recomputed idempotently from transaction and
// holding history: re-running the rollup for the same date with unchanged
// inputs produces an identical row.
type PerformanceSnapshot struct {
	AgentID       string
	Date          time.Time // date component only, UTC
	TotalValue    decimal.Decimal
	CashBalance   decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	DailyReturn   float64
	TotalReturn   float64
	WinRate       float64
	MaxDrawdown   float64
	// Risk ratios are nil until enough daily history exists to make them
	// meaningful (MinRiskSamples data points).
	Sharpe  *float64
	Sortino *float64
	Calmar  *float64
}

// MinRiskSamples is the minimum number of daily snapshots required before
// Sharpe, Sortino and Calmar are reported. Below this the ratios stay nil
// rather than being reported as zero.
const MinRiskSamples = 20

// DateKey normalizes a time to its UTC date, the snapshot upsert key.
func DateKey(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
