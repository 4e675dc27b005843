// Package models provides domain models for the agent trading application.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus represents the lifecycle status of a trading agent.
type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentInactive  AgentStatus = "inactive"
	AgentError     AgentStatus = "error"
	AgentSuspended AgentStatus = "suspended"
)

// Mode is a named capability profile restricting what a session may do.
type Mode string

const (
	// ModeFullTrading permits all advisors and both BUY and SELL actions.
	ModeFullTrading Mode = "full-trading"
	// ModeRebalanceOnly permits a reduced advisor subset and blocks
	// cash-funded buys; only portfolio-query tools and SELLs are allowed.
	ModeRebalanceOnly Mode = "rebalance-only"
)

// Agent represents a configured autonomous trading agent.
type Agent struct {
	ID              string
	Name            string
	Description     string
	Model           string // AI model selector for the decision collaborator
	InitialFunds    decimal.Decimal
	CurrentFunds    decimal.Decimal // cash balance, never negative
	MaxPositionSize float64         // fraction of portfolio value per instrument
	Status          AgentStatus
	Mode            Mode
	LastActiveAt    time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FinancialSnapshot captures an agent's financial state at a point in time.
// It accompanies every terminal session event so the dashboard never shows
// a state that diverges from the ledger.
type FinancialSnapshot struct {
	CurrentFunds        decimal.Decimal `json:"currentFunds"`
	HoldingsValue       decimal.Decimal `json:"holdingsValue"`
	TotalPortfolioValue decimal.Decimal `json:"totalPortfolioValue"`
}
