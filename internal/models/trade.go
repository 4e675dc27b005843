package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction represents the side of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// TransactionStatus represents the state of a recorded transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxExecuted  TransactionStatus = "executed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// TradeIntent is a single trade the decision collaborator wants executed.
// Intents are applied in the order returned; the collaborator may rely on
// sell-before-buy sequencing to fund a new position.
type TradeIntent struct {
	Ticker    string          `json:"ticker"`
	Action    TradeAction     `json:"action"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Rationale string          `json:"rationale"`
}

// Holding is an agent's position in a single instrument. Quantity is always
// non-negative; AverageCost is maintained by cost-average accounting and is
// unchanged by sells.
type Holding struct {
	AgentID     string
	Ticker      string
	Quantity    int64
	AverageCost decimal.Decimal
	TotalCost   decimal.Decimal
	UpdatedAt   time.Time
}

// MarketValue returns the holding's value at the given price.
func (h *Holding) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(h.Quantity))
}

// Transaction is an immutable append-only trade record. Once executed it is
// never mutated; corrections happen via new offsetting transactions.
type Transaction struct {
	ID         string
	AgentID    string
	SessionID  string
	Ticker     string
	Action     TradeAction
	Quantity   int64
	Price      decimal.Decimal
	Total      decimal.Decimal // quantity*price
	Commission decimal.Decimal
	Status     TransactionStatus
	Rationale  string
	ExecutedAt time.Time
}
