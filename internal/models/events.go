package models

import "time"

// EventType identifies a session lifecycle event.
type EventType string

const (
	EventExecutionStarted   EventType = "ExecutionStarted"
	EventExecutionCompleted EventType = "ExecutionCompleted"
	EventExecutionFailed    EventType = "ExecutionFailed"
	EventExecutionCancelled EventType = "ExecutionCancelled"
)

// Event is a lifecycle event published to dashboard subscribers. Delivery is
// best-effort; events for the same agent reach a given subscriber in emission
// order.
type Event struct {
	Type            EventType          `json:"type"`
	AgentID         string             `json:"agentId"`
	SessionID       string             `json:"sessionId"`
	Error           string             `json:"error,omitempty"`
	ExecutionTimeMs int64              `json:"executionTimeMs,omitempty"`
	Snapshot        *FinancialSnapshot `json:"financialSnapshot,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}
