package models

import "time"

// SessionStatus represents the lifecycle state of an execution session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state. A session in a
// terminal state is immutable; at most one non-terminal session may exist
// per agent.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// Session represents one execution attempt of an agent's decision cycle.
type Session struct {
	ID            string
	AgentID       string
	Mode          Mode
	Status        SessionStatus
	Task          string // captured input context
	Rationale     string // decision collaborator's free-text reasoning
	Summary       string // structured output summary
	ToolsInvoked  []string
	TradesApplied int
	Error         string
	StartedAt     time.Time
	EndedAt       time.Time
	CreatedAt     time.Time
}

// Duration returns the wall-clock execution time of the session, or the
// elapsed time so far when it has not ended.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}
