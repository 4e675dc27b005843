// Package advisors provides AI advisory agent interfaces and implementations
// for session decision support.
package advisors

import (
	"context"
	"fmt"
	"time"

	"agent-trader/internal/models"
)

// Advisor defines the interface for advisory agents consulted before a
// trading decision.
type Advisor interface {
	// Name returns the unique name of the advisor.
	Name() string
	// Advise produces an opinion for the given request.
	Advise(ctx context.Context, req Request) (*Opinion, error)
}

// Request contains all data an advisor needs to form an opinion.
type Request struct {
	AgentID      string
	Task         string
	Mode         models.Mode
	Portfolio    *models.FinancialSnapshot
	Holdings     []models.Holding
	Transactions []models.Transaction
}

// Opinion is an advisor's analysis output. All fields are required for a
// valid opinion.
type Opinion struct {
	AdvisorName string    `json:"advisorName"`
	Assessment  string    `json:"assessment"`
	Confidence  float64   `json:"confidence"` // 0-100
	Timestamp   time.Time `json:"timestamp"`
}

// Validate checks that the opinion contains all required fields.
func (o *Opinion) Validate() error {
	if o.AdvisorName == "" {
		return fmt.Errorf("advisor name is required")
	}
	if o.Assessment == "" {
		return fmt.Errorf("assessment is required")
	}
	if o.Confidence < 0 || o.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100, got %f", o.Confidence)
	}
	if o.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Result is one advisor's outcome within a fan-out: either an opinion or an
// unavailability reason, never both.
type Result struct {
	Name              string   `json:"name"`
	Opinion           *Opinion `json:"opinion,omitempty"`
	UnavailableReason string   `json:"unavailableReason,omitempty"`
}

// Available reports whether the advisor produced an opinion.
func (r Result) Available() bool {
	return r.Opinion != nil
}

// BaseAdvisor provides common functionality for all advisors.
type BaseAdvisor struct {
	name string
}

// NewBaseAdvisor creates a base advisor with the given name.
func NewBaseAdvisor(name string) BaseAdvisor {
	return BaseAdvisor{name: name}
}

// Name returns the advisor's name.
func (b *BaseAdvisor) Name() string {
	return b.name
}

// CreateOpinion creates an Opinion with common fields populated.
func (b *BaseAdvisor) CreateOpinion(assessment string, confidence float64) *Opinion {
	return &Opinion{
		AdvisorName: b.name,
		Assessment:  assessment,
		Confidence:  ClampConfidence(confidence),
		Timestamp:   time.Now().UTC(),
	}
}

// ClampConfidence ensures confidence is within valid range [0, 100].
func ClampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}
