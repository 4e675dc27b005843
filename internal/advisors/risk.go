package advisors

import (
	"context"
	"fmt"

	"agent-trader/internal/errors"
)

// RiskAdvisor checks portfolio exposure and drawdown risk. It is the one
// advisor consulted in every mode.
type RiskAdvisor struct {
	BaseAdvisor
	llmClient       LLMClient
	maxPositionSize float64
}

// NewRiskAdvisor creates a new risk advisor. maxPositionSize is the largest
// fraction of portfolio value a single position may take.
func NewRiskAdvisor(llmClient LLMClient, maxPositionSize float64) *RiskAdvisor {
	return &RiskAdvisor{
		BaseAdvisor:     NewBaseAdvisor("risk"),
		llmClient:       llmClient,
		maxPositionSize: maxPositionSize,
	}
}

// Advise assesses the portfolio's risk posture.
func (a *RiskAdvisor) Advise(ctx context.Context, req Request) (*Opinion, error) {
	if a.llmClient == nil {
		return nil, errors.NewAdvisorError(a.Name(), errors.ErrAdvisorUnavailable)
	}

	systemPrompt := fmt.Sprintf(`You are a risk manager advising an autonomous trading agent.
Check cash reserves, concentration and position sizing. No single position should exceed %.0f%% of portfolio value.
Your response must be in the following exact format:
CONFIDENCE: <number 0-100>
ASSESSMENT: <your analysis in one paragraph>`, a.maxPositionSize*100)

	response, err := a.llmClient.CompleteWithSystem(ctx, systemPrompt, buildPortfolioContext(req))
	if err != nil {
		return nil, errors.NewAdvisorError(a.Name(), err)
	}

	opinion, err := parseOpinion(&a.BaseAdvisor, response)
	if err != nil {
		return nil, errors.NewAdvisorError(a.Name(), err)
	}
	return opinion, nil
}
