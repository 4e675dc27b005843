package advisors

import (
	"context"

	"agent-trader/internal/errors"
)

// TechnicalAdvisor analyzes price action and position structure.
type TechnicalAdvisor struct {
	BaseAdvisor
	llmClient LLMClient
}

// NewTechnicalAdvisor creates a new technical analysis advisor.
func NewTechnicalAdvisor(llmClient LLMClient) *TechnicalAdvisor {
	return &TechnicalAdvisor{
		BaseAdvisor: NewBaseAdvisor("technical"),
		llmClient:   llmClient,
	}
}

// Advise performs technical analysis on the portfolio.
func (a *TechnicalAdvisor) Advise(ctx context.Context, req Request) (*Opinion, error) {
	if a.llmClient == nil {
		return nil, errors.NewAdvisorError(a.Name(), errors.ErrAdvisorUnavailable)
	}

	systemPrompt := `You are a technical analysis expert advising an autonomous trading agent.
Review the portfolio's positions and recent trade history for momentum, entry quality and position sizing.
Your response must be in the following exact format:
CONFIDENCE: <number 0-100>
ASSESSMENT: <your analysis in one paragraph>`

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
