package advisors

import (
	"context"

	"agent-trader/internal/errors"
)

// FundamentalAdvisor evaluates valuation and business quality.
type FundamentalAdvisor struct {
	BaseAdvisor
	llmClient LLMClient
}

// NewFundamentalAdvisor creates a new fundamental analysis advisor.
func NewFundamentalAdvisor(llmClient LLMClient) *FundamentalAdvisor {
	return &FundamentalAdvisor{
		BaseAdvisor: NewBaseAdvisor("fundamental"),
		llmClient:   llmClient,
	}
}

// Advise evaluates the fundamentals of the portfolio's positions.
func (a *FundamentalAdvisor) Advise(ctx context.Context, req Request) (*Opinion, error) {
	if a.llmClient == nil {
		return nil, errors.NewAdvisorError(a.Name(), errors.ErrAdvisorUnavailable)
	}

	systemPrompt := `You are a fundamental analyst advising an autonomous trading agent.
Evaluate the business quality and valuation of the positions and flag concentration in weak names.
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
