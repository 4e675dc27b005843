package advisors

import (
	"context"

	"agent-trader/internal/errors"
)

// SentimentAdvisor weighs market mood against the portfolio's exposure.
type SentimentAdvisor struct {
	BaseAdvisor
	llmClient LLMClient
}

// NewSentimentAdvisor creates a new sentiment advisor.
func NewSentimentAdvisor(llmClient LLMClient) *SentimentAdvisor {
	return &SentimentAdvisor{
		BaseAdvisor: NewBaseAdvisor("sentiment"),
		llmClient:   llmClient,
	}
}

// Advise assesses sentiment around the portfolio's tickers.
func (a *SentimentAdvisor) Advise(ctx context.Context, req Request) (*Opinion, error) {
	if a.llmClient == nil {
		return nil, errors.NewAdvisorError(a.Name(), errors.ErrAdvisorUnavailable)
	}

	systemPrompt := `You are a market sentiment analyst advising an autonomous trading agent.
Judge the likely sentiment and narrative risk around the tickers the agent holds or is considering.
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
