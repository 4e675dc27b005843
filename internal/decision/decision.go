// Package decision produces the final trade decision for a session from the
// task, portfolio context and advisor opinions.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sashabaranov/go-openai"

	"agent-trader/internal/advisors"
	"agent-trader/internal/errors"
	"agent-trader/internal/models"
)

// Decision is the collaborator's final output for a session.
type Decision struct {
	Intents   []models.TradeIntent `json:"trades"`
	Rationale string               `json:"rationale"`
	Summary   string               `json:"summary"`
}

// Decider produces a decision from the session context and advisor results.
type Decider interface {
	Decide(ctx context.Context, req Request) (*Decision, error)
}

// Request carries everything the decider needs.
type Request struct {
	AgentID        string
	Task           string
	Mode           models.Mode
	AllowedActions []models.TradeAction
	Portfolio      *models.FinancialSnapshot
	Holdings       []models.Holding
	Advice         []advisors.Result
}

// maxRetries bounds transport-level retries. Malformed model output is not
// retried; it fails the decision.
const maxRetries = 3

// OpenAIDecider implements Decider against the OpenAI chat API.
type OpenAIDecider struct {
	client *openai.Client
	model  string
}

// NewOpenAIDecider creates a decider using the given model.
func NewOpenAIDecider(apiKey, model string) *OpenAIDecider {
	return &OpenAIDecider{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIDeciderWithBaseURL creates a decider against a custom endpoint.
func NewOpenAIDeciderWithBaseURL(apiKey, model, baseURL string) *OpenAIDecider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIDecider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the model name.
func (d *OpenAIDecider) Model() string {
	return d.model
}

// Decide asks the model for a JSON decision. Transport errors are retried
// with exponential backoff; context cancellation and malformed output are
// fatal.
func (d *OpenAIDecider) Decide(ctx context.Context, req Request) (*Decision, error) {
	systemPrompt := buildSystemPrompt(req.AllowedActions)
	userPrompt := buildUserPrompt(req)

	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.NewDecisionError(d.model, "decision aborted", ctx.Err())
			case <-time.After(b.Duration()):
			}
		}

		resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: d.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.NewDecisionError(d.model, "decision aborted", ctx.Err())
			}
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response from model")
			continue
		}

		decision, err := parseDecision(resp.Choices[0].Message.Content)
		if err != nil {
			return nil, errors.NewDecisionError(d.model, "malformed decision output", err)
		}
		return decision, nil
	}

	return nil, errors.NewDecisionError(d.model, "decision request failed", lastErr)
}

func buildSystemPrompt(allowed []models.TradeAction) string {
	actions := make([]string, len(allowed))
	for i, a := range allowed {
		actions[i] = string(a)
	}
	return fmt.Sprintf(`You are the decision maker for an autonomous trading agent.
Weigh the advisor opinions and the portfolio state, then decide what trades to place.
Allowed actions: %s. An empty trade list is a valid decision.
Respond with a single JSON object in this exact shape:
{"trades": [{"ticker": "...", "action": "BUY|SELL", "quantity": 1, "price": "123.45", "rationale": "..."}], "rationale": "...", "summary": "..."}`,
		strings.Join(actions, ", "))
}

func buildUserPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Task: %s\n", req.Task))
	sb.WriteString(fmt.Sprintf("Mode: %s\n\n", req.Mode))

	if req.Portfolio != nil {
		sb.WriteString(fmt.Sprintf("Cash: %s\n", req.Portfolio.CurrentFunds.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("Holdings Value: %s\n", req.Portfolio.HoldingsValue.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("Total Value: %s\n\n", req.Portfolio.TotalPortfolioValue.StringFixed(2)))
	}

	if len(req.Holdings) > 0 {
		sb.WriteString("Holdings:\n")
		for _, h := range req.Holdings {
			sb.WriteString(fmt.Sprintf("  - %s: %d @ avg %s\n", h.Ticker, h.Quantity, h.AverageCost.StringFixed(4)))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Advisor Opinions:\n")
	for _, r := range req.Advice {
		if r.Available() {
			sb.WriteString(fmt.Sprintf("  - %s (confidence %.0f): %s\n", r.Name, r.Opinion.Confidence, r.Opinion.Assessment))
		} else {
			sb.WriteString(fmt.Sprintf("  - %s: unavailable (%s)\n", r.Name, r.UnavailableReason))
		}
	}

	return sb.String()
}

// parseDecision extracts the decision JSON, tolerating code fences around it.
func parseDecision(content string) (*Decision, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var d Decision
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return nil, fmt.Errorf("invalid decision JSON: %w", err)
	}
	if d.Summary == "" {
		d.Summary = d.Rationale
	}
	for i, intent := range d.Intents {
		if intent.Ticker == "" {
			return nil, fmt.Errorf("trade %d: ticker is required", i)
		}
		if intent.Quantity <= 0 {
			return nil, fmt.Errorf("trade %d: quantity must be positive", i)
		}
		if !intent.Price.IsPositive() {
			return nil, fmt.Errorf("trade %d: price must be positive", i)
		}
	}
	return &d, nil
}

var _ Decider = (*OpenAIDecider)(nil)
