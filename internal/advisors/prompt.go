package advisors

import (
	"fmt"
	"strconv"
	"strings"
)

// buildPortfolioContext renders the request as a structured context block
// shared by all advisors.
func buildPortfolioContext(req Request) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Task: %s\n", req.Task))
	sb.WriteString(fmt.Sprintf("Mode: %s\n\n", req.Mode))

	if req.Portfolio != nil {
		sb.WriteString("Portfolio:\n")
		sb.WriteString(fmt.Sprintf("  - Cash: %s\n", req.Portfolio.CurrentFunds.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("  - Holdings Value: %s\n", req.Portfolio.HoldingsValue.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("  - Total Value: %s\n\n", req.Portfolio.TotalPortfolioValue.StringFixed(2)))
	}

	if len(req.Holdings) > 0 {
		sb.WriteString("Holdings:\n")
		for _, h := range req.Holdings {
			sb.WriteString(fmt.Sprintf("  - %s: %d @ avg %s\n", h.Ticker, h.Quantity, h.AverageCost.StringFixed(4)))
		}
		sb.WriteString("\n")
	}

	if len(req.Transactions) > 0 {
		sb.WriteString("Recent Transactions:\n")
		for _, t := range req.Transactions {
			sb.WriteString(fmt.Sprintf("  - %s %s %d @ %s on %s\n",
				t.Action, t.Ticker, t.Quantity, t.Price.String(), t.ExecutedAt.Format("2006-01-02")))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// parseOpinion extracts an opinion from the LLM's structured response.
// Expected format:
//
//	CONFIDENCE: <number 0-100>
//	ASSESSMENT: <analysis paragraph>
func parseOpinion(base *BaseAdvisor, response string) (*Opinion, error) {
	confidence := 50.0
	var assessment string

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "CONFIDENCE:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				confidence = v
			}
		case strings.HasPrefix(line, "ASSESSMENT:"):
			assessment = strings.TrimSpace(strings.TrimPrefix(line, "ASSESSMENT:"))
		}
	}

	// Fall back to the whole response when the model ignored the format.
	if assessment == "" {
		assessment = strings.TrimSpace(response)
	}
	if assessment == "" {
		return nil, fmt.Errorf("empty advisor response")
	}

	opinion := base.CreateOpinion(assessment, confidence)
	if err := opinion.Validate(); err != nil {
		return nil, err
	}
	return opinion, nil
}
