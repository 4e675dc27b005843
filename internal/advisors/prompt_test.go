package advisors

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"agent-trader/internal/models"
)

func TestParseOpinionStructuredResponse(t *testing.T) {
	base := NewBaseAdvisor("technical")
	opinion, err := parseOpinion(&base, "CONFIDENCE: 72\nASSESSMENT: momentum is positive")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if opinion.Confidence != 72 {
		t.Errorf("confidence = %f, want 72", opinion.Confidence)
	}
	if opinion.Assessment != "momentum is positive" {
		t.Errorf("assessment = %q", opinion.Assessment)
	}
	if opinion.AdvisorName != "technical" {
		t.Errorf("advisor name = %q", opinion.AdvisorName)
	}
}

func TestParseOpinionFallsBackToWholeResponse(t *testing.T) {
	base := NewBaseAdvisor("sentiment")
	opinion, err := parseOpinion(&base, "The crowd is euphoric, be careful.")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if opinion.Confidence != 50 {
		t.Errorf("confidence = %f, want default 50", opinion.Confidence)
	}
	if !strings.Contains(opinion.Assessment, "euphoric") {
		t.Errorf("assessment = %q", opinion.Assessment)
	}
}

func TestParseOpinionEmptyResponse(t *testing.T) {
	base := NewBaseAdvisor("risk")
	if _, err := parseOpinion(&base, "   \n  "); err == nil {
		t.Errorf("empty response should error")
	}
}

func TestParseOpinionClampsConfidence(t *testing.T) {
	base := NewBaseAdvisor("technical")
	opinion, err := parseOpinion(&base, "CONFIDENCE: 400\nASSESSMENT: too sure")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if opinion.Confidence != 100 {
		t.Errorf("confidence = %f, want clamped to 100", opinion.Confidence)
	}
}

func TestBuildPortfolioContext(t *testing.T) {
	req := Request{
		Task: "rebalance",
		Mode: models.ModeFullTrading,
		Portfolio: &models.FinancialSnapshot{
			CurrentFunds:        decimal.NewFromInt(50000),
			HoldingsValue:       decimal.NewFromInt(25000),
			TotalPortfolioValue: decimal.NewFromInt(75000),
		},
		Holdings: []models.Holding{
			{Ticker: "ACME", Quantity: 50, AverageCost: decimal.NewFromInt(500)},
		},
	}

	out := buildPortfolioContext(req)
	for _, want := range []string{"Task: rebalance", "Cash: 50000.00", "ACME: 50 @ avg 500.0000"} {
		if !strings.Contains(out, want) {
			t.Errorf("context missing %q:\n%s", want, out)
		}
	}
}
