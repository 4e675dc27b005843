package modes

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"agent-trader/internal/models"
)

func TestResolveFullTrading(t *testing.T) {
	caps, err := Resolve(models.ModeFullTrading)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	for _, name := range []string{AdvisorTechnical, AdvisorSentiment, AdvisorFundamental, AdvisorRisk} {
		if !caps.AdvisorAllowed(name) {
			t.Errorf("advisor %s should be allowed", name)
		}
	}
	if !caps.ActionAllowed(models.ActionBuy) || !caps.ActionAllowed(models.ActionSell) {
		t.Errorf("full trading should allow both actions")
	}
	if !caps.TradeToolsEnabled {
		t.Errorf("trade tools should be enabled")
	}
}

func TestResolveRebalanceOnly(t *testing.T) {
	caps, err := Resolve(models.ModeRebalanceOnly)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if caps.ActionAllowed(models.ActionBuy) {
		t.Errorf("rebalance-only must not allow BUY")
	}
	if !caps.ActionAllowed(models.ActionSell) {
		t.Errorf("rebalance-only should allow SELL")
	}
	if caps.AdvisorAllowed(AdvisorSentiment) || caps.AdvisorAllowed(AdvisorFundamental) {
		t.Errorf("rebalance-only should restrict the advisor set")
	}
}

func TestResolveUnknownMode(t *testing.T) {
	if _, err := Resolve(models.Mode("day-trading")); err == nil {
		t.Errorf("unknown mode should error")
	}
}

func TestAdvisorNamesSorted(t *testing.T) {
	caps, _ := Resolve(models.ModeFullTrading)
	names := caps.AdvisorNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("advisor names not sorted: %v", names)
		}
	}
}

// Property: Resolve is total and deterministic over the declared modes, and
// the capability set never allows an action outside BUY/SELL.
func TestProperty_ResolveTotalAndDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	declared := Declared()
	modeGen := gen.IntRange(0, len(declared)-1)

	properties.Property("declared modes resolve identically on every call", prop.ForAll(
		func(idx int) bool {
			mode := declared[idx]
			first, err1 := Resolve(mode)
			second, err2 := Resolve(mode)
			if err1 != nil || err2 != nil {
				return false
			}
			if len(first.AllowedAdvisors) != len(second.AllowedAdvisors) {
				return false
			}
			for name, allowed := range first.AllowedAdvisors {
				if second.AllowedAdvisors[name] != allowed {
					return false
				}
			}
			for action := range first.AllowedActions {
				if action != models.ActionBuy && action != models.ActionSell {
					return false
				}
				if second.AllowedActions[action] != first.AllowedActions[action] {
					return false
				}
			}
			return first.TradeToolsEnabled == second.TradeToolsEnabled
		},
		modeGen,
	))

	properties.Property("undeclared modes always error", prop.ForAll(
		func(s string) bool {
			mode := models.Mode(s)
			for _, d := range declared {
				if mode == d {
					return true
				}
			}
			_, err := Resolve(mode)
			return err != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
