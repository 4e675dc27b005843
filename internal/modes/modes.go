// Package modes maps a session's declared mode to its allowed capabilities.
package modes

import (
	"fmt"
	"sort"

	"agent-trader/internal/models"
)

// Advisor names known to the capability table. Fan-out output preserves this
// order.
const (
	AdvisorTechnical   = "technical"
	AdvisorSentiment   = "sentiment"
	AdvisorFundamental = "fundamental"
	AdvisorRisk        = "risk"
)

// Capabilities is the resolved capability set for a mode.
type Capabilities struct {
	AllowedAdvisors   map[string]bool
	AllowedActions    map[models.TradeAction]bool
	TradeToolsEnabled bool
}

// AdvisorAllowed reports whether the named advisor may run.
func (c Capabilities) AdvisorAllowed(name string) bool {
	return c.AllowedAdvisors[name]
}

// ActionAllowed reports whether the trade action is permitted.
func (c Capabilities) ActionAllowed(action models.TradeAction) bool {
	return c.AllowedActions[action]
}

// AdvisorNames returns the allowed advisor names in stable sorted order.
func (c Capabilities) AdvisorNames() []string {
	names := make([]string, 0, len(c.AllowedAdvisors))
	for name, allowed := range c.AllowedAdvisors {
		if allowed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ActionList returns the permitted actions in stable order, BUY first.
func (c Capabilities) ActionList() []models.TradeAction {
	actions := make([]models.TradeAction, 0, len(c.AllowedActions))
	for _, a := range []models.TradeAction{models.ActionBuy, models.ActionSell} {
		if c.AllowedActions[a] {
			actions = append(actions, a)
		}
	}
	return actions
}

// Resolve maps a mode to its capability set. It is total over the declared
// modes and side-effect-free; unknown modes return an error rather than a
// zero capability set.
func Resolve(mode models.Mode) (Capabilities, error) {
	switch mode {
	case models.ModeFullTrading:
		return Capabilities{
			AllowedAdvisors: map[string]bool{
				AdvisorTechnical:   true,
				AdvisorSentiment:   true,
				AdvisorFundamental: true,
				AdvisorRisk:        true,
			},
			AllowedActions: map[models.TradeAction]bool{
				models.ActionBuy:  true,
				models.ActionSell: true,
			},
			TradeToolsEnabled: true,
		}, nil
	case models.ModeRebalanceOnly:
		// No cash-funded buys: portfolio queries and sells only, with the
		// technical and risk advisors.
		return Capabilities{
			AllowedAdvisors: map[string]bool{
				AdvisorTechnical: true,
				AdvisorRisk:      true,
			},
			AllowedActions: map[models.TradeAction]bool{
				models.ActionSell: true,
			},
			TradeToolsEnabled: false,
		}, nil
	}
	return Capabilities{}, fmt.Errorf("unknown mode: %q", mode)
}

// Declared returns all declared modes.
func Declared() []models.Mode {
	return []models.Mode{models.ModeFullTrading, models.ModeRebalanceOnly}
}
