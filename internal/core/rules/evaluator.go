package rules

import (
	"strings"

	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// Verdict is the outcome of evaluating a rule set against one event's
// features. Suitable is the AND of every active gating rule; stake and
// divisor rules contribute sizing but never gate.
type Verdict struct {
	EventID       string
	Suitable      bool
	RulesPassed   []string
	RulesFailed   []string
	Stake         float64
	StakeStrategy string
	Market        string
	TargetLine    int
}

// Evaluate runs every active rule against f. All rules are evaluated
// even after the first failure so the verdict carries the full
// pass/fail breakdown. A malformed rule fails closed.
func Evaluate(f *feature.Features, ruleset []Rule) Verdict {
	v := Verdict{
		EventID:       f.EventID,
		Suitable:      true,
		StakeStrategy: "fixed",
	}

	buffer := DefaultGoalLineBuffer
	for _, r := range ruleset {
		if r.Kind == KindGoals && r.Active && r.Goals != nil {
			buffer = r.Goals.Buffer()
		}
	}
	v.TargetLine = f.TotalGoals + buffer
	v.Market = feature.UnderMarket(v.TargetLine)

	divisor := 0.0
	for _, r := range ruleset {
		if !r.Active {
			continue
		}
		telemetry.Metrics.RulesEvaluated.Inc()

		switch r.Kind {
		case KindStake:
			if r.Stake != nil {
				v.Stake = r.Stake.Stake
				if r.Stake.Strategy != "" {
					v.StakeStrategy = r.Stake.Strategy
				}
				v.RulesPassed = append(v.RulesPassed, string(KindStake))
			}
		case KindDivisor:
			if r.Divisor != nil && r.Divisor.Divisor > 0 {
				divisor = r.Divisor.Divisor
				v.RulesPassed = append(v.RulesPassed, string(KindDivisor))
			}
		default:
			if evalGate(f, r, v.Market) {
				v.RulesPassed = append(v.RulesPassed, string(r.Kind))
			} else {
				v.RulesFailed = append(v.RulesFailed, string(r.Kind))
				v.Suitable = false
			}
		}
	}

	if divisor > 0 && v.Stake > 0 {
		v.Stake /= divisor
		if v.StakeStrategy == "fixed" {
			v.StakeStrategy = "percentage"
		}
	}

	if v.Suitable {
		telemetry.Metrics.SuitableVerdicts.Inc()
	}
	return v
}

func evalGate(f *feature.Features, r Rule, targetMarket string) bool {
	switch r.Kind {
	case KindGoals:
		if r.Goals == nil {
			return false
		}
		return evalGoals(f, r.Goals)
	case KindTime:
		if r.Time == nil {
			return false
		}
		return f.Minute >= r.Time.MinMinute && f.Minute <= r.Time.MaxMinute
	case KindOdds:
		if r.Odds == nil {
			return false
		}
		return evalOdds(f, r.Odds, targetMarket)
	case KindComposite:
		if r.Composite == nil {
			return false
		}
		return evalComposite(f, r.Composite)
	default:
		// Unknown rule kind fails closed.
		return false
	}
}

func evalGoals(f *feature.Features, p *GoalsParams) bool {
	if len(p.Leagues) > 0 && !containsFold(p.Leagues, f.League) {
		return false
	}
	if len(p.Countries) > 0 && !containsFold(p.Countries, f.Country) {
		return false
	}
	total := f.TotalGoals
	if total < p.MinGoals || total > p.MaxGoals {
		return false
	}
	// The price band is advisory: it only rejects when the target line
	// is actually quoted and the price falls outside the band.
	if p.Odds != nil {
		market := feature.UnderMarket(total + p.Buffer())
		if price, ok := f.Odds[market]; ok {
			if price < p.Odds.Min || price > p.Odds.Max {
				return false
			}
		}
	}
	return true
}

// evalOdds fails closed: no resolvable price means the rule fails.
func evalOdds(f *feature.Features, p *OddsParams, targetMarket string) bool {
	market := p.Market
	if market == "" {
		market = targetMarket
	}
	price, ok := f.Odds[market]
	if !ok {
		return false
	}
	return price >= p.Min && price <= p.Max
}

func evalComposite(f *feature.Features, p *CompositeParams) bool {
	if len(p.Conditions) == 0 {
		return false
	}
	for _, c := range p.Conditions {
		var val float64
		switch c.Field {
		case "goals":
			val = float64(f.TotalGoals)
		case "time":
			val = float64(f.Minute)
		default:
			return false
		}
		if !compare(val, c) {
			return false
		}
	}
	return true
}

func compare(val float64, c Condition) bool {
	switch c.Comparison {
	case "<=":
		return val <= c.Value
	case ">=":
		return val >= c.Value
	case "<":
		return val < c.Value
	case ">":
		return val > c.Value
	case "between":
		return val >= c.Min && val <= c.Max
	default:
		return false
	}
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
