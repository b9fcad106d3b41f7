package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/underxbet/inplay-engine/internal/core/feature"
)

func baseFeatures() *feature.Features {
	return &feature.Features{
		EventID:    "ev1",
		Minute:     55,
		HomeGoals:  1,
		AwayGoals:  1,
		TotalGoals: 2,
		League:     "Serie A",
		Country:    "Italy",
		Odds:       map[string]float64{"under_5.5": 1.03},
	}
}

func defaultTestRules() []Rule {
	return []Rule{
		{Kind: KindGoals, Active: true, Goals: &GoalsParams{
			MinGoals: 1, MaxGoals: 3, GoalLineBuffer: 3,
			Odds: &OddsRange{Min: 1.01, Max: 1.05},
		}},
		{Kind: KindTime, Active: true, Time: &TimeParams{MinMinute: 52, MaxMinute: 61}},
		{Kind: KindStake, Active: true, Stake: &StakeParams{Stake: 0.5, Strategy: "fixed"}},
	}
}

func TestEvaluateSuitable(t *testing.T) {
	v := Evaluate(baseFeatures(), defaultTestRules())

	assert.True(t, v.Suitable)
	assert.Equal(t, "under_5.5", v.Market)
	assert.Equal(t, 5, v.TargetLine)
	assert.InDelta(t, 0.5, v.Stake, 1e-9)
	assert.Equal(t, "fixed", v.StakeStrategy)
	assert.ElementsMatch(t, []string{"goals", "time", "stake"}, v.RulesPassed)
	assert.Empty(t, v.RulesFailed)
}

func TestEvaluateTimeWindowBoundaries(t *testing.T) {
	cases := []struct {
		minute   int
		suitable bool
	}{
		{51, false},
		{52, true},
		{61, true},
		{62, false},
	}
	for _, tc := range cases {
		f := baseFeatures()
		f.Minute = tc.minute
		v := Evaluate(f, defaultTestRules())
		assert.Equal(t, tc.suitable, v.Suitable, "minute %d", tc.minute)
		if !tc.suitable {
			assert.Contains(t, v.RulesFailed, "time")
		}
	}
}

func TestEvaluateGoalsOutOfRange(t *testing.T) {
	f := baseFeatures()
	f.HomeGoals, f.AwayGoals, f.TotalGoals = 2, 2, 4

	v := Evaluate(f, defaultTestRules())

	assert.False(t, v.Suitable)
	assert.Contains(t, v.RulesFailed, "goals")
	// All rules still evaluated after the failure.
	assert.Contains(t, v.RulesPassed, "time")
	assert.InDelta(t, 0.5, v.Stake, 1e-9)
}

func TestEvaluateGoalsPriceBandAdvisory(t *testing.T) {
	// Target line quoted but outside the band: reject.
	f := baseFeatures()
	f.Odds = map[string]float64{"under_5.5": 1.5}
	v := Evaluate(f, defaultTestRules())
	assert.False(t, v.Suitable)
	assert.Contains(t, v.RulesFailed, "goals")

	// Target line not quoted at all: the band cannot reject.
	f = baseFeatures()
	f.Odds = map[string]float64{}
	v = Evaluate(f, defaultTestRules())
	assert.True(t, v.Suitable)
}

func TestEvaluateOddsRuleFailsClosed(t *testing.T) {
	ruleset := append(defaultTestRules(),
		Rule{Kind: KindOdds, Active: true, Odds: &OddsParams{Min: 1.01, Max: 1.10}})

	// Resolvable and in range.
	v := Evaluate(baseFeatures(), ruleset)
	assert.True(t, v.Suitable)

	// No resolvable price for the target market: fail.
	f := baseFeatures()
	f.Odds = map[string]float64{"over_5.5": 9.0}
	v = Evaluate(f, ruleset)
	assert.False(t, v.Suitable)
	assert.Contains(t, v.RulesFailed, "odds")
}

func TestEvaluateLeagueFilter(t *testing.T) {
	ruleset := defaultTestRules()
	ruleset[0].Goals.Leagues = []string{"English Premier League"}

	v := Evaluate(baseFeatures(), ruleset)
	assert.False(t, v.Suitable)

	ruleset[0].Goals.Leagues = []string{"serie a"}
	v = Evaluate(baseFeatures(), ruleset)
	assert.True(t, v.Suitable, "league match is case-insensitive")
}

func TestEvaluateDivisorScalesStake(t *testing.T) {
	ruleset := append(defaultTestRules(),
		Rule{Kind: KindDivisor, Active: true, Divisor: &DivisorParams{Divisor: 2}})

	v := Evaluate(baseFeatures(), ruleset)

	assert.True(t, v.Suitable, "divisor never gates suitability")
	assert.InDelta(t, 0.25, v.Stake, 1e-9)
	assert.Equal(t, "percentage", v.StakeStrategy)
}

func TestEvaluateComposite(t *testing.T) {
	ruleset := []Rule{
		{Kind: KindComposite, Active: true, Composite: &CompositeParams{Conditions: []Condition{
			{Field: "goals", Comparison: "between", Min: 1, Max: 2},
			{Field: "time", Comparison: ">=", Value: 50},
		}}},
	}

	v := Evaluate(baseFeatures(), ruleset)
	assert.True(t, v.Suitable)

	f := baseFeatures()
	f.Minute = 40
	v = Evaluate(f, ruleset)
	assert.False(t, v.Suitable)
	assert.Contains(t, v.RulesFailed, "composite")
}

func TestEvaluateInactiveRulesSkipped(t *testing.T) {
	ruleset := defaultTestRules()
	ruleset[1].Active = false

	f := baseFeatures()
	f.Minute = 10 // would fail the time rule if active
	v := Evaluate(f, ruleset)

	assert.True(t, v.Suitable)
	assert.NotContains(t, v.RulesPassed, "time")
	assert.NotContains(t, v.RulesFailed, "time")
}

func TestEvaluateMalformedRuleFailsClosed(t *testing.T) {
	ruleset := []Rule{
		{Kind: KindGoals, Active: true}, // no params
	}

	v := Evaluate(baseFeatures(), ruleset)

	assert.False(t, v.Suitable)
	assert.Contains(t, v.RulesFailed, "goals")
}

func TestEvaluateMidMatchDrawScenario(t *testing.T) {
	// 1-1 at 55', only the wider line quoted. The embedded price band
	// targets under_5.5, which is unquoted, so the band cannot reject;
	// the recommendation is still the target line.
	f := baseFeatures()
	f.Odds = map[string]float64{"under_6.5": 1.03}

	v := Evaluate(f, defaultTestRules())

	assert.True(t, v.Suitable)
	assert.Equal(t, "under_5.5", v.Market)
	assert.InDelta(t, 0.5, v.Stake, 1e-9)
	assert.Equal(t, "fixed", v.StakeStrategy)
}

func TestEvaluateBufferDrivesMarket(t *testing.T) {
	ruleset := defaultTestRules()
	ruleset[0].Goals.GoalLineBuffer = 2

	f := baseFeatures()
	f.Odds = map[string]float64{"under_4.5": 1.02}
	v := Evaluate(f, ruleset)

	assert.Equal(t, "under_4.5", v.Market)
	assert.Equal(t, 4, v.TargetLine)
	assert.True(t, v.Suitable)
}
