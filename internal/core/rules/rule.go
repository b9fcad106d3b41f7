package rules

// Kind discriminates the Rule variant.
type Kind string

const (
	KindGoals     Kind = "goals"
	KindTime      Kind = "time"
	KindStake     Kind = "stake"
	KindOdds      Kind = "odds"
	KindDivisor   Kind = "divisor"
	KindComposite Kind = "composite"
)

// DefaultGoalLineBuffer is added to the current goal total to pick the
// target under line when no goals rule overrides it.
const DefaultGoalLineBuffer = 3

// Rule is a tagged variant over the supported rule kinds. Exactly one
// params pointer is non-nil and matches Kind; a mismatch is treated as
// a malformed rule and fails closed during evaluation.
type Rule struct {
	Kind   Kind
	Active bool

	Goals     *GoalsParams
	Time      *TimeParams
	Stake     *StakeParams
	Odds      *OddsParams
	Divisor   *DivisorParams
	Composite *CompositeParams
}

// OddsRange is an inclusive decimal price band.
type OddsRange struct {
	Min float64
	Max float64
}

// GoalsParams gates on the current goal total, with an optional
// advisory price band on the implied target under line.
type GoalsParams struct {
	MinGoals       int
	MaxGoals       int
	GoalLineBuffer int        // whole goals added to the total for the target line; 0 means default
	Odds           *OddsRange // nil = no price band
	Leagues        []string   // empty = all leagues
	Countries      []string   // empty = all countries
}

func (p *GoalsParams) Buffer() int {
	if p.GoalLineBuffer > 0 {
		return p.GoalLineBuffer
	}
	return DefaultGoalLineBuffer
}

// TimeParams gates on the match minute, inclusive both ends.
type TimeParams struct {
	MinMinute int
	MaxMinute int
}

// StakeParams carries the stake recommendation. Never gates suitability.
type StakeParams struct {
	Stake    float64
	Strategy string // "fixed" or "percentage"
}

// OddsParams gates suitability on a resolvable price for Market.
// An empty Market means the computed target under line.
type OddsParams struct {
	Market string
	Min    float64
	Max    float64
}

// DivisorParams scales the aggregate stake down. Never gates suitability.
type DivisorParams struct {
	Divisor float64
}

// CompositeParams is a conjunction of goal/time sub-conditions.
type CompositeParams struct {
	Conditions []Condition
}

// Condition compares one feature field against a threshold.
type Condition struct {
	Field      string // "goals" or "time"
	Comparison string // "<=", ">=", "<", ">", "between"
	Value      float64
	Min        float64
	Max        float64
}

// Defaults is the hardcoded fallback rule set used when no rule file
// is configured: 1-3 goals with a tight under-line price band, minute
// window 52-61, half-unit fixed stake.
func Defaults() []Rule {
	return []Rule{
		{
			Kind:   KindGoals,
			Active: true,
			Goals: &GoalsParams{
				MinGoals:       1,
				MaxGoals:       3,
				GoalLineBuffer: DefaultGoalLineBuffer,
				Odds:           &OddsRange{Min: 1.01, Max: 1.05},
			},
		},
		{
			Kind:   KindTime,
			Active: true,
			Time:   &TimeParams{MinMinute: 52, MaxMinute: 61},
		},
		{
			Kind:   KindStake,
			Active: true,
			Stake:  &StakeParams{Stake: 0.5, Strategy: "fixed"},
		},
	}
}
