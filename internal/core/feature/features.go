package feature

import "fmt"

// Features is the canonical, fully-numeric projection of a Snapshot.
// Every field is populated by Normalize with a documented default when
// the source data is missing or unparsable.
type Features struct {
	EventID string
	Minute  int

	HomeGoals  int
	AwayGoals  int
	TotalGoals int
	GoalDiff   int

	HomeShots         int
	AwayShots         int
	HomeShotsOnTarget int
	AwayShotsOnTarget int
	HomeCorners       int
	AwayCorners       int
	HomeAttacks       int
	AwayAttacks       int
	HomeDangerous     int
	AwayDangerous     int

	// ConversionRate is goals/shots over both sides. Nil when no shots
	// were recorded, so downstream consumers can tell "no data" from 0.
	ConversionRate *float64

	// Odds maps market key ("under_4.5") to the best decimal price seen.
	Odds map[string]float64

	HomeAvgGoals float64
	AwayAvgGoals float64

	League  string
	Country string

	HomeTeam string
	AwayTeam string

	// Warnings lists fields that fell back to their default during
	// normalization. Diagnostics only; never gates a decision.
	Warnings []string
}

// CombinedAvgGoals is the legacy low-scoring-teams gate input.
func (f *Features) CombinedAvgGoals() float64 {
	return f.HomeAvgGoals + f.AwayAvgGoals
}

// ScoreString reconstructs the canonical "H - A" form.
func (f *Features) ScoreString() string {
	return fmt.Sprintf("%d - %d", f.HomeGoals, f.AwayGoals)
}

// UnderMarket formats the under market key for a whole goal line,
// e.g. UnderMarket(5) -> "under_5.5".
func UnderMarket(line int) string {
	return fmt.Sprintf("under_%d.5", line)
}
