package feature

import "encoding/json"

// Snapshot is one observation of a live match as pushed by the feed.
// Field types mirror the feed's loose JSON: the minute may be a number
// or a string ("HT", "45+2"), stat counters may arrive as numbers or
// digit strings, odds may be flat or nested per bookmaker, and most
// fields can be absent entirely. The engine never mutates a Snapshot.
type Snapshot struct {
	ID      string          `json:"id"`
	Minute  json.RawMessage `json:"minute,omitempty"`
	Score   string          `json:"score,omitempty"`
	League  string          `json:"league,omitempty"`
	Country string          `json:"country,omitempty"`

	HomeTeam string `json:"home_team,omitempty"`
	AwayTeam string `json:"away_team,omitempty"`

	Stats *MatchStats     `json:"stats,omitempty"`
	Odds  json.RawMessage `json:"odds,omitempty"`

	HomeAvgGoals json.RawMessage `json:"home_avg_goals,omitempty"`
	AwayAvgGoals json.RawMessage `json:"away_avg_goals,omitempty"`

	IsLive    bool  `json:"is_live,omitempty"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// MatchStats holds per-side in-play counters.
type MatchStats struct {
	Home SideStats `json:"home"`
	Away SideStats `json:"away"`
}

// SideStats counters are RawMessage because the feed flips between
// `"shots": 7` and `"shots": "7"` depending on provider.
type SideStats struct {
	Shots            json.RawMessage `json:"shots,omitempty"`
	ShotsOnTarget    json.RawMessage `json:"shots_on_target,omitempty"`
	Corners          json.RawMessage `json:"corners,omitempty"`
	Attacks          json.RawMessage `json:"attacks,omitempty"`
	DangerousAttacks json.RawMessage `json:"dangerous_attacks,omitempty"`
}
