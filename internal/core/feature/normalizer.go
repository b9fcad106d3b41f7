package feature

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// defaultAvgGoals stands in when a team has no scoring history yet.
const defaultAvgGoals = 1.5

var intRe = regexp.MustCompile(`\d+`)

// Normalize projects a raw Snapshot into canonical Features. It is a
// total function: every unparsable field resolves to its documented
// default with a warning, and a bad field never aborts the rest of the
// projection.
func Normalize(snap *Snapshot) Features {
	f := Features{
		EventID:  snap.ID,
		League:   snap.League,
		Country:  snap.Country,
		HomeTeam: snap.HomeTeam,
		AwayTeam: snap.AwayTeam,
		Odds:     map[string]float64{},
	}

	minute, ok := ParseMinute(snap.Minute)
	if !ok && len(snap.Minute) > 0 {
		f.Warnings = append(f.Warnings, "minute")
		telemetry.Metrics.SnapshotParseWarns.Inc()
		telemetry.Warnf("normalize[%s]: unparsable minute %s, using 0", snap.ID, string(snap.Minute))
	}
	f.Minute = minute

	home, away, ok := ParseScore(snap.Score)
	if !ok && snap.Score != "" {
		f.Warnings = append(f.Warnings, "score")
		telemetry.Metrics.SnapshotParseWarns.Inc()
		telemetry.Warnf("normalize[%s]: unparsable score %q, using 0-0", snap.ID, snap.Score)
	}
	f.HomeGoals, f.AwayGoals = home, away
	f.TotalGoals = home + away
	f.GoalDiff = home - away

	if snap.Stats != nil {
		f.HomeShots = looseInt(snap.Stats.Home.Shots)
		f.AwayShots = looseInt(snap.Stats.Away.Shots)
		f.HomeShotsOnTarget = looseInt(snap.Stats.Home.ShotsOnTarget)
		f.AwayShotsOnTarget = looseInt(snap.Stats.Away.ShotsOnTarget)
		f.HomeCorners = looseInt(snap.Stats.Home.Corners)
		f.AwayCorners = looseInt(snap.Stats.Away.Corners)
		f.HomeAttacks = looseInt(snap.Stats.Home.Attacks)
		f.AwayAttacks = looseInt(snap.Stats.Away.Attacks)
		f.HomeDangerous = looseInt(snap.Stats.Home.DangerousAttacks)
		f.AwayDangerous = looseInt(snap.Stats.Away.DangerousAttacks)
	}

	// Conversion rate is omitted (nil) when no shots were recorded.
	// Forcing it to zero would bias any model feature built on it.
	if shots := f.HomeShots + f.AwayShots; shots > 0 {
		rate := float64(f.TotalGoals) / float64(shots)
		f.ConversionRate = &rate
	}

	if len(snap.Odds) > 0 {
		odds, clean := extractOdds(snap.ID, snap.Odds)
		f.Odds = odds
		if !clean {
			f.Warnings = append(f.Warnings, "odds")
		}
	}

	f.HomeAvgGoals = looseFloatDefault(snap.HomeAvgGoals, defaultAvgGoals)
	f.AwayAvgGoals = looseFloatDefault(snap.AwayAvgGoals, defaultAvgGoals)

	return f
}

// ParseMinute accepts a JSON number, a digit string, "HT", "FT", and
// the added-time form "45+2" (added time is dropped for threshold
// purposes). Returns (0, false) when nothing usable is found.
func ParseMinute(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return clampMinute(n), true
	}

	var fl float64
	if err := json.Unmarshal(raw, &fl); err == nil {
		return clampMinute(int(fl)), true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}

	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "'"))
	switch strings.ToUpper(s) {
	case "HT":
		return 45, true
	case "FT", "AET":
		return 90, true
	}

	if base, _, found := strings.Cut(s, "+"); found {
		s = strings.TrimSpace(base)
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return clampMinute(n), true
}

func clampMinute(n int) int {
	if n < 0 {
		return 0
	}
	if n > 120 {
		return 120
	}
	return n
}

// ParseScore extracts (home, away) goals from any string containing
// exactly two integers: "1 - 1", "2-0", "3 : 2". Internal whitespace
// is irrelevant. Returns (0, 0, false) on anything else.
func ParseScore(s string) (int, int, bool) {
	if s == "" {
		return 0, 0, false
	}
	parts := intRe.FindAllString(strings.Join(strings.Fields(s), " "), -1)
	if len(parts) != 2 {
		return 0, 0, false
	}
	home, err1 := strconv.Atoi(parts[0])
	away, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return home, away, true
}

// nestedOdds mirrors the bookmaker-keyed odds document:
//
//	{"overUnderOdds": {"under": {"4.5": {"odds": {"bet365": "1.03", ...}}}}}
type nestedOdds struct {
	OverUnder struct {
		Under map[string]lineOdds `json:"under"`
		Over  map[string]lineOdds `json:"over"`
	} `json:"overUnderOdds"`
}

type lineOdds struct {
	Odds map[string]json.RawMessage `json:"odds"`
}

// extractOdds handles both the flat {"under_4.5": 1.03} shape and the
// nested per-bookmaker shape, taking the best (highest) price across
// bookmakers for nested markets. A parse failure in one market never
// blocks the others; clean reports whether all markets parsed.
func extractOdds(eventID string, raw json.RawMessage) (map[string]float64, bool) {
	out := map[string]float64{}
	clean := true

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		telemetry.Warnf("normalize[%s]: odds document unreadable: %v", eventID, err)
		return out, false
	}

	for key, val := range flat {
		if key == "overUnderOdds" {
			continue
		}
		price, ok := looseFloat(val)
		if !ok {
			clean = false
			continue
		}
		out[key] = price
	}

	if _, hasNested := flat["overUnderOdds"]; hasNested {
		var nested nestedOdds
		if err := json.Unmarshal(raw, &nested); err != nil {
			telemetry.Debugf("normalize[%s]: nested odds unreadable: %v", eventID, err)
			return out, false
		}
		mergeNestedLines(out, "under", nested.OverUnder.Under, &clean)
		mergeNestedLines(out, "over", nested.OverUnder.Over, &clean)
	}

	return out, clean
}

func mergeNestedLines(out map[string]float64, side string, lines map[string]lineOdds, clean *bool) {
	for lineStr, lo := range lines {
		line, err := strconv.ParseFloat(lineStr, 64)
		if err != nil {
			*clean = false
			continue
		}

		best := 0.0
		for _, rawPrice := range lo.Odds {
			price, ok := looseFloat(rawPrice)
			if !ok {
				*clean = false
				continue
			}
			if price > best {
				best = price
			}
		}
		if best <= 0 {
			continue
		}
		out[side+"_"+strconv.FormatFloat(line, 'g', -1, 64)] = best
	}
}

// looseInt decodes a JSON number or digit string; missing/bad -> 0.
func looseInt(raw json.RawMessage) int {
	f, ok := looseFloat(raw)
	if !ok {
		return 0
	}
	return int(f)
}

// looseFloat decodes a JSON number or numeric string.
func looseFloat(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func looseFloatDefault(raw json.RawMessage, fallback float64) float64 {
	f, ok := looseFloat(raw)
	if !ok || f <= 0 {
		return fallback
	}
	return f
}
