package decision

import "github.com/underxbet/inplay-engine/internal/core/feature"

// Risk levels attached to every decision.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// RiskScore rates how likely further goals are on a 0-10 scale.
// Higher means more goal pressure, which is bad for an under position.
func RiskScore(f *feature.Features) int {
	score := 2

	combined := f.CombinedAvgGoals()
	switch {
	case combined > 5.0:
		score += 4
	case combined > 4.0:
		score += 3
	case combined > 3.0:
		score += 2
	case combined > 2.5:
		score++
	}

	if f.Minute > 0 {
		projected := float64(f.TotalGoals) / float64(f.Minute) * 90
		switch {
		case projected > 5.5:
			score += 3
		case projected > 4.5:
			score += 2
		case projected > 3.5:
			score++
		}
	}

	minute := f.Minute
	if minute < 1 {
		minute = 1
	}
	dangerRate := float64(f.HomeDangerous+f.AwayDangerous) / float64(minute)
	if dangerRate > 1.5 {
		score++
	}

	if score > 10 {
		score = 10
	}
	if score < 0 {
		score = 0
	}
	return score
}

func RiskLevel(score int) string {
	switch {
	case score < 3:
		return RiskLow
	case score < 5:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// FallbackConfidence derives a confidence from the risk score when no
// model prediction is available, clamped to [0.5, 0.95].
func FallbackConfidence(score int) float64 {
	conf := 1.0 - float64(score)/10.0
	if conf < 0.5 {
		conf = 0.5
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}
