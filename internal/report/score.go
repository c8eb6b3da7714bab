package report

import "math"

const (
	MinScore = 1
	MaxScore = 10
)

// RoundHalfUp rounds x to the nearest integer, with .5 going up.
func RoundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// ClampScore bounds score to [MinScore, MaxScore].
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// PenaltyScore subtracts a weighted penalty per severity from MaxScore, then
// rounds half up and clamps.
func PenaltyScore(findings []Finding, weights map[Severity]float64) int {
	score := float64(MaxScore)
	for _, finding := range findings {
		score -= weights[finding.Severity]
	}
	return ClampScore(RoundHalfUp(score))
}

// Grade maps a 1-10 score to a letter grade.
func Grade(score int) string {
	switch {
	case score >= 9:
		return "A"
	case score >= 8:
		return "B"
	case score >= 7:
		return "C"
	case score >= 6:
		return "D"
	default:
		return "F"
	}
}
