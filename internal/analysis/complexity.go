package analysis

import "strings"

// Complexity bands. The integer scale is coarse on purpose; downstream
// consumers compare scores across recordings, so the weight table below must
// not change.
const (
	BandSimple   = "simple"   // score <= 2
	BandModerate = "moderate" // 3..6
	BandComplex  = "complex"  // > 6
)

// ComplexityScore computes the heuristic command complexity:
//
//	+2 per pipe, +1 per redirection character, +1 for background execution,
//	+2 per && or ||, +3 for command substitution, +2 for length > 100 or
//	+3 for length > 200, plus the sub-command count of ;-separated lines.
func ComplexityScore(command string) int {
	score := 0

	score += 2 * strings.Count(command, "|")
	// || is conditional chaining, not two pipes: take its pipe chars back and
	// charge the chain rate instead.
	orChains := strings.Count(command, "||")
	score -= 4 * orChains
	score += 2 * orChains

	score += strings.Count(command, ">")
	score += strings.Count(command, "<")

	andChains := strings.Count(command, "&&")
	score += 2 * andChains
	if strings.Count(command, "&")-2*andChains > 0 {
		score++ // background execution
	}

	if strings.Contains(command, "$(") || strings.Contains(command, "`") {
		score += 3
	}

	switch {
	case len(command) > 200:
		score += 3
	case len(command) > 100:
		score += 2
	}

	if parts := strings.Split(command, ";"); len(parts) > 1 {
		score += len(parts)
	}

	return score
}

// ComplexityBand maps a score to its band label.
func ComplexityBand(score int) string {
	switch {
	case score <= 2:
		return BandSimple
	case score <= 6:
		return BandModerate
	default:
		return BandComplex
	}
}
