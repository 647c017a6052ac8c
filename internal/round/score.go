package round

import "math"

const (
	baseScore = 100

	// FlatTimeBonusSeconds is the clock value credited to every correct
	// guess unless the live countdown is used instead.
	FlatTimeBonusSeconds = 15
)

// Score computes the points for a correct guess:
// (100 + floor(time*2) + streak*10) * multiplier.
func Score(d Difficulty, timeRemaining float64, streak int) int {
	if timeRemaining < 0 {
		timeRemaining = 0
	}
	timeBonus := int(math.Floor(timeRemaining * 2))
	return (baseScore + timeBonus + streak*10) * ConfigFor(d).Multiplier
}
