package music

import "strings"

// alternateVersionMarkers flag titles that are poor guessing targets.
var alternateVersionMarkers = []string{
	"remix",
	"sped up",
	"slowed down",
	"acoustic",
	"live",
	"demo",
	"instrumental",
	"karaoke",
}

func IsAlternateVersion(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range alternateVersionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// PickUnplayed chooses a random track whose ID is not in played, preferring
// original versions. intn must behave like rand.Intn. It reports false when
// every track has been played.
func PickUnplayed(tracks []Track, played map[string]bool, intn func(int) int) (Track, bool) {
	available := make([]Track, 0, len(tracks))
	originals := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if played[t.ID] {
			continue
		}
		available = append(available, t)
		if !IsAlternateVersion(t.Title) {
			originals = append(originals, t)
		}
	}
	if len(available) == 0 {
		return Track{}, false
	}
	pool := originals
	if len(pool) == 0 {
		pool = available
	}
	return pool[intn(len(pool))], true
}
