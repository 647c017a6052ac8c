package round

import (
	"errors"
	"fmt"
	"strings"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

// Config is the fixed per-round budget derived from a difficulty.
type Config struct {
	Difficulty     Difficulty `json:"difficulty"`
	PlaybackWindow int        `json:"playbackWindow"` // seconds
	MaxAttempts    int        `json:"maxAttempts"`
	Multiplier     int        `json:"multiplier"`
}

var presets = map[Difficulty]Config{
	Easy:   {Difficulty: Easy, PlaybackWindow: 20, MaxAttempts: 3, Multiplier: 1},
	Medium: {Difficulty: Medium, PlaybackWindow: 10, MaxAttempts: 2, Multiplier: 2},
	Hard:   {Difficulty: Hard, PlaybackWindow: 5, MaxAttempts: 1, Multiplier: 3},
}

// ParseDifficulty accepts easy, medium or hard in any case. An empty string
// selects easy.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if d == "" {
		return Easy, nil
	}
	if _, ok := presets[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
	return d, nil
}

// ConfigFor returns the preset for d, falling back to easy for unknown values.
func ConfigFor(d Difficulty) Config {
	if c, ok := presets[d]; ok {
		return c
	}
	return presets[Easy]
}

// Configs lists the presets from easiest to hardest.
func Configs() []Config {
	return []Config{presets[Easy], presets[Medium], presets[Hard]}
}
