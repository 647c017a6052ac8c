package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port     string
	LogLevel zerolog.Level

	SpotifyAPIURL string
	DeezerAPIURL  string
	HTTPTimeout   time.Duration

	PreviewMaxRetries   int
	PreviewRetryBackoff time.Duration
	PickMaxCandidates   int

	// ScoreLiveClock scores correct guesses with the countdown value
	// instead of the flat time bonus.
	ScoreLiveClock bool
}

// Load reads an optional .env file from the working directory and then the
// process environment. Variables already set in the environment win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not read .env")
	}
	return FromEnv()
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.LogLevel = getLevel("LOG_LEVEL", zerolog.InfoLevel)
	c.SpotifyAPIURL = getenv("SPOTIFY_API_URL", "https://api.spotify.com")
	c.DeezerAPIURL = getenv("DEEZER_API_URL", "https://api.deezer.com")
	c.HTTPTimeout = getDuration("HTTP_TIMEOUT", 20*time.Second)
	c.PreviewMaxRetries = getInt("PREVIEW_MAX_RETRIES", 3)
	c.PreviewRetryBackoff = time.Duration(getInt("PREVIEW_RETRY_BACKOFF_MS", 500)) * time.Millisecond
	c.PickMaxCandidates = getInt("PICK_MAX_CANDIDATES", 5)
	c.ScoreLiveClock = getBool("SCORE_LIVE_CLOCK", false)
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring invalid integer")
		return def
	}
	return n
}

func getBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring invalid boolean")
		return def
	}
	return b
}

// getDuration accepts Go durations ("15s") or plain seconds.
func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	log.Warn().Str("key", k).Str("value", v).Msg("ignoring invalid duration")
	return def
}

func getLevel(k string, def zerolog.Level) zerolog.Level {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil {
		log.Warn().Str("key", k).Str("value", v).Msg("ignoring invalid log level")
		return def
	}
	return lvl
}
