package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/songguesser/internal/config"
	"github.com/kiliankoe/songguesser/internal/game"
	"github.com/kiliankoe/songguesser/internal/music/deezer"
	"github.com/kiliankoe/songguesser/internal/music/spotify"
	"github.com/kiliankoe/songguesser/internal/round"
	"github.com/kiliankoe/songguesser/internal/ws"
	staticserver "github.com/kiliankoe/songguesser/static"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var version = "dev" // Set at build time via -ldflags

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`SongGuesser - music trivia game server

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables (also read from ./.env):
  PORT                       Port to listen on (default: 8080)
  LOG_LEVEL                  trace, debug, info, warn or error (default: info)
  SPOTIFY_API_URL            Music library API (default: https://api.spotify.com)
  DEEZER_API_URL             Preview lookup API (default: https://api.deezer.com)
  HTTP_TIMEOUT               Timeout for outgoing requests (default: 20s)
  PREVIEW_MAX_RETRIES        Attempts per preview lookup (default: 3)
  PREVIEW_RETRY_BACKOFF_MS   Initial retry backoff (default: 500)
  PICK_MAX_CANDIDATES        Tracks tried before giving up on a preview (default: 5)
  SCORE_LIVE_CLOCK           Score with the remaining clock instead of a flat bonus (default: false)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000

Visit http://localhost:8080 after starting the server.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("SongGuesser %s\n", version)
		return
	}

	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)

	cfg := config.Load()
	zerolog.SetGlobalLevel(cfg.LogLevel)

	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	r.GET("/api/difficulties", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"difficulties": round.Configs()})
	})

	library := spotify.New(cfg.SpotifyAPIURL, cfg.HTTPTimeout)
	previews := deezer.New(cfg.DeezerAPIURL, cfg.HTTPTimeout)
	previews.MaxRetries = cfg.PreviewMaxRetries
	previews.BaseBackoff = cfg.PreviewRetryBackoff
	picker := game.NewPicker(library, previews, cfg.PickMaxCandidates)

	sock := ws.New(picker, library, game.WithLiveClock(cfg.ScoreLiveClock))
	io := sock.Mount(r)
	defer io.Close()

	// Serve frontend (if embedded build is present) for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	log.Info().Str("port", port).Str("version", version).Msg("listening")
	if err := r.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// quietPaths are polled constantly and stay out of the request log.
var quietPaths = []string{"/socket.io", "/health"}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		for _, p := range quietPaths {
			if strings.HasPrefix(path, p) {
				return
			}
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	}
}
