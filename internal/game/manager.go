package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/songguesser/internal/music"
	"github.com/kiliankoe/songguesser/internal/round"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidConfig   = errors.New("invalid session config")
	ErrNoRound         = errors.New("no round in progress")
)

// Notifier receives every event of a session's current round after the
// session's stats have been updated for it. It runs on the goroutine that
// produced the event and must not block for long.
type Notifier func(code string, ev round.Event, stats Stats)

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

// WithLiveClock scores correct guesses with the countdown value at the
// moment of the guess instead of the flat bonus.
func WithLiveClock(on bool) Option {
	return func(m *Manager) { m.liveClock = on }
}

// WithRoundOptions is passed through to every evaluator the sessions create.
func WithRoundOptions(opts ...round.Option) Option {
	return func(m *Manager) { m.roundOpts = append(m.roundOpts, opts...) }
}

type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	notify    Notifier
	liveClock bool
	roundOpts []round.Option
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{sessions: make(map[string]*Session)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession validates cfg and registers a new session for the holder of
// musicToken. The returned player token authorizes every later call.
func (m *Manager) CreateSession(cfg SessionConfig, musicToken string) (code string, playerToken string, err error) {
	cfg, err = normalizeConfig(cfg)
	if err != nil {
		return "", "", err
	}
	if musicToken == "" {
		return "", "", fmt.Errorf("%w: missing music token", ErrInvalidConfig)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	code = randomCode(5)
	for m.sessions[code] != nil {
		code = randomCode(5)
	}
	playerToken = uuid.NewString()
	m.sessions[code] = &Session{
		Code:        code,
		CreatedAt:   time.Now().UTC(),
		Config:      cfg,
		playerToken: playerToken,
		musicToken:  musicToken,
		stats:       Stats{RoundNumber: 1},
		played:      make(map[string]bool),
		notify:      m.notify,
		liveClock:   m.liveClock,
		roundOpts:   m.roundOpts,
	}
	log.Info().Str("code", code).Str("mode", string(cfg.Mode)).Str("difficulty", string(cfg.Difficulty)).Msg("session created")
	return code, playerToken, nil
}

func (m *Manager) Get(code string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sessions[code]
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove forgets the session and stops its live round.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	s := m.sessions[code]
	delete(m.sessions, code)
	m.mu.Unlock()
	if s != nil {
		s.discardRound()
		log.Info().Str("code", code).Msg("session removed")
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func normalizeConfig(cfg SessionConfig) (SessionConfig, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeClassic
	case ModeClassic, ModeArtist:
	default:
		return cfg, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
	}
	if cfg.Mode == ModeArtist && cfg.ArtistID == "" {
		return cfg, fmt.Errorf("%w: artist mode needs an artist", ErrInvalidConfig)
	}
	if cfg.Mode == ModeClassic {
		cfg.ArtistID, cfg.ArtistName = "", ""
	}
	d, err := round.ParseDifficulty(string(cfg.Difficulty))
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg.Difficulty = d
	return cfg, nil
}

// Session is one player's game. Its round is driven by a round.Evaluator;
// the session only keeps the bookkeeping around it.
type Session struct {
	Code      string
	CreatedAt time.Time
	Config    SessionConfig

	playerToken string
	musicToken  string

	notify    Notifier
	liveClock bool
	roundOpts []round.Option

	// mu is never held while calling into eval: the evaluator's listener
	// takes it.
	mu      sync.Mutex
	stats   Stats
	played  map[string]bool
	catalog []music.Track
	eval    *round.Evaluator
	track   music.Track
	preview music.Preview
}

func (s *Session) Authorize(playerToken string) error {
	if playerToken == "" || playerToken != s.playerToken {
		return ErrUnauthorized
	}
	return nil
}

func (s *Session) MusicToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.musicToken
}

// SetMusicToken swaps in a refreshed access token for the music library.
func (s *Session) SetMusicToken(playerToken, musicToken string) error {
	if err := s.Authorize(playerToken); err != nil {
		return err
	}
	if musicToken == "" {
		return fmt.Errorf("%w: missing music token", ErrInvalidConfig)
	}
	s.mu.Lock()
	s.musicToken = musicToken
	s.mu.Unlock()
	return nil
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// StartRound makes track the session's current round, closing whatever
// round was live before. It returns the new round id.
func (s *Session) StartRound(track music.Track, preview music.Preview) string {
	title, artist := answerFor(track, preview)
	ev := round.NewEvaluator(title, artist, s.Config.Difficulty, s.onEvent, s.roundOpts...)

	s.mu.Lock()
	old := s.eval
	s.eval = ev
	s.track = track
	s.preview = preview
	if track.ID != "" {
		s.played[track.ID] = true
	}
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	log.Debug().Str("code", s.Code).Str("roundId", ev.ID()).Str("track", track.ID).Msg("round started")
	return ev.ID()
}

// answerFor returns the title and artist guesses are checked against: the
// resolved preview's when it names one, the library track's otherwise.
func answerFor(track music.Track, preview music.Preview) (string, string) {
	title, artist := track.Title, track.Artist
	if preview.Title != "" {
		title = preview.Title
	}
	if preview.Artist != "" {
		artist = preview.Artist
	}
	return title, artist
}

// Suspend stops playback of the live round without ending it. It needs no
// player token; the socket layer calls it once nobody is connected.
func (s *Session) Suspend() {
	s.mu.Lock()
	ev := s.eval
	s.mu.Unlock()
	if ev != nil {
		ev.StopPlayback()
	}
}

func (s *Session) current(playerToken string) (*round.Evaluator, error) {
	if err := s.Authorize(playerToken); err != nil {
		return nil, err
	}
	s.mu.Lock()
	ev := s.eval
	s.mu.Unlock()
	if ev == nil {
		return nil, ErrNoRound
	}
	return ev, nil
}

func (s *Session) Play(playerToken string) error {
	ev, err := s.current(playerToken)
	if err != nil {
		return err
	}
	return ev.StartPlayback()
}

func (s *Session) Stop(playerToken string) error {
	ev, err := s.current(playerToken)
	if err != nil {
		return err
	}
	ev.StopPlayback()
	return nil
}

func (s *Session) Guess(playerToken, text string) (round.Outcome, error) {
	ev, err := s.current(playerToken)
	if err != nil {
		return round.Outcome{}, err
	}
	return ev.SubmitGuess(text), nil
}

func (s *Session) GiveUp(playerToken string) (round.Outcome, error) {
	ev, err := s.current(playerToken)
	if err != nil {
		return round.Outcome{}, err
	}
	return ev.GiveUp(), nil
}

// Reset returns the session to setup. Everything but the total score is
// cleared, including the record of played tracks.
func (s *Session) Reset(playerToken string) error {
	if err := s.Authorize(playerToken); err != nil {
		return err
	}
	s.discardRound()
	s.mu.Lock()
	s.stats = Stats{RoundNumber: 1, TotalScore: s.stats.TotalScore}
	s.played = make(map[string]bool)
	s.catalog = nil
	s.mu.Unlock()
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Code: s.Code, Config: s.Config, Stats: s.stats}
	ev, track, preview := s.eval, s.track, s.preview
	s.mu.Unlock()
	if ev != nil {
		snap.Round = newRoundView(ev, track, preview)
	}
	return snap
}

func (s *Session) discardRound() {
	s.mu.Lock()
	ev := s.eval
	s.eval = nil
	s.track = music.Track{}
	s.preview = music.Preview{}
	s.mu.Unlock()
	if ev != nil {
		ev.Close()
	}
}

// onEvent is the listener of the current evaluator. Events of a round that
// has since been replaced are dropped.
func (s *Session) onEvent(ev round.Event) {
	s.mu.Lock()
	if s.eval == nil || s.eval.ID() != ev.RoundID {
		s.mu.Unlock()
		log.Debug().Str("code", s.Code).Str("roundId", ev.RoundID).Str("kind", string(ev.Kind)).Msg("dropping stale round event")
		return
	}
	switch ev.Kind {
	case round.EventCorrect:
		bonus := float64(round.FlatTimeBonusSeconds)
		if s.liveClock {
			bonus = float64(ev.TimeRemaining)
		}
		points := round.Score(s.Config.Difficulty, bonus, s.stats.CurrentStreak)
		s.stats.QuestionsAnswered++
		s.stats.CorrectAnswers++
		s.stats.RoundNumber++
		s.stats.CurrentStreak++
		s.stats.BestStreak = max(s.stats.BestStreak, s.stats.CurrentStreak)
		s.stats.SessionScore += points
		s.stats.TotalScore += points
		s.stats.LastPoints = points
	case round.EventExhausted:
		s.stats.QuestionsAnswered++
		s.stats.RoundNumber++
		s.stats.CurrentStreak = 0
		s.stats.LastPoints = 0
	}
	stats := s.stats
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(s.Code, ev, stats)
	}
}

func (s *Session) markPlayed(id string) {
	s.mu.Lock()
	s.played[id] = true
	s.mu.Unlock()
}

func (s *Session) playedSet() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.played))
	for id := range s.played {
		out[id] = true
	}
	return out
}

func (s *Session) cachedCatalog() []music.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

func (s *Session) cacheCatalog(tracks []music.Track) {
	s.mu.Lock()
	s.catalog = tracks
	s.mu.Unlock()
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
