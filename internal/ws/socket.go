package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/songguesser/internal/game"
	"github.com/kiliankoe/songguesser/internal/music"
	"github.com/kiliankoe/songguesser/internal/round"
	"github.com/rs/zerolog/log"
)

const DefaultGracePeriod = 2 * time.Minute

type ConnCtx struct {
	Code  string
	Token string
}

// emitter is the part of socketio.Conn the fan-out needs.
type emitter interface {
	ID() string
	Emit(event string, v ...interface{})
}

// conn is the part of socketio.Conn the handlers need.
type conn interface {
	emitter
	Context() interface{}
	SetContext(ctx interface{})
	Join(room string)
	Leave(room string)
}

type Server struct {
	Manager *game.Manager
	picker  *game.Picker
	library music.Library

	// CatalogTimeout bounds each call out to the music services.
	CatalogTimeout time.Duration
	// GracePeriod is how long a session nobody is connected to stays
	// resumable before it is removed.
	GracePeriod time.Duration

	// members and timers are written from socket handlers and read from
	// round tick goroutines.
	mu      sync.Mutex
	members map[string]map[string]emitter // sessionCode -> socketID -> Conn
	timers  map[string]*time.Timer        // sessionCode -> pending removal

	// stateMu orders game:state emits: a snapshot is taken and sent under it.
	stateMu sync.Mutex
}

// New builds the socket server together with its session manager; opts are
// applied to the manager after the server's own notifier.
func New(picker *game.Picker, library music.Library, opts ...game.Option) *Server {
	srv := &Server{
		picker:         picker,
		library:        library,
		CatalogTimeout: 30 * time.Second,
		GracePeriod:    DefaultGracePeriod,
		members:        make(map[string]map[string]emitter),
		timers:         make(map[string]*time.Timer),
	}
	srv.Manager = game.NewManager(append([]game.Option{game.WithNotifier(srv.notify)}, opts...)...)
	return srv
}

type startPayload struct {
	Config       game.SessionConfig `json:"config"`
	SpotifyToken string             `json:"spotifyToken"`
}

type resumePayload struct {
	SessionCode  string `json:"sessionCode"`
	Token        string `json:"token"`
	SpotifyToken string `json:"spotifyToken"`
}

type searchPayload struct {
	Query        string `json:"query"`
	SpotifyToken string `json:"spotifyToken"`
}

type guessPayload struct {
	Text string `json:"text"`
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})
	io.OnEvent("/", "game:start", func(s socketio.Conn, p startPayload) map[string]any { return srv.start(s, p) })
	io.OnEvent("/", "game:resume", func(s socketio.Conn, p resumePayload) map[string]any { return srv.resume(s, p) })
	io.OnEvent("/", "artist:search", func(s socketio.Conn, p searchPayload) map[string]any { return srv.searchArtists(s, p) })
	io.OnEvent("/", "round:play", func(s socketio.Conn) map[string]any { return srv.play(s) })
	io.OnEvent("/", "round:stop", func(s socketio.Conn) map[string]any { return srv.stop(s) })
	io.OnEvent("/", "round:guess", func(s socketio.Conn, p guessPayload) map[string]any { return srv.guess(s, p) })
	io.OnEvent("/", "round:giveUp", func(s socketio.Conn) map[string]any { return srv.giveUp(s) })
	io.OnEvent("/", "game:playAgain", func(s socketio.Conn) map[string]any { return srv.playAgain(s) })
	io.OnEvent("/", "game:reset", func(s socketio.Conn) map[string]any { return srv.reset(s) })

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.leave(s, false)
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve")
		}
	}()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// start creates a session and deals its first song. A session the
// connection was attached to before is dropped right away.
func (srv *Server) start(s conn, p startPayload) map[string]any {
	code, playerToken, err := srv.Manager.CreateSession(p.Config, p.SpotifyToken)
	if err != nil {
		return srv.fail(s, err)
	}
	srv.leave(s, true)
	s.SetContext(&ConnCtx{Code: code, Token: playerToken})
	s.Join(code)
	srv.addMember(code, s)
	log.Info().Str("sid", s.ID()).Str("code", code).Msg("game:start")

	sess, _ := srv.Manager.Get(code)
	out := map[string]any{"sessionCode": code, "playerToken": playerToken}
	if _, err := srv.deal(sess); err != nil {
		srv.fail(s, err)
	}
	srv.emitStateTo(code)
	return out
}

// resume reattaches a connection to a session, e.g. after a reload.
func (srv *Server) resume(s conn, p resumePayload) map[string]any {
	sess, err := srv.Manager.Get(p.SessionCode)
	if err != nil {
		return srv.fail(s, err)
	}
	if err := sess.Authorize(p.Token); err != nil {
		return srv.fail(s, err)
	}
	if p.SpotifyToken != "" {
		_ = sess.SetMusicToken(p.Token, p.SpotifyToken)
	}
	if ctx, ok := s.Context().(*ConnCtx); !ok || ctx.Code != p.SessionCode {
		srv.leave(s, false)
	}
	s.SetContext(&ConnCtx{Code: p.SessionCode, Token: p.Token})
	s.Join(p.SessionCode)
	srv.addMember(p.SessionCode, s)
	log.Info().Str("sid", s.ID()).Str("code", p.SessionCode).Msg("game:resume")
	s.Emit("game:state", sess.Snapshot())
	return map[string]any{"ok": true}
}

func (srv *Server) searchArtists(s conn, p searchPayload) map[string]any {
	ctx, cancel := context.WithTimeout(context.Background(), srv.CatalogTimeout)
	defer cancel()
	artists, err := srv.library.SearchArtists(ctx, p.SpotifyToken, p.Query, 10)
	if err != nil {
		log.Warn().Err(err).Str("sid", s.ID()).Msg("artist search failed")
		return srv.fail(s, err)
	}
	if artists == nil {
		artists = []music.Artist{}
	}
	return map[string]any{"artists": artists}
}

func (srv *Server) play(s conn) map[string]any {
	sess, token, err := srv.session(s)
	if err == nil {
		err = sess.Play(token)
	}
	if err != nil {
		return srv.fail(s, err)
	}
	return map[string]any{"ok": true}
}

func (srv *Server) stop(s conn) map[string]any {
	sess, token, err := srv.session(s)
	if err == nil {
		err = sess.Stop(token)
	}
	if err != nil {
		return srv.fail(s, err)
	}
	return map[string]any{"ok": true}
}

func (srv *Server) guess(s conn, p guessPayload) map[string]any {
	sess, token, err := srv.session(s)
	if err != nil {
		return srv.fail(s, err)
	}
	out, err := sess.Guess(token, p.Text)
	if err != nil {
		return srv.fail(s, err)
	}
	log.Debug().Str("code", sess.Code).Str("kind", string(out.Kind)).Msg("round:guess")
	return outcomePayload(out)
}

func (srv *Server) giveUp(s conn) map[string]any {
	sess, token, err := srv.session(s)
	if err != nil {
		return srv.fail(s, err)
	}
	out, err := sess.GiveUp(token)
	if err != nil {
		return srv.fail(s, err)
	}
	return outcomePayload(out)
}

// playAgain deals the next song.
func (srv *Server) playAgain(s conn) map[string]any {
	sess, token, err := srv.session(s)
	if err == nil {
		err = sess.Authorize(token)
	}
	if err != nil {
		return srv.fail(s, err)
	}
	roundID, err := srv.deal(sess)
	if err != nil {
		return srv.fail(s, err)
	}
	srv.emitStateTo(sess.Code)
	return map[string]any{"ok": true, "roundId": roundID}
}

func (srv *Server) reset(s conn) map[string]any {
	sess, token, err := srv.session(s)
	if err == nil {
		err = sess.Reset(token)
	}
	if err != nil {
		return srv.fail(s, err)
	}
	log.Info().Str("code", sess.Code).Msg("game:reset")
	srv.emitStateTo(sess.Code)
	return map[string]any{"ok": true}
}

func (srv *Server) deal(sess *game.Session) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.CatalogTimeout)
	defer cancel()
	roundID, err := srv.picker.Deal(ctx, sess)
	if err != nil {
		log.Warn().Err(err).Str("code", sess.Code).Msg("could not deal next song")
		return "", err
	}
	log.Info().Str("code", sess.Code).Str("roundId", roundID).Msg("round dealt")
	return roundID, nil
}

func (srv *Server) session(s conn) (*game.Session, string, error) {
	ctx, _ := s.Context().(*ConnCtx)
	if ctx == nil || ctx.Code == "" {
		return nil, "", game.ErrSessionNotFound
	}
	sess, err := srv.Manager.Get(ctx.Code)
	if err != nil {
		return nil, "", err
	}
	return sess, ctx.Token, nil
}

// notify forwards round events to everyone watching the session. It runs
// inside the evaluator's delivery, so the full state for terminal events is
// sent from a separate goroutine.
func (srv *Server) notify(code string, ev round.Event, stats game.Stats) {
	payload := map[string]any{"event": ev, "stats": stats}
	for _, c := range srv.snapshotMembers(code) {
		c.Emit("round:event", payload)
	}
	switch ev.Kind {
	case round.EventCorrect, round.EventExhausted, round.EventTickExpired:
		go srv.emitStateTo(code)
	}
}

// leave detaches s from its session. When that leaves the session without
// connections its playback is stopped and it is removed, right away when
// now is set and after the grace period otherwise.
func (srv *Server) leave(s conn, now bool) {
	ctx, ok := s.Context().(*ConnCtx)
	if !ok || ctx.Code == "" {
		return
	}
	code := ctx.Code
	s.Leave(code)
	if srv.removeMember(code, s) > 0 {
		return
	}
	if now {
		srv.cancelRemoval(code)
		srv.Manager.Remove(code)
		return
	}
	if sess, err := srv.Manager.Get(code); err == nil {
		sess.Suspend()
		srv.scheduleRemoval(code)
	}
}

func (srv *Server) scheduleRemoval(code string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if existing, ok := srv.timers[code]; ok {
		existing.Stop()
	}
	srv.timers[code] = time.AfterFunc(srv.GracePeriod, func() {
		srv.expire(code)
	})
}

func (srv *Server) cancelRemoval(code string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if timer, ok := srv.timers[code]; ok {
		timer.Stop()
		delete(srv.timers, code)
	}
}

// expire removes a session whose grace period ran out, unless someone
// resumed it in the meantime.
func (srv *Server) expire(code string) {
	srv.mu.Lock()
	if len(srv.members[code]) > 0 {
		srv.mu.Unlock()
		return
	}
	delete(srv.timers, code)
	srv.mu.Unlock()
	srv.Manager.Remove(code)
	log.Info().Str("code", code).Msg("abandoned session removed")
}

func (srv *Server) addMember(code string, c emitter) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.members[code] == nil {
		srv.members[code] = make(map[string]emitter)
	}
	srv.members[code][c.ID()] = c
	if timer, ok := srv.timers[code]; ok {
		timer.Stop()
		delete(srv.timers, code)
	}
}

// removeMember returns how many connections the session has left.
func (srv *Server) removeMember(code string, c emitter) int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	m := srv.members[code]
	if m == nil {
		return 0
	}
	delete(m, c.ID())
	if len(m) == 0 {
		delete(srv.members, code)
	}
	return len(m)
}

func (srv *Server) snapshotMembers(code string) []emitter {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]emitter, 0, len(srv.members[code]))
	for _, c := range srv.members[code] {
		out = append(out, c)
	}
	return out
}

func (srv *Server) emitStateTo(code string) {
	sess, err := srv.Manager.Get(code)
	if err != nil {
		return
	}
	srv.stateMu.Lock()
	defer srv.stateMu.Unlock()
	snap := sess.Snapshot()
	for _, c := range srv.snapshotMembers(code) {
		c.Emit("game:state", snap)
	}
}

func (srv *Server) fail(s emitter, err error) map[string]any {
	code := errorCode(err)
	s.Emit("error", map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": code, "message": err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, game.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, game.ErrNoPreview):
		return "no_preview"
	case errors.Is(err, game.ErrNoTracksLeft):
		return "no_tracks_left"
	case errors.Is(err, round.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, round.ErrRoundOver):
		return "round_over"
	default:
		return "bad_request"
	}
}

func outcomePayload(out round.Outcome) map[string]any {
	p := map[string]any{"kind": out.Kind, "attemptsRemaining": out.AttemptsRemaining}
	if out.Err != nil {
		p["reason"] = errorCode(out.Err)
	}
	return p
}
