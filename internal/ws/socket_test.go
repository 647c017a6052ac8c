package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/songguesser/internal/game"
	"github.com/kiliankoe/songguesser/internal/music"
	"github.com/kiliankoe/songguesser/internal/round"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	ctx    interface{}
	rooms  map[string]bool
	events []string
	args   []any
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Context() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *fakeConn) SetContext(ctx interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

func (c *fakeConn) Join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms == nil {
		c.rooms = make(map[string]bool)
	}
	c.rooms[room] = true
}

func (c *fakeConn) Leave(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *fakeConn) Emit(event string, v ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	if len(v) > 0 {
		c.args = append(c.args, v[0])
	} else {
		c.args = append(c.args, nil)
	}
}

func (c *fakeConn) received(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

// lastState returns the most recent game:state payload.
func (c *fakeConn) lastState() (game.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i] == "game:state" {
			snap, ok := c.args[i].(game.Snapshot)
			return snap, ok
		}
	}
	return game.Snapshot{}, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("should have %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type stubLibrary struct{}

func (stubLibrary) RandomSavedTrack(context.Context, string) (music.Track, error) {
	return music.Track{ID: "t1", Title: "Shape of You", Artist: "Ed Sheeran", PreviewURL: "https://cdn/1.mp3"}, nil
}

func (stubLibrary) SearchArtists(context.Context, string, string, int) ([]music.Artist, error) {
	return nil, nil
}

func (stubLibrary) ArtistTracks(context.Context, string, string) ([]music.Track, error) {
	return nil, music.ErrNotFound
}

type idleTicker struct{ c chan time.Time }

func (t idleTicker) C() <-chan time.Time { return t.c }
func (idleTicker) Stop()                 {}

func newTestServer() *Server {
	lib := stubLibrary{}
	return New(game.NewPicker(lib, nil, 1), lib,
		game.WithRoundOptions(round.WithTicker(func(time.Duration) round.Ticker { return idleTicker{c: make(chan time.Time)} })))
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{game.ErrSessionNotFound, "session_not_found"},
		{fmt.Errorf("wrapped: %w", game.ErrUnauthorized), "unauthorized"},
		{game.ErrNoPreview, "no_preview"},
		{game.ErrNoTracksLeft, "no_tracks_left"},
		{round.ErrEmptyInput, "empty_input"},
		{round.ErrRoundOver, "round_over"},
		{game.ErrInvalidConfig, "bad_request"},
		{errors.New("anything else"), "bad_request"},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOutcomePayload(t *testing.T) {
	p := outcomePayload(round.Outcome{Kind: round.OutcomeIncorrect, AttemptsRemaining: 1})
	if p["kind"] != round.OutcomeIncorrect || p["attemptsRemaining"] != 1 {
		t.Fatalf("unexpected payload %v", p)
	}
	if _, ok := p["reason"]; ok {
		t.Fatal("accepted outcomes carry no reason")
	}

	p = outcomePayload(round.Outcome{Kind: round.OutcomeRejected, Err: round.ErrEmptyInput})
	if p["reason"] != "empty_input" {
		t.Fatalf("expected empty_input reason, got %v", p["reason"])
	}
}

func TestMembers(t *testing.T) {
	srv := newTestServer()
	a, b := &fakeConn{id: "a"}, &fakeConn{id: "b"}
	srv.addMember("ABCDE", a)
	srv.addMember("ABCDE", b)
	if got := len(srv.snapshotMembers("ABCDE")); got != 2 {
		t.Fatalf("expected 2 members, got %d", got)
	}

	srv.removeMember("ABCDE", a)
	srv.removeMember("ABCDE", b)
	if _, ok := srv.members["ABCDE"]; ok {
		t.Fatal("empty member set should be dropped")
	}
}

func TestRoundEventsReachMembers(t *testing.T) {
	srv := newTestServer()
	code, token, err := srv.Manager.CreateSession(game.SessionConfig{}, "tok")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess, _ := srv.Manager.Get(code)
	conn := &fakeConn{id: "sock-1"}
	srv.addMember(code, conn)

	if _, err := srv.deal(sess); err != nil {
		t.Fatalf("deal: %v", err)
	}
	if err := sess.Play(token); err != nil {
		t.Fatalf("play: %v", err)
	}
	out, err := sess.Guess(token, "shape of you")
	if err != nil || out.Kind != round.OutcomeCorrect {
		t.Fatalf("expected correct guess, got %+v %v", out, err)
	}

	// playback_started, playback_stopped, correct
	if got := conn.received("round:event"); got != 3 {
		t.Fatalf("expected 3 round events, got %d", got)
	}

	deadline := time.Now().Add(time.Second)
	for conn.received("game:state") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected a state broadcast after the reveal")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFailEmitsError(t *testing.T) {
	srv := newTestServer()
	conn := &fakeConn{id: "x"}
	ack := srv.fail(conn, game.ErrUnauthorized)
	if ack["error"] != "unauthorized" {
		t.Fatalf("unexpected ack %v", ack)
	}
	if conn.received("error") != 1 {
		t.Fatal("error event should be emitted")
	}
}

func startGame(t *testing.T, srv *Server, c *fakeConn) (string, string) {
	t.Helper()
	ack := srv.start(c, startPayload{SpotifyToken: "tok"})
	if ack["error"] != nil {
		t.Fatalf("start failed: %v", ack)
	}
	return ack["sessionCode"].(string), ack["playerToken"].(string)
}

func TestHandlersWithoutSession(t *testing.T) {
	srv := newTestServer()
	tests := []struct {
		name string
		call func(c conn) map[string]any
	}{
		{"guess", func(c conn) map[string]any { return srv.guess(c, guessPayload{Text: "shape of you"}) }},
		{"giveUp", srv.giveUp},
		{"play", srv.play},
		{"stop", srv.stop},
		{"playAgain", srv.playAgain},
		{"reset", srv.reset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConn{id: "lonely", ctx: &ConnCtx{}}
			ack := tt.call(c)
			if ack["error"] != "session_not_found" {
				t.Fatalf("should ack session_not_found, got %v", ack)
			}
			if c.received("error") != 1 {
				t.Fatal("should emit an error event")
			}
		})
	}
}

func TestStartDealsAndBroadcasts(t *testing.T) {
	srv := newTestServer()
	c := &fakeConn{id: "s1"}
	code, _ := startGame(t, srv, c)

	if !c.rooms[code] {
		t.Fatal("should join the session room")
	}
	snap, ok := c.lastState()
	if !ok || snap.Code != code || snap.Round == nil {
		t.Fatalf("should receive the dealt round, got %+v", snap)
	}
}

func TestGuessThroughHandler(t *testing.T) {
	srv := newTestServer()
	c := &fakeConn{id: "s1"}
	startGame(t, srv, c)

	if ack := srv.play(c); ack["ok"] != true {
		t.Fatalf("play should succeed, got %v", ack)
	}
	ack := srv.guess(c, guessPayload{Text: "Shape of You"})
	if ack["kind"] != round.OutcomeCorrect {
		t.Fatalf("should be correct, got %v", ack)
	}
	ack = srv.guess(c, guessPayload{Text: "again"})
	if ack["kind"] != round.OutcomeRejected || ack["reason"] != "round_over" {
		t.Fatalf("should reject guesses after the reveal, got %v", ack)
	}
}

func TestResumeSwapsMusicToken(t *testing.T) {
	srv := newTestServer()
	first := &fakeConn{id: "s1"}
	code, token := startGame(t, srv, first)

	second := &fakeConn{id: "s2"}
	ack := srv.resume(second, resumePayload{SessionCode: code, Token: token, SpotifyToken: "fresh"})
	if ack["ok"] != true {
		t.Fatalf("resume should succeed, got %v", ack)
	}
	sess, _ := srv.Manager.Get(code)
	if got := sess.MusicToken(); got != "fresh" {
		t.Fatalf("should use the new music token, got %q", got)
	}
	if second.received("game:state") != 1 {
		t.Fatal("should send the current state to the resumed connection")
	}
	if len(srv.snapshotMembers(code)) != 2 {
		t.Fatal("should have both connections as members")
	}
}

func TestResumeRejects(t *testing.T) {
	srv := newTestServer()
	code, _ := startGame(t, srv, &fakeConn{id: "s1"})

	tests := []struct {
		name string
		p    resumePayload
		want string
	}{
		{"unknown session", resumePayload{SessionCode: "ZZZZZ", Token: "x"}, "session_not_found"},
		{"wrong token", resumePayload{SessionCode: code, Token: "nope", SpotifyToken: "evil"}, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := srv.resume(&fakeConn{id: "intruder"}, tt.p)
			if ack["error"] != tt.want {
				t.Fatalf("should ack %s, got %v", tt.want, ack)
			}
		})
	}
	sess, _ := srv.Manager.Get(code)
	if sess.MusicToken() != "tok" {
		t.Fatal("should keep the music token after a rejected resume")
	}
}

func TestStartAgainRemovesPreviousSession(t *testing.T) {
	srv := newTestServer()
	c := &fakeConn{id: "s1"}
	oldCode, _ := startGame(t, srv, c)
	newCode, _ := startGame(t, srv, c)

	if srv.Manager.Count() != 1 {
		t.Fatalf("should keep only the new session, have %d", srv.Manager.Count())
	}
	if _, err := srv.Manager.Get(oldCode); !errors.Is(err, game.ErrSessionNotFound) {
		t.Fatalf("should have removed %s, got %v", oldCode, err)
	}
	if c.rooms[oldCode] || !c.rooms[newCode] {
		t.Fatalf("should only be in the new room, rooms %v", c.rooms)
	}
}

func TestStartAgainKeepsSharedSession(t *testing.T) {
	srv := newTestServer()
	a := &fakeConn{id: "a"}
	code, token := startGame(t, srv, a)
	srv.resume(&fakeConn{id: "b"}, resumePayload{SessionCode: code, Token: token})

	startGame(t, srv, a)
	if _, err := srv.Manager.Get(code); err != nil {
		t.Fatalf("should keep a session another connection still uses: %v", err)
	}
}

func TestDisconnectSuspendsThenRemoves(t *testing.T) {
	srv := newTestServer()
	srv.GracePeriod = 20 * time.Millisecond
	c := &fakeConn{id: "s1"}
	code, token := startGame(t, srv, c)
	sess, _ := srv.Manager.Get(code)
	if err := sess.Play(token); err != nil {
		t.Fatalf("play: %v", err)
	}

	srv.leave(c, false)
	if phase := sess.Snapshot().Round.Phase; phase != round.PhaseIdle {
		t.Fatalf("should stop playback on last disconnect, phase %s", phase)
	}
	waitFor(t, "removed the abandoned session", func() bool {
		_, err := srv.Manager.Get(code)
		return err != nil
	})
}

func TestResumeCancelsRemoval(t *testing.T) {
	srv := newTestServer()
	srv.GracePeriod = time.Hour
	c := &fakeConn{id: "s1"}
	code, token := startGame(t, srv, c)

	srv.leave(c, false)
	srv.mu.Lock()
	_, pending := srv.timers[code]
	srv.mu.Unlock()
	if !pending {
		t.Fatal("should schedule a removal")
	}

	srv.resume(&fakeConn{id: "s2"}, resumePayload{SessionCode: code, Token: token})
	srv.mu.Lock()
	_, pending = srv.timers[code]
	srv.mu.Unlock()
	if pending {
		t.Fatal("should cancel the removal on resume")
	}

	// a timer that already fired must not remove a resumed session
	srv.expire(code)
	if _, err := srv.Manager.Get(code); err != nil {
		t.Fatalf("should keep the resumed session: %v", err)
	}
}

func TestStateBroadcastCarriesLatestRound(t *testing.T) {
	srv := newTestServer()
	c := &fakeConn{id: "s1"}
	code, token := startGame(t, srv, c)
	sess, _ := srv.Manager.Get(code)
	if err := sess.Play(token); err != nil {
		t.Fatalf("play: %v", err)
	}

	// the reveal's broadcast waits until the next round is dealt
	srv.stateMu.Lock()
	if out, _ := sess.Guess(token, "shape of you"); out.Kind != round.OutcomeCorrect {
		t.Fatalf("should be correct, got %+v", out)
	}
	nextID, err := srv.deal(sess)
	srv.stateMu.Unlock()
	if err != nil {
		t.Fatalf("deal: %v", err)
	}

	waitFor(t, "broadcast the reveal", func() bool { return c.received("game:state") == 2 })
	snap, _ := c.lastState()
	if snap.Round == nil || snap.Round.ID != nextID {
		t.Fatalf("should broadcast the latest round %s, got %+v", nextID, snap.Round)
	}
}
