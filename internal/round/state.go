package round

import (
	"errors"
	"strings"
)

type Phase string

const (
	PhaseIdle    Phase = "Idle"
	PhasePlaying Phase = "Playing"
	// PhaseAwaitingReveal is never entered by the transitions below; it is
	// treated like Revealed so a caller that parks a round there cannot get
	// further guesses through.
	PhaseAwaitingReveal Phase = "AwaitingReveal"
	PhaseRevealed       Phase = "Revealed"
)

var (
	ErrEmptyInput = errors.New("empty guess")
	ErrRoundOver  = errors.New("round is over")
)

type EventKind string

const (
	EventPlaybackStarted EventKind = "playback_started"
	EventTick            EventKind = "tick"
	EventTickExpired     EventKind = "tick_expired"
	EventPlaybackStopped EventKind = "playback_stopped"
	EventCorrect         EventKind = "correct"
	EventIncorrect       EventKind = "incorrect"
	EventExhausted       EventKind = "exhausted"
)

// Event is an output signal for whoever renders the round. TimeRemaining on
// a correct event is the clock value at the moment of the guess.
type Event struct {
	RoundID           string    `json:"roundId,omitempty"`
	Kind              EventKind `json:"kind"`
	TimeRemaining     int       `json:"timeRemaining"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
}

type OutcomeKind string

const (
	OutcomeCorrect   OutcomeKind = "correct"
	OutcomeIncorrect OutcomeKind = "incorrect"
	OutcomeExhausted OutcomeKind = "exhausted"
	OutcomeRejected  OutcomeKind = "rejected"
)

// Outcome is the direct answer to a guess or give-up. Err is set only for
// rejected outcomes.
type Outcome struct {
	Kind              OutcomeKind `json:"kind"`
	AttemptsRemaining int         `json:"attemptsRemaining"`
	Err               error       `json:"-"`
}

// State is one song round. Transitions are value methods returning the
// next state, so a State can be copied and inspected freely.
type State struct {
	Config            Config `json:"config"`
	Title             string `json:"title"`
	Artist            string `json:"artist"`
	Phase             Phase  `json:"phase"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
	TimeRemaining     int    `json:"timeRemaining"`
}

func New(title, artist string, d Difficulty) State {
	cfg := ConfigFor(d)
	return State{
		Config:            cfg,
		Title:             title,
		Artist:            artist,
		Phase:             PhaseIdle,
		AttemptsRemaining: cfg.MaxAttempts,
		TimeRemaining:     cfg.PlaybackWindow,
	}
}

func (s State) Over() bool {
	return s.Phase == PhaseRevealed || s.Phase == PhaseAwaitingReveal
}

func (s State) StartPlayback() (State, []Event, error) {
	if s.Phase != PhaseIdle && s.Phase != PhasePlaying {
		return s, nil, ErrRoundOver
	}
	s.Phase = PhasePlaying
	s.TimeRemaining = s.Config.PlaybackWindow
	return s, []Event{s.event(EventPlaybackStarted)}, nil
}

func (s State) Tick() (State, []Event) {
	if s.Phase != PhasePlaying {
		return s, nil
	}
	if s.TimeRemaining > 0 {
		s.TimeRemaining--
	}
	if s.TimeRemaining > 0 {
		return s, []Event{s.event(EventTick)}
	}
	s.Phase = PhaseIdle
	s.TimeRemaining = s.Config.PlaybackWindow
	return s, []Event{s.event(EventTickExpired)}
}

func (s State) StopPlayback() (State, []Event) {
	if s.Phase != PhasePlaying {
		return s, nil
	}
	s.Phase = PhaseIdle
	s.TimeRemaining = s.Config.PlaybackWindow
	return s, []Event{s.event(EventPlaybackStopped)}
}

func (s State) SubmitGuess(raw string) (State, Outcome, []Event) {
	if strings.TrimSpace(raw) == "" {
		return s, Outcome{Kind: OutcomeRejected, AttemptsRemaining: s.AttemptsRemaining, Err: ErrEmptyInput}, nil
	}
	if s.Over() {
		return s, Outcome{Kind: OutcomeRejected, AttemptsRemaining: s.AttemptsRemaining, Err: ErrRoundOver}, nil
	}

	if IsMatch(raw, s.Title) {
		guessedAt := s.TimeRemaining
		next, events := s.reveal()
		ev := next.event(EventCorrect)
		ev.TimeRemaining = guessedAt
		return next, Outcome{Kind: OutcomeCorrect, AttemptsRemaining: next.AttemptsRemaining}, append(events, ev)
	}

	s.AttemptsRemaining--
	if s.AttemptsRemaining > 0 {
		return s, Outcome{Kind: OutcomeIncorrect, AttemptsRemaining: s.AttemptsRemaining}, []Event{s.event(EventIncorrect)}
	}
	return s.exhaust()
}

func (s State) GiveUp() (State, Outcome, []Event) {
	if s.Over() {
		return s, Outcome{Kind: OutcomeRejected, AttemptsRemaining: s.AttemptsRemaining, Err: ErrRoundOver}, nil
	}
	return s.exhaust()
}

func (s State) exhaust() (State, Outcome, []Event) {
	s.AttemptsRemaining = 0
	next, events := s.reveal()
	return next, Outcome{Kind: OutcomeExhausted}, append(events, next.event(EventExhausted))
}

// reveal ends the round, stopping playback first if it is running.
func (s State) reveal() (State, []Event) {
	next, events := s.StopPlayback()
	next.Phase = PhaseRevealed
	next.TimeRemaining = next.Config.PlaybackWindow
	return next, events
}

func (s State) event(kind EventKind) Event {
	return Event{Kind: kind, TimeRemaining: s.TimeRemaining, AttemptsRemaining: s.AttemptsRemaining}
}
