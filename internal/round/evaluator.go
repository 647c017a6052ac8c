package round

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ticker is the part of *time.Ticker the evaluator needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Option func(*Evaluator)

// WithTicker replaces the wall-clock ticker, mainly for tests.
func WithTicker(f TickerFunc) Option {
	return func(e *Evaluator) { e.newTicker = f }
}

// WithInterval changes the tick period (one second by default).
func WithInterval(d time.Duration) Option {
	return func(e *Evaluator) { e.interval = d }
}

// WithID sets the round id stamped on every event.
func WithID(id string) Option {
	return func(e *Evaluator) { e.id = id }
}

// Evaluator runs one round: it serializes transitions on State, owns the
// single recurring tick while the round is playing and delivers every event
// to the listener in order. The listener must not call back into the same
// Evaluator; everything it needs is on the Event.
type Evaluator struct {
	id        string
	interval  time.Duration
	newTicker TickerFunc
	listener  func(Event)

	mu       sync.Mutex
	state    State
	tickStop chan struct{} // non-nil while a tick goroutine owns the round
	closed   bool

	emitMu sync.Mutex
}

func NewEvaluator(title, artist string, d Difficulty, listener func(Event), opts ...Option) *Evaluator {
	e := &Evaluator{
		id:        uuid.NewString(),
		interval:  time.Second,
		newTicker: NewTimeTicker,
		listener:  listener,
		state:     New(title, artist, d),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) ID() string { return e.id }

func (e *Evaluator) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Ticking reports whether a tick is currently scheduled.
func (e *Evaluator) Ticking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickStop != nil
}

func (e *Evaluator) StartPlayback() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrRoundOver
	}
	next, events, err := e.state.StartPlayback()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = next
	e.startTickLocked()
	e.emitAndUnlock(events)
	return nil
}

func (e *Evaluator) StopPlayback() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	next, events := e.state.StopPlayback()
	e.state = next
	e.stopTickLocked()
	e.emitAndUnlock(events)
}

func (e *Evaluator) SubmitGuess(raw string) Outcome {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Outcome{Kind: OutcomeRejected, Err: ErrRoundOver}
	}
	next, out, events := e.state.SubmitGuess(raw)
	e.state = next
	if next.Phase != PhasePlaying {
		e.stopTickLocked()
	}
	e.emitAndUnlock(events)
	return out
}

func (e *Evaluator) GiveUp() Outcome {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Outcome{Kind: OutcomeRejected, Err: ErrRoundOver}
	}
	next, out, events := e.state.GiveUp()
	e.state = next
	e.stopTickLocked()
	e.emitAndUnlock(events)
	return out
}

// Close cancels the tick and turns every later call into a no-op. Closing a
// round emits nothing; the caller is discarding it.
func (e *Evaluator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTickLocked()
	e.closed = true
}

func (e *Evaluator) startTickLocked() {
	e.stopTickLocked()
	stop := make(chan struct{})
	e.tickStop = stop
	go e.run(e.newTicker(e.interval), stop)
}

func (e *Evaluator) stopTickLocked() {
	if e.tickStop != nil {
		close(e.tickStop)
		e.tickStop = nil
	}
}

func (e *Evaluator) run(t Ticker, stop chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if !e.tick(stop) {
				return
			}
		}
	}
}

// tick applies one countdown step. It returns false once the goroutine
// identified by stop no longer owns the round.
func (e *Evaluator) tick(stop chan struct{}) bool {
	e.mu.Lock()
	if e.tickStop != stop {
		e.mu.Unlock()
		return false
	}
	next, events := e.state.Tick()
	e.state = next
	live := next.Phase == PhasePlaying
	if !live {
		// expired: drop ownership without closing, this goroutine exits itself
		e.tickStop = nil
	}
	e.emitAndUnlock(events)
	return live
}

// emitAndUnlock releases e.mu and hands events to the listener. emitMu is
// taken before e.mu is released so deliveries keep transition order.
func (e *Evaluator) emitAndUnlock(events []Event) {
	if len(events) == 0 || e.listener == nil {
		e.mu.Unlock()
		return
	}
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()
	for _, ev := range events {
		ev.RoundID = e.id
		e.listener(ev)
	}
}
