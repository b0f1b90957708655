package voice

import (
	"context"
	"errors"
	log "log/slog"
	"sync/atomic"
	"time"
)

var (
	ErrNoMatch       = errors.New("no speech recognised")
	ErrSpeechTimeout = errors.New("speech timeout")
)

// Transcript is one recogniser event. A non-nil Err ends the session.
type Transcript struct {
	Text  string
	Final bool
	Err   error
}

// Recognizer runs one listen session. The returned channel is closed when
// the session ends; senders must stop once ctx is done.
type Recognizer interface {
	Listen(ctx context.Context) (<-chan Transcript, error)
}

// Handler receives every non-empty transcript. It reports whether the
// utterance fired a command.
type Handler interface {
	HandleUtterance(text string, final bool) bool
}

type HandlerFunc func(text string, final bool) bool

func (f HandlerFunc) HandleUtterance(text string, final bool) bool { return f(text, final) }

type State int32

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Delays between the end of one session and the start of the next.
type Delays struct {
	Restart time.Duration // end of speech, result, no match
	Timeout time.Duration // nothing said
	Error   time.Duration // anything else
}

// Listener keeps a Recognizer listening forever, restarting it after every
// terminal event.
type Listener struct {
	rec     Recognizer
	handler Handler
	delays  Delays

	state    atomic.Int32
	sessions atomic.Uint64
}

func NewListener(rec Recognizer, h Handler, d Delays) *Listener {
	return &Listener{rec: rec, handler: h, delays: d}
}

func (l *Listener) State() State { return State(l.state.Load()) }

// Sessions counts listen sessions started so far.
func (l *Listener) Sessions() uint64 { return l.sessions.Load() }

// Run listens until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	for {
		delay := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session runs one recogniser session and returns the delay before the
// next one.
func (l *Listener) session(ctx context.Context) time.Duration {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer l.state.Store(int32(Idle))

	ch, err := l.rec.Listen(sctx)
	if err != nil {
		log.Warn("Failed to start recognizer", "err", err)
		return l.delays.Error
	}
	l.sessions.Add(1)
	l.state.Store(int32(Listening))

	for t := range ch {
		if t.Err != nil {
			return l.delayFor(t.Err)
		}
		if t.Text == "" {
			continue
		}

		fired := l.handler.HandleUtterance(t.Text, t.Final)
		if fired || t.Final {
			// a matched partial stops the recogniser so the final result
			// cannot trigger the same command again
			return l.delays.Restart
		}
	}

	return l.delays.Restart
}

func (l *Listener) delayFor(err error) time.Duration {
	switch {
	case errors.Is(err, ErrNoMatch):
		return l.delays.Restart
	case errors.Is(err, ErrSpeechTimeout):
		return l.delays.Timeout
	case errors.Is(err, context.Canceled):
		return l.delays.Restart
	default:
		log.Warn("Recognizer error", "err", err)
		return l.delays.Error
	}
}
