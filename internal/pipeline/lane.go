// Package pipeline rate-limits frames on their way to remote inference.
//
// A Lane admits at most one call at a time and enforces a minimum gap
// between forwarded frames. Frames that are not forwarded are not queued:
// the lane keeps only the few most recent ones for reuse and drops the rest.
package pipeline

import (
	"errors"
	"image"
	"sync"
	"time"
)

var (
	ErrTooSoon = errors.New("minimum interval not elapsed")
	ErrBusy    = errors.New("inference already in flight")
)

type Frame struct {
	Image image.Image
	Seq   uint64
	At    time.Time
}

type Stats struct {
	Forwarded uint64
	TooSoon   uint64
	Busy      uint64
	Buffered  int
	InFlight  bool
}

type Option func(*Lane)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Lane) { l.now = now }
}

// WithBuffer keeps up to n recent frames that were not forwarded. The lane
// always keeps at least one.
func WithBuffer(n int) Option {
	return func(l *Lane) { l.keep = max(n, 1) }
}

type Lane struct {
	name     string
	interval time.Duration
	keep     int
	now      func() time.Time

	mu        sync.Mutex
	inFlight  bool
	last      time.Time
	recent    []Frame
	forwarded *Frame
	stats     Stats
}

func NewLane(name string, interval time.Duration, opts ...Option) *Lane {
	l := &Lane{
		name:     name,
		interval: interval,
		keep:     1,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Lane) Name() string { return l.name }

// Admit forwards f if the lane is idle and the interval since the last
// forwarded frame has elapsed. The returned Ticket must be released once
// the call finishes.
func (l *Lane) Admit(f Frame) (*Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight {
		l.stats.Busy++
		l.bufferLocked(f)
		return nil, ErrBusy
	}

	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.interval {
		l.stats.TooSoon++
		l.bufferLocked(f)
		return nil, ErrTooSoon
	}

	l.inFlight = true
	l.last = now
	l.forwarded = &f
	l.stats.Forwarded++

	return &Ticket{lane: l}, nil
}

// Keep buffers f for reuse without asking for a call.
func (l *Lane) Keep(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bufferLocked(f)
}

// Latest returns the newest frame the lane has seen: the newest buffered
// one, or the last forwarded one if that is newer.
func (l *Lane) Latest() (Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out *Frame
	if n := len(l.recent); n > 0 {
		out = &l.recent[n-1]
	}
	if l.forwarded != nil && (out == nil || l.forwarded.Seq > out.Seq) {
		out = l.forwarded
	}
	if out == nil {
		return Frame{}, false
	}
	return *out, true
}

func (l *Lane) InFlight() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *Lane) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stats
	s.Buffered = len(l.recent)
	s.InFlight = l.inFlight
	return s
}

// Reset drops buffered frames and the interval history. An in-flight call
// keeps its ticket.
func (l *Lane) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = nil
	l.forwarded = nil
	l.last = time.Time{}
}

func (l *Lane) bufferLocked(f Frame) {
	l.recent = append(l.recent, f)
	if len(l.recent) > l.keep {
		l.recent = l.recent[len(l.recent)-l.keep:]
	}
}

func (l *Lane) release(ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight = false
	if !ok || l.forwarded == nil {
		return
	}
	// frames that arrived during the call are newer and stay
	n := 0
	for _, f := range l.recent {
		if f.Seq > l.forwarded.Seq {
			l.recent[n] = f
			n++
		}
	}
	l.recent = l.recent[:n]
}

// Ticket is the right to run one inference call on a lane.
type Ticket struct {
	lane *Lane
	once sync.Once
}

// Release ends the call. A successful call drops the buffered frames that
// are not newer than the forwarded one.
// Only the first Release has any effect.
func (t *Ticket) Release(ok bool) {
	t.once.Do(func() { t.lane.release(ok) })
}

// Throttle enforces a cadence without single-flight bookkeeping.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewThrottle(interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{interval: interval, now: now}
}

// Allow reports whether the cadence window is open and, if so, closes it.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
}
