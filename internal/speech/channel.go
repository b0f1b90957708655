// Package speech serialises every narration request onto one
// single-utterance text-to-speech engine.
package speech

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
)

type Policy int

const (
	// Flush cancels whatever is playing or queued and speaks now. It does
	// not cut off an Alert in progress; it waits behind it instead.
	Flush Policy = iota
	// Append queues after the current utterance.
	Append
	// Alert is a safety-critical flush that interrupts anything.
	Alert
)

func (p Policy) String() string {
	switch p {
	case Flush:
		return "flush"
	case Append:
		return "append"
	case Alert:
		return "alert"
	default:
		return "unknown"
	}
}

// Engine speaks one utterance at a time. Speak blocks until playback ends
// or ctx is cancelled.
type Engine interface {
	Speak(ctx context.Context, text string) error
}

type utterance struct {
	text   string
	policy Policy
}

type Channel struct {
	engine Engine

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []utterance
	current *utterance
	cancel  context.CancelFunc
	closed  bool
}

func New(engine Engine) *Channel {
	c := &Channel{engine: engine}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Say submits text under policy p. Blank text is ignored.
func (c *Channel) Say(text string, p Policy) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	switch p {
	case Append:
	case Flush:
		c.queue = nil
		if c.current == nil || c.current.policy != Alert {
			c.interruptLocked()
		}
	case Alert:
		c.queue = nil
		c.interruptLocked()
	}

	c.queue = append(c.queue, utterance{text: text, policy: p})
	c.cond.Signal()
}

// Stop silences the engine and drops everything queued.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue = nil
	c.interruptLocked()
}

// Speaking reports whether an utterance is playing or queued.
func (c *Channel) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil || len(c.queue) > 0
}

// Run plays queued utterances until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		c.closed = true
		c.queue = nil
		c.interruptLocked()
		c.cond.Broadcast()
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return ctx.Err()
		}

		u := c.queue[0]
		c.queue = c.queue[1:]

		uctx, cancel := context.WithCancel(ctx)
		c.current = &u
		c.cancel = cancel
		c.mu.Unlock()

		err := c.engine.Speak(uctx, u.text)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Speech engine failed", "policy", u.policy, "err", err)
		}

		c.mu.Lock()
		if c.current == &u {
			c.current = nil
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}
}

func (c *Channel) interruptLocked() {
	if c.cancel != nil {
		c.cancel()
	}
}
