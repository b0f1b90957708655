// Package overlay pushes what the screen should show to the presentation
// layer. Only the newest state matters, so publishing never blocks and
// unsent states are overwritten.
package overlay

import (
	"context"
	log "log/slog"
	"sync"
)

type State struct {
	Session   string `json:"session"`
	Mode      string `json:"mode"`
	Epoch     uint64 `json:"epoch"`
	Online    bool   `json:"online"`
	Torch     bool   `json:"torch"`
	Listening bool   `json:"listening"`
	Text      string `json:"text,omitempty"`
	Notes     []int  `json:"notes,omitempty"`
	Total     int    `json:"total,omitempty"`
}

// Sink delivers one state, e.g. as a websocket frame.
type Sink interface {
	WriteJSON(v any) error
}

type Stats struct {
	Published uint64
	Sent      uint64
	Dropped   uint64
	Failed    uint64
}

type Publisher struct {
	sink Sink

	mu      sync.Mutex
	cond    *sync.Cond
	pending *State
	closed  bool
	stats   Stats
}

func NewPublisher(sink Sink) *Publisher {
	p := &Publisher{sink: sink}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Publish replaces any unsent state with s.
func (p *Publisher) Publish(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if p.pending != nil {
		p.stats.Dropped++
	}
	p.pending = &s
	p.stats.Published++
	p.cond.Signal()
}

func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run sends states until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.closed = true
		p.cond.Broadcast()
		p.mu.Unlock()
	}()

	for {
		p.mu.Lock()
		for p.pending == nil && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return ctx.Err()
		}
		s := *p.pending
		p.pending = nil
		p.mu.Unlock()

		err := p.sink.WriteJSON(s)

		p.mu.Lock()
		if err != nil {
			p.stats.Failed++
		} else {
			p.stats.Sent++
		}
		p.mu.Unlock()

		if err != nil {
			log.Warn("Failed to publish overlay", "err", err)
		}
	}
}

// LogSink writes states to the debug log when no display is attached.
type LogSink struct{}

func (LogSink) WriteJSON(v any) error {
	if s, ok := v.(State); ok {
		log.Debug("Overlay", "mode", s.Mode, "epoch", s.Epoch, "online", s.Online, "torch", s.Torch, "text", s.Text)
	}
	return nil
}
