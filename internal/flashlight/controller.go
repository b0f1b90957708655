// Package flashlight decides when the torch is lit.
//
// The policy is asymmetric on purpose: darkness turns the torch on after a
// short run of dark samples, but nothing automatic ever turns it off. Only
// an explicit user command does, and only once the torch has been lit for
// the minimum hold duration.
package flashlight

import (
	"context"
	log "log/slog"
	"sync"
	"time"
)

// Torch is the hardware switch.
type Torch interface {
	SetTorch(ctx context.Context, on bool) error
}

type Settings struct {
	DarkThreshold     int
	LightThreshold    int
	DarkFrames        int
	MinToggleInterval time.Duration
	MinHold           time.Duration
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonDarkness
	ReasonHint
	ReasonManual
)

func (r Reason) String() string {
	switch r {
	case ReasonDarkness:
		return "darkness"
	case ReasonHint:
		return "hint"
	case ReasonManual:
		return "manual"
	default:
		return "none"
	}
}

// Decision reports what a single input did to the torch. Remaining is set
// when a manual off request was refused because the hold has not elapsed.
type Decision struct {
	Changed   bool
	On        bool
	Reason    Reason
	Remaining time.Duration
}

type State struct {
	On           bool
	LastToggle   time.Time
	DarkFrames   int
	BrightFrames int
}

type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type Controller struct {
	torch Torch
	cfg   Settings
	now   func() time.Time

	mu          sync.Mutex
	on          bool
	lastToggle  time.Time
	darkCount   int
	brightCount int
}

func New(torch Torch, cfg Settings, opts ...Option) *Controller {
	c := &Controller{
		torch: torch,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Observe feeds one brightness sample.
func (c *Controller) Observe(ctx context.Context, brightness int) Decision {
	c.mu.Lock()

	if brightness < c.cfg.DarkThreshold {
		c.darkCount++
		c.brightCount = 0
	} else {
		c.darkCount = 0
		if brightness >= c.cfg.LightThreshold {
			c.brightCount++
		}
	}

	if c.on || c.darkCount < c.cfg.DarkFrames || !c.intervalElapsedLocked() {
		c.mu.Unlock()
		return Decision{On: c.on}
	}

	c.switchOnLocked()
	log.Info("Flashlight on", "reason", ReasonDarkness, "brightness", brightness, "dark_frames", c.darkCount)
	c.mu.Unlock()

	c.apply(ctx, true)
	return Decision{Changed: true, On: true, Reason: ReasonDarkness}
}

// Hint is raised when narration reports poor light. It skips the dark-frame
// run but still honours the minimum interval between toggles.
func (c *Controller) Hint(ctx context.Context) Decision {
	c.mu.Lock()
	if c.on || !c.intervalElapsedLocked() {
		c.mu.Unlock()
		return Decision{On: c.on}
	}

	c.switchOnLocked()
	log.Info("Flashlight on", "reason", ReasonHint)
	c.mu.Unlock()

	c.apply(ctx, true)
	return Decision{Changed: true, On: true, Reason: ReasonHint}
}

// On is the manual request. It is always honoured and restarts the hold.
func (c *Controller) On(ctx context.Context) Decision {
	c.mu.Lock()
	changed := !c.on
	c.switchOnLocked()
	c.mu.Unlock()

	c.apply(ctx, true)
	return Decision{Changed: changed, On: true, Reason: ReasonManual}
}

// Off is the manual request; it is refused until MinHold has passed since
// the torch was last switched.
func (c *Controller) Off(ctx context.Context) Decision {
	c.mu.Lock()
	if !c.on {
		c.mu.Unlock()
		return Decision{Reason: ReasonManual}
	}

	held := c.now().Sub(c.lastToggle)
	if held < c.cfg.MinHold {
		c.mu.Unlock()
		return Decision{On: true, Reason: ReasonManual, Remaining: c.cfg.MinHold - held}
	}

	c.on = false
	c.lastToggle = c.now()
	c.mu.Unlock()

	c.apply(ctx, false)
	return Decision{Changed: true, On: false, Reason: ReasonManual}
}

// KeepAlive reasserts the lit state against platform-level torch resets.
func (c *Controller) KeepAlive(ctx context.Context) {
	c.mu.Lock()
	on := c.on
	c.mu.Unlock()

	if on {
		c.apply(ctx, true)
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		On:           c.on,
		LastToggle:   c.lastToggle,
		DarkFrames:   c.darkCount,
		BrightFrames: c.brightCount,
	}
}

func (c *Controller) IsOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}

func (c *Controller) intervalElapsedLocked() bool {
	if c.lastToggle.IsZero() {
		return true
	}
	return c.now().Sub(c.lastToggle) >= c.cfg.MinToggleInterval
}

func (c *Controller) switchOnLocked() {
	c.on = true
	c.lastToggle = c.now()
}

// apply drives the hardware. Failures are transient: the intended state is
// kept and the next keep-alive tick retries.
func (c *Controller) apply(ctx context.Context, on bool) {
	if c.torch == nil {
		return
	}
	if err := c.torch.SetTorch(ctx, on); err != nil {
		log.Warn("Torch control failed", "on", on, "err", err)
	}
}
