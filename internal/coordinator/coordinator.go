// Package coordinator owns the operating mode and arbitrates camera frames,
// voice commands, gestures and remote inference results between modes.
//
// All state lives behind one mutex. Every mode residency gets its own
// context and epoch: leaving a mode cancels the context, and any result
// still arriving under an older epoch is dropped.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"image"
	log "log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"blindnav/internal/config"
	"blindnav/internal/currency"
	"blindnav/internal/flashlight"
	"blindnav/internal/overlay"
	"blindnav/internal/pipeline"
	"blindnav/internal/speech"
	"blindnav/internal/voice"
	"blindnav/pkg/vlm"
)

const (
	WelcomePhrase       = "Welcome to Blind Navigator. I'm ready to help you. Voice commands are now active."
	WakeAckPhrase       = "I'm listening. How can I help you?"
	NavigationPhrase    = "Navigation mode activated. I'll guide you."
	AssistantOnPhrase   = "Assistant mode activated."
	AssistantOffPhrase  = "Assistant mode deactivated."
	AssistantExitPhrase = "Exiting assistant mode, entering navigation mode"
	ReadingVoicePhrase  = "Reading mode activated. Point camera at text."
	ReadingEnterPhrase  = "Entering reading mode"
	ReadingExitPhrase   = "Exiting reading mode"
	CurrencyPhrase      = "Currency detection mode activated. Point camera at money bills to identify their value. Automatic detection is enabled."

	ProcessingPhrase  = "Processing text. This may take a moment for longer documents."
	ReadFailedMessage = "I couldn't read the text properly. Please try again with better lighting or hold the camera closer to the document."
	RereadPhrase      = "Reading from the beginning"

	AssistantErrorMessage = "Sorry, I encountered an error. Please try again."
	AssistantEmptyMessage = "I couldn't generate a response. Please try rephrasing your question."
	OfflineMessage        = "You are not connected to the internet"

	ManualCapturePhrase  = "Manually capturing image for currency detection. Please hold the camera steady."
	CaptureErrorMessage  = "Error capturing image. Please make sure the camera is not obstructed and try again."
	CurrencyErrorMessage = "Error processing the image. Please try again with better lighting and ensure the currency note is clearly visible."

	FlashOnPhrase      = "Flashlight on for 10 minutes"
	FlashOffPhrase     = "Flashlight off"
	FlashAlreadyOff    = "Flashlight is already off"
	LowLightPhrase     = "Low light detected. Flashlight activated for 10 minutes."
	DarknessHintPhrase = "It's dark, turning on flashlight for 10 minutes"
)

// Speaker is the speech output channel.
type Speaker interface {
	Say(text string, p speech.Policy)
	Stop()
}

type Camera interface {
	Capture(ctx context.Context) (image.Image, error)
}

type Publisher interface {
	Publish(s overlay.State)
}

type Earcon interface {
	Play(ctx context.Context) error
}

// Deps are the collaborators. Publisher, Earcon and Listening are optional.
type Deps struct {
	Speaker    Speaker
	Camera     Camera
	Analyzer   vlm.Analyzer
	Classifier currency.Classifier
	Flashlight *flashlight.Controller
	Router     *voice.Router
	Publisher  Publisher
	Earcon     Earcon
	// Listening reports whether the recogniser is currently open.
	Listening func() bool
}

type Options struct {
	NavigationCadence time.Duration
	InferenceMinGap   time.Duration
	FrameBuffer       int
	AnalysisStaleness time.Duration
	ContextHistory    int

	CurrencyCadence  time.Duration
	BusyBackoff      time.Duration
	GuidanceThrottle time.Duration
	Unit             string

	Clock func() time.Time
}

func OptionsFrom(cfg *config.Config) Options {
	return Options{
		NavigationCadence: cfg.Pipeline.NavigationCadence,
		InferenceMinGap:   cfg.Pipeline.InferenceMinGap,
		FrameBuffer:       cfg.Pipeline.FrameBuffer,
		AnalysisStaleness: cfg.Pipeline.AnalysisStaleness,
		ContextHistory:    cfg.Pipeline.ContextHistory,
		CurrencyCadence:   cfg.Currency.Cadence,
		BusyBackoff:       cfg.Currency.BusyBackoff,
		GuidanceThrottle:  cfg.Currency.GuidanceThrottle,
		Unit:              cfg.Currency.Unit,
	}
}

// Snapshot is a copy of the coordinator state.
type Snapshot struct {
	Session    string
	Mode       Mode
	Epoch      uint64
	Online     bool
	Analysis   string
	Spoken     int
	Chat       string
	History    []string
	Reading    string
	Chunks     []string
	Periodical bool
	Notes      []int
	Total      int
}

type Coordinator struct {
	speaker    Speaker
	camera     Camera
	// one capture at a time across loops, manual captures and questions
	cameraMu   sync.Mutex
	analyzer   vlm.Analyzer
	classifier currency.Classifier
	flash      *flashlight.Controller
	router     *voice.Router
	publisher  Publisher
	earcon     Earcon
	listening  func() bool

	opts    Options
	now     func() time.Time
	session string
	seq     atomic.Uint64

	navLane      *pipeline.Lane
	assistLane   *pipeline.Lane
	readLane     *pipeline.Lane
	currencyLane *pipeline.Lane
	guidance     *pipeline.Throttle
	ledger       *currency.Ledger

	mu         sync.Mutex
	root       context.Context
	modeCtx    context.Context
	cancelMode context.CancelFunc
	closed     bool
	mode       Mode
	epoch      uint64
	online     bool
	analysis   AnalysisBuffer
	chat       AnalysisBuffer
	history    history
	reading    ReadingSession

	wg sync.WaitGroup
}

func New(d Deps, o Options) *Coordinator {
	now := o.Clock
	if now == nil {
		now = time.Now
	}
	router := d.Router
	if router == nil {
		router = voice.NewRouter(nil)
	}

	c := &Coordinator{
		speaker:    d.Speaker,
		camera:     d.Camera,
		analyzer:   d.Analyzer,
		classifier: d.Classifier,
		flash:      d.Flashlight,
		router:     router,
		publisher:  d.Publisher,
		earcon:     d.Earcon,
		listening:  d.Listening,

		opts:    o,
		now:     now,
		session: uuid.NewString(),

		navLane:      pipeline.NewLane("navigation", o.InferenceMinGap, pipeline.WithBuffer(o.FrameBuffer), pipeline.WithClock(now)),
		assistLane:   pipeline.NewLane("assistant", 0, pipeline.WithClock(now)),
		readLane:     pipeline.NewLane("reading", 0, pipeline.WithClock(now)),
		currencyLane: pipeline.NewLane("currency", 0, pipeline.WithClock(now)),
		guidance:     pipeline.NewThrottle(o.GuidanceThrottle, now),
		ledger:       currency.NewLedger(o.Unit),

		root:    context.Background(),
		online:  true,
		history: history{max: o.ContextHistory},
	}
	return c
}

func (c *Coordinator) Session() string { return c.session }

// Start enters Navigation and greets the user. Mode loops run under ctx.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.root = ctx
	log.Info("Session started", "session", c.session)
	c.enterLocked(Navigation)
	c.speaker.Say(WelcomePhrase, speech.Flush)
	c.publishLocked()
}

// Close cancels the current mode and waits for its work to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	if c.cancelMode != nil {
		c.cancelMode()
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Session:    c.session,
		Mode:       c.mode,
		Epoch:      c.epoch,
		Online:     c.online,
		Analysis:   c.analysis.Text(),
		Spoken:     c.analysis.Spoken(),
		Chat:       c.chat.Text(),
		History:    c.history.snapshots(),
		Reading:    c.reading.Text(),
		Chunks:     c.reading.Chunks(),
		Periodical: c.reading.IsPeriodical(),
		Notes:      c.ledger.Notes(),
		Total:      c.ledger.Total(),
	}
}

// DoubleTap toggles Navigation and Assistant. In Reading it re-reads the
// session, in Currency it reports the total.
func (c *Coordinator) DoubleTap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch c.mode {
	case Navigation:
		c.switchLocked(Assistant, AssistantOnPhrase)
	case Assistant:
		c.switchLocked(Navigation, AssistantOffPhrase)
	case Reading:
		c.rereadLocked()
	case Currency:
		c.speaker.Say(c.ledger.Report(), speech.Flush)
	}
}

// LongPress toggles Navigation and Reading. It leaves Assistant for
// Navigation and resets the ledger in Currency.
func (c *Coordinator) LongPress() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch c.mode {
	case Navigation:
		c.switchLocked(Reading, ReadingEnterPhrase)
	case Reading:
		c.switchLocked(Navigation, ReadingExitPhrase)
	case Assistant:
		c.switchLocked(Navigation, AssistantExitPhrase)
	case Currency:
		c.resetLedgerLocked()
	}
}

// SelectMode is the menu entry into any mode.
func (c *Coordinator) SelectMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.mode == m {
		return
	}

	phrase := map[Mode]string{
		Navigation: NavigationPhrase,
		Assistant:  AssistantOnPhrase,
		Reading:    ReadingVoicePhrase,
		Currency:   CurrencyPhrase,
	}[m]
	c.switchLocked(m, phrase)
}

// HandleUtterance routes one transcript. It reports whether a command
// fired, so the listener can stop the recogniser on a matched partial.
func (c *Coordinator) HandleUtterance(text string, final bool) bool {
	c.mu.Lock()
	scope := voice.Scope{Assistant: c.mode == Assistant, Currency: c.mode == Currency}
	c.mu.Unlock()

	cmd := c.router.Route(text, scope, final)
	if cmd.Kind == voice.None {
		return false
	}
	log.Info("Voice command", "session", c.session, "kind", cmd.Kind, "final", final)
	c.Dispatch(cmd)
	return true
}

// Dispatch applies a routed voice command.
func (c *Coordinator) Dispatch(cmd voice.Command) {
	switch cmd.Kind {
	case voice.FlashOn:
		c.flashOn()
		return
	case voice.FlashOff:
		c.flashOff()
		return
	case voice.Query:
		c.Ask(cmd.Text)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	switch cmd.Kind {
	case voice.Wake:
		if c.mode != Assistant {
			c.switchLocked(Assistant, WakeAckPhrase)
		}
	case voice.Reading:
		if c.mode != Reading {
			c.switchLocked(Reading, ReadingVoicePhrase)
		}
	case voice.Navigation:
		if c.mode != Navigation {
			c.switchLocked(Navigation, NavigationPhrase)
		}
	case voice.Currency:
		if c.mode != Currency {
			c.switchLocked(Currency, CurrencyPhrase)
		}
	case voice.CurrencyTotal:
		if c.mode == Currency {
			c.speaker.Say(c.ledger.Report(), speech.Flush)
		}
	case voice.CurrencyReset:
		if c.mode == Currency {
			c.resetLedgerLocked()
		}
	}
}

// SetOnline records a connectivity sample. While offline every sample
// repeats the warning.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.online != online
	c.online = online
	if changed {
		log.Info("Connectivity changed", "session", c.session, "online", online)
	}
	if !online {
		c.speaker.Say(OfflineMessage, speech.Flush)
	}
	if changed {
		c.publishLocked()
	}
}

func (c *Coordinator) switchLocked(m Mode, phrase string) {
	c.enterLocked(m)
	c.speaker.Say(phrase, speech.Flush)
	if c.earcon != nil {
		ctx := c.root
		go func() {
			if err := c.earcon.Play(ctx); err != nil && ctx.Err() == nil {
				log.Debug("Earcon failed", "err", err)
			}
		}()
	}
	c.publishLocked()
}

// enterLocked ends the current residency and starts m. It cancels the old
// mode's work, bumps the epoch, silences speech and resets m's state.
func (c *Coordinator) enterLocked(m Mode) {
	prev := c.mode
	if c.cancelMode != nil {
		c.cancelMode()
	}
	c.epoch++
	c.mode = m
	c.modeCtx, c.cancelMode = context.WithCancel(c.root)
	c.speaker.Stop()

	if prev == Navigation {
		st := c.navLane.Stats()
		log.Debug("Navigation lane", "session", c.session, "forwarded", st.Forwarded, "too_soon", st.TooSoon, "busy", st.Busy, "buffered", st.Buffered)
	}

	ctx, epoch := c.modeCtx, c.epoch
	switch m {
	case Navigation:
		c.navLane.Reset()
		c.goLocked(func() { c.frameLoop(ctx) })
	case Assistant:
		c.chat.Clear()
		c.assistLane.Reset()
		c.goLocked(func() { c.frameLoop(ctx) })
	case Reading:
		c.analysis.Clear()
		c.navLane.Reset()
		c.reading.Reset()
		c.readLane.Reset()
		c.goLocked(func() { c.read(ctx, epoch) })
	case Currency:
		c.analysis.Clear()
		c.navLane.Reset()
		c.currencyLane.Reset()
		c.guidance.Reset()
		c.goLocked(func() { c.currencyLoop(ctx, epoch) })
	}

	log.Info("Mode changed", "session", c.session, "from", prev, "to", m, "epoch", c.epoch)
}

func (c *Coordinator) goLocked(fn func()) {
	if c.closed {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// sayIfCurrent speaks only while epoch is still the active residency.
func (c *Coordinator) sayIfCurrent(epoch uint64, text string, p speech.Policy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		log.Debug("Dropped stale message", "epoch", epoch, "current", c.epoch)
		return false
	}
	c.speaker.Say(text, p)
	return true
}

func (c *Coordinator) capture(ctx context.Context) (image.Image, error) {
	c.cameraMu.Lock()
	defer c.cameraMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.camera.Capture(ctx)
}

func (c *Coordinator) frame(img image.Image) pipeline.Frame {
	return pipeline.Frame{Image: img, Seq: c.seq.Add(1), At: c.now()}
}

// admit waits for lane to become idle, polling every BusyBackoff.
func (c *Coordinator) admit(ctx context.Context, lane *pipeline.Lane, f pipeline.Frame) (*pipeline.Ticket, error) {
	backoff := c.opts.BusyBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	for {
		tk, err := lane.Admit(f)
		if !errors.Is(err, pipeline.ErrBusy) {
			return tk, err
		}
		log.Debug("Lane busy", "lane", lane.Name(), "seq", f.Seq, "backoff", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Coordinator) flashOn() {
	c.flash.On(c.rootCtx())
	c.say(FlashOnPhrase, speech.Flush)
	c.publish()
}

func (c *Coordinator) flashOff() {
	d := c.flash.Off(c.rootCtx())
	switch {
	case d.Changed:
		c.say(FlashOffPhrase, speech.Flush)
	case d.Remaining > 0:
		minutes := int(math.Ceil(d.Remaining.Minutes()))
		c.say(fmt.Sprintf("Flashlight must stay on for another %d minutes for safety", minutes), speech.Flush)
	default:
		c.say(FlashAlreadyOff, speech.Flush)
	}
	c.publish()
}

// announceFlash voices an automatic torch change.
func (c *Coordinator) announceFlash(d flashlight.Decision) {
	if !d.Changed {
		return
	}
	switch d.Reason {
	case flashlight.ReasonDarkness:
		c.say(LowLightPhrase, speech.Append)
	case flashlight.ReasonHint:
		c.say(DarknessHintPhrase, speech.Append)
	}
	c.publish()
}

func (c *Coordinator) rootCtx() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

func (c *Coordinator) say(text string, p speech.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaker.Say(text, p)
}

func (c *Coordinator) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked()
}

func (c *Coordinator) publishLocked() {
	if c.publisher == nil {
		return
	}

	s := overlay.State{
		Session: c.session,
		Mode:    c.mode.String(),
		Epoch:   c.epoch,
		Online:  c.online,
		Torch:   c.flash.IsOn(),
	}
	if c.listening != nil {
		s.Listening = c.listening()
	}
	switch c.mode {
	case Navigation:
		s.Text = c.analysis.Text()
	case Assistant:
		s.Text = c.chat.Text()
	case Reading:
		s.Text = c.reading.Text()
	case Currency:
		s.Notes = c.ledger.Notes()
		s.Total = c.ledger.Total()
	}
	c.publisher.Publish(s)
}
