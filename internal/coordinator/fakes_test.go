package coordinator

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"blindnav/internal/currency"
	"blindnav/internal/flashlight"
	"blindnav/internal/overlay"
	"blindnav/internal/speech"
	"blindnav/pkg/vlm"
)

type utterance struct {
	Text   string
	Policy speech.Policy
}

type fakeSpeaker struct {
	mu    sync.Mutex
	said  []utterance
	stops int
}

func (s *fakeSpeaker) Say(text string, p speech.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, utterance{text, p})
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSpeaker) all() []utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]utterance(nil), s.said...)
}

func (s *fakeSpeaker) last() utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.said) == 0 {
		return utterance{}
	}
	return s.said[len(s.said)-1]
}

func (s *fakeSpeaker) count(text string) int {
	n := 0
	for _, u := range s.all() {
		if u.Text == text {
			n++
		}
	}
	return n
}

func (s *fakeSpeaker) has(text string, p speech.Policy) bool {
	for _, u := range s.all() {
		if u.Text == text && u.Policy == p {
			return true
		}
	}
	return false
}

type fakeCamera struct {
	mu     sync.Mutex
	img    image.Image
	err    error
	shots  int
	hold   time.Duration
	active int
	peak   int
}

func (c *fakeCamera) Capture(context.Context) (image.Image, error) {
	c.mu.Lock()
	c.shots++
	c.active++
	c.peak = max(c.peak, c.active)
	hold := c.hold
	c.mu.Unlock()

	time.Sleep(hold)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.active--
	return c.img, c.err
}

func (c *fakeCamera) slow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = d
}

// usage returns the number of captures so far and the most that overlapped.
func (c *fakeCamera) usage() (shots, peak int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shots, c.peak
}

// sliceStream yields fixed fragments, then err.
type sliceStream struct {
	frags []string
	cur   string
	err   error
}

func (s *sliceStream) Next() bool {
	if len(s.frags) == 0 {
		return false
	}
	s.cur, s.frags = s.frags[0], s.frags[1:]
	return true
}

func (s *sliceStream) Current() string { return s.cur }
func (s *sliceStream) Err() error      { return s.err }
func (s *sliceStream) Close() error    { return nil }

// gatedStream yields whatever the test sends until the channel is closed.
// It ignores cancellation so late fragments reach the coordinator.
type gatedStream struct {
	ch  chan string
	cur string
}

func (s *gatedStream) Next() bool {
	v, ok := <-s.ch
	s.cur = v
	return ok
}

func (s *gatedStream) Current() string { return s.cur }
func (s *gatedStream) Err() error      { return nil }
func (s *gatedStream) Close() error    { return nil }

type fakeAnalyzer struct {
	mu      sync.Mutex
	reqs    []vlm.Request
	respond func(vlm.Request) (vlm.Stream, error)
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req vlm.Request) (vlm.Stream, error) {
	a.mu.Lock()
	a.reqs = append(a.reqs, req)
	respond := a.respond
	a.mu.Unlock()

	if respond == nil {
		return &sliceStream{}, nil
	}
	return respond(req)
}

func (a *fakeAnalyzer) set(respond func(vlm.Request) (vlm.Stream, error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.respond = respond
}

func (a *fakeAnalyzer) calls(p vlm.Profile) []vlm.Request {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []vlm.Request
	for _, r := range a.reqs {
		if r.Profile == p {
			out = append(out, r)
		}
	}
	return out
}

func fragments(frags ...string) func(vlm.Request) (vlm.Stream, error) {
	return func(vlm.Request) (vlm.Stream, error) {
		return &sliceStream{frags: append([]string(nil), frags...)}, nil
	}
}

func (c *fakeCamera) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type fakeClassifier struct {
	mu       sync.Mutex
	readings []currency.Reading
	err      error
	calls    int
}

func (c *fakeClassifier) Classify(context.Context, image.Image) (currency.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.err != nil {
		return currency.Reading{}, c.err
	}
	if len(c.readings) == 0 {
		return currency.Reading{}, nil
	}
	r := c.readings[0]
	if len(c.readings) > 1 {
		c.readings = c.readings[1:]
	}
	return r, nil
}

func (c *fakeClassifier) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

type fakePublisher struct {
	mu     sync.Mutex
	states []overlay.State
}

func (p *fakePublisher) Publish(s overlay.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
}

func (p *fakePublisher) last() overlay.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[len(p.states)-1]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	c          *Coordinator
	speaker    *fakeSpeaker
	camera     *fakeCamera
	analyzer   *fakeAnalyzer
	classifier *fakeClassifier
	publisher  *fakePublisher
	clock      *clock
}

func gray(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 48, 48))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// newFixture starts a coordinator whose capture loops never tick on their
// own; tests drive frames and captures explicitly.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		speaker:    &fakeSpeaker{},
		camera:     &fakeCamera{img: gray(200)},
		analyzer:   &fakeAnalyzer{},
		classifier: &fakeClassifier{},
		publisher:  &fakePublisher{},
		clock:      &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
	}

	flash := flashlight.New(nil, flashlight.Settings{
		DarkThreshold:     60,
		LightThreshold:    80,
		DarkFrames:        2,
		MinToggleInterval: 5 * time.Second,
		MinHold:           10 * time.Minute,
	}, flashlight.WithClock(f.clock.now))

	f.c = New(Deps{
		Speaker:    f.speaker,
		Camera:     f.camera,
		Analyzer:   f.analyzer,
		Classifier: f.classifier,
		Flashlight: flash,
		Publisher:  f.publisher,
	}, Options{
		NavigationCadence: time.Hour,
		InferenceMinGap:   2 * time.Second,
		FrameBuffer:       3,
		AnalysisStaleness: 30 * time.Second,
		ContextHistory:    5,
		CurrencyCadence:   time.Hour,
		BusyBackoff:       5 * time.Millisecond,
		GuidanceThrottle:  3 * time.Second,
		Unit:              "Rupee",
		Clock:             f.clock.now,
	})

	ctx, cancel := context.WithCancel(context.Background())
	f.c.Start(ctx)
	t.Cleanup(func() {
		cancel()
		f.c.Close()
	})
	return f
}

func (f *fixture) eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func (f *fixture) spoke(t *testing.T, text string, p speech.Policy) {
	t.Helper()
	f.eventually(t, func() bool { return f.speaker.has(text, p) }, text)
}
