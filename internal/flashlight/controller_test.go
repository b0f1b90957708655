package flashlight

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTorch struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (f *fakeTorch) SetTorch(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, on)
	return f.err
}

func (f *fakeTorch) Calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var testSettings = Settings{
	DarkThreshold:     60,
	LightThreshold:    80,
	DarkFrames:        2,
	MinToggleInterval: 5 * time.Second,
	MinHold:           10 * time.Minute,
}

func newController(torch Torch) (*Controller, *clock) {
	clk := &clock{t: time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)}
	return New(torch, testSettings, WithClock(clk.Now)), clk
}

func TestObserveTurnsOnAtThirdSample(t *testing.T) {
	torch := &fakeTorch{}
	c, clk := newController(torch)
	ctx := context.Background()

	feed := []int{70, 50, 45, 40}
	var onAt int
	for i, b := range feed {
		d := c.Observe(ctx, b)
		if d.Changed {
			require.Zero(t, onAt, "torch must switch on only once")
			onAt = i + 1
			assert.Equal(t, ReasonDarkness, d.Reason)
		}
		clk.Advance(time.Second)
	}

	assert.Equal(t, 3, onAt)
	assert.Equal(t, []bool{true}, torch.Calls())
}

func TestObserveResetsRunOnBrightSample(t *testing.T) {
	c, _ := newController(&fakeTorch{})
	ctx := context.Background()

	c.Observe(ctx, 50)
	c.Observe(ctx, 90)
	d := c.Observe(ctx, 50)

	assert.False(t, d.Changed)
	assert.Equal(t, 1, c.State().DarkFrames)
}

func TestObserveHonoursToggleInterval(t *testing.T) {
	c, clk := newController(&fakeTorch{})
	ctx := context.Background()

	require.True(t, c.On(ctx).Changed)
	clk.Advance(10 * time.Minute)
	require.True(t, c.Off(ctx).Changed)

	clk.Advance(time.Second)
	c.Observe(ctx, 20)
	d := c.Observe(ctx, 20)
	assert.False(t, d.Changed, "interval since the manual off has not elapsed")

	clk.Advance(5 * time.Second)
	d = c.Observe(ctx, 20)
	assert.True(t, d.Changed)
}

func TestNeverTurnsOffAutomatically(t *testing.T) {
	c, clk := newController(&fakeTorch{})
	ctx := context.Background()

	c.Observe(ctx, 10)
	require.True(t, c.Observe(ctx, 10).Changed)

	for i := 0; i < 100; i++ {
		clk.Advance(time.Minute)
		d := c.Observe(ctx, 240)
		require.True(t, d.On)
		require.False(t, d.Changed)
	}
	assert.True(t, c.IsOn())
}

func TestManualOffRequiresHold(t *testing.T) {
	torch := &fakeTorch{}
	c, clk := newController(torch)
	ctx := context.Background()

	c.On(ctx)
	clk.Advance(4 * time.Minute)

	d := c.Off(ctx)
	assert.False(t, d.Changed)
	assert.True(t, d.On)
	assert.Equal(t, 6*time.Minute, d.Remaining)

	clk.Advance(6 * time.Minute)
	d = c.Off(ctx)
	assert.True(t, d.Changed)
	assert.False(t, d.On)
	assert.Equal(t, []bool{true, false}, torch.Calls())
}

func TestManualOnIsImmediate(t *testing.T) {
	c, _ := newController(&fakeTorch{})
	d := c.On(context.Background())
	assert.True(t, d.Changed)
	assert.Equal(t, ReasonManual, d.Reason)
}

func TestHintSkipsHysteresis(t *testing.T) {
	c, _ := newController(&fakeTorch{})
	d := c.Hint(context.Background())
	assert.True(t, d.Changed)
	assert.Equal(t, ReasonHint, d.Reason)

	d = c.Hint(context.Background())
	assert.False(t, d.Changed)
}

func TestTorchFailureKeepsIntendedState(t *testing.T) {
	torch := &fakeTorch{err: errors.New("camera in use")}
	c, _ := newController(torch)
	ctx := context.Background()

	c.On(ctx)
	assert.True(t, c.IsOn())

	c.KeepAlive(ctx)
	assert.Equal(t, []bool{true, true}, torch.Calls(), "keep-alive retries the failed switch")
}

func TestKeepAliveIdleWhenOff(t *testing.T) {
	torch := &fakeTorch{}
	c, _ := newController(torch)
	c.KeepAlive(context.Background())
	assert.Empty(t, torch.Calls())
}

func TestBrightness(t *testing.T) {
	uniform := func(v uint8) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, 96, 96))
		for x := 0; x < 96; x++ {
			for y := 0; y < 96; y++ {
				img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
			}
		}
		return img
	}

	assert.Equal(t, 100, Brightness(uniform(100)))
	assert.Equal(t, 10, Brightness(uniform(0)), "clamped low")
	assert.Equal(t, 245, Brightness(uniform(255)), "clamped high")
	assert.Equal(t, 50, Brightness(nil))
	assert.Equal(t, 50, Brightness(image.NewRGBA(image.Rect(0, 0, 1, 1))), "no sampled pixels")
}

func TestBrightnessIgnoresBorder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 90, 90))
	for x := 0; x < 90; x++ {
		for y := 0; y < 90; y++ {
			v := uint8(255)
			if x >= 30 && x < 60 && y >= 30 && y < 60 {
				v = 40
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	assert.Equal(t, 40, Brightness(img))
}
