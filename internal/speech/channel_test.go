package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedEngine plays an utterance until the test releases it or the channel
// cancels it.
type gatedEngine struct {
	mu          sync.Mutex
	started     []string
	interrupted []string
	finished    []string
	release     chan struct{}
	startedCh   chan string
}

func newGatedEngine() *gatedEngine {
	return &gatedEngine{
		release:   make(chan struct{}, 16),
		startedCh: make(chan string, 16),
	}
}

func (e *gatedEngine) Speak(ctx context.Context, text string) error {
	e.mu.Lock()
	e.started = append(e.started, text)
	e.mu.Unlock()
	e.startedCh <- text

	select {
	case <-ctx.Done():
		e.mu.Lock()
		e.interrupted = append(e.interrupted, text)
		e.mu.Unlock()
		return ctx.Err()
	case <-e.release:
		e.mu.Lock()
		e.finished = append(e.finished, text)
		e.mu.Unlock()
		return nil
	}
}

func (e *gatedEngine) snapshot() (started, interrupted, finished []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.started...),
		append([]string(nil), e.interrupted...),
		append([]string(nil), e.finished...)
}

func (e *gatedEngine) waitStarted(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-e.startedCh:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance %q never started", want)
	}
}

func runChannel(t *testing.T, e Engine) *Channel {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := New(e)
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

func TestAppendQueuesBehindCurrent(t *testing.T) {
	e := newGatedEngine()
	c := runChannel(t, e)

	c.Say("first paragraph", Append)
	e.waitStarted(t, "first paragraph")
	c.Say("second paragraph", Append)

	e.release <- struct{}{}
	e.waitStarted(t, "second paragraph")
	e.release <- struct{}{}

	require.Eventually(t, func() bool { return !c.Speaking() }, time.Second, 5*time.Millisecond)
	_, interrupted, finished := e.snapshot()
	assert.Empty(t, interrupted)
	assert.Equal(t, []string{"first paragraph", "second paragraph"}, finished)
}

func TestFlushInterruptsAndDropsQueue(t *testing.T) {
	e := newGatedEngine()
	c := runChannel(t, e)

	c.Say("old narration", Flush)
	e.waitStarted(t, "old narration")
	c.Say("queued", Append)
	c.Say("Assistant mode activated.", Flush)

	e.waitStarted(t, "Assistant mode activated.")
	e.release <- struct{}{}

	require.Eventually(t, func() bool { return !c.Speaking() }, time.Second, 5*time.Millisecond)
	started, interrupted, _ := e.snapshot()
	assert.Equal(t, []string{"old narration"}, interrupted)
	assert.NotContains(t, started, "queued")
}

func TestFlushWaitsBehindAlert(t *testing.T) {
	e := newGatedEngine()
	c := runChannel(t, e)

	c.Say("Stop. Stairs 2 steps ahead.", Alert)
	e.waitStarted(t, "Stop. Stairs 2 steps ahead.")
	c.Say("The hallway continues.", Flush)

	e.release <- struct{}{}
	e.waitStarted(t, "The hallway continues.")
	e.release <- struct{}{}

	require.Eventually(t, func() bool { return !c.Speaking() }, time.Second, 5*time.Millisecond)
	_, interrupted, finished := e.snapshot()
	assert.Empty(t, interrupted)
	assert.Equal(t, []string{"Stop. Stairs 2 steps ahead.", "The hallway continues."}, finished)
}

func TestAlertInterruptsAlert(t *testing.T) {
	e := newGatedEngine()
	c := runChannel(t, e)

	c.Say("Careful, door.", Alert)
	e.waitStarted(t, "Careful, door.")
	c.Say("Stop immediately.", Alert)
	e.waitStarted(t, "Stop immediately.")
	e.release <- struct{}{}

	require.Eventually(t, func() bool { return !c.Speaking() }, time.Second, 5*time.Millisecond)
	_, interrupted, _ := e.snapshot()
	assert.Equal(t, []string{"Careful, door."}, interrupted)
}

func TestStopSilences(t *testing.T) {
	e := newGatedEngine()
	c := runChannel(t, e)

	c.Say("long reading", Append)
	e.waitStarted(t, "long reading")
	c.Say("more reading", Append)
	c.Stop()

	require.Eventually(t, func() bool { return !c.Speaking() }, time.Second, 5*time.Millisecond)
	started, interrupted, _ := e.snapshot()
	assert.Equal(t, []string{"long reading"}, interrupted)
	assert.Equal(t, []string{"long reading"}, started)
}

func TestBlankTextIgnored(t *testing.T) {
	c := New(newGatedEngine())
	c.Say("   ", Flush)
	assert.False(t, c.Speaking())
}
