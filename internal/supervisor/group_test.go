package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, _ := New(ctx)

	var n atomic.Int32
	g.Every("tick", time.Millisecond, func(context.Context) error {
		n.Add(1)
		return errors.New("transient")
	})

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, g.Wait(), "recurring errors and shutdown are not failures")
}

func TestEveryStopsWhenTickRacesShutdown(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		g, _ := New(ctx)

		var calls, late atomic.Int32
		g.Every("connectivity", time.Millisecond, func(ctx context.Context) error {
			if ctx.Err() != nil {
				late.Add(1)
			}
			if calls.Add(1) == 1 {
				cancel()
				// let ticks pile up so both select cases are ready
				time.Sleep(5 * time.Millisecond)
			}
			return nil
		})

		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), calls.Load())
		assert.Zero(t, late.Load(), "no call after shutdown")
	}
}

func TestFailingTaskCancelsGroup(t *testing.T) {
	g, gctx := New(context.Background())

	stopped := make(chan struct{})
	g.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	g.Go("broken", func(context.Context) error {
		return errors.New("socket closed")
	})

	err := g.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: socket closed")
	assert.Error(t, gctx.Err())

	select {
	case <-stopped:
	default:
		t.Fatal("sibling task was not cancelled")
	}
}
