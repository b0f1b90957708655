// Package supervisor runs the daemon's long-lived and recurring tasks as one
// group that is cancelled together.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

// New returns a group bound to ctx. The group context is cancelled when ctx
// is done or any task returns a non-cancellation error.
func New(ctx context.Context) (*Group, context.Context) {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}, gctx
}

// Go runs fn until it returns. A context error on shutdown is not a failure.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		err := fn(g.ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			log.Debug("Task stopped", "task", name)
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	})
}

// Every calls fn once per interval until the group is cancelled. The first
// call happens immediately and fn is never called once the group is done.
// Errors are logged and the schedule continues.
func (g *Group) Every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	g.Go(name, func(ctx context.Context) error {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				log.Warn("Recurring task failed", "task", name, "err", err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			// a tick can win the select against cancellation
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	})
}

func (g *Group) Wait() error {
	return g.eg.Wait()
}
