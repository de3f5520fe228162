// Package background runs detached follow-up work that must not block a
// response but must finish before shutdown.
package background

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/louisbranch/passkeyd/internal/platform/timeouts"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultLimit bounds concurrently running tasks.
const DefaultLimit = 64

// ErrClosed is returned by Go after Wait started.
var ErrClosed = errors.New("background group closed")

// Group supervises detached tasks. Failures are logged, never returned to
// the caller that scheduled them.
type Group struct {
	logger  *zap.Logger
	timeout time.Duration

	mu         sync.Mutex
	closed     bool
	scheduling sync.WaitGroup
	group      errgroup.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// Options configures a Group.
type Options struct {
	Limit   int
	Timeout time.Duration
}

// New creates a Group.
func New(logger *zap.Logger, opts Options) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = timeouts.Background
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Group{logger: logger, timeout: opts.Timeout, ctx: ctx, cancel: cancel}
	g.group.SetLimit(opts.Limit)
	return g
}

// Go schedules fn under name. It blocks while the group is at its limit,
// without holding the lock Wait needs to close the group.
func (g *Group) Go(name string, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.logger.Warn("background task dropped after shutdown", zap.String("task", name))
		return ErrClosed
	}
	g.scheduling.Add(1)
	g.mu.Unlock()
	defer g.scheduling.Done()

	g.group.Go(func() error {
		ctx, cancel := context.WithTimeout(g.ctx, g.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			g.logger.Error("background task failed",
				zap.String("task", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		}
		return nil
	})
	return nil
}

// Wait stops accepting tasks and waits for running ones. When ctx ends
// first, running tasks are cancelled and ctx's error is returned.
func (g *Group) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		// Callers blocked at the limit must reach group.Go before group.Wait.
		g.scheduling.Wait()
		_ = g.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.cancel()
		return nil
	case <-ctx.Done():
		g.cancel()
		<-done
		return ctx.Err()
	}
}
