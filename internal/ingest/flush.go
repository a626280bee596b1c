package ingest

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FlushCoordinator merges sealed generations into the target store on a single
// background goroutine, one at a time, in seal order. One sealed generation may
// wait while another merges; a further Submit blocks until the merge ends.
type FlushCoordinator struct {
	target string
	logger *zap.Logger
	queue  chan *Generation
	done   chan struct{}

	mu      sync.Mutex
	err     error
	flushes int
	rows    int64
}

func NewFlushCoordinator(ctx context.Context, targetPath string, logger *zap.Logger) *FlushCoordinator {
	c := &FlushCoordinator{
		target: targetPath,
		logger: logger,
		queue:  make(chan *Generation, 1),
		done:   make(chan struct{}),
	}
	// A merge that has started runs to completion even if ctx is cancelled.
	go c.loop(context.WithoutCancel(ctx))
	return c
}

func (c *FlushCoordinator) loop(ctx context.Context) {
	defer close(c.done)
	for g := range c.queue {
		if c.Err() != nil {
			c.logger.Warn("dropping sealed generation after earlier flush failure", zap.Int("generation", g.ID))
			g.retire()
			continue
		}

		c.logger.Info("flush started", zap.Int("generation", g.ID), zap.Int("pages", g.Pages()))
		st, err := g.merge(ctx, c.target, c.logger)
		if err != nil {
			c.logger.Error("flush failed", zap.Int("generation", g.ID), zap.Error(err))
			c.fail(errors.Wrapf(err, "flush generation %d", g.ID))
			continue
		}
		flushesTotal.Inc()
		flushDuration.Observe(st.Duration.Seconds())
		c.mu.Lock()
		c.flushes++
		c.rows += st.Rows
		c.mu.Unlock()
		c.logger.Info("flush finished",
			zap.Int("generation", g.ID),
			zap.Int64("rows", st.Rows),
			zap.Duration("duration", st.Duration))
	}
}

func (c *FlushCoordinator) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Submit queues a sealed generation for merging. It returns the first recorded
// flush error instead of queueing once a merge has failed.
func (c *FlushCoordinator) Submit(ctx context.Context, g *Generation) error {
	if err := c.Err(); err != nil {
		g.retire()
		return err
	}
	if s := g.State(); s != StateSealed {
		return errors.Errorf("generation %d is %s, only SEALED generations can be flushed", g.ID, s)
	}
	select {
	case c.queue <- g:
		return nil
	case <-ctx.Done():
		g.retire()
		return ctx.Err()
	}
}

// Err returns the first flush error, if any.
func (c *FlushCoordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Flushes is the number of completed merges.
func (c *FlushCoordinator) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// Close stops accepting generations and waits for queued merges to finish.
func (c *FlushCoordinator) Close() error {
	close(c.queue)
	<-c.done
	return c.Err()
}
