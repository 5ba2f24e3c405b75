// Package engine schedules the relay pipelines.
package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultSettleTimeout bounds how long shutdown waits for in-flight batches.
const DefaultSettleTimeout = 2 * time.Minute

// Pipeline is one relay driven by the runner. *relay.Pipeline implements it.
type Pipeline interface {
	Name() string
	Update(ctx context.Context)
	Settle(ctx context.Context) error
}

// Runner ticks a set of pipelines on a fixed interval.
type Runner struct {
	pipelines     []Pipeline
	interval      time.Duration
	settleTimeout time.Duration
	log           *slog.Logger
}

// NewRunner builds a runner ticking every interval.
func NewRunner(pipelines []Pipeline, interval time.Duration, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		pipelines:     pipelines,
		interval:      interval,
		settleTimeout: DefaultSettleTimeout,
		log:           log,
	}
}

// RunOnce ticks every pipeline once, in order.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, p := range r.pipelines {
		p.Update(ctx)
	}
}

// Run ticks each pipeline on its own goroutine until ctx is done, then settles
// in-flight batches. The first tick happens immediately.
func (r *Runner) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, p := range r.pipelines {
		g.Go(func() error {
			r.loop(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return r.Settle()
}

func (r *Runner) loop(ctx context.Context, p Pipeline) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		p.Update(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Settle waits for every pipeline's in-flight batch and applies its outcomes.
// It returns the first timeout, after trying every pipeline.
func (r *Runner) Settle() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.settleTimeout)
	defer cancel()

	var first error
	for _, p := range r.pipelines {
		if err := p.Settle(ctx); err != nil {
			r.log.Error("settle failed", "pipeline", p.Name(), "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		r.log.Info("pipeline settled", "pipeline", p.Name())
	}
	return first
}
