package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakePipeline struct {
	name      string
	mu        sync.Mutex
	ticks     int
	settled   bool
	settleErr error
	tickedAt  chan struct{}
}

func newFakePipeline(name string) *fakePipeline {
	return &fakePipeline{name: name, tickedAt: make(chan struct{}, 64)}
}

func (f *fakePipeline) Name() string { return f.name }

func (f *fakePipeline) Update(context.Context) {
	f.mu.Lock()
	f.ticks++
	f.mu.Unlock()
	select {
	case f.tickedAt <- struct{}{}:
	default:
	}
}

func (f *fakePipeline) Settle(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = true
	return f.settleErr
}

func (f *fakePipeline) snapshot() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks, f.settled
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceTicksEveryPipeline(t *testing.T) {
	a, b := newFakePipeline("a"), newFakePipeline("b")
	r := NewRunner([]Pipeline{a, b}, time.Hour, quietLogger())

	r.RunOnce(context.Background())
	r.RunOnce(context.Background())

	for _, p := range []*fakePipeline{a, b} {
		if ticks, settled := p.snapshot(); ticks != 2 || settled {
			t.Fatalf("%s: ticks=%d settled=%v", p.name, ticks, settled)
		}
	}
}

func TestRunTicksUntilCancelledThenSettles(t *testing.T) {
	a, b := newFakePipeline("a"), newFakePipeline("b")
	r := NewRunner([]Pipeline{a, b}, 5*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for _, p := range []*fakePipeline{a, b} {
		for i := 0; i < 3; i++ {
			select {
			case <-p.tickedAt:
			case <-time.After(2 * time.Second):
				t.Fatalf("%s: tick %d never happened", p.name, i)
			}
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}

	for _, p := range []*fakePipeline{a, b} {
		ticks, settled := p.snapshot()
		if ticks < 3 || !settled {
			t.Fatalf("%s: ticks=%d settled=%v", p.name, ticks, settled)
		}
	}
}

func TestSettleTriesEveryPipeline(t *testing.T) {
	a, b := newFakePipeline("a"), newFakePipeline("b")
	a.settleErr = context.DeadlineExceeded
	r := NewRunner([]Pipeline{a, b}, time.Hour, quietLogger())

	if err := r.Settle(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("settle err = %v", err)
	}
	if _, settled := b.snapshot(); !settled {
		t.Fatalf("second pipeline was not settled")
	}
}

func TestRunWithCancelledContextOnlySettles(t *testing.T) {
	a := newFakePipeline("a")
	r := NewRunner([]Pipeline{a}, time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ticks, settled := a.snapshot(); ticks != 0 || !settled {
		t.Fatalf("ticks=%d settled=%v", ticks, settled)
	}
}
