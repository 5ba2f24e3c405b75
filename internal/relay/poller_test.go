package relay

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/devblac/bridge-relay/internal/chain"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]chain.Event
	err     error
	froms   []uint64
}

func (f *fakeSource) QueryEvents(_ context.Context, _ *chain.Binding, _ string, from uint64, _ *big.Int, _ chain.Filter) ([]chain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.froms = append(f.froms, from)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	out := f.batches[0]
	f.batches = f.batches[1:]
	return out, nil
}

func (f *fakeSource) push(evs ...chain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, evs)
}

func TestPollAppendsAndAdvancesWatermark(t *testing.T) {
	src := &fakeSource{}
	src.push(ev(0xB, 12))
	q := &Queue{}
	q.Append(ev(0xA, 10))

	p := NewPoller(src, &chain.Binding{}, "Transfer", nil, nil, 11)
	res, err := p.Poll(context.Background(), q)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Fetched != 1 || res.Queued != 1 {
		t.Fatalf("result = %+v", res)
	}
	if string(hashes(q.Peek(0))) != string([]byte{0xA, 0xB}) {
		t.Fatalf("queue = %x", hashes(q.Peek(0)))
	}
	if p.Watermark() != 13 {
		t.Fatalf("watermark = %d, want 13", p.Watermark())
	}
	if src.froms[0] != 11 {
		t.Fatalf("queried from %d, want 11", src.froms[0])
	}
}

func TestPollWatermarkMonotonic(t *testing.T) {
	src := &fakeSource{}
	src.push(ev(0x1, 4), ev(0x2, 30))
	src.push()
	src.push(ev(0x3, 8))

	q := &Queue{}
	p := NewPoller(src, &chain.Binding{}, "Transfer", nil, nil, 20)
	prev := p.Watermark()
	for i := 0; i < 3; i++ {
		if _, err := p.Poll(context.Background(), q); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if p.Watermark() < prev {
			t.Fatalf("watermark regressed from %d to %d", prev, p.Watermark())
		}
		for _, e := range q.Peek(0) {
			if p.Watermark() < e.BlockNumber+1 {
				t.Fatalf("watermark %d behind queued block %d", p.Watermark(), e.BlockNumber)
			}
		}
		prev = p.Watermark()
	}
	if p.Watermark() != 31 {
		t.Fatalf("watermark = %d, want 31", p.Watermark())
	}
}

func TestPollErrorLeavesWatermark(t *testing.T) {
	src := &fakeSource{err: errors.New("rpc down")}
	q := &Queue{}
	p := NewPoller(src, &chain.Binding{}, "Transfer", nil, nil, 7)
	if _, err := p.Poll(context.Background(), q); err == nil {
		t.Fatalf("expected poll error")
	}
	if p.Watermark() != 7 || q.Len() != 0 {
		t.Fatalf("watermark = %d, len = %d", p.Watermark(), q.Len())
	}
}

func TestPollWhereFiltersButAdvances(t *testing.T) {
	where, err := CompilePredicates([]string{"value > 100"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	small := ev(0x1, 5)
	small.ReturnValues["value"] = big.NewInt(50)
	large := ev(0x2, 6)
	large.ReturnValues["value"] = big.NewInt(500)
	src := &fakeSource{}
	src.push(small, large, func() chain.Event { e := ev(0x3, 9); e.ReturnValues["value"] = big.NewInt(1); return e }())

	q := &Queue{}
	p := NewPoller(src, &chain.Binding{}, "Transfer", nil, where, 0)
	res, err := p.Poll(context.Background(), q)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Fetched != 3 || res.Queued != 1 || q.Len() != 1 {
		t.Fatalf("result = %+v, len = %d", res, q.Len())
	}
	if p.Watermark() != 10 {
		t.Fatalf("watermark = %d, want 10", p.Watermark())
	}
}
