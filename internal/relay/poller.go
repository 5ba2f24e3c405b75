package relay

import (
	"context"
	"math/big"

	"github.com/devblac/bridge-relay/internal/chain"
)

// EventSource is the read side of a ledger.
type EventSource interface {
	QueryEvents(ctx context.Context, b *chain.Binding, event string, fromBlock uint64, toBlock *big.Int, filter chain.Filter) ([]chain.Event, error)
}

// Poller queries a source contract for events since its watermark.
type Poller struct {
	source    EventSource
	binding   *chain.Binding
	event     string
	filter    chain.Filter
	where     []Predicate
	watermark uint64
}

// PollResult summarizes one poll.
type PollResult struct {
	Fetched int
	Queued  int
}

// NewPoller builds a poller starting at the given watermark.
func NewPoller(source EventSource, b *chain.Binding, event string, filter chain.Filter, where []Predicate, watermark uint64) *Poller {
	return &Poller{
		source:    source,
		binding:   b,
		event:     event,
		filter:    filter,
		where:     where,
		watermark: watermark,
	}
}

// Watermark is the lowest block not yet fully queried.
func (p *Poller) Watermark() uint64 { return p.watermark }

// Poll fetches events from the watermark to the latest block and appends those passing
// the where predicates to q. The watermark only moves forward, past every fetched event
// and every event still queued. On error nothing changes.
func (p *Poller) Poll(ctx context.Context, q *Queue) (PollResult, error) {
	events, err := p.source.QueryEvents(ctx, p.binding, p.event, p.watermark, nil, p.filter)
	if err != nil {
		return PollResult{}, err
	}

	res := PollResult{Fetched: len(events)}
	for _, ev := range events {
		p.advance(ev.BlockNumber)
		if !allPredicates(p.where, ev.ReturnValues) {
			continue
		}
		q.Append(ev)
		res.Queued++
	}
	if _, hi, ok := q.BlockRange(); ok {
		p.advance(hi)
	}
	return res, nil
}

func (p *Poller) advance(block uint64) {
	if block+1 > p.watermark {
		p.watermark = block + 1
	}
}
