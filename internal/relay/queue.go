package relay

import "github.com/devblac/bridge-relay/internal/chain"

// Queue is the ordered set of events a pipeline has observed but not yet resolved.
// It does not suppress duplicates. It is not safe for concurrent use; the pipeline owns it.
type Queue struct {
	events []chain.Event
}

// Append adds events after everything currently queued.
func (q *Queue) Append(evs ...chain.Event) {
	q.events = append(q.events, evs...)
}

// DequeueBatch removes and returns up to n events from the front.
func (q *Queue) DequeueBatch(n int) []chain.Event {
	if n <= 0 || n > len(q.events) {
		n = len(q.events)
	}
	out := make([]chain.Event, n)
	copy(out, q.events[:n])
	q.events = append(q.events[:0], q.events[n:]...)
	return out
}

// Peek returns up to n events from the front without removing them.
func (q *Queue) Peek(n int) []chain.Event {
	if n <= 0 || n > len(q.events) {
		n = len(q.events)
	}
	out := make([]chain.Event, n)
	copy(out, q.events[:n])
	return out
}

// RequeueFront puts events back at the front, keeping their relative order.
func (q *Queue) RequeueFront(evs ...chain.Event) {
	if len(evs) == 0 {
		return
	}
	merged := make([]chain.Event, 0, len(evs)+len(q.events))
	merged = append(merged, evs...)
	q.events = append(merged, q.events...)
}

// RequeueBack puts events after everything currently queued.
func (q *Queue) RequeueBack(evs ...chain.Event) {
	q.Append(evs...)
}

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.events) }

// BlockRange returns the lowest and highest block number among queued events.
func (q *Queue) BlockRange() (lo, hi uint64, ok bool) {
	if len(q.events) == 0 {
		return 0, 0, false
	}
	lo, hi = q.events[0].BlockNumber, q.events[0].BlockNumber
	for _, ev := range q.events[1:] {
		if ev.BlockNumber < lo {
			lo = ev.BlockNumber
		}
		if ev.BlockNumber > hi {
			hi = ev.BlockNumber
		}
	}
	return lo, hi, true
}
