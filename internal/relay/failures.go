package relay

import "github.com/ethereum/go-ethereum/common"

// DefaultRetryLimit bounds submission attempts toward the counter-chain.
const DefaultRetryLimit = 8

// Placement says where a retried event re-enters the queue.
type Placement int

const (
	RequeueBack Placement = iota
	RequeueFront
)

// RetryPolicy decides what a failed submission turns into.
// A zero Limit drops on the first failure.
type RetryPolicy struct {
	Limit   int
	Requeue Placement
}

var (
	// CustodyPolicy applies to the ledger holding collected funds: never resubmit blindly.
	CustodyPolicy = RetryPolicy{}
	// CounterChainPolicy applies to the pool side, whose calls are gated by on-chain checks.
	CounterChainPolicy = RetryPolicy{Limit: DefaultRetryLimit, Requeue: RequeueBack}
)

// Decision is the classification of an outcome.
type Decision int

const (
	DecisionSuccess Decision = iota
	DecisionRetry
	DecisionDrop
)

func (d Decision) String() string {
	switch d {
	case DecisionSuccess:
		return "success"
	case DecisionRetry:
		return "retry"
	case DecisionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// FailureTracker counts consecutive failed submissions per source transaction.
type FailureTracker struct {
	counts map[common.Hash]int
}

func NewFailureTracker() *FailureTracker {
	return &FailureTracker{counts: map[common.Hash]int{}}
}

// Classify records o and returns the decision plus the failure count it was based on.
// Success and dropped builds clear the record; a failure either increments it below the
// policy limit or clears it and drops.
func (t *FailureTracker) Classify(o Outcome, policy RetryPolicy) (Decision, int) {
	h := o.Event.TxHash
	switch o.Kind {
	case OutcomeSubmitted:
		delete(t.counts, h)
		return DecisionSuccess, 0
	case OutcomeDropped:
		delete(t.counts, h)
		return DecisionDrop, 0
	}

	if policy.Limit <= 0 {
		delete(t.counts, h)
		return DecisionDrop, 1
	}
	t.counts[h]++
	n := t.counts[h]
	if n < policy.Limit {
		return DecisionRetry, n
	}
	delete(t.counts, h)
	return DecisionDrop, n
}

// Failures returns the recorded failure count for h.
func (t *FailureTracker) Failures(h common.Hash) int { return t.counts[h] }

// Len returns the number of tracked transactions.
func (t *FailureTracker) Len() int { return len(t.counts) }
