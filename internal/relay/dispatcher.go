package relay

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// ErrBatchPanic marks a batch abandoned because a build or submit panicked.
var ErrBatchPanic = errors.New("batch dispatch panicked")

// Submitter is the write side of the destination ledger.
type Submitter interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SignAndSubmit(ctx context.Context, req chain.TxRequest, nonce uint64, key *ecdsa.PrivateKey) (chain.Submission, error)
}

// BuildFunc turns an event into a destination transaction.
// A nil request or an error drops the event without consuming a nonce.
type BuildFunc func(ctx context.Context, ev chain.Event) (*chain.TxRequest, error)

// OutcomeKind classifies how a single event left the dispatcher.
type OutcomeKind int

const (
	OutcomeSubmitted OutcomeKind = iota
	OutcomeFailed
	OutcomeDropped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Outcome is the per-event result of a dispatch.
// For dropped events Err carries the builder's reason, if it gave one.
type Outcome struct {
	Event      chain.Event
	Kind       OutcomeKind
	Submission chain.Submission
	Err        error
}

// Dispatcher builds, nonces, signs and submits a batch against one destination.
type Dispatcher struct {
	dest      Submitter
	authority common.Address
	key       *ecdsa.PrivateKey
}

// NewDispatcher builds a dispatcher submitting as authority.
func NewDispatcher(dest Submitter, authority common.Address, key *ecdsa.PrivateKey) *Dispatcher {
	return &Dispatcher{dest: dest, authority: authority, key: key}
}

// Dispatch returns one outcome per event, in batch order, after every submission settled.
// The nonce is read once; built transactions take consecutive nonces in batch order
// regardless of which build or submission finishes first. A non-nil error means the
// batch itself failed and no outcomes are reported.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []chain.Event, build BuildFunc) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))
	for i, ev := range batch {
		outcomes[i].Event = ev
	}
	if len(batch) == 0 {
		return outcomes, nil
	}

	next, err := d.dest.PendingNonceAt(ctx, d.authority)
	if err != nil {
		err = fmt.Errorf("read nonce: %w", err)
		for i := range outcomes {
			outcomes[i].Kind = OutcomeFailed
			outcomes[i].Err = err
		}
		return outcomes, nil
	}

	reqs := make([]*chain.TxRequest, len(batch))
	var builds errgroup.Group
	for i, ev := range batch {
		builds.Go(func() (err error) {
			defer recoverBatch(&err)
			req, berr := build(ctx, ev)
			if berr != nil || req == nil {
				outcomes[i].Kind = OutcomeDropped
				outcomes[i].Err = berr
				return nil
			}
			reqs[i] = req
			return nil
		})
	}
	if err := builds.Wait(); err != nil {
		return nil, err
	}

	nonces := make([]uint64, len(batch))
	for i, req := range reqs {
		if req == nil {
			continue
		}
		nonces[i] = next
		next++
	}

	var submits errgroup.Group
	for i, req := range reqs {
		if req == nil {
			continue
		}
		submits.Go(func() (err error) {
			defer recoverBatch(&err)
			sub, serr := d.dest.SignAndSubmit(ctx, *req, nonces[i], d.key)
			sub.Nonce = nonces[i]
			outcomes[i].Submission = sub
			if serr != nil {
				outcomes[i].Kind = OutcomeFailed
				outcomes[i].Err = serr
				return nil
			}
			outcomes[i].Kind = OutcomeSubmitted
			return nil
		})
	}
	if err := submits.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func recoverBatch(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrBatchPanic, r)
	}
}
