package relays

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// maxSignatures bounds requiredSignatures as reported by the pool.
const maxSignatures = 256

var errNotResponsible = errors.New("not responsible for relay")

// collected is an authority's assembled payout call for one CollectedSignatures event.
type collected struct {
	Responsible bool
	Vs          []uint8
	Rs          [][32]byte
	Ss          [][32]byte
	Message     []byte
}

// withdrawConfirm signs every approved claim and submits the signature to the pool.
func (d Deps) withdrawConfirm() relay.Config {
	return relay.Config{
		Source:      d.Foreign,
		SourceName:  foreignName,
		Binding:     d.Contracts.Pool,
		Event:       "ClaimApproved",
		Destination: d.foreign(relay.CounterChainPolicy),
		Build: func(ctx context.Context, ev chain.Event, _ relay.Enrichment) (*chain.TxRequest, error) {
			policy, err := addressArg(ev, "_policyAddr")
			if err != nil {
				return nil, err
			}
			beneficiary, err := addressArg(ev, "_beneficiaryAddr")
			if err != nil {
				return nil, err
			}
			amount, err := uintArg(ev, "_payoutAmount")
			if err != nil {
				return nil, err
			}
			msg := ClaimMessage(policy, beneficiary, amount, ev.TxHash)
			sig, err := SignMessage(msg, d.Authority.Key)
			if err != nil {
				return nil, err
			}
			return d.foreignCall(ctx, "submitSignature", sig, msg)
		},
		StartBlock: d.ForeignStart,
	}
}

// withdraw lets the authority picked by the pool carry the collected signatures to the
// custodian, which verifies them and pays out.
func (d Deps) withdraw() relay.Config {
	return relay.Config{
		Source:      d.Foreign,
		SourceName:  foreignName,
		Binding:     d.Contracts.Pool,
		Event:       "CollectedSignatures",
		Enricher:    relay.EnricherFunc(d.collectSignatures),
		Destination: d.home(relay.CustodyPolicy),
		Build:       d.buildWithdraw,
		StartBlock:  d.ForeignStart,
	}
}

func (d Deps) collectSignatures(ctx context.Context, batch []chain.Event) (relay.Enrichment, error) {
	var (
		mu  sync.Mutex
		out = relay.Enrichment{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ev := range batch {
		picked, err := addressArg(ev, "authorityResponsibleForRelay")
		if err != nil {
			continue
		}
		key := ev.TxHash.Hex()
		if picked != d.Authority.Address {
			out[key] = collected{}
			continue
		}
		hash, err := hashArg(ev, "messageHash")
		if err != nil {
			continue
		}
		g.Go(func() error {
			c, err := d.collect(gctx, hash)
			if err != nil {
				return fmt.Errorf("collect %s: %w", key, err)
			}
			mu.Lock()
			out[key] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d Deps) collect(ctx context.Context, hash common.Hash) (collected, error) {
	pool, from := d.Contracts.Pool, d.Authority.Address

	res, err := d.Foreign.Call(ctx, pool, "requiredSignatures", from)
	if err != nil {
		return collected{}, err
	}
	required, ok := firstOutput[*big.Int](res)
	if !ok || !required.IsInt64() || required.Int64() < 0 || required.Int64() > maxSignatures {
		return collected{}, fmt.Errorf("unexpected requiredSignatures %v", res)
	}

	res, err = d.Foreign.Call(ctx, pool, "message", from, [32]byte(hash))
	if err != nil {
		return collected{}, err
	}
	msg, ok := firstOutput[[]byte](res)
	if !ok {
		return collected{}, errors.New("message returned no bytes")
	}

	c := collected{Responsible: true, Message: msg}
	for i := int64(0); i < required.Int64(); i++ {
		res, err := d.Foreign.Call(ctx, pool, "signature", from, [32]byte(hash), big.NewInt(i))
		if err != nil {
			return collected{}, err
		}
		sig, ok := firstOutput[[]byte](res)
		if !ok {
			return collected{}, fmt.Errorf("signature %d returned no bytes", i)
		}
		v, r, s, err := SplitSignature(sig)
		if err != nil {
			return collected{}, fmt.Errorf("signature %d: %w", i, err)
		}
		c.Vs = append(c.Vs, v)
		c.Rs = append(c.Rs, r)
		c.Ss = append(c.Ss, s)
	}
	return c, nil
}

func (d Deps) buildWithdraw(ctx context.Context, ev chain.Event, enr relay.Enrichment) (*chain.TxRequest, error) {
	c, ok := enr[ev.TxHash.Hex()].(collected)
	if !ok {
		return nil, fmt.Errorf("no collected signatures for %s", ev.TxHash.Hex())
	}
	if !c.Responsible {
		return nil, errNotResponsible
	}
	return d.custodyCall(ctx, "ClaimPayout", c.Vs, c.Rs, c.Ss, c.Message)
}

func firstOutput[T any](res []any) (T, bool) {
	var zero T
	if len(res) == 0 {
		return zero, false
	}
	v, ok := res[0].(T)
	return v, ok
}
