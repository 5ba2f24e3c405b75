package relays

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/relay"
	"golang.org/x/sync/errgroup"
)

var errCheckFailed = errors.New("deposit check failed")

// pendingDeposit is the pool's view of an owner's pending deposit.
type pendingDeposit struct {
	Expected *big.Int
	Rebate   *big.Int
}

// depositCheck watches token approvals to the custodian and, once the pool confirms
// an expected amount, pulls the deposit into custody.
func (d Deps) depositCheck() relay.Config {
	return relay.Config{
		Source:      d.Home,
		SourceName:  homeName,
		Binding:     d.Contracts.Token,
		Event:       "Approval",
		Filter:      chain.Filter{"spender": d.Contracts.Custodian.Address},
		Enricher:    relay.EnricherFunc(d.checkDeposits),
		Destination: d.home(relay.CustodyPolicy),
		Build:       d.buildDepositCheck,
		StartBlock:  d.HomeStart,
	}
}

func (d Deps) checkDeposits(ctx context.Context, batch []chain.Event) (relay.Enrichment, error) {
	var (
		mu  sync.Mutex
		out = relay.Enrichment{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ev := range batch {
		owner, err := addressArg(ev, "owner")
		if err != nil {
			continue
		}
		g.Go(func() error {
			res, err := d.Foreign.Call(gctx, d.Contracts.Pool, "CheckTransaction", d.Authority.Address, owner)
			if err != nil {
				return err
			}
			if len(res) != 2 {
				return fmt.Errorf("CheckTransaction returned %d values", len(res))
			}
			expected, ok1 := res[0].(*big.Int)
			rebate, ok2 := res[1].(*big.Int)
			if !ok1 || !ok2 {
				return errors.New("CheckTransaction returned non-integer values")
			}
			mu.Lock()
			out[owner.Hex()] = pendingDeposit{Expected: expected, Rebate: rebate}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d Deps) buildDepositCheck(ctx context.Context, ev chain.Event, enr relay.Enrichment) (*chain.TxRequest, error) {
	owner, err := addressArg(ev, "owner")
	if err != nil {
		return nil, err
	}
	chk, ok := enr[owner.Hex()].(pendingDeposit)
	if !ok || chk.Expected.Sign() <= 0 {
		return nil, fmt.Errorf("%w for owner %s", errCheckFailed, owner.Hex())
	}
	return d.custodyCall(ctx, "MakeTransaction", owner, chk.Expected, chk.Rebate)
}

// deposit watches token transfers into custody and records the policy inception on the pool.
func (d Deps) deposit() relay.Config {
	return relay.Config{
		Source:      d.Home,
		SourceName:  homeName,
		Binding:     d.Contracts.Token,
		Event:       "Transfer",
		Filter:      chain.Filter{"to": d.Contracts.Custodian.Address},
		Destination: d.foreign(relay.CounterChainPolicy),
		Build: func(ctx context.Context, ev chain.Event, _ relay.Enrichment) (*chain.TxRequest, error) {
			from, err := addressArg(ev, "from")
			if err != nil {
				return nil, err
			}
			value, err := uintArg(ev, "value")
			if err != nil {
				return nil, err
			}
			return d.foreignCall(ctx, "MakeTransaction", from, d.Authority.Address, value)
		},
		StartBlock: d.HomeStart,
	}
}
