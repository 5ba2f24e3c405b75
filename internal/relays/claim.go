package relays

import (
	"context"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/relay"
)

// claim forwards claims filed with the custodian to the pool.
func (d Deps) claim() relay.Config {
	return relay.Config{
		Source:      d.Home,
		SourceName:  homeName,
		Binding:     d.Contracts.Custodian,
		Event:       "ClaimMade",
		Destination: d.foreign(relay.CounterChainPolicy),
		Build: func(ctx context.Context, ev chain.Event, _ relay.Enrichment) (*chain.TxRequest, error) {
			owner, err := addressArg(ev, "policyOwner")
			if err != nil {
				return nil, err
			}
			claimer, err := addressArg(ev, "claimer")
			if err != nil {
				return nil, err
			}
			return d.foreignCall(ctx, "MakeClaimPOC", owner, claimer)
		},
		StartBlock: d.HomeStart,
	}
}

// claimSuccess tells the pool a payout left custody.
func (d Deps) claimSuccess() relay.Config {
	return relay.Config{
		Source:      d.Home,
		SourceName:  homeName,
		Binding:     d.Contracts.Custodian,
		Event:       "ClaimSuccess",
		Destination: d.foreign(relay.CounterChainPolicy),
		Build: func(ctx context.Context, ev chain.Event, _ relay.Enrichment) (*chain.TxRequest, error) {
			holder, err := addressArg(ev, "policyHolder")
			if err != nil {
				return nil, err
			}
			return d.foreignCall(ctx, "SuccessfulClaimPayout", holder)
		},
		StartBlock: d.HomeStart,
	}
}
