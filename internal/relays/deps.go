// Package relays defines the six bridge pipelines on top of the generic relay engine.
package relays

import (
	"context"
	"fmt"
	"math/big"

	"github.com/devblac/bridge-relay/internal/authority"
	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/contracts"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/ethereum/go-ethereum/common"
)

// Chain is everything a relay needs from one ledger. *chain.Client implements it.
type Chain interface {
	relay.EventSource
	relay.Submitter
	Call(ctx context.Context, b *chain.Binding, method string, from common.Address, args ...any) ([]any, error)
	EstimateGas(ctx context.Context, b *chain.Binding, method string, from common.Address, args ...any) (uint64, error)
}

// Bindings are the three bridge contracts.
type Bindings struct {
	Token     *chain.Binding
	Custodian *chain.Binding
	Pool      *chain.Binding
}

// LoadBindings binds the configured addresses to the embedded ABIs, or to an ABI file when one is set.
func LoadBindings(c config.Contracts) (Bindings, error) {
	var (
		b   Bindings
		err error
	)
	if b.Token, err = bind("token", c.Token, contracts.Token); err != nil {
		return Bindings{}, err
	}
	if b.Custodian, err = bind("custodian", c.Custodian, contracts.Custodian); err != nil {
		return Bindings{}, err
	}
	if b.Pool, err = bind("pool", c.Pool, contracts.Pool); err != nil {
		return Bindings{}, err
	}
	return b, nil
}

func bind(name string, c config.Contract, fallback string) (*chain.Binding, error) {
	addr := common.HexToAddress(c.Address)
	if c.ABI == "" {
		return chain.NewBinding(name, addr, fallback)
	}
	parsed, err := chain.LoadABI(c.ABI)
	if err != nil {
		return nil, err
	}
	return &chain.Binding{Name: name, Address: addr, ABI: parsed}, nil
}

// Deps wires the relays to both ledgers.
type Deps struct {
	Home      Chain
	Foreign   Chain
	Contracts Bindings
	Authority *authority.Authority

	HomeStart    uint64
	ForeignStart uint64

	DefaultGas      uint64
	DefaultGasPrice *big.Int
}

// NewDeps assembles Deps from the loaded configuration.
func NewDeps(cfg *config.Config, home, foreign Chain, b Bindings, auth *authority.Authority) Deps {
	return Deps{
		Home:            home,
		Foreign:         foreign,
		Contracts:       b,
		Authority:       auth,
		HomeStart:       cfg.Networks.Home.StartBlock,
		ForeignStart:    cfg.Networks.Foreign.StartBlock,
		DefaultGas:      cfg.Global.DefaultGas,
		DefaultGasPrice: new(big.Int).SetUint64(cfg.Global.DefaultGasPrice),
	}
}

const (
	homeName    = "home"
	foreignName = "foreign"
)

// Pipeline returns the relay configuration for name. The caller sets MaxBatch and Where.
func Pipeline(name string, d Deps) (relay.Config, error) {
	var cfg relay.Config
	switch name {
	case config.DepositCheck:
		cfg = d.depositCheck()
	case config.Deposit:
		cfg = d.deposit()
	case config.WithdrawConfirm:
		cfg = d.withdrawConfirm()
	case config.Withdraw:
		cfg = d.withdraw()
	case config.Claim:
		cfg = d.claim()
	case config.ClaimSuccess:
		cfg = d.claimSuccess()
	default:
		return relay.Config{}, fmt.Errorf("unknown relay %q", name)
	}
	cfg.Name = name
	cfg.Authority = d.Authority.Address
	cfg.Key = d.Authority.Key
	return cfg, nil
}

// custodyGasPrice is the fixed price used for custodian calls.
func (d Deps) custodyGasPrice() *big.Int {
	return new(big.Int).Mul(d.DefaultGasPrice, big.NewInt(10))
}

func (d Deps) home(policy relay.RetryPolicy) relay.Destination {
	return relay.Destination{Name: homeName, Chain: d.Home, Policy: policy}
}

func (d Deps) foreign(policy relay.RetryPolicy) relay.Destination {
	return relay.Destination{Name: foreignName, Chain: d.Foreign, Policy: policy}
}

// foreignCall builds a pool call with an estimated gas limit and the node's gas price.
// An estimation failure rejects the event.
func (d Deps) foreignCall(ctx context.Context, method string, args ...any) (*chain.TxRequest, error) {
	pool := d.Contracts.Pool
	gas, err := d.Foreign.EstimateGas(ctx, pool, method, d.Authority.Address, args...)
	if err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}
	data, err := pool.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	return &chain.TxRequest{To: pool.Address, Data: data, Gas: gas}, nil
}

// custodyCall builds a custodian call with the default gas limit and fixed price,
// after checking that it would execute.
func (d Deps) custodyCall(ctx context.Context, method string, args ...any) (*chain.TxRequest, error) {
	cust := d.Contracts.Custodian
	if _, err := d.Home.EstimateGas(ctx, cust, method, d.Authority.Address, args...); err != nil {
		return nil, fmt.Errorf("gas estimation failed: %w", err)
	}
	data, err := cust.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	return &chain.TxRequest{
		To:       cust.Address,
		Data:     data,
		Gas:      d.DefaultGas,
		GasPrice: d.custodyGasPrice(),
	}, nil
}

func addressArg(ev chain.Event, field string) (common.Address, error) {
	v, ok := ev.ReturnValues[field].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("event %s: field %s is not an address", ev.TxHash.Hex(), field)
	}
	return v, nil
}

func uintArg(ev chain.Event, field string) (*big.Int, error) {
	v, ok := ev.ReturnValues[field].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("event %s: field %s is not an integer", ev.TxHash.Hex(), field)
	}
	return v, nil
}

func hashArg(ev chain.Event, field string) (common.Hash, error) {
	v, ok := ev.ReturnValues[field].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("event %s: field %s is not bytes32", ev.TxHash.Hex(), field)
	}
	return common.Hash(v), nil
}
