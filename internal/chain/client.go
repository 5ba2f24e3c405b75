package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Backend captures the subset of ethclient used by the relay.
type Backend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// DefaultReceiptTimeout bounds how long SignAndSubmit waits for a transaction to be mined.
const DefaultReceiptTimeout = 750 * time.Second

// Client exposes the ledger capabilities the relay engine consumes.
// It is safe for concurrent use when the backend is.
type Client struct {
	name           string
	backend        Backend
	chainID        *big.Int
	receiptTimeout time.Duration
}

// New wraps a backend for the ledger identified by chainID.
func New(name string, backend Backend, chainID *big.Int) *Client {
	return &Client{name: name, backend: backend, chainID: chainID, receiptTimeout: DefaultReceiptTimeout}
}

// SetReceiptTimeout changes the mining wait. Non-positive values are ignored.
// Call it before the client is shared.
func (c *Client) SetReceiptTimeout(d time.Duration) {
	if d > 0 {
		c.receiptTimeout = d
	}
}

// Dial connects to an EVM node and resolves its chain id.
// A non-zero wantChainID must match what the node reports.
func Dial(ctx context.Context, name, rpcURL string, wantChainID uint64) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", name, err)
	}
	ec := ethclient.NewClient(rc)
	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("%s chain id: %w", name, err)
	}
	if wantChainID != 0 && id.Uint64() != wantChainID {
		ec.Close()
		return nil, fmt.Errorf("%s chain id mismatch: node reports %s, configured %d", name, id, wantChainID)
	}
	return New(name, ec, id), nil
}

// Name identifies the ledger in logs.
func (c *Client) Name() string { return c.name }

// ChainID returns the chain id used for signing.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Ping checks the node is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("%s block number: %w", c.name, err)
	}
	return nil
}

// QueryEvents returns decoded logs for event between fromBlock and toBlock (nil means latest),
// ordered by block and log index.
func (c *Client) QueryEvents(ctx context.Context, b *Binding, event string, fromBlock uint64, toBlock *big.Int, filter Filter) ([]Event, error) {
	ev, err := b.Event(event)
	if err != nil {
		return nil, err
	}
	indexed, nonIndexed := splitIndexed(ev.Inputs)

	topics := [][]common.Hash{{ev.ID}}
	for _, in := range indexed {
		if addr, ok := filter[in.Name]; ok {
			topics = append(topics, []common.Hash{addressTopic(addr)})
		} else {
			topics = append(topics, nil)
		}
	}

	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   toBlock,
		Addresses: []common.Address{b.Address},
		Topics:    topics,
	})
	if err != nil {
		return nil, fmt.Errorf("%s filter logs %s.%s: %w", c.name, b.Name, event, err)
	}

	out := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed || lg.Address != b.Address || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		args := map[string]any{}
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return nil, fmt.Errorf("parse topics %s: %w", lg.TxHash.Hex(), err)
		}
		if err := nonIndexed.UnpackIntoMap(args, lg.Data); err != nil {
			return nil, fmt.Errorf("unpack data %s: %w", lg.TxHash.Hex(), err)
		}
		if !matchesFilter(args, nonIndexed, filter) {
			continue
		}
		out = append(out, Event{
			Contract:     b.Name,
			Name:         ev.Name,
			TxHash:       lg.TxHash,
			BlockNumber:  lg.BlockNumber,
			LogIndex:     lg.Index,
			ReturnValues: args,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

// Call runs a read-only contract method at the latest block and returns its unpacked outputs.
func (c *Client) Call(ctx context.Context, b *Binding, method string, from common.Address, args ...any) ([]any, error) {
	data, err := b.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	to := b.Address
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call %s.%s: %w", c.name, b.Name, method, err)
	}
	out, err := b.ABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%s unpack %s.%s: %w", c.name, b.Name, method, err)
	}
	return out, nil
}

// EstimateGas estimates the gas a method call from the given sender would use.
func (c *Client) EstimateGas(ctx context.Context, b *Binding, method string, from common.Address, args ...any) (uint64, error) {
	data, err := b.Pack(method, args...)
	if err != nil {
		return 0, err
	}
	to := b.Address
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return 0, fmt.Errorf("%s estimate %s.%s: %w", c.name, b.Name, method, err)
	}
	return gas, nil
}

// PendingNonceAt returns the next nonce for account, including pending transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	n, err := c.backend.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("%s pending nonce: %w", c.name, err)
	}
	return n, nil
}

// SignAndSubmit signs req with key at the given nonce, sends it and waits until it is mined.
// A mined transaction with a failed status is reported as ErrReverted, and one still
// unmined after the receipt timeout as ErrReceiptTimeout.
func (c *Client) SignAndSubmit(ctx context.Context, req TxRequest, nonce uint64, key *ecdsa.PrivateKey) (Submission, error) {
	sub := Submission{Nonce: nonce}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		suggested, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return sub, fmt.Errorf("%s suggest gas price: %w", c.name, err)
		}
		gasPrice = suggested
	}
	gas := req.Gas
	if gas == 0 {
		to := req.To
		estimated, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  crypto.PubkeyToAddress(key.PublicKey),
			To:    &to,
			Data:  req.Data,
			Value: req.Value,
		})
		if err != nil {
			return sub, fmt.Errorf("%s estimate gas: %w", c.name, err)
		}
		gas = estimated
	}

	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    req.Value,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return sub, fmt.Errorf("sign tx: %w", err)
	}
	sub.TxHash = signed.Hash()

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return sub, fmt.Errorf("%s send tx %s: %w", c.name, sub.TxHash.Hex(), err)
	}
	wctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(wctx, c.backend, signed)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return sub, fmt.Errorf("%s tx %s not mined after %s: %w", c.name, sub.TxHash.Hex(), c.receiptTimeout, ErrReceiptTimeout)
		}
		return sub, fmt.Errorf("%s wait mined %s: %w", c.name, sub.TxHash.Hex(), err)
	}
	sub.Receipt = receipt
	if receipt.Status != types.ReceiptStatusSuccessful {
		return sub, fmt.Errorf("%s tx %s: %w", c.name, sub.TxHash.Hex(), ErrReverted)
	}
	return sub, nil
}

// Close releases the underlying connection when the backend holds one.
func (c *Client) Close() {
	if cl, ok := c.backend.(interface{ Close() }); ok {
		cl.Close()
	}
}

func matchesFilter(args map[string]any, nonIndexed abi.Arguments, filter Filter) bool {
	for _, in := range nonIndexed {
		want, ok := filter[in.Name]
		if !ok {
			continue
		}
		got, ok := args[in.Name].(common.Address)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}
