package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReverted is returned when a submitted transaction is mined with a failed status.
var ErrReverted = errors.New("transaction reverted")

// ErrReceiptTimeout is returned when a sent transaction is not mined within the receipt timeout.
var ErrReceiptTimeout = errors.New("receipt timeout")

// Event is a decoded contract log in a uniform shape.
type Event struct {
	Contract     string
	Name         string
	TxHash       common.Hash
	BlockNumber  uint64
	LogIndex     uint
	ReturnValues map[string]any
}

// Filter narrows a query by event fields equal to the given address.
// Indexed fields become topic constraints; other known fields are matched after decoding.
// Fields the event does not declare are ignored.
type Filter map[string]common.Address

// TxRequest is an unsigned call to a destination contract.
// A nil GasPrice asks the node for a suggestion; a zero Gas asks for an estimate.
type TxRequest struct {
	To       common.Address
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
	Value    *big.Int
}

// Submission is the result of a signed and mined transaction.
type Submission struct {
	TxHash  common.Hash
	Nonce   uint64
	Receipt *types.Receipt
}
