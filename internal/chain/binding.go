package chain

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Binding couples a deployed contract address with its ABI.
type Binding struct {
	Name    string
	Address common.Address
	ABI     *abi.ABI
}

// NewBinding parses abiJSON and binds it to address.
func NewBinding(name string, address common.Address, abiJSON string) (*Binding, error) {
	a, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", name, err)
	}
	return &Binding{Name: name, Address: address, ABI: &a}, nil
}

// LoadABI reads an ABI JSON file from disk.
func LoadABI(path string) (*abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return &a, nil
}

// Event returns the ABI event with the given name.
func (b *Binding) Event(name string) (*abi.Event, error) {
	ev, ok := b.ABI.Events[name]
	if !ok {
		return nil, fmt.Errorf("%s: unknown event %s", b.Name, name)
	}
	return &ev, nil
}

// Pack encodes a method call.
func (b *Binding) Pack(method string, args ...any) ([]byte, error) {
	data, err := b.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack %s: %w", b.Name, method, err)
	}
	return data, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
