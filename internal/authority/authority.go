// Package authority loads the relay's signing identity.
package authority

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devblac/bridge-relay/internal/config"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoKeyFile is returned when the keystore directory holds no key for the address.
var ErrNoKeyFile = errors.New("no keystore file for address")

// Authority is the address and key every relay signs with.
type Authority struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// Load resolves the key from a raw hex private key or from an encrypted keystore.
// A configured address must match the key.
func Load(cfg config.AuthorityConfig) (*Authority, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if cfg.PrivateKey != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
	} else {
		key, err = fromKeystore(cfg)
		if err != nil {
			return nil, err
		}
	}

	addr := crypto.PubkeyToAddress(key.PublicKey)
	if cfg.Address != "" && common.HexToAddress(cfg.Address) != addr {
		return nil, fmt.Errorf("key belongs to %s, configured address is %s", addr.Hex(), cfg.Address)
	}
	return &Authority{Address: addr, Key: key}, nil
}

func fromKeystore(cfg config.AuthorityConfig) (*ecdsa.PrivateKey, error) {
	password := cfg.Password
	if password == "" {
		raw, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read password file: %w", err)
		}
		password = strings.TrimRight(string(raw), "\r\n")
	}

	want := common.HexToAddress(cfg.Address)
	path, err := findKeyFile(cfg.KeystoreDir, want)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	k, err := keystore.DecryptKey(blob, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", filepath.Base(path), err)
	}
	return k.PrivateKey, nil
}

func findKeyFile(dir string, addr common.Address) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read keystore dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var header struct {
			Address string `json:"address"`
		}
		if json.Unmarshal(raw, &header) != nil || !common.IsHexAddress(header.Address) {
			continue
		}
		if common.HexToAddress(header.Address) == addr {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w %s in %s", ErrNoKeyFile, addr.Hex(), dir)
}
