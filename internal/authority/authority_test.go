package authority

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/devblac/bridge-relay/internal/config"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestLoadFromPrivateKey(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey)

	for _, raw := range []string{testKey, "0x" + testKey} {
		a, err := Load(config.AuthorityConfig{PrivateKey: raw})
		if err != nil {
			t.Fatalf("load %q: %v", raw, err)
		}
		if a.Address != want {
			t.Fatalf("address = %s, want %s", a.Address.Hex(), want.Hex())
		}
	}
}

func TestLoadRejectsAddressMismatch(t *testing.T) {
	_, err := Load(config.AuthorityConfig{
		PrivateKey: testKey,
		Address:    "0x1111111111111111111111111111111111111111",
	})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestLoadFromKeystore(t *testing.T) {
	dir := t.TempDir()
	acct, err := keystore.StoreKey(dir, "correct horse", keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		t.Fatalf("store key: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a key"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pwFile := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(pwFile, []byte("correct horse\n"), 0o600); err != nil {
		t.Fatalf("write password: %v", err)
	}

	a, err := Load(config.AuthorityConfig{
		Address:      acct.Address.Hex(),
		KeystoreDir:  dir,
		PasswordFile: pwFile,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if a.Address != acct.Address {
		t.Fatalf("address = %s, want %s", a.Address.Hex(), acct.Address.Hex())
	}

	_, err = Load(config.AuthorityConfig{
		Address:     acct.Address.Hex(),
		KeystoreDir: dir,
		Password:    "wrong",
	})
	if !errors.Is(err, keystore.ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestLoadKeystoreMissingAddress(t *testing.T) {
	_, err := Load(config.AuthorityConfig{
		Address:     "0x1111111111111111111111111111111111111111",
		KeystoreDir: t.TempDir(),
		Password:    "x",
	})
	if !errors.Is(err, ErrNoKeyFile) {
		t.Fatalf("err = %v, want ErrNoKeyFile", err)
	}
}
