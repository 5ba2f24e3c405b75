package relays

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// claimMessageLen is policy(20) + beneficiary(20) + amount(32) + tx hash(32).
const claimMessageLen = 104

// ClaimMessage is the payload authorities sign to approve a payout.
func ClaimMessage(policy, beneficiary common.Address, amount *big.Int, txHash common.Hash) []byte {
	msg := make([]byte, 0, claimMessageLen)
	msg = append(msg, policy.Bytes()...)
	msg = append(msg, beneficiary.Bytes()...)
	msg = append(msg, common.LeftPadBytes(amount.Bytes(), 32)...)
	msg = append(msg, txHash.Bytes()...)
	return msg
}

// SignMessage produces a personal-sign signature over msg with v in {27, 28}.
func SignMessage(msg []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SplitSignature splits a 65-byte r‖s‖v signature. A v of 0 or 1 is shifted to 27 or 28.
func SplitSignature(sig []byte) (v uint8, r, s [32]byte, err error) {
	if len(sig) != crypto.SignatureLength {
		return 0, r, s, fmt.Errorf("signature length %d, want %d", len(sig), crypto.SignatureLength)
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v != 27 && v != 28 {
		v += 27
	}
	return v, r, s, nil
}
