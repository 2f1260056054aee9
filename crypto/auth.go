package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrUnauthenticated indicates the request signature could not be tied
// to the claimed account.
var ErrUnauthenticated = errors.New("request signature does not match account")

// VerifyAccountSignature checks that sig (base64, 65-byte [R||S||V]
// recoverable ECDSA) was produced by the claimed account's primary key
// over the canonical request body, using the standard prefixed message
// hash so wallet-produced signatures verify directly.
func VerifyAccountSignature(account common.Address, body []byte, sig string) error {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: invalid base64 signature", ErrUnauthenticated)
	}
	if len(raw) != ethcrypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", ErrUnauthenticated, ethcrypto.SignatureLength, len(raw))
	}

	// Wallets emit V as 27/28; recovery wants 0/1.
	if raw[64] >= 27 {
		raw = bytes.Clone(raw)
		raw[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(body), raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if ethcrypto.PubkeyToAddress(*pub) != account {
		return ErrUnauthenticated
	}
	return nil
}

// VerifyDEKSignature checks sig against the account's on-chain
// registered data encryption key instead of its primary key. The DEK is
// a compressed secp256k1 public key as stored in the accounts registry.
func VerifyDEKSignature(dek []byte, body []byte, sig string) error {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: invalid base64 signature", ErrUnauthenticated)
	}
	if len(raw) < 64 {
		return fmt.Errorf("%w: signature too short", ErrUnauthenticated)
	}

	pub, err := ethcrypto.DecompressPubkey(dek)
	if err != nil {
		return fmt.Errorf("invalid registered DEK: %w", err)
	}

	// VerifySignature takes the 64-byte [R||S] form.
	if !ethcrypto.VerifySignature(ethcrypto.CompressPubkey(pub), ethcrypto.Keccak256(body), raw[:64]) {
		return ErrUnauthenticated
	}
	return nil
}
