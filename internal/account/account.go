// Package account derives the sending account from a raw secp256k1 private key.
package account

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidKey = errors.New("invalid private key")

// Account pairs a private key with the address derived from it. The address is
// never set independently of the key.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Resolve parses a hex encoded private key, with or without 0x prefix.
func Resolve(hexKey string) (*Account, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	privateKey, err := crypto.HexToECDSA(raw)
	if err != nil {
		// the parser error can echo key material, keep it out of the message
		return nil, ErrInvalidKey
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected public key type", ErrInvalidKey)
	}

	return &Account{
		key:     privateKey,
		address: crypto.PubkeyToAddress(*publicKey),
	}, nil
}

func (a *Account) Address() common.Address {
	return a.address
}

// Hex returns the EIP-55 checksum form of the address.
func (a *Account) Hex() string {
	return a.address.Hex()
}

func (a *Account) PrivateKey() *ecdsa.PrivateKey {
	return a.key
}

func (a *Account) String() string {
	return a.address.Hex()
}
