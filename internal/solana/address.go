// Package solana holds account-address helpers.
package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLength is the decoded size of an account address.
const AddressLength = 32

// ErrInvalidAddress is returned for strings that are not base58 32-byte keys.
var ErrInvalidAddress = errors.New("invalid address")

// DecodeAddress decodes a base58 account address.
func DecodeAddress(address string) ([]byte, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AddressLength {
		return nil, fmt.Errorf("%w: decoded length %d", ErrInvalidAddress, len(raw))
	}
	return raw, nil
}

// ValidateAddress reports whether address is a well-formed account address.
func ValidateAddress(address string) error {
	_, err := DecodeAddress(address)
	return err
}

// IsOnCurve reports whether the decoded key is a valid ed25519 point.
// Program-derived addresses are off the curve and have no private key.
func IsOnCurve(key []byte) bool {
	if len(key) != AddressLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// IsProgramOwned reports whether address is a program-derived account.
// Malformed addresses are not program owned.
func IsProgramOwned(address string) bool {
	raw, err := DecodeAddress(address)
	if err != nil {
		return false
	}
	return !IsOnCurve(raw)
}
