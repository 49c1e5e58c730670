package solana

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

// findOffCurve derives an address the way program-derived addresses are found.
func findOffCurve(t *testing.T) string {
	t.Helper()
	for bump := 255; bump >= 0; bump-- {
		h := sha256.Sum256([]byte{byte(bump), 'l', 'e', 'd', 'g', 'e', 'r'})
		if !IsOnCurve(h[:]) {
			return base58.Encode(h[:])
		}
	}
	t.Fatal("no off-curve hash found")
	return ""
}

func TestValidateAddress(t *testing.T) {
	valid := "So11111111111111111111111111111111111111112"
	if err := ValidateAddress(valid); err != nil {
		t.Fatalf("expected %s to be valid: %v", valid, err)
	}

	for _, bad := range []string{"", "0OIl", "abc", base58.Encode(make([]byte, 31))} {
		if err := ValidateAddress(bad); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ValidateAddress(%q) = %v, want ErrInvalidAddress", bad, err)
		}
	}
}

func TestIsOnCurve(t *testing.T) {
	// The ed25519 base point encoding.
	base := []byte{
		0x58, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	}
	if !IsOnCurve(base) {
		t.Error("expected base point to be on curve")
	}
	if IsOnCurve(base[:31]) {
		t.Error("expected short key to be rejected")
	}
}

func TestIsProgramOwned(t *testing.T) {
	pda := findOffCurve(t)
	if !IsProgramOwned(pda) {
		t.Errorf("expected %s to be program owned", pda)
	}

	wallet := base58.Encode([]byte{
		0x58, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
	})
	if IsProgramOwned(wallet) {
		t.Errorf("expected %s to be on curve", wallet)
	}

	if IsProgramOwned("not-an-address") {
		t.Error("malformed address must not be program owned")
	}
}
