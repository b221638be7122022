package keychain

import (
	"fmt"
	"strings"
)

// CurveFamily is the signature scheme an asset's keys belong to. It selects
// which master key pair and which derivation strategy apply.
type CurveFamily uint8

const (
	// CurveECDSA is the secp256k1 family, derived with BIP32.
	CurveECDSA CurveFamily = iota + 1

	// CurveEdDSA is the Ed25519 family, derived from the F-key pair.
	CurveEdDSA
)

// String returns the canonical name of the family.
func (c CurveFamily) String() string {
	switch c {
	case CurveECDSA:
		return "ECDSA"
	case CurveEdDSA:
		return "EdDSA"
	default:
		return fmt.Sprintf("CurveFamily(%d)", uint8(c))
	}
}

// ParseCurveFamily parses a family name, ignoring case. "secp256k1" and
// "ed25519" are accepted as aliases.
func ParseCurveFamily(s string) (CurveFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ecdsa", "secp256k1":
		return CurveECDSA, nil
	case "eddsa", "ed25519":
		return CurveEdDSA, nil
	default:
		return 0, fmt.Errorf("unknown curve family %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CurveFamily) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CurveFamily) UnmarshalText(text []byte) error {
	family, err := ParseCurveFamily(string(text))
	if err != nil {
		return err
	}
	*c = family

	return nil
}
