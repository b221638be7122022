package keychain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/custodyhq/recoverd/errorcodes"
)

// KeyKind names one of the four serialized master keys.
type KeyKind uint8

const (
	// KindXPRV is the ECDSA extended private key.
	KindXPRV KeyKind = iota

	// KindXPUB is the ECDSA extended public key.
	KindXPUB

	// KindFPRV is the EdDSA extended private key.
	KindFPRV

	// KindFPUB is the EdDSA extended public key.
	KindFPUB
)

// AllKinds lists every key kind in serialization order.
var AllKinds = []KeyKind{KindXPRV, KindXPUB, KindFPRV, KindFPUB}

// String returns the upper case name of the kind.
func (k KeyKind) String() string {
	switch k {
	case KindXPRV:
		return "XPRV"
	case KindXPUB:
		return "XPUB"
	case KindFPRV:
		return "FPRV"
	case KindFPUB:
		return "FPUB"
	default:
		return fmt.Sprintf("KeyKind(%d)", uint8(k))
	}
}

// IsPrivate reports whether the kind is a private key.
func (k KeyKind) IsPrivate() bool {
	return k == KindXPRV || k == KindFPRV
}

// Family returns the curve family the kind belongs to.
func (k KeyKind) Family() CurveFamily {
	if k == KindFPRV || k == KindFPUB {
		return CurveEdDSA
	}

	return CurveECDSA
}

// MasterKind returns the key kind needed to derive keys of the given family,
// privately or publicly.
func MasterKind(family CurveFamily, private bool) KeyKind {
	switch {
	case family == CurveEdDSA && private:
		return KindFPRV
	case family == CurveEdDSA:
		return KindFPUB
	case private:
		return KindXPRV
	default:
		return KindXPUB
	}
}

// MasterKeys is the recovered root key material of a workspace: one
// extended key pair per curve family, serialized.
type MasterKeys struct {
	XPRV string `json:"xprv,omitempty"`
	XPUB string `json:"xpub,omitempty"`
	FPRV string `json:"fprv,omitempty"`
	FPUB string `json:"fpub,omitempty"`
}

// Get returns the serialized key of the given kind.
func (m *MasterKeys) Get(kind KeyKind) string {
	switch kind {
	case KindXPRV:
		return m.XPRV
	case KindXPUB:
		return m.XPUB
	case KindFPRV:
		return m.FPRV
	case KindFPUB:
		return m.FPUB
	default:
		return ""
	}
}

// Public returns a copy that only carries the public halves.
func (m *MasterKeys) Public() *MasterKeys {
	return &MasterKeys{
		XPUB: m.XPUB,
		FPUB: m.FPUB,
	}
}

// MasterSecrets is the raw key material the master keys are built from. It
// is what a backup payload carries.
type MasterSecrets struct {
	// ECDSAKey is the secp256k1 private scalar, big-endian.
	ECDSAKey [32]byte

	// ECDSAChainCode is the BIP32 chain code of the ECDSA master.
	ECDSAChainCode [32]byte

	// EdDSAKey is the Ed25519 private scalar, big-endian and reduced
	// modulo the group order.
	EdDSAKey [32]byte

	// EdDSAChainCode is the chain code of the EdDSA master.
	EdDSAChainCode [32]byte
}

// Zero wipes all secret material.
func (s *MasterSecrets) Zero() {
	zeroArray(&s.ECDSAKey)
	zeroArray(&s.ECDSAChainCode)
	zeroArray(&s.EdDSAKey)
	zeroArray(&s.EdDSAChainCode)
}

func zeroArray(a *[32]byte) {
	for i := range a {
		a[i] = 0
	}
}

// MasterKeys builds and serializes both extended key pairs. Out of range
// scalars fail with ErrCodeMalformedKeyMaterial.
func (s *MasterSecrets) MasterKeys() (*MasterKeys, error) {
	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(s.ECDSAKey[:])
	if overflow || scalar.IsZero() {
		return nil, errorcodes.New(
			errorcodes.ErrCodeMalformedKeyMaterial, "master-keys",
			"ecdsa private key out of range",
		)
	}
	scalar.Zero()

	// The extended key keeps the slices it is given and wipes them on
	// Zero, so hand it copies.
	xprv := hdkeychain.NewExtendedKey(
		chaincfg.MainNetParams.HDPrivateKeyID[:],
		append([]byte(nil), s.ECDSAKey[:]...),
		append([]byte(nil), s.ECDSAChainCode[:]...),
		[]byte{0, 0, 0, 0}, 0, 0, true,
	)
	defer xprv.Zero()

	xpub, err := xprv.Neuter()
	if err != nil {
		return nil, errorcodes.Wrap(
			errorcodes.ErrCodeMalformedKeyMaterial, "master-keys",
			err,
		)
	}

	fprv, err := NewEdMasterKey(s.EdDSAKey[:], s.EdDSAChainCode[:])
	if err != nil {
		return nil, err
	}
	defer fprv.Zero()

	return &MasterKeys{
		XPRV: xprv.String(),
		XPUB: xpub.String(),
		FPRV: fprv.String(),
		FPUB: fprv.Neuter().String(),
	}, nil
}

// SecretsFromMasterKeys extracts the raw key material from the private
// halves of m. Only master (depth zero) keys are accepted.
func SecretsFromMasterKeys(m *MasterKeys) (*MasterSecrets, error) {
	xprv, err := parseECDSAKey(m.XPRV)
	if err != nil {
		return nil, err
	}
	defer xprv.Zero()

	if !xprv.IsPrivate() || xprv.Depth() != 0 {
		return nil, errorcodes.New(
			errorcodes.ErrCodeMalformedKeyMaterial, "master-keys",
			"xprv must be a private master key",
		)
	}

	priv, err := xprv.ECPrivKey()
	if err != nil {
		return nil, errorcodes.Wrap(
			errorcodes.ErrCodeMalformedKeyMaterial, "master-keys",
			err,
		)
	}

	fprv, err := ParseEdExtendedKey(m.FPRV)
	if err != nil {
		return nil, err
	}
	defer fprv.Zero()

	if !fprv.IsPrivate() || fprv.depth != 0 {
		return nil, errorcodes.New(
			errorcodes.ErrCodeMalformedKeyMaterial, "master-keys",
			"fprv must be a private master key",
		)
	}

	var s MasterSecrets
	priv.Key.PutBytes(&s.ECDSAKey)
	priv.Zero()
	copy(s.ECDSAChainCode[:], xprv.ChainCode())
	s.EdDSAKey = fprv.key
	s.EdDSAChainCode = fprv.chainCode

	return &s, nil
}

// Validate parses every non-empty key of m, checks that each is of the
// kind its field says, and that public halves match private ones where both
// are present.
func (m *MasterKeys) Validate() error {
	for _, kind := range AllKinds {
		if m.Get(kind) == "" {
			continue
		}
		if err := ValidateKey(kind, m.Get(kind)); err != nil {
			return err
		}
	}

	if m.XPRV != "" && m.XPUB != "" {
		xprv, err := parseECDSAKey(m.XPRV)
		if err != nil {
			return err
		}
		// The neutered key shares its chain code with xprv, so it is
		// serialized before xprv is wiped.
		var xpub string
		neutered, err := xprv.Neuter()
		if err == nil {
			xpub = neutered.String()
		}
		xprv.Zero()
		if err != nil || xpub != m.XPUB {
			return errorcodes.New(
				errorcodes.ErrCodeMalformedKeyMaterial,
				"master-keys", "xpub does not match xprv",
			)
		}
	}

	if m.FPRV != "" && m.FPUB != "" {
		fprv, err := ParseEdExtendedKey(m.FPRV)
		if err != nil {
			return err
		}
		fpub := fprv.Neuter().String()
		fprv.Zero()
		if fpub != m.FPUB {
			return errorcodes.New(
				errorcodes.ErrCodeMalformedKeyMaterial,
				"master-keys", "fpub does not match fprv",
			)
		}
	}

	return nil
}

// ValidateKey checks that s is a well formed extended key of the given
// kind.
func ValidateKey(kind KeyKind, s string) error {
	switch kind.Family() {
	case CurveECDSA:
		key, err := parseECDSAKey(s)
		if err != nil {
			return err
		}
		defer key.Zero()

		if key.IsPrivate() != kind.IsPrivate() {
			return errorcodes.New(
				errorcodes.ErrCodeMalformedKeyMaterial,
				"master-keys", "expected %v key", kind,
			)
		}

	default:
		key, err := ParseEdExtendedKey(s)
		if err != nil {
			return err
		}
		defer key.Zero()

		if key.IsPrivate() != kind.IsPrivate() {
			return errorcodes.New(
				errorcodes.ErrCodeMalformedKeyMaterial,
				"master-keys", "expected %v key", kind,
			)
		}
	}

	return nil
}
