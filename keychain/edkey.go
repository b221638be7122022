package keychain

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/custodyhq/recoverd/errorcodes"
)

var (
	// FPRVVersion is the version prefix of a serialized EdDSA extended
	// private key. It makes the base58 string start with "fprv".
	FPRVVersion = [4]byte{0x03, 0x27, 0x3a, 0x10}

	// FPUBVersion is the version prefix of a serialized EdDSA extended
	// public key. It makes the base58 string start with "fpub".
	FPUBVersion = [4]byte{0x03, 0x27, 0x3e, 0x4b}
)

// serializedKeyLen is the length of a serialized extended key before the
// base58 checksum: version(4) depth(1) fingerprint(4) child(4) chain(32)
// key(33).
const serializedKeyLen = 78

// EdExtendedKey is an Ed25519 extended key using the same serialization
// layout as BIP32. Private keys hold the big-endian scalar, public keys the
// encoded curve point.
type EdExtendedKey struct {
	version   [4]byte
	depth     uint8
	parentFP  [4]byte
	childNum  uint32
	chainCode [32]byte
	key       [32]byte
}

func malformed(format string, args ...any) error {
	return errorcodes.New(
		errorcodes.ErrCodeMalformedKeyMaterial, "eddsa-key", format,
		args...,
	)
}

// reverse returns a reversed copy of b. Scalars are serialized big-endian
// while edwards25519 works little-endian.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}

	return out
}

// edScalar converts a big-endian scalar into its edwards25519 form. The
// scalar must be canonical and non-zero.
func edScalar(be []byte) (*edwards25519.Scalar, error) {
	if len(be) != 32 {
		return nil, malformed("scalar is %d bytes, expected 32", len(be))
	}

	le := reverse(be)
	defer zeroBytes(le)

	s, err := edwards25519.NewScalar().SetCanonicalBytes(le)
	if err != nil {
		return nil, malformed("scalar is not reduced")
	}
	if s.Equal(edwards25519.NewScalar()) == 1 {
		return nil, malformed("scalar is zero")
	}

	return s, nil
}

// NewEdMasterKey builds a depth zero private key from a big-endian scalar
// and a chain code.
func NewEdMasterKey(scalar, chainCode []byte) (*EdExtendedKey, error) {
	if _, err := edScalar(scalar); err != nil {
		return nil, err
	}
	if len(chainCode) != 32 {
		return nil, malformed("chain code is %d bytes, expected 32",
			len(chainCode))
	}

	k := &EdExtendedKey{version: FPRVVersion}
	copy(k.key[:], scalar)
	copy(k.chainCode[:], chainCode)

	return k, nil
}

// ParseEdExtendedKey decodes an fprv or fpub string.
func ParseEdExtendedKey(s string) (*EdExtendedKey, error) {
	decoded, version, err := base58.CheckDecode(s)
	if err != nil {
		return nil, malformed("invalid base58 key: %v", err)
	}

	payload := append([]byte{version}, decoded...)
	defer zeroBytes(payload)
	defer zeroBytes(decoded)

	if len(payload) != serializedKeyLen {
		return nil, malformed("key is %d bytes, expected %d",
			len(payload), serializedKeyLen)
	}

	k := &EdExtendedKey{}
	copy(k.version[:], payload[0:4])
	k.depth = payload[4]
	copy(k.parentFP[:], payload[5:9])
	k.childNum = binary.BigEndian.Uint32(payload[9:13])
	copy(k.chainCode[:], payload[13:45])

	if payload[45] != 0x00 {
		return nil, malformed("unexpected key prefix 0x%02x",
			payload[45])
	}
	copy(k.key[:], payload[46:78])

	switch k.version {
	case FPRVVersion:
		if _, err := edScalar(k.key[:]); err != nil {
			k.Zero()
			return nil, err
		}

	case FPUBVersion:
		if _, err := new(edwards25519.Point).SetBytes(k.key[:]); err != nil {
			return nil, malformed("invalid public key point")
		}

	default:
		k.Zero()
		return nil, malformed("unknown version %x", k.version)
	}

	return k, nil
}

// IsPrivate reports whether k is an fprv.
func (k *EdExtendedKey) IsPrivate() bool {
	return k.version == FPRVVersion
}

// String serializes the key as fprv or fpub.
func (k *EdExtendedKey) String() string {
	payload := make([]byte, 0, serializedKeyLen)
	payload = append(payload, k.version[:]...)
	payload = append(payload, k.depth)
	payload = append(payload, k.parentFP[:]...)
	payload = binary.BigEndian.AppendUint32(payload, k.childNum)
	payload = append(payload, k.chainCode[:]...)
	payload = append(payload, 0x00)
	payload = append(payload, k.key[:]...)
	defer zeroBytes(payload)

	return base58.CheckEncode(payload[1:], payload[0])
}

// PubKey returns the 32 byte encoded public point.
func (k *EdExtendedKey) PubKey() []byte {
	if !k.IsPrivate() {
		return bytes.Clone(k.key[:])
	}

	// The scalar was validated when the key was built. A wiped key maps
	// to the identity point.
	le := reverse(k.key[:])
	defer zeroBytes(le)

	s, err := edwards25519.NewScalar().SetCanonicalBytes(le)
	if err != nil {
		s = edwards25519.NewScalar()
	}

	return new(edwards25519.Point).ScalarBaseMult(s).Bytes()
}

// PrivKey returns a copy of the big-endian private scalar, or nil for
// public keys.
func (k *EdExtendedKey) PrivKey() []byte {
	if !k.IsPrivate() {
		return nil
	}

	return bytes.Clone(k.key[:])
}

// Neuter returns the public counterpart of k.
func (k *EdExtendedKey) Neuter() *EdExtendedKey {
	if !k.IsPrivate() {
		c := *k
		return &c
	}

	pub := &EdExtendedKey{
		version:   FPUBVersion,
		depth:     k.depth,
		parentFP:  k.parentFP,
		childNum:  k.childNum,
		chainCode: k.chainCode,
	}
	copy(pub.key[:], k.PubKey())

	return pub
}

// Child derives the private child at index i:
//
//	I  = HMAC-SHA512(chain, 0x00 || pub || ser32(i))
//	s' = s + I[:32] (mod l), chain' = I[32:]
//
// Public parents cannot derive children. Indices at or above the hardened
// boundary are rejected, as is a child whose scalar would be zero.
func (k *EdExtendedKey) Child(i uint32) (*EdExtendedKey, error) {
	if !k.IsPrivate() {
		return nil, errorcodes.New(
			errorcodes.ErrCodeUnsupportedOperation, "eddsa-derive",
			"public EdDSA derivation is not supported",
		)
	}
	if i >= hardenedKeyStart {
		return nil, errorcodes.New(
			errorcodes.ErrCodeInvalidPath, "eddsa-derive",
			"child index %d is not below the hardened boundary", i,
		)
	}

	parent, err := edScalar(k.key[:])
	if err != nil {
		return nil, err
	}
	pub := new(edwards25519.Point).ScalarBaseMult(parent).Bytes()

	data := make([]byte, 0, 37)
	data = append(data, 0x00)
	data = append(data, pub...)
	data = binary.BigEndian.AppendUint32(data, i)

	mac := hmac.New(sha512.New, k.chainCode[:])
	mac.Write(data)
	ilr := mac.Sum(nil)
	defer zeroBytes(ilr)

	// I[:32] is read as a big-endian integer and reduced modulo l.
	wide := make([]byte, 64)
	copy(wide, reverse(ilr[:32]))
	defer zeroBytes(wide)

	tweak, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		return nil, err
	}

	childScalar := edwards25519.NewScalar().Add(parent, tweak)
	if childScalar.Equal(edwards25519.NewScalar()) == 1 {
		return nil, errorcodes.New(
			errorcodes.ErrCodeInvalidPath, "eddsa-derive",
			"child %d yields an invalid key", i,
		)
	}

	child := &EdExtendedKey{
		version:  FPRVVersion,
		depth:    k.depth + 1,
		childNum: i,
	}
	copy(child.parentFP[:], btcutil.Hash160(pub)[:4])
	copy(child.chainCode[:], ilr[32:])
	copy(child.key[:], reverse(childScalar.Bytes()))

	return child, nil
}

// Zero wipes the key material.
func (k *EdExtendedKey) Zero() {
	zeroArray(&k.key)
	zeroArray(&k.chainCode)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
