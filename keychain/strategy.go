package keychain

import (
	"encoding/hex"

	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// hardenedKeyStart is the first hardened child index.
const hardenedKeyStart = keypath.HardenedKeyStart

// DerivedKey is the key material produced for one path.
type DerivedKey struct {
	// PrivKey is the 32 byte child private key. It is only set for
	// private derivation.
	PrivKey fn.Option[[]byte]

	// PubKey is the child public key: 33 byte compressed for ECDSA, 32
	// byte encoded point for EdDSA.
	PubKey []byte

	// Address is the asset specific rendering of PubKey.
	Address string

	// Path is the path the key was derived at.
	Path keypath.Path
}

// PrivKeyHex returns the hex encoded private key, if present.
func (d *DerivedKey) PrivKeyHex() fn.Option[string] {
	return fn.MapOption(hex.EncodeToString)(d.PrivKey)
}

// PubKeyHex returns the hex encoded public key.
func (d *DerivedKey) PubKeyHex() string {
	return hex.EncodeToString(d.PubKey)
}

// Zero wipes the private key, if any.
func (d *DerivedKey) Zero() {
	d.PrivKey.WhenSome(zeroBytes)
}

// Strategy derives child keys for one curve family. Implementations are
// stateless and safe for concurrent use.
type Strategy interface {
	// Family returns the curve family the strategy serves.
	Family() CurveFamily

	// CanDerivePublic reports whether DerivePublic is supported.
	CanDerivePublic() bool

	// DerivePrivate derives the child at path from a serialized
	// extended private key and returns its private key, public key and
	// address.
	DerivePrivate(master string, path keypath.Path, enc address.Encoder,
		opts address.Options) (*DerivedKey, error)

	// DerivePublic derives the child at path from a serialized extended
	// public key. It never yields a private key.
	DerivePublic(master string, path keypath.Path, enc address.Encoder,
		opts address.Options) (*DerivedKey, error)
}

var strategies = map[CurveFamily]Strategy{
	CurveECDSA: ecdsaStrategy{},
	CurveEdDSA: eddsaStrategy{},
}

// StrategyFor returns the strategy of the given family.
func StrategyFor(family CurveFamily) (Strategy, error) {
	s, ok := strategies[family]
	if !ok {
		return nil, errorcodes.New(
			errorcodes.ErrCodeUnsupportedOperation, "strategy",
			"no derivation strategy for %v", family,
		)
	}

	return s, nil
}

// encodeAddress wraps encoder failures in the taxonomy.
func encodeAddress(enc address.Encoder, pubKey []byte,
	opts address.Options) (string, error) {

	addr, err := enc.Encode(pubKey, opts)
	if err != nil {
		return "", errorcodes.Wrap(
			errorcodes.ErrCodeInternal, "address", err,
		)
	}

	return addr, nil
}
