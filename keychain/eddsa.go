package keychain

import (
	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// eddsaStrategy derives Ed25519 keys from an fprv. Ed25519 has no safe
// unhardened public derivation, so DerivePublic is not offered: callers
// that only hold the fpub cannot derive children.
type eddsaStrategy struct{}

// Family returns CurveEdDSA.
func (eddsaStrategy) Family() CurveFamily {
	return CurveEdDSA
}

// CanDerivePublic returns false.
func (eddsaStrategy) CanDerivePublic() bool {
	return false
}

// DerivePrivate derives from an fprv.
func (eddsaStrategy) DerivePrivate(master string, path keypath.Path,
	enc address.Encoder, opts address.Options) (*DerivedKey, error) {

	if err := path.Validate(); err != nil {
		return nil, err
	}

	root, err := ParseEdExtendedKey(master)
	if err != nil {
		return nil, err
	}
	defer root.Zero()

	if !root.IsPrivate() {
		return nil, errorcodes.New(
			errorcodes.ErrCodeUnsupportedOperation, "eddsa-derive",
			"private derivation needs an fprv",
		)
	}

	current := root
	for _, index := range path.Components() {
		child, err := current.Child(index)
		if current != root {
			current.Zero()
		}
		if err != nil {
			return nil, err
		}
		current = child
	}
	defer current.Zero()

	pubKey := current.PubKey()
	addr, err := encodeAddress(enc, pubKey, opts)
	if err != nil {
		return nil, err
	}

	log.Tracef("Derived EdDSA private child at %v", path)

	return &DerivedKey{
		PrivKey: fn.Some(current.PrivKey()),
		PubKey:  pubKey,
		Address: addr,
		Path:    path,
	}, nil
}

// DerivePublic always fails with ErrCodeUnsupportedOperation.
func (eddsaStrategy) DerivePublic(_ string, path keypath.Path,
	_ address.Encoder, _ address.Options) (*DerivedKey, error) {

	return nil, errorcodes.New(
		errorcodes.ErrCodeUnsupportedOperation, "eddsa-derive",
		"public-only derivation is not supported for EdDSA keys",
	).WithPath(path.String())
}
