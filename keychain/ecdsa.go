package keychain

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keypath"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// parseECDSAKey decodes an xprv or xpub string.
func parseECDSAKey(s string) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewKeyFromString(s)
	if err != nil {
		return nil, errorcodes.Wrap(
			errorcodes.ErrCodeMalformedKeyMaterial, "ecdsa-key", err,
		)
	}

	// Only mainnet BIP32 versions are accepted, the network of the
	// derived addresses is selected per request.
	prefix := s[:4]
	if prefix != "xprv" && prefix != "xpub" {
		key.Zero()
		return nil, errorcodes.New(
			errorcodes.ErrCodeMalformedKeyMaterial, "ecdsa-key",
			"unexpected extended key prefix %q", prefix,
		)
	}

	return key, nil
}

// deriveECDSAPath walks the path from key. Both private and public parents
// are supported; a public parent uses point arithmetic only.
func deriveECDSAPath(key *hdkeychain.ExtendedKey,
	path keypath.Path) (*hdkeychain.ExtendedKey, error) {

	if err := path.Validate(); err != nil {
		return nil, err
	}

	current := key
	for _, index := range path.Components() {
		child, err := current.Derive(index)
		if current != key {
			current.Zero()
		}

		switch {
		case errors.Is(err, hdkeychain.ErrInvalidChild):
			return nil, errorcodes.New(
				errorcodes.ErrCodeInvalidPath, "ecdsa-derive",
				"child %d yields an invalid key", index,
			)

		case err != nil:
			return nil, errorcodes.Wrap(
				errorcodes.ErrCodeInternal, "ecdsa-derive", err,
			)
		}

		current = child
	}

	return current, nil
}

// ecdsaStrategy derives secp256k1 keys with BIP32.
type ecdsaStrategy struct{}

// Family returns CurveECDSA.
func (ecdsaStrategy) Family() CurveFamily {
	return CurveECDSA
}

// CanDerivePublic returns true, BIP32 supports unhardened public
// derivation.
func (ecdsaStrategy) CanDerivePublic() bool {
	return true
}

// DerivePrivate derives from an xprv.
func (ecdsaStrategy) DerivePrivate(master string, path keypath.Path,
	enc address.Encoder, opts address.Options) (*DerivedKey, error) {

	root, err := parseECDSAKey(master)
	if err != nil {
		return nil, err
	}
	defer root.Zero()

	if !root.IsPrivate() {
		return nil, errorcodes.New(
			errorcodes.ErrCodeUnsupportedOperation, "ecdsa-derive",
			"private derivation needs an xprv",
		)
	}

	child, err := deriveECDSAPath(root, path)
	if err != nil {
		return nil, err
	}
	defer child.Zero()

	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, errorcodes.Wrap(
			errorcodes.ErrCodeInternal, "ecdsa-derive", err,
		)
	}
	defer priv.Zero()

	pubKey := priv.PubKey().SerializeCompressed()
	addr, err := encodeAddress(enc, pubKey, opts)
	if err != nil {
		return nil, err
	}

	log.Tracef("Derived ECDSA private child at %v", path)

	return &DerivedKey{
		PrivKey: fn.Some(priv.Serialize()),
		PubKey:  pubKey,
		Address: addr,
		Path:    path,
	}, nil
}

// DerivePublic derives from an xpub. An xprv is neutered first so the
// derivation itself never touches a private scalar.
func (ecdsaStrategy) DerivePublic(master string, path keypath.Path,
	enc address.Encoder, opts address.Options) (*DerivedKey, error) {

	root, err := parseECDSAKey(master)
	if err != nil {
		return nil, err
	}
	defer root.Zero()

	// The neutered root shares its chain code with root, which is only
	// wiped once the child has been derived.
	if root.IsPrivate() {
		pub, err := root.Neuter()
		if err != nil {
			return nil, errorcodes.Wrap(
				errorcodes.ErrCodeInternal, "ecdsa-derive", err,
			)
		}
		root = pub
	}

	child, err := deriveECDSAPath(root, path)
	if err != nil {
		return nil, err
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return nil, errorcodes.Wrap(
			errorcodes.ErrCodeInternal, "ecdsa-derive", err,
		)
	}

	pubKey := pub.SerializeCompressed()
	addr, err := encodeAddress(enc, pubKey, opts)
	if err != nil {
		return nil, err
	}

	log.Tracef("Derived ECDSA public child at %v", path)

	return &DerivedKey{
		PrivKey: fn.None[[]byte](),
		PubKey:  pubKey,
		Address: addr,
		Path:    path,
	}, nil
}
