// Package address renders derived public keys as chain specific addresses
// and parses them back to the key commitment they encode.
package address

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// Options selects between presentation variants of an address. None of them
// changes the key material an address commits to.
type Options struct {
	// Legacy selects the pre-segwit or pre-cashaddr encoding where an
	// asset has one.
	Legacy bool

	// Checksum selects mixed-case checksummed output for hex addresses.
	Checksum bool

	// Testnet selects test network prefixes and version bytes.
	Testnet bool
}

// Encoder converts between public keys and addresses for one address scheme.
type Encoder interface {
	// Encode renders pubKey as an address.
	Encode(pubKey []byte, opts Options) (string, error)

	// Decode parses an address produced by Encode with the same options
	// and returns the commitment it carries: a key hash for hashed
	// schemes, or the raw public key otherwise.
	Decode(addr string, opts Options) ([]byte, error)

	// Commitment returns the value Decode yields for any address of
	// pubKey, regardless of options.
	Commitment(pubKey []byte) ([]byte, error)
}

// Scheme names accepted by Lookup.
const (
	SchemeEVM      = "evm"
	SchemeBitcoin  = "btc"
	SchemeLitecoin = "ltc"
	SchemeDogecoin = "doge"
	SchemeDash     = "dash"
	SchemeBCH      = "bch"
	SchemeCosmos   = "cosmos"
	SchemeTron     = "tron"
	SchemeSolana   = "solana"
	SchemeAlgorand = "algorand"
	SchemePolkadot = "polkadot"
	SchemeKusama   = "kusama"
	SchemeNear     = "near"
)

var encoders = map[string]Encoder{
	SchemeEVM:      evmEncoder{},
	SchemeBitcoin:  bitcoinLike(bitcoinNet),
	SchemeLitecoin: bitcoinLike(litecoinNet),
	SchemeDogecoin: bitcoinLike(dogecoinNet),
	SchemeDash:     bitcoinLike(dashNet),
	SchemeBCH:      bchEncoder{},
	SchemeCosmos:   cosmosEncoder{hrp: "cosmos"},
	SchemeTron:     tronEncoder{},
	SchemeSolana:   solanaEncoder{},
	SchemeAlgorand: algorandEncoder{},
	SchemePolkadot: ss58Encoder{prefix: 0, testPrefix: 42},
	SchemeKusama:   ss58Encoder{prefix: 2, testPrefix: 42},
	SchemeNear:     nearEncoder{},
}

// Lookup returns the encoder for the named scheme.
func Lookup(scheme string) (Encoder, error) {
	enc, ok := encoders[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("unknown address scheme %q", scheme)
	}

	return enc, nil
}

// Schemes returns the sorted names of all known schemes.
func Schemes() []string {
	names := make([]string, 0, len(encoders))
	for name := range encoders {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Verify checks that addr is a valid address for pubKey under the given
// options.
func Verify(enc Encoder, addr string, pubKey []byte, opts Options) error {
	got, err := enc.Decode(addr, opts)
	if err != nil {
		return err
	}

	want, err := enc.Commitment(pubKey)
	if err != nil {
		return err
	}

	if !bytes.Equal(got, want) {
		return fmt.Errorf("address %s does not belong to public key",
			addr)
	}

	return nil
}
