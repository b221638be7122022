// Package keypath builds and validates the five level BIP44 derivation paths
// used to address child keys.
package keypath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodyhq/recoverd/errorcodes"
)

const (
	// PurposeBIP44 is the only purpose level accepted by the builder.
	PurposeBIP44 = 44

	// TestnetCoinType is the coin type shared by every test network.
	TestnetCoinType = 1

	// HardenedKeyStart is the first hardened child index. Every level of
	// a path must stay below it.
	HardenedKeyStart = 0x80000000

	stage = "path"
)

// Path is a BIP44 derivation path. It is a value type: two paths are equal
// iff all five levels match, and a Path is never modified once built.
type Path struct {
	Purpose  uint32
	CoinType uint32
	Account  uint32
	Change   uint32
	Index    uint32
}

// Build validates the given levels and returns the resulting path. coinType
// is the asset's mainnet coin type; when testnet is set it is replaced by
// TestnetCoinType. Negative or hardened levels, a purpose other than 44 and a
// mainnet request for the testnet coin type are rejected with an
// ErrCodeInvalidPath error.
func Build(purpose, coinType, account, change, index int64,
	testnet bool) (Path, error) {

	if purpose != PurposeBIP44 {
		return Path{}, errorcodes.New(
			errorcodes.ErrCodeInvalidPath, stage,
			"purpose must be %d, got %d", PurposeBIP44, purpose,
		)
	}

	levels := []struct {
		name  string
		value int64
	}{
		{"coin type", coinType},
		{"account", account},
		{"change", change},
		{"index", index},
	}
	for _, level := range levels {
		if err := checkLevel(level.name, level.value); err != nil {
			return Path{}, err
		}
	}

	switch {
	case testnet:
		coinType = TestnetCoinType

	case coinType == TestnetCoinType:
		return Path{}, errorcodes.New(
			errorcodes.ErrCodeInvalidPath, stage,
			"coin type %d is reserved for testnet",
			TestnetCoinType,
		)
	}

	return Path{
		Purpose:  uint32(purpose),
		CoinType: uint32(coinType),
		Account:  uint32(account),
		Change:   uint32(change),
		Index:    uint32(index),
	}, nil
}

// checkLevel makes sure a single level is a valid unhardened child index.
func checkLevel(name string, value int64) error {
	switch {
	case value < 0:
		return errorcodes.New(
			errorcodes.ErrCodeInvalidPath, stage,
			"%s must not be negative, got %d", name, value,
		)

	case value >= HardenedKeyStart:
		return errorcodes.New(
			errorcodes.ErrCodeInvalidPath, stage,
			"%s %d is not below the hardened boundary", name,
			value,
		)
	}

	return nil
}

// WithIndex returns a copy of the path pointing at a different address
// index.
func (p Path) WithIndex(index uint32) (Path, error) {
	if index >= HardenedKeyStart {
		return Path{}, errorcodes.New(
			errorcodes.ErrCodeInvalidPath, stage,
			"index %d is not below the hardened boundary", index,
		)
	}
	p.Index = index

	return p, nil
}

// Components returns the child indices from purpose down to index.
func (p Path) Components() []uint32 {
	return []uint32{p.Purpose, p.CoinType, p.Account, p.Change, p.Index}
}

// Validate checks that every level is an unhardened child index. Paths made
// by Build always pass; literal Path values might not.
func (p Path) Validate() error {
	names := []string{"purpose", "coin type", "account", "change", "index"}
	for i, c := range p.Components() {
		if err := checkLevel(names[i], int64(c)); err != nil {
			return err
		}
	}

	return nil
}

// String renders the path as "purpose,coin_type,account,change,index".
func (p Path) String() string {
	parts := make([]string, 0, 5)
	for _, c := range p.Components() {
		parts = append(parts, strconv.FormatUint(uint64(c), 10))
	}

	return strings.Join(parts, ",")
}

// Parse is the inverse of String. It accepts exactly five comma separated
// levels and applies the same checks as Build, except for the testnet coin
// type rule which depends on the caller's mode.
func Parse(s string) (Path, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 5 {
		return Path{}, errorcodes.New(
			errorcodes.ErrCodeInvalidPath, stage,
			"expected 5 levels, got %d", len(parts),
		)
	}

	var levels [5]int64
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return Path{}, errorcodes.Wrap(
				errorcodes.ErrCodeInvalidPath, stage,
				fmt.Errorf("level %d: %w", i, err),
			)
		}
		levels[i] = v
	}

	testnet := levels[1] == TestnetCoinType

	return Build(
		levels[0], levels[1], levels[2], levels[3], levels[4], testnet,
	)
}
