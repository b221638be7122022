// Package assets holds the registry mapping asset identifiers to the curve
// family, coin type and address scheme used to derive their keys.
package assets

import (
	"fmt"
	"strings"

	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/keychain"
)

// Descriptor describes how keys of one asset are derived and presented.
type Descriptor struct {
	// ID is the asset identifier, e.g. "ETH" or "SOL".
	ID string `yaml:"id" json:"id"`

	// Name is a human readable name.
	Name string `yaml:"name" json:"name"`

	// Family selects the master key pair and derivation strategy.
	Family keychain.CurveFamily `yaml:"family" json:"family"`

	// CoinType is the mainnet BIP44 coin type.
	CoinType uint32 `yaml:"coin_type" json:"coin_type"`

	// Address is the address scheme name understood by address.Lookup.
	Address string `yaml:"address" json:"address"`
}

// Validate checks that the descriptor is complete and refers to a known
// family and address scheme.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("asset id must be set")
	}

	switch d.Family {
	case keychain.CurveECDSA, keychain.CurveEdDSA:
	default:
		return fmt.Errorf("asset %s: unknown curve family %v", d.ID,
			d.Family)
	}

	if d.CoinType >= 0x80000000 {
		return fmt.Errorf("asset %s: coin type %d is hardened", d.ID,
			d.CoinType)
	}

	if _, err := address.Lookup(d.Address); err != nil {
		return fmt.Errorf("asset %s: %w", d.ID, err)
	}

	return nil
}

// Encoder returns the address encoder of the asset.
func (d *Descriptor) Encoder() (address.Encoder, error) {
	return address.Lookup(d.Address)
}

// normalizeID maps an identifier to its registry key.
func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
