package assets

import (
	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/keychain"
)

// builtinAssets is the table of assets known without any configuration.
var builtinAssets = []Descriptor{
	{"BTC", "Bitcoin", keychain.CurveECDSA, 0, address.SchemeBitcoin},
	{"LTC", "Litecoin", keychain.CurveECDSA, 2, address.SchemeLitecoin},
	{"DOGE", "Dogecoin", keychain.CurveECDSA, 3, address.SchemeDogecoin},
	{"DASH", "Dash", keychain.CurveECDSA, 5, address.SchemeDash},
	{"BCH", "Bitcoin Cash", keychain.CurveECDSA, 145, address.SchemeBCH},
	{"ETH", "Ethereum", keychain.CurveECDSA, 60, address.SchemeEVM},
	{"ETC", "Ethereum Classic", keychain.CurveECDSA, 61, address.SchemeEVM},
	{"BNB_BSC", "BNB Smart Chain", keychain.CurveECDSA, 60, address.SchemeEVM},
	{"MATIC_POLYGON", "Polygon", keychain.CurveECDSA, 60, address.SchemeEVM},
	{"AVAX", "Avalanche C-Chain", keychain.CurveECDSA, 60, address.SchemeEVM},
	{"FTM_FANTOM", "Fantom", keychain.CurveECDSA, 60, address.SchemeEVM},
	{"CELO", "Celo", keychain.CurveECDSA, 52752, address.SchemeEVM},
	{"ATOM_COS", "Cosmos Hub", keychain.CurveECDSA, 118, address.SchemeCosmos},
	{"TRX", "Tron", keychain.CurveECDSA, 195, address.SchemeTron},
	{"SOL", "Solana", keychain.CurveEdDSA, 501, address.SchemeSolana},
	{"ALGO", "Algorand", keychain.CurveEdDSA, 283, address.SchemeAlgorand},
	{"DOT", "Polkadot", keychain.CurveEdDSA, 354, address.SchemePolkadot},
	{"KSM", "Kusama", keychain.CurveEdDSA, 434, address.SchemeKusama},
	{"NEAR", "NEAR Protocol", keychain.CurveEdDSA, 397, address.SchemeNear},
}

// RegisterDefaults adds the built-in assets to r.
func RegisterDefaults(r *Registry) error {
	for _, desc := range builtinAssets {
		if err := r.Register(desc); err != nil {
			return err
		}
	}

	return nil
}

// DefaultRegistry returns a sealed registry holding the built-in assets.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		// The built-in table is static.
		panic(err)
	}
	r.Seal()

	return r
}
