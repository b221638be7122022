package assets

import (
	"strings"
	"sync"
	"testing"

	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryLookup(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	require.True(t, r.Sealed())

	eth, err := r.Lookup("eth")
	require.NoError(t, err)
	require.Equal(t, "ETH", eth.ID)
	require.Equal(t, keychain.CurveECDSA, eth.Family)
	require.EqualValues(t, 60, eth.CoinType)

	sol, err := r.Lookup("SOL")
	require.NoError(t, err)
	require.Equal(t, keychain.CurveEdDSA, sol.Family)
	require.EqualValues(t, 501, sol.CoinType)

	_, err = r.Lookup("ZZZ")
	require.ErrorIs(t, err, errorcodes.ErrCodeUnknownAsset)
	require.Contains(t, err.Error(), "ZZZ")

	descs := r.Assets()
	require.Len(t, descs, len(builtinAssets))
	for i := 1; i < len(descs); i++ {
		require.Less(t, descs[i-1].ID, descs[i].ID)
	}
}

// TestRegistrationConflicts checks that duplicates and late registrations
// are refused.
func TestRegistrationConflicts(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	desc := Descriptor{
		ID:       "eth",
		Family:   keychain.CurveECDSA,
		CoinType: 60,
		Address:  address.SchemeEVM,
	}
	require.NoError(t, r.Register(desc))

	desc.ID = "ETH"
	require.ErrorIs(
		t, r.Register(desc), errorcodes.ErrCodeRegistrationConflict,
	)

	r.Seal()
	desc.ID = "NEW"
	require.ErrorIs(
		t, r.Register(desc), errorcodes.ErrCodeRegistrationConflict,
	)

	_, err := r.Lookup("NEW")
	require.ErrorIs(t, err, errorcodes.ErrCodeUnknownAsset)
}

func TestRegisterInvalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		desc Descriptor
	}{
		{
			name: "empty id",
			desc: Descriptor{
				Family:  keychain.CurveECDSA,
				Address: address.SchemeEVM,
			},
		},
		{
			name: "no family",
			desc: Descriptor{ID: "X", Address: address.SchemeEVM},
		},
		{
			name: "unknown scheme",
			desc: Descriptor{
				ID:      "X",
				Family:  keychain.CurveEdDSA,
				Address: "carrier-pigeon",
			},
		},
		{
			name: "hardened coin type",
			desc: Descriptor{
				ID:       "X",
				Family:   keychain.CurveECDSA,
				CoinType: 0x80000000,
				Address:  address.SchemeEVM,
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := NewRegistry().Register(tc.desc)
			require.ErrorIs(t, err, errorcodes.ErrCodeInvalidArgument)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	const cfg = `
assets:
  - id: BASE_ETH
    name: Base
    family: ecdsa
    coin_type: 60
    address: evm
  - id: APT_TEST
    family: ed25519
    coin_type: 637
    address: near
`
	r := NewRegistry()
	require.NoError(t, Load(r, strings.NewReader(cfg)))

	base, err := r.Lookup("base_eth")
	require.NoError(t, err)
	require.Equal(t, "Base", base.Name)
	require.Equal(t, keychain.CurveECDSA, base.Family)

	apt, err := r.Lookup("APT_TEST")
	require.NoError(t, err)
	require.Equal(t, keychain.CurveEdDSA, apt.Family)
	require.EqualValues(t, 637, apt.CoinType)

	// Redefining a built-in asset is a conflict.
	withDefaults := NewRegistry()
	require.NoError(t, RegisterDefaults(withDefaults))
	err = Load(withDefaults, strings.NewReader(`
assets:
  - id: ETH
    family: ecdsa
    coin_type: 60
    address: evm
`))
	require.ErrorIs(t, err, errorcodes.ErrCodeRegistrationConflict)

	// Unknown fields and families are rejected.
	require.Error(t, Load(NewRegistry(), strings.NewReader(`
assets:
  - id: X
    family: ecdsa
    coin: 60
`)))
	require.Error(t, Load(NewRegistry(), strings.NewReader(`
assets:
  - id: X
    family: schnorr
    address: evm
`)))

	// An empty document is fine.
	require.NoError(t, Load(NewRegistry(), strings.NewReader("")))
}

// TestConcurrentLookup exercises the sealed registry from many goroutines.
func TestConcurrentLookup(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for _, desc := range builtinAssets {
				got, err := r.Lookup(desc.ID)
				require.NoError(t, err)
				require.Equal(t, desc, got)
			}
		}()
	}
	wg.Wait()
}
