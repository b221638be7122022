package derive

import (
	"context"
	"strings"
	"testing"

	"github.com/custodyhq/recoverd/address"
	"github.com/custodyhq/recoverd/assets"
	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/custodyhq/recoverd/keystore"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	testXPRV = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPP" +
		"qjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	testXPUB = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhe" +
		"PY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	testFPRV = "fprv4LsXPWzhTTp9bjovD7UXiqaDnv7JVY7E3Sws8n1GGS86idDiybn2" +
		"c1TFUQB1Sq3PxSwE9nMQ4YrrCKuL3xrz4d4ixhQ3yxjkPEDLNNp8aCC"
	testFPUB = "fpub8sZZXw2wbqVpVCqi6m988FELMwdEesJ8ckYeRJ3ZghvVZ7UVbzbc" +
		"nW57eTQAYNsY6sw5xFVwpoqpkDYGevZDkGe5mztobDbktzWEZt6xJdv"
)

func newTestEngine(t require.TestingT, loaded bool) *Engine {
	store := keystore.New()
	if loaded {
		require.NoError(t, store.Load(&keychain.MasterKeys{
			XPRV: testXPRV,
			XPUB: testXPUB,
			FPRV: testFPRV,
			FPUB: testFPUB,
		}, true))
	}

	engine, err := New(Config{
		Registry: assets.DefaultRegistry(),
		Keys:     store,
		MaxRange: 50,
		Workers:  4,
	})
	require.NoError(t, err)

	return engine
}

// TestDeriveRangeETH is the reference scenario: three mainnet ETH keys
// with checksummed addresses.
func TestDeriveRangeETH(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, true)
	keys, err := engine.DeriveRange(context.Background(), RangeRequest{
		Asset:      "ETH",
		IndexStart: 0,
		IndexEnd:   2,
		Format:     address.Options{Checksum: true},
	})
	require.NoError(t, err)
	require.Len(t, keys, 3)

	expected := []string{
		"0xE3eF19222515A5d6Fa2F4BAE5A66ba71e76805e4",
		"0x396410b0bc10359E4E6e656E7B8a787ff4eF0BdD",
		"0x4ca2e3f3644206BAc0dFc57EE114A99Ac6297Fd4",
	}
	for i, key := range keys {
		require.Equal(
			t, []string{"44,60,0,0,0", "44,60,0,0,1",
				"44,60,0,0,2"}[i], key.Path.String(),
		)
		require.True(t, key.PrivKey.IsSome())
		require.Len(t, key.PrivKeyHex().UnwrapOr(""), 64)
		require.Len(t, key.PubKeyHex(), 66)
		require.Equal(t, expected[i], key.Address)
		require.NotEqual(t, strings.ToLower(key.Address), key.Address)
	}
}

// TestDeriveRangeMatchesDeriveOne checks length, order and element-wise
// equality with single derivations.
func TestDeriveRangeMatchesDeriveOne(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, true)
	assetIDs := []string{"BTC", "ETH", "TRX", "SOL", "DOT", "ALGO", "BCH"}

	rapid.Check(t, func(t *rapid.T) {
		asset := rapid.SampledFrom(assetIDs).Draw(t, "asset")
		start := rapid.Int64Range(0, 1<<20).Draw(t, "start")
		count := rapid.Int64Range(1, 6).Draw(t, "count")
		format := address.Options{
			Legacy:   rapid.Bool().Draw(t, "legacy"),
			Checksum: rapid.Bool().Draw(t, "checksum"),
			Testnet:  rapid.Bool().Draw(t, "testnet"),
		}
		account := rapid.Int64Range(0, 10).Draw(t, "account")
		change := rapid.Int64Range(0, 1).Draw(t, "change")

		keys, err := engine.DeriveRange(
			context.Background(), RangeRequest{
				Asset:      asset,
				Account:    account,
				Change:     change,
				IndexStart: start,
				IndexEnd:   start + count - 1,
				Format:     format,
			},
		)
		require.NoError(t, err)
		require.Len(t, keys, int(count))

		for i, key := range keys {
			single, err := engine.DeriveOne(Request{
				Asset:   asset,
				Account: account,
				Change:  change,
				Index:   start + int64(i),
				Format:  format,
			})
			require.NoError(t, err)
			require.Equal(t, single, key)
			require.EqualValues(t, start+int64(i), key.Path.Index)
		}
	})
}

// TestPublicMatchesPrivate derives every ECDSA asset both ways.
func TestPublicMatchesPrivate(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, true)
	for _, desc := range assets.DefaultRegistry().Assets() {
		if desc.Family != keychain.CurveECDSA {
			continue
		}

		for _, format := range []address.Options{
			{}, {Legacy: true}, {Checksum: true}, {Testnet: true},
		} {
			req := Request{
				Asset:   desc.ID,
				Account: 1,
				Change:  1,
				Index:   5,
				Format:  format,
			}
			priv, err := engine.DeriveOne(req)
			require.NoError(t, err)

			req.Mode = ModePublic
			pub, err := engine.DeriveOne(req)
			require.NoError(t, err)

			require.Equal(t, priv.PubKey, pub.PubKey, desc.ID)
			require.Equal(t, priv.Address, pub.Address, desc.ID)
			require.True(t, pub.PrivKey.IsNone())
		}
	}
}

// TestPublicNeedsNoPrivateKey runs public derivation with only the xpub
// available.
func TestPublicNeedsNoPrivateKey(t *testing.T) {
	t.Parallel()

	store := keystore.New()
	require.NoError(t, store.Set(keychain.KindXPUB, testXPUB))

	engine, err := New(Config{
		Registry: assets.DefaultRegistry(),
		Keys:     store,
	})
	require.NoError(t, err)

	key, err := engine.DeriveOne(Request{Asset: "BTC", Mode: ModePublic})
	require.NoError(t, err)
	require.Equal(t, "bc1qduk8drkazdvdtye087lr4t0hpfz3nn2fsz5klc",
		key.Address)

	_, err = engine.DeriveOne(Request{Asset: "BTC"})
	require.ErrorIs(t, err, errorcodes.ErrCodeMissingMasterKey)
}

func TestExplicitExtendedKey(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, false)

	key, err := engine.DeriveOne(Request{
		Asset:       "ETH",
		Mode:        ModePublic,
		Format:      address.Options{Checksum: true},
		ExtendedKey: fn.Some(testXPUB),
	})
	require.NoError(t, err)
	require.Equal(t, "0xE3eF19222515A5d6Fa2F4BAE5A66ba71e76805e4",
		key.Address)

	// An xpub cannot serve a private request.
	_, err = engine.DeriveOne(Request{
		Asset:       "ETH",
		ExtendedKey: fn.Some(testXPUB),
	})
	require.ErrorIs(t, err, errorcodes.ErrCodeUnsupportedOperation)
}

// TestDeriveErrors covers the error taxonomy of the engine.
func TestDeriveErrors(t *testing.T) {
	t.Parallel()

	loaded := newTestEngine(t, true)
	empty := newTestEngine(t, false)

	testCases := []struct {
		name   string
		engine *Engine
		req    RangeRequest
		code   errorcodes.Code
	}{
		{
			name:   "unknown asset",
			engine: loaded,
			req:    RangeRequest{Asset: "ZZZ"},
			code:   errorcodes.ErrCodeUnknownAsset,
		},
		{
			name:   "negative account before key lookup",
			engine: empty,
			req:    RangeRequest{Asset: "ETH", Account: -1},
			code:   errorcodes.ErrCodeInvalidPath,
		},
		{
			name:   "negative change",
			engine: loaded,
			req:    RangeRequest{Asset: "SOL", Change: -1},
			code:   errorcodes.ErrCodeInvalidPath,
		},
		{
			name:   "negative index",
			engine: loaded,
			req: RangeRequest{
				Asset:      "BTC",
				IndexStart: -2,
				IndexEnd:   1,
			},
			code: errorcodes.ErrCodeInvalidPath,
		},
		{
			name:   "end below start",
			engine: loaded,
			req: RangeRequest{
				Asset:      "ETH",
				IndexStart: 3,
				IndexEnd:   2,
			},
			code: errorcodes.ErrCodeInvalidRange,
		},
		{
			name:   "range too large",
			engine: loaded,
			req: RangeRequest{
				Asset:    "ETH",
				IndexEnd: 50,
			},
			code: errorcodes.ErrCodeInvalidRange,
		},
		{
			name:   "end hardened",
			engine: loaded,
			req: RangeRequest{
				Asset:      "ETH",
				IndexStart: 0x7fffffff,
				IndexEnd:   0x80000000,
			},
			code: errorcodes.ErrCodeInvalidPath,
		},
		{
			name:   "missing master key",
			engine: empty,
			req:    RangeRequest{Asset: "ETH"},
			code:   errorcodes.ErrCodeMissingMasterKey,
		},
		{
			name:   "eddsa public only",
			engine: loaded,
			req:    RangeRequest{Asset: "SOL", Mode: ModePublic},
			code:   errorcodes.ErrCodeUnsupportedOperation,
		},
		{
			name:   "eddsa public only without keys",
			engine: empty,
			req:    RangeRequest{Asset: "NEAR", Mode: ModePublic},
			code:   errorcodes.ErrCodeUnsupportedOperation,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			keys, err := tc.engine.DeriveRange(
				context.Background(), tc.req,
			)
			require.ErrorIs(t, err, tc.code)
			require.Nil(t, keys)

			if tc.req.IndexEnd < tc.req.IndexStart {
				return
			}

			key, err := tc.engine.DeriveOne(Request{
				Asset:   tc.req.Asset,
				Account: tc.req.Account,
				Change:  tc.req.Change,
				Index:   tc.req.IndexStart,
				Mode:    tc.req.Mode,
			})
			if tc.code == errorcodes.ErrCodeInvalidRange ||
				tc.name == "end hardened" {

				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.code)
			require.Nil(t, key)
		})
	}
}

// TestDeriveRangeCancelled makes sure a cancelled context yields no keys.
func TestDeriveRangeCancelled(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	keys, err := engine.DeriveRange(ctx, RangeRequest{
		Asset:    "ETH",
		IndexEnd: 20,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, keys)
}

func TestTestnetPaths(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, true)

	key, err := engine.DeriveOne(Request{
		Asset:  "BTC",
		Format: address.Options{Testnet: true},
	})
	require.NoError(t, err)
	require.Equal(t, "44,1,0,0,0", key.Path.String())
	require.Equal(t, "tb1q9d6cdq3j6twfdgxjsuk89zy5euyqkzq2wx8mpu",
		key.Address)

	key, err = engine.DeriveOne(Request{
		Asset:  "DOT",
		Format: address.Options{Testnet: true},
	})
	require.NoError(t, err)
	require.Equal(t, "5Cy8TskzXerBC4DaabgdAzXcwPYy5AVwcgdv4BDs5euQLHhu",
		key.Address)
}
