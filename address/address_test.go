package address

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustHex(t require.TestingT, s string) []byte {
	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

// addressVectors are keys derived from BIP32 test vector 1 at
// 44/<coin>/0/0/0 and the Ed25519 test master, with addresses produced by an
// independent implementation.
var addressVectors = []struct {
	scheme string
	pubKey string
	opts   Options
	addr   string
}{
	{
		scheme: SchemeEVM,
		pubKey: "0389988f76588819d77d0a639a962fee68e94441878d01121d65" +
			"c602f28d5e17a4",
		addr: "0xe3ef19222515a5d6fa2f4bae5a66ba71e76805e4",
	},
	{
		scheme: SchemeEVM,
		pubKey: "0389988f76588819d77d0a639a962fee68e94441878d01121d65" +
			"c602f28d5e17a4",
		opts: Options{Checksum: true},
		addr: "0xE3eF19222515A5d6Fa2F4BAE5A66ba71e76805e4",
	},
	{
		scheme: SchemeEVM,
		pubKey: "02612ddbde0096e9387840a4e7042a7c12a81a6b61ebfbc045bc" +
			"04728c730947da",
		opts: Options{Checksum: true},
		addr: "0x396410b0bc10359E4E6e656E7B8a787ff4eF0BdD",
	},
	{
		scheme: SchemeEVM,
		pubKey: "0312b61547b9ff6eeaf2e4fa6a77c37015b092762711f4add031" +
			"f8d490dd42b737",
		opts: Options{Checksum: true, Testnet: true},
		addr: "0xfC60e76cEC6d6cFb82CDc0641eD9AA3122E72CEA",
	},
	{
		scheme: SchemeBitcoin,
		pubKey: "02b8b787f80d1426ab8f946e01b30dfe2bd1671f5df1775cdda6" +
			"da5700bc8bb6f1",
		addr: "bc1qduk8drkazdvdtye087lr4t0hpfz3nn2fsz5klc",
	},
	{
		scheme: SchemeBitcoin,
		pubKey: "02b8b787f80d1426ab8f946e01b30dfe2bd1671f5df1775cdda6" +
			"da5700bc8bb6f1",
		opts: Options{Legacy: true},
		addr: "1B8qGePtau9KPgja5QGvaJyWnfJA1XpMgz",
	},
	{
		scheme: SchemeBitcoin,
		pubKey: "0312b61547b9ff6eeaf2e4fa6a77c37015b092762711f4add031" +
			"f8d490dd42b737",
		opts: Options{Testnet: true},
		addr: "tb1q9d6cdq3j6twfdgxjsuk89zy5euyqkzq2wx8mpu",
	},
	{
		scheme: SchemeBitcoin,
		pubKey: "0312b61547b9ff6eeaf2e4fa6a77c37015b092762711f4add031" +
			"f8d490dd42b737",
		opts: Options{Testnet: true, Legacy: true},
		addr: "mjUk97UDpWDpqFETW63WAHmDD27kHPtSP8",
	},
	{
		scheme: SchemeLitecoin,
		pubKey: "027ed21d6d16bfb425d3b8153198775d15da7e67528c557353e4" +
			"a8d406207ed05c",
		addr: "ltc1q8h9dj4l6fy4kd3ahv6688rn6tpaa9ru8nzz683",
	},
	{
		scheme: SchemeLitecoin,
		pubKey: "027ed21d6d16bfb425d3b8153198775d15da7e67528c557353e4" +
			"a8d406207ed05c",
		opts: Options{Legacy: true},
		addr: "LQrgV7Lv6BgaKnQxMLNxjtPb3YxmJcCGkN",
	},
	{
		scheme: SchemeDogecoin,
		pubKey: "035ffe9bf1ebd8268ddf55a8633e2380434107db1e8fb01896ab" +
			"47da87f5407354",
		addr: "DG3wVNT7Tj6KB329GLHLLvPHUvpu4Aa7Mu",
	},
	{
		scheme: SchemeDash,
		pubKey: "034be6d68a846ea5cedead8f5215268be8c9f1b8b770dc96434f" +
			"93d2c3296b76be",
		addr: "XqAx65E3jfBn8HNt4XrmvwBdpd1yHxNSKB",
	},
	{
		scheme: SchemeBCH,
		pubKey: "02f9679c811846b27e0a8df85e41b33d7d5f63964381bf1b8808" +
			"471487f050cc4a",
		addr: "bitcoincash:qpvey3zd9jk8rvr7xf9lzvfypdlq88e73cupy833fu",
	},
	{
		scheme: SchemeBCH,
		pubKey: "02f9679c811846b27e0a8df85e41b33d7d5f63964381bf1b8808" +
			"471487f050cc4a",
		opts: Options{Legacy: true},
		addr: "19AcMsNh6deyvoMAP3dL9afqA2uVJgwFHE",
	},
	{
		scheme: SchemeCosmos,
		pubKey: "02184bb5586ecba281ce47af2c95ea9b3cc191c18992a839fb4a" +
			"b6e84245b992f3",
		addr: "cosmos1f9wh2atvrwmhx80rgpc0gn6e388zjyyqtt5saa",
	},
	{
		scheme: SchemeTron,
		pubKey: "02e67ff5850bfedd6a28ed3d99f654baf90db510a7a670834f9e" +
			"7de5b8412fa4e7",
		addr: "TAWYWCGr57v8iDV1XrwrYBaj9S5xtQKEpP",
	},
	{
		scheme: SchemeSolana,
		pubKey: "0c8e271eb734dd352bb07b8247287b5e38b9003212e29e137f56" +
			"fd830f0ba607",
		addr: "r1cZGfuXxq6sujkiaQNHUduG3mjuMhsdotHK66NyTXc",
	},
	{
		scheme: SchemeAlgorand,
		pubKey: "345d1c4cce96d576c93b1ad361c0caa94ac82143ab7106e0a02a" +
			"2ab0183e6205",
		addr: "GRORYTGOS3KXNSJ3DLJWDQGKVFFMQIKDVNYQNYFAFIVLAGB6MIC2" +
			"M57QEU",
	},
	{
		scheme: SchemePolkadot,
		pubKey: "0867c513fad24b8c100ccca20de55388c92f60899f5c9c34ac97" +
			"8863d3f19891",
		addr: "1C2D8cCtv7qp4RbJtr8B53JtBHPW9VdYs7RB78y8qWECXUC",
	},
	{
		scheme: SchemePolkadot,
		pubKey: "27fb987c10351f6de8d8b218b2a192388dde74be27f0a39fa3d6" +
			"af467152f903",
		opts: Options{Testnet: true},
		addr: "5Cy8TskzXerBC4DaabgdAzXcwPYy5AVwcgdv4BDs5euQLHhu",
	},
	{
		scheme: SchemeKusama,
		pubKey: "db16a6f627d2c164efa8f3fea854e6b9080aae15a074dba0096b" +
			"55534d0aa390",
		addr: "HXajWEAYdffqkH8bbhLsbcvwhejYZXveuGaSpCYwHevQrwK",
	},
	{
		scheme: SchemeNear,
		pubKey: "a7c440c213468794eac6d42b8176b91635926be2548f03a680f2" +
			"9f8ced03465e",
		addr: "a7c440c213468794eac6d42b8176b91635926be2548f03a680f2" +
			"9f8ced03465e",
	},
}

// TestEncodeVectors checks every scheme against known addresses and makes
// sure the address verifies against its key.
func TestEncodeVectors(t *testing.T) {
	t.Parallel()

	for _, v := range addressVectors {
		v := v
		t.Run(v.scheme+"/"+v.addr, func(t *testing.T) {
			t.Parallel()

			enc, err := Lookup(v.scheme)
			require.NoError(t, err)

			pubKey := mustHex(t, v.pubKey)
			addr, err := enc.Encode(pubKey, v.opts)
			require.NoError(t, err)
			require.Equal(t, v.addr, addr)

			require.NoError(t, Verify(enc, addr, pubKey, v.opts))
		})
	}
}

// TestVariantsShareCommitment checks that every presentation variant of an
// address decodes to the same underlying key commitment.
func TestVariantsShareCommitment(t *testing.T) {
	t.Parallel()

	variants := []Options{
		{},
		{Legacy: true},
		{Checksum: true},
		{Legacy: true, Checksum: true},
		{Testnet: true},
		{Testnet: true, Legacy: true},
	}

	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "key")
		priv, _ := btcec.PrivKeyFromBytes(secret)
		if priv.Key.IsZero() {
			t.Skip("zero scalar")
		}
		pubKey := priv.PubKey().SerializeCompressed()

		for _, scheme := range []string{
			SchemeEVM, SchemeBitcoin, SchemeLitecoin,
			SchemeDogecoin, SchemeDash, SchemeBCH, SchemeCosmos,
			SchemeTron,
		} {
			enc, err := Lookup(scheme)
			require.NoError(t, err)

			want, err := enc.Commitment(pubKey)
			require.NoError(t, err)

			for _, opts := range variants {
				addr, err := enc.Encode(pubKey, opts)
				require.NoError(t, err)

				got, err := enc.Decode(addr, opts)
				require.NoError(t, err, "%s %v", scheme, opts)
				require.Equal(t, want, got, scheme)
			}
		}
	})
}

func TestEvmChecksumMismatch(t *testing.T) {
	t.Parallel()

	enc, err := Lookup(SchemeEVM)
	require.NoError(t, err)

	// Flip the case of one letter of a valid checksummed address.
	_, err = enc.Decode(
		"0xe3eF19222515A5d6Fa2F4BAE5A66ba71e76805e4", Options{},
	)
	require.Error(t, err)

	// All lower and all upper case carry no checksum and are accepted.
	_, err = enc.Decode(
		"0xe3ef19222515a5d6fa2f4bae5a66ba71e76805e4", Options{},
	)
	require.NoError(t, err)
}

func TestRejectsBadKeys(t *testing.T) {
	t.Parallel()

	for _, scheme := range Schemes() {
		enc, err := Lookup(scheme)
		require.NoError(t, err)

		_, err = enc.Encode([]byte{1, 2, 3}, Options{})
		require.Error(t, err, scheme)
	}

	_, err := Lookup("zzz")
	require.Error(t, err)
}

func TestVerifyWrongKey(t *testing.T) {
	t.Parallel()

	enc, err := Lookup(SchemeSolana)
	require.NoError(t, err)

	other := mustHex(t, "7279ffef951e6711592222f86f82b4694bb98e1335c3bb04"+
		"796894dce2f962a5")
	err = Verify(
		enc, "r1cZGfuXxq6sujkiaQNHUduG3mjuMhsdotHK66NyTXc", other,
		Options{},
	)
	require.Error(t, err)
}
