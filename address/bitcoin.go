package address

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/chaincfg"
)

// coinNet holds the address parameters of a bitcoin derived chain for both
// its main and test network.
type coinNet struct {
	main *chaincfg.Params
	test *chaincfg.Params
}

func (c coinNet) params(testnet bool) *chaincfg.Params {
	if testnet {
		return c.test
	}

	return c.main
}

var (
	bitcoinNet = coinNet{
		main: &chaincfg.MainNetParams,
		test: &chaincfg.TestNet3Params,
	}

	litecoinNet = coinNet{
		main: &chaincfg.Params{
			Name:             "litecoin",
			PubKeyHashAddrID: 0x30,
			Bech32HRPSegwit:  "ltc",
		},
		test: &chaincfg.Params{
			Name:             "litecoin-testnet4",
			PubKeyHashAddrID: 0x6f,
			Bech32HRPSegwit:  "tltc",
		},
	}

	dogecoinNet = coinNet{
		main: &chaincfg.Params{
			Name:             "dogecoin",
			PubKeyHashAddrID: 0x1e,
		},
		test: &chaincfg.Params{
			Name:             "dogecoin-testnet",
			PubKeyHashAddrID: 0x71,
		},
	}

	dashNet = coinNet{
		main: &chaincfg.Params{
			Name:             "dash",
			PubKeyHashAddrID: 0x4c,
		},
		test: &chaincfg.Params{
			Name:             "dash-testnet",
			PubKeyHashAddrID: 0x8c,
		},
	}
)

// pubKeyHash validates a compressed secp256k1 key and returns its HASH160.
func pubKeyHash(pubKey []byte) ([]byte, error) {
	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 public key: %w", err)
	}

	return btcutil.Hash160(key.SerializeCompressed()), nil
}

// bitcoinLike encodes P2WPKH addresses where the chain has segwit and P2PKH
// otherwise, or when the legacy format is requested.
type bitcoinLike coinNet

func (b bitcoinLike) Encode(pubKey []byte, opts Options) (string, error) {
	hash, err := pubKeyHash(pubKey)
	if err != nil {
		return "", err
	}

	params := coinNet(b).params(opts.Testnet)
	if opts.Legacy || params.Bech32HRPSegwit == "" {
		addr, err := btcutil.NewAddressPubKeyHash(hash, params)
		if err != nil {
			return "", err
		}

		return addr.EncodeAddress(), nil
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, params)
	if err != nil {
		return "", err
	}

	return addr.EncodeAddress(), nil
}

func (b bitcoinLike) Decode(addr string, opts Options) ([]byte, error) {
	params := coinNet(b).params(opts.Testnet)

	hrp := params.Bech32HRPSegwit
	if hrp != "" && strings.HasPrefix(strings.ToLower(addr), hrp+"1") {
		return decodeSegwitV0(addr, hrp)
	}

	return decodeBase58Check(addr, params.PubKeyHashAddrID)
}

func (bitcoinLike) Commitment(pubKey []byte) ([]byte, error) {
	return pubKeyHash(pubKey)
}

// decodeBase58Check decodes a versioned 20 byte base58check payload.
func decodeBase58Check(addr string, version byte) ([]byte, error) {
	payload, netID, err := base58.CheckDecode(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 address: %w", err)
	}
	if netID != version {
		return nil, fmt.Errorf("address version 0x%02x, expected "+
			"0x%02x", netID, version)
	}
	if len(payload) != 20 {
		return nil, fmt.Errorf("address payload is %d bytes, "+
			"expected 20", len(payload))
	}

	return payload, nil
}

// decodeSegwitV0 decodes a version 0 witness key hash address.
func decodeSegwitV0(addr, hrp string) ([]byte, error) {
	gotHRP, data, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid bech32 address: %w", err)
	}
	if gotHRP != hrp {
		return nil, fmt.Errorf("address prefix %q, expected %q",
			gotHRP, hrp)
	}
	if len(data) == 0 || data[0] != 0 {
		return nil, fmt.Errorf("unsupported witness version")
	}

	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(program) != 20 {
		return nil, fmt.Errorf("witness program is %d bytes, "+
			"expected 20", len(program))
	}

	return program, nil
}

// cosmosEncoder produces bech32 account addresses over HASH160 of the
// compressed key.
type cosmosEncoder struct {
	hrp string
}

func (c cosmosEncoder) Encode(pubKey []byte, _ Options) (string, error) {
	hash, err := pubKeyHash(pubKey)
	if err != nil {
		return "", err
	}

	data, err := bech32.ConvertBits(hash, 8, 5, true)
	if err != nil {
		return "", err
	}

	return bech32.Encode(c.hrp, data)
}

func (c cosmosEncoder) Decode(addr string, _ Options) ([]byte, error) {
	hrp, data, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != c.hrp {
		return nil, fmt.Errorf("address prefix %q, expected %q", hrp,
			c.hrp)
	}

	hash, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(hash) != 20 {
		return nil, fmt.Errorf("address payload is %d bytes, "+
			"expected 20", len(hash))
	}

	return hash, nil
}

func (cosmosEncoder) Commitment(pubKey []byte) ([]byte, error) {
	return pubKeyHash(pubKey)
}

// tronEncoder produces base58check addresses over 0x41 || keccak hash.
type tronEncoder struct{}

const tronAddressVersion = 0x41

func (tronEncoder) Encode(pubKey []byte, _ Options) (string, error) {
	hash, err := keccakAddress(pubKey)
	if err != nil {
		return "", err
	}

	return base58.CheckEncode(hash, tronAddressVersion), nil
}

func (tronEncoder) Decode(addr string, _ Options) ([]byte, error) {
	return decodeBase58Check(addr, tronAddressVersion)
}

func (tronEncoder) Commitment(pubKey []byte) ([]byte, error) {
	return keccakAddress(pubKey)
}

// bchEncoder produces CashAddr P2PKH addresses, or legacy base58 ones when
// requested.
type bchEncoder struct{}

func (bchEncoder) prefix(testnet bool) string {
	if testnet {
		return "bchtest"
	}

	return "bitcoincash"
}

func (e bchEncoder) Encode(pubKey []byte, opts Options) (string, error) {
	hash, err := pubKeyHash(pubKey)
	if err != nil {
		return "", err
	}

	if opts.Legacy {
		params := bitcoinNet.params(opts.Testnet)
		return base58.CheckEncode(hash, params.PubKeyHashAddrID), nil
	}

	return encodeCashAddr(e.prefix(opts.Testnet), cashAddrP2KH, hash)
}

func (e bchEncoder) Decode(addr string, opts Options) ([]byte, error) {
	if opts.Legacy {
		params := bitcoinNet.params(opts.Testnet)
		return decodeBase58Check(addr, params.PubKeyHashAddrID)
	}

	version, hash, err := decodeCashAddr(e.prefix(opts.Testnet), addr)
	if err != nil {
		return nil, err
	}
	if version != cashAddrP2KH || len(hash) != 20 {
		return nil, fmt.Errorf("not a P2PKH cashaddr")
	}

	return hash, nil
}

func (bchEncoder) Commitment(pubKey []byte) ([]byte, error) {
	return pubKeyHash(pubKey)
}
