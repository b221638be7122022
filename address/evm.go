package address

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

func keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}

	return h.Sum(nil)
}

// keccakAddress returns the 20 byte account hash shared by EVM chains and
// Tron: the last 20 bytes of keccak256 over the uncompressed point without
// its 0x04 prefix.
func keccakAddress(pubKey []byte) ([]byte, error) {
	key, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 public key: %w", err)
	}

	return keccak256(key.SerializeUncompressed()[1:])[12:], nil
}

// evmEncoder produces 0x prefixed hex addresses, optionally EIP-55 cased.
type evmEncoder struct{}

func (evmEncoder) Encode(pubKey []byte, opts Options) (string, error) {
	addr, err := keccakAddress(pubKey)
	if err != nil {
		return "", err
	}

	lower := hex.EncodeToString(addr)
	if !opts.Checksum {
		return "0x" + lower, nil
	}

	return "0x" + eip55(lower), nil
}

func (evmEncoder) Decode(addr string, _ Options) ([]byte, error) {
	body, ok := strings.CutPrefix(addr, "0x")
	if !ok || len(body) != 40 {
		return nil, fmt.Errorf("invalid evm address %q", addr)
	}

	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("invalid evm address: %w", err)
	}

	// Mixed case input has to carry a valid checksum.
	lower := strings.ToLower(body)
	if body != lower && body != strings.ToUpper(body) &&
		eip55(lower) != body {

		return nil, fmt.Errorf("bad checksum in evm address %q", addr)
	}

	return raw, nil
}

func (evmEncoder) Commitment(pubKey []byte) ([]byte, error) {
	return keccakAddress(pubKey)
}

// eip55 applies mixed-case checksum encoding to a lower case hex address.
func eip55(lower string) string {
	hash := keccak256([]byte(lower))

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}

		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}

	return string(out)
}
