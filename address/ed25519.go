package address

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// edPublicKey validates that pubKey is the encoding of a point on the
// Edwards curve.
func edPublicKey(pubKey []byte) ([]byte, error) {
	if len(pubKey) != 32 {
		return nil, fmt.Errorf("ed25519 public key is %d bytes, "+
			"expected 32", len(pubKey))
	}
	if _, err := new(edwards25519.Point).SetBytes(pubKey); err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key: %w", err)
	}

	return pubKey, nil
}

// solanaEncoder renders the raw key in base58.
type solanaEncoder struct{}

func (solanaEncoder) Encode(pubKey []byte, _ Options) (string, error) {
	key, err := edPublicKey(pubKey)
	if err != nil {
		return "", err
	}

	return base58.Encode(key), nil
}

func (solanaEncoder) Decode(addr string, _ Options) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 address: %w", err)
	}

	return edPublicKey(raw)
}

func (solanaEncoder) Commitment(pubKey []byte) ([]byte, error) {
	return edPublicKey(pubKey)
}

// nearEncoder renders implicit account ids: the hex encoded key.
type nearEncoder struct{}

func (nearEncoder) Encode(pubKey []byte, _ Options) (string, error) {
	key, err := edPublicKey(pubKey)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(key), nil
}

func (nearEncoder) Decode(addr string, _ Options) ([]byte, error) {
	raw, err := hex.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid implicit account: %w", err)
	}

	return edPublicKey(raw)
}

func (nearEncoder) Commitment(pubKey []byte) ([]byte, error) {
	return edPublicKey(pubKey)
}

// algorandEncoder renders base32(key || last 4 bytes of sha512/256(key))
// without padding.
type algorandEncoder struct{}

var algoEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func algorandChecksum(key []byte) []byte {
	sum := sha512.Sum512_256(key)
	return sum[len(sum)-4:]
}

func (algorandEncoder) Encode(pubKey []byte, _ Options) (string, error) {
	key, err := edPublicKey(pubKey)
	if err != nil {
		return "", err
	}

	return algoEncoding.EncodeToString(
		append(append([]byte{}, key...), algorandChecksum(key)...),
	), nil
}

func (algorandEncoder) Decode(addr string, _ Options) ([]byte, error) {
	raw, err := algoEncoding.DecodeString(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid algorand address: %w", err)
	}
	if len(raw) != 36 {
		return nil, fmt.Errorf("algorand address is %d bytes, "+
			"expected 36", len(raw))
	}

	key := raw[:32]
	if !bytes.Equal(raw[32:], algorandChecksum(key)) {
		return nil, fmt.Errorf("bad algorand address checksum")
	}

	return edPublicKey(key)
}

func (algorandEncoder) Commitment(pubKey []byte) ([]byte, error) {
	return edPublicKey(pubKey)
}

// ss58Encoder renders substrate addresses with a single byte network
// prefix.
type ss58Encoder struct {
	prefix     byte
	testPrefix byte
}

var ss58Context = []byte("SS58PRE")

func (s ss58Encoder) networkPrefix(testnet bool) byte {
	if testnet {
		return s.testPrefix
	}

	return s.prefix
}

func ss58Checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Context)
	h.Write(body)

	return h.Sum(nil)[:2]
}

func (s ss58Encoder) Encode(pubKey []byte, opts Options) (string, error) {
	key, err := edPublicKey(pubKey)
	if err != nil {
		return "", err
	}

	body := append([]byte{s.networkPrefix(opts.Testnet)}, key...)

	return base58.Encode(append(body, ss58Checksum(body)...)), nil
}

func (s ss58Encoder) Decode(addr string, opts Options) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid ss58 address: %w", err)
	}
	if len(raw) != 35 {
		return nil, fmt.Errorf("ss58 address is %d bytes, expected 35",
			len(raw))
	}

	if raw[0] != s.networkPrefix(opts.Testnet) {
		return nil, fmt.Errorf("ss58 prefix %d, expected %d", raw[0],
			s.networkPrefix(opts.Testnet))
	}
	if !bytes.Equal(raw[33:], ss58Checksum(raw[:33])) {
		return nil, fmt.Errorf("bad ss58 checksum")
	}

	return edPublicKey(raw[1:33])
}

func (ss58Encoder) Commitment(pubKey []byte) ([]byte, error) {
	return edPublicKey(pubKey)
}
