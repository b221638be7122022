package address

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	cashAddrCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

	// cashAddrP2KH is the version byte of a 160 bit key hash.
	cashAddrP2KH = 0x00

	cashAddrChecksumLen = 8
)

var cashAddrGenerators = [5]uint64{
	0x98f2bc8e61, 0x79b76d99e2, 0xf33e5fb3c4, 0xae2eabe2a8, 0x1e4f43e470,
}

// cashAddrPolymod computes the 40 bit BCH checksum over 5 bit values.
func cashAddrPolymod(values []byte) uint64 {
	c := uint64(1)
	for _, d := range values {
		c0 := byte(c >> 35)
		c = ((c & 0x07ffffffff) << 5) ^ uint64(d)

		for i, g := range cashAddrGenerators {
			if c0&(1<<i) != 0 {
				c ^= g
			}
		}
	}

	return c ^ 1
}

// cashAddrPrefixData expands the prefix into the values covered by the
// checksum: the low 5 bits of each character and a zero separator.
func cashAddrPrefixData(prefix string) []byte {
	data := make([]byte, 0, len(prefix)+1)
	for i := 0; i < len(prefix); i++ {
		data = append(data, prefix[i]&0x1f)
	}

	return append(data, 0)
}

func encodeCashAddr(prefix string, version byte, hash []byte) (string,
	error) {

	payload, err := bech32.ConvertBits(
		append([]byte{version}, hash...), 8, 5, true,
	)
	if err != nil {
		return "", err
	}

	values := append(cashAddrPrefixData(prefix), payload...)
	values = append(values, make([]byte, cashAddrChecksumLen)...)
	mod := cashAddrPolymod(values)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	for _, v := range payload {
		b.WriteByte(cashAddrCharset[v])
	}
	for i := 0; i < cashAddrChecksumLen; i++ {
		b.WriteByte(cashAddrCharset[(mod>>(5*(7-i)))&0x1f])
	}

	return b.String(), nil
}

// decodeCashAddr parses addr, with or without its prefix, and returns the
// version byte and hash.
func decodeCashAddr(prefix, addr string) (byte, []byte, error) {
	if strings.ToLower(addr) != addr && strings.ToUpper(addr) != addr {
		return 0, nil, fmt.Errorf("mixed case cashaddr")
	}
	addr = strings.ToLower(addr)

	body := addr
	if i := strings.IndexByte(addr, ':'); i >= 0 {
		if addr[:i] != prefix {
			return 0, nil, fmt.Errorf("cashaddr prefix %q, "+
				"expected %q", addr[:i], prefix)
		}
		body = addr[i+1:]
	}
	if len(body) <= cashAddrChecksumLen {
		return 0, nil, fmt.Errorf("cashaddr too short")
	}

	values := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		v := strings.IndexByte(cashAddrCharset, body[i])
		if v < 0 {
			return 0, nil, fmt.Errorf("invalid cashaddr "+
				"character %q", body[i])
		}
		values[i] = byte(v)
	}

	if cashAddrPolymod(append(cashAddrPrefixData(prefix), values...)) != 0 {
		return 0, nil, fmt.Errorf("bad cashaddr checksum")
	}

	payload, err := bech32.ConvertBits(
		values[:len(values)-cashAddrChecksumLen], 5, 8, false,
	)
	if err != nil {
		return 0, nil, err
	}
	if len(payload) == 0 {
		return 0, nil, fmt.Errorf("empty cashaddr payload")
	}

	return payload[0], payload[1:], nil
}
