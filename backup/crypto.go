package backup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// archiveVersion is the only archive envelope version understood.
	archiveVersion byte = 1

	// saltSize is the size of the argon2id salt in the archive header.
	saltSize = 16

	// archiveHeaderSize is the size of the plaintext archive header:
	// version || time || memory || threads || salt || nonce.
	archiveHeaderSize = 1 + 4 + 4 + 1 + saltSize +
		chacha20poly1305.NonceSizeX

	// dataKeySize is the size of the key wrapped to the RSA key.
	dataKeySize = chacha20poly1305.KeySize
)

var (
	// errAuthFailed is returned when an AEAD refuses to open, which means
	// either a wrong key or tampered data.
	errAuthFailed = errors.New("authentication failed")

	// errUnsupportedVersion is returned for an unknown envelope version.
	errUnsupportedVersion = errors.New("unsupported archive version")
)

// KDFParams are the argon2id parameters used to stretch the archive
// passphrase.
type KDFParams struct {
	// Time is the number of passes over memory.
	Time uint32

	// MemoryKiB is the memory cost in KiB.
	MemoryKiB uint32

	// Threads is the degree of parallelism.
	Threads uint8
}

// DefaultKDFParams are the parameters used when packing archives.
var DefaultKDFParams = KDFParams{
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   4,
}

const (
	maxKDFTime      = 16
	maxKDFMemoryKiB = 1 << 20
	maxKDFThreads   = 64
)

// Validate bounds the parameters so a hostile archive can't make recovery
// spend unbounded memory or time.
func (p KDFParams) Validate() error {
	switch {
	case p.Time == 0 || p.Time > maxKDFTime:
		return fmt.Errorf("kdf time %d out of range [1, %d]", p.Time,
			maxKDFTime)

	case p.MemoryKiB < 8*uint32(p.Threads) ||
		p.MemoryKiB > maxKDFMemoryKiB:

		return fmt.Errorf("kdf memory %d KiB out of range", p.MemoryKiB)

	case p.Threads == 0 || p.Threads > maxKDFThreads:
		return fmt.Errorf("kdf threads %d out of range [1, %d]",
			p.Threads, maxKDFThreads)
	}

	return nil
}

func (p KDFParams) deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(
		passphrase, salt, p.Time, p.MemoryKiB, p.Threads,
		chacha20poly1305.KeySize,
	)
}

// archiveHeader is the authenticated plaintext prefix of an archive.
type archiveHeader struct {
	version byte
	kdf     KDFParams
	salt    [saltSize]byte
	nonce   [chacha20poly1305.NonceSizeX]byte
}

func (h *archiveHeader) encode() []byte {
	b := make([]byte, 0, archiveHeaderSize)
	b = append(b, h.version)
	b = binary.BigEndian.AppendUint32(b, h.kdf.Time)
	b = binary.BigEndian.AppendUint32(b, h.kdf.MemoryKiB)
	b = append(b, h.kdf.Threads)
	b = append(b, h.salt[:]...)
	b = append(b, h.nonce[:]...)

	return b
}

func decodeArchiveHeader(b []byte) (*archiveHeader, error) {
	if len(b) < archiveHeaderSize {
		return nil, fmt.Errorf("archive size too small, must be at "+
			"least %v bytes", archiveHeaderSize)
	}

	h := &archiveHeader{version: b[0]}
	if h.version != archiveVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedVersion,
			h.version)
	}

	h.kdf.Time = binary.BigEndian.Uint32(b[1:5])
	h.kdf.MemoryKiB = binary.BigEndian.Uint32(b[5:9])
	h.kdf.Threads = b[9]
	if err := h.kdf.Validate(); err != nil {
		return nil, err
	}

	copy(h.salt[:], b[10:10+saltSize])
	copy(h.nonce[:], b[10+saltSize:archiveHeaderSize])

	return h, nil
}

// sealArchive encrypts plaintext under a key stretched from passphrase. The
// header is bound to the ciphertext as associated data.
func sealArchive(plaintext, passphrase []byte, params KDFParams,
	rand io.Reader) ([]byte, error) {

	if err := params.Validate(); err != nil {
		return nil, err
	}

	h := &archiveHeader{version: archiveVersion, kdf: params}
	if _, err := io.ReadFull(rand, h.salt[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand, h.nonce[:]); err != nil {
		return nil, err
	}

	key := params.deriveKey(passphrase, h.salt[:])
	defer zeroBytes(key)

	cipher, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	header := h.encode()

	return cipher.Seal(header, h.nonce[:], plaintext, header), nil
}

// openArchive reverses sealArchive.
func openArchive(archive, passphrase []byte) ([]byte, error) {
	h, err := decodeArchiveHeader(archive)
	if err != nil {
		return nil, err
	}

	key := h.kdf.deriveKey(passphrase, h.salt[:])
	defer zeroBytes(key)

	cipher, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	header := archive[:archiveHeaderSize]
	plaintext, err := cipher.Open(
		nil, h.nonce[:], archive[archiveHeaderSize:], header,
	)
	if err != nil {
		return nil, errAuthFailed
	}

	return plaintext, nil
}

// sealPayload encrypts plaintext under dataKey with a random nonce that is
// prepended to the ciphertext and used as associated data.
func sealPayload(dataKey, plaintext []byte, rand io.Reader) ([]byte, error) {
	cipher, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, err
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand, nonce[:]); err != nil {
		return nil, err
	}

	return cipher.Seal(nonce[:], nonce[:], plaintext, nonce[:]), nil
}

// openPayload reverses sealPayload.
func openPayload(dataKey, sealed []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("payload size too small, must be at "+
			"least %v bytes", chacha20poly1305.NonceSizeX+
			chacha20poly1305.Overhead)
	}

	cipher, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, err
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ciphertext := sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := cipher.Open(nil, nonce, ciphertext, nonce)
	if err != nil {
		return nil, errAuthFailed
	}

	return plaintext, nil
}
