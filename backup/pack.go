package backup

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"time"

	"github.com/custodyhq/recoverd/keychain"
)

type packOptions struct {
	rand    io.Reader
	created time.Time
	kdf     KDFParams
}

// PackOption modifies how Pack builds an archive.
type PackOption func(*packOptions)

// WithRand sets the entropy source used for salts, nonces, the data key and
// OAEP padding.
func WithRand(r io.Reader) PackOption {
	return func(o *packOptions) {
		o.rand = r
	}
}

// WithCreated sets the creation time recorded in the archive.
func WithCreated(t time.Time) PackOption {
	return func(o *packOptions) {
		o.created = t
	}
}

// WithKDFParams sets the argon2id parameters protecting the archive.
func WithKDFParams(p KDFParams) PackOption {
	return func(o *packOptions) {
		o.kdf = p
	}
}

// Pack builds an encrypted archive carrying secrets. The payload is wrapped
// to pub and the archive is sealed under passphrase; the result is what
// Recover expects as Bundle.Archive.
func Pack(secrets *keychain.MasterSecrets, pub *rsa.PublicKey,
	passphrase []byte, opts ...PackOption) ([]byte, error) {

	o := &packOptions{
		rand:    rand.Reader,
		created: time.Now(),
		kdf:     DefaultKDFParams,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Refuse to pack something that can't be recovered.
	if _, err := secrets.MasterKeys(); err != nil {
		return nil, err
	}

	plaintext, err := encodeKeyMaterial(secrets)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plaintext)

	dataKey := make([]byte, dataKeySize)
	defer zeroBytes(dataKey)
	if _, err := io.ReadFull(o.rand, dataKey); err != nil {
		return nil, err
	}

	wrappedKey, err := rsa.EncryptOAEP(
		sha256.New(), o.rand, pub, dataKey, oaepLabel,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to wrap data key: %w", err)
	}

	sealed, err := sealPayload(dataKey, plaintext, o.rand)
	if err != nil {
		return nil, err
	}

	fingerprint, err := RSAFingerprint(pub)
	if err != nil {
		return nil, err
	}

	container, err := writeArchive(&Metadata{
		Version:        metadataVersion,
		Created:        o.created.UTC().Truncate(time.Second),
		Payload:        keyMaterialName,
		RSAFingerprint: fingerprint,
	}, append(wrappedKey, sealed...))
	if err != nil {
		return nil, err
	}
	defer zeroBytes(container)

	archive, err := sealArchive(container, passphrase, o.kdf, o.rand)
	if err != nil {
		return nil, err
	}

	log.Debugf("Packed archive for rsa key %s", fingerprint)

	return archive, nil
}

// ParseRSAPublicKey decodes a PEM encoded RSA public key. PKIX and PKCS#1
// public keys are accepted; for private key blocks the public half is
// returned.
func ParseRSAPublicKey(pemBytes, passphrase []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, rsaKeyError("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, rsaKeyError("unable to parse key: %v", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, rsaKeyError("not an rsa key: %T", pub)
		}

		return rsaPub, nil

	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, rsaKeyError("unable to parse key: %v", err)
		}

		return pub, nil
	}

	priv, err := ParseRSAPrivateKey(pemBytes, passphrase)
	if err != nil {
		return nil, err
	}
	pub := priv.PublicKey
	zeroRSAKey(priv)

	return &pub, nil
}
