package backup

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
)

const (
	stageArchive     = "archive"
	stageKeyMaterial = "key-material"
)

// oaepLabel binds the wrapped data key to its use.
var oaepLabel = []byte("key_material")

// Recover opens bundle and reconstructs both master extended key pairs from
// the key material it carries. The bundle is wiped before Recover returns.
//
// Recover is deterministic: the same bundle always yields the same keys. It
// never returns partial key material; on any failure, including ctx being
// cancelled between stages, all intermediate secrets are wiped and only the
// error is returned.
func Recover(ctx context.Context, bundle *Bundle) (*keychain.MasterKeys,
	error) {

	defer bundle.Zero()

	rsaKey, err := ParseRSAPrivateKey(bundle.RSAKey, bundle.RSAKeyPassphrase)
	if err != nil {
		return nil, err
	}
	defer zeroRSAKey(rsaKey)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	container, err := openArchive(bundle.Archive, bundle.Passphrase)
	if err != nil {
		return nil, errorcodes.New(
			errorcodes.ErrCodeArchiveDecryption, stageArchive,
			"unable to open archive: %v", err,
		)
	}
	defer zeroBytes(container)

	meta, sealed, err := readArchive(container)
	if err != nil {
		return nil, errorcodes.New(
			errorcodes.ErrCodeArchiveDecryption, stageArchive,
			"corrupted archive: %v", err,
		)
	}
	defer zeroBytes(sealed)

	log.Debugf("Opened archive created %v, payload %s",
		meta.Created.UTC(), meta.Payload)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plaintext, err := unwrapPayload(rsaKey, meta, sealed)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plaintext)

	secrets, err := decodeKeyMaterial(plaintext)
	if err != nil {
		return nil, err
	}
	defer secrets.Zero()

	keys, err := secrets.MasterKeys()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return keys, nil
}

// unwrapPayload unwraps the data key with rsaKey and opens the payload with
// it.
func unwrapPayload(rsaKey *rsa.PrivateKey, meta *Metadata,
	sealed []byte) ([]byte, error) {

	payloadErr := func(format string, args ...any) error {
		return errorcodes.New(
			errorcodes.ErrCodePayloadDecryption, stagePayload,
			format, args...,
		)
	}

	if meta.RSAFingerprint != "" {
		fingerprint, err := RSAFingerprint(&rsaKey.PublicKey)
		if err != nil {
			return nil, payloadErr("%v", err)
		}
		if fingerprint != meta.RSAFingerprint {
			return nil, payloadErr("payload is wrapped to rsa key "+
				"%s, got %s", meta.RSAFingerprint, fingerprint)
		}
	}

	wrappedSize := rsaKey.Size()
	if len(sealed) < wrappedSize {
		return nil, payloadErr("payload size too small, must be at "+
			"least %v bytes", wrappedSize)
	}

	dataKey, err := rsa.DecryptOAEP(
		sha256.New(), nil, rsaKey, sealed[:wrappedSize], oaepLabel,
	)
	if err != nil {
		return nil, payloadErr("unable to unwrap data key: %v", err)
	}
	defer zeroBytes(dataKey)

	if len(dataKey) != dataKeySize {
		return nil, payloadErr("data key must be %d bytes, got %d",
			dataKeySize, len(dataKey))
	}

	plaintext, err := openPayload(dataKey, sealed[wrappedSize:])
	if err != nil {
		return nil, payloadErr("integrity check failed: %v", err)
	}

	return plaintext, nil
}
