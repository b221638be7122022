package backup

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/youmark/pkcs8"
)

const (
	pemTypePKCS1          = "RSA PRIVATE KEY"
	pemTypePKCS8          = "PRIVATE KEY"
	pemTypeEncryptedPKCS8 = "ENCRYPTED PRIVATE KEY"

	stageRSAKey = "rsa-key"
)

func rsaKeyError(format string, args ...any) error {
	return errorcodes.New(
		errorcodes.ErrCodeRsaKeyDecryption, stageRSAKey, format,
		args...,
	)
}

// ParseRSAPrivateKey decodes a PEM encoded RSA private key, decrypting it
// with passphrase when the key is encrypted. PKCS#1, PKCS#8 and encrypted
// PKCS#8 keys are accepted, as are legacy encrypted PKCS#1 PEM blocks.
func ParseRSAPrivateKey(pemBytes, passphrase []byte) (*rsa.PrivateKey,
	error) {

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, rsaKeyError("no PEM block found")
	}
	defer zeroBytes(block.Bytes)

	var (
		key *rsa.PrivateKey
		err error
	)
	switch block.Type {
	case pemTypeEncryptedPKCS8:
		if len(passphrase) == 0 {
			return nil, rsaKeyError("key is encrypted, passphrase " +
				"required")
		}
		key, err = pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, passphrase)

	case pemTypePKCS8:
		key, err = pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes)

	case pemTypePKCS1:
		der := block.Bytes

		//nolint:staticcheck
		if x509.IsEncryptedPEMBlock(block) {
			if len(passphrase) == 0 {
				return nil, rsaKeyError("key is encrypted, " +
					"passphrase required")
			}

			//nolint:staticcheck
			der, err = x509.DecryptPEMBlock(block, passphrase)
			if err != nil {
				return nil, rsaKeyError("unable to decrypt "+
					"key: %v", err)
			}
			defer zeroBytes(der)
		}
		key, err = x509.ParsePKCS1PrivateKey(der)

	default:
		return nil, rsaKeyError("unsupported PEM block %q", block.Type)
	}
	if err != nil {
		return nil, rsaKeyError("unable to parse key: %v", err)
	}

	if err := key.Validate(); err != nil {
		return nil, rsaKeyError("invalid key: %v", err)
	}

	return key, nil
}

// RSAFingerprint returns the hex encoded SHA-256 of the PKIX encoding of
// pub. Archives record it so a mismatched key is reported as such.
func RSAFingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("unable to encode public key: %w", err)
	}
	sum := sha256.Sum256(der)

	return hex.EncodeToString(sum[:]), nil
}

// zeroRSAKey wipes the private parts of key.
func zeroRSAKey(key *rsa.PrivateKey) {
	if key == nil {
		return
	}

	key.D.SetInt64(0)
	for _, p := range key.Primes {
		p.SetInt64(0)
	}
	if key.Precomputed.Dp != nil {
		key.Precomputed.Dp.SetInt64(0)
	}
	if key.Precomputed.Dq != nil {
		key.Precomputed.Dq.SetInt64(0)
	}
	if key.Precomputed.Qinv != nil {
		key.Precomputed.Qinv.SetInt64(0)
	}
}
