package backup

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
	"pgregory.net/rapid"
)

var (
	testMasterKeys = keychain.MasterKeys{
		XPRV: "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3j" +
			"PPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi",
		XPUB: "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybG" +
			"hePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8",
		FPRV: "fprv4LsXPWzhTTp9bjovD7UXiqaDnv7JVY7E3Sws8n1GGS86idDiyb" +
			"n2c1TFUQB1Sq3PxSwE9nMQ4YrrCKuL3xrz4d4ixhQ3yxjkPEDLNNp8aCC",
		FPUB: "fpub8sZZXw2wbqVpVCqi6m988FELMwdEesJ8ckYeRJ3ZghvVZ7UVbz" +
			"bcnW57eTQAYNsY6sw5xFVwpoqpkDYGevZDkGe5mztobDbktzWEZt6xJdv",
	}

	testPassphrase = []byte("correct horse battery staple")
	testKeyPass    = []byte("rsa key passphrase")

	// testKDF keeps argon2id cheap in tests.
	testKDF = KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}

	rsaKeys     [2]*rsa.PrivateKey
	rsaKeysOnce sync.Once
)

func testRSAKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()

	rsaKeysOnce.Do(func() {
		for i := range rsaKeys {
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			rsaKeys[i] = key
		}
	})

	return rsaKeys[0], rsaKeys[1]
}

func testSecrets(t *testing.T) *keychain.MasterSecrets {
	t.Helper()

	s, err := keychain.SecretsFromMasterKeys(&testMasterKeys)
	require.NoError(t, err)

	return s
}

func pkcs1PEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypePKCS1,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func pkcs8PEM(t *testing.T, key *rsa.PrivateKey, pass []byte) []byte {
	t.Helper()

	der, err := pkcs8.MarshalPrivateKey(key, pass, nil)
	require.NoError(t, err)

	typ := pemTypePKCS8
	if len(pass) > 0 {
		typ = pemTypeEncryptedPKCS8
	}

	return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
}

func legacyEncryptedPEM(t *testing.T, key *rsa.PrivateKey,
	pass []byte) []byte {

	t.Helper()

	//nolint:staticcheck
	block, err := x509.EncryptPEMBlock(
		rand.Reader, pemTypePKCS1, x509.MarshalPKCS1PrivateKey(key),
		pass, x509.PEMCipherAES256,
	)
	require.NoError(t, err)

	return pem.EncodeToMemory(block)
}

func testArchive(t *testing.T, pub *rsa.PublicKey) []byte {
	t.Helper()

	archive, err := Pack(
		testSecrets(t), pub, testPassphrase, WithKDFParams(testKDF),
	)
	require.NoError(t, err)

	return archive
}

// packRaw builds an archive around an arbitrary payload plaintext, letting
// tests tamper with the wrapped payload before it is sealed.
func packRaw(t *testing.T, pub *rsa.PublicKey, plaintext []byte,
	fingerprint string, tamper func([]byte)) []byte {

	t.Helper()

	dataKey := make([]byte, dataKeySize)
	_, err := rand.Read(dataKey)
	require.NoError(t, err)

	wrapped, err := rsa.EncryptOAEP(
		sha256.New(), rand.Reader, pub, dataKey, oaepLabel,
	)
	require.NoError(t, err)

	sealed, err := sealPayload(dataKey, plaintext, rand.Reader)
	require.NoError(t, err)

	payload := append(wrapped, sealed...)
	if tamper != nil {
		tamper(payload)
	}

	container, err := writeArchive(&Metadata{
		Version:        metadataVersion,
		Created:        time.Unix(1700000000, 0).UTC(),
		Payload:        keyMaterialName,
		RSAFingerprint: fingerprint,
	}, payload)
	require.NoError(t, err)

	archive, err := sealArchive(
		container, testPassphrase, testKDF, rand.Reader,
	)
	require.NoError(t, err)

	return archive
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// TestRecover asserts that an archive packed for each supported RSA key
// encoding recovers the exact master keys it was built from, and that the
// bundle is wiped afterwards.
func TestRecover(t *testing.T) {
	t.Parallel()

	key, _ := testRSAKeys(t)
	archive := testArchive(t, &key.PublicKey)

	testCases := []struct {
		name    string
		rsaKey  []byte
		keyPass []byte
	}{{
		name:   "pkcs1",
		rsaKey: pkcs1PEM(key),
	}, {
		name:   "pkcs8",
		rsaKey: pkcs8PEM(t, key, nil),
	}, {
		name:    "encrypted pkcs8",
		rsaKey:  pkcs8PEM(t, key, testKeyPass),
		keyPass: testKeyPass,
	}, {
		name:    "legacy encrypted pkcs1",
		rsaKey:  legacyEncryptedPEM(t, key, testKeyPass),
		keyPass: testKeyPass,
	}, {
		name:    "passphrase ignored for plain key",
		rsaKey:  pkcs1PEM(key),
		keyPass: []byte("unused"),
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bundle := &Bundle{
				Archive:          clone(archive),
				Passphrase:       clone(testPassphrase),
				RSAKey:           clone(tc.rsaKey),
				RSAKeyPassphrase: clone(tc.keyPass),
			}

			keys, err := Recover(context.Background(), bundle)
			require.NoError(t, err)
			require.Equal(t, testMasterKeys, *keys)

			require.Equal(
				t, make([]byte, len(testPassphrase)),
				bundle.Passphrase,
			)
			require.Equal(
				t, make([]byte, len(tc.rsaKey)), bundle.RSAKey,
			)
		})
	}
}

// TestRecoverDeterministic asserts that recovering the same bundle twice
// yields identical keys.
func TestRecoverDeterministic(t *testing.T) {
	t.Parallel()

	key, _ := testRSAKeys(t)
	archive := testArchive(t, &key.PublicKey)
	rsaKey := pkcs8PEM(t, key, testKeyPass)

	recoverOnce := func() *keychain.MasterKeys {
		keys, err := Recover(context.Background(), &Bundle{
			Archive:          clone(archive),
			Passphrase:       clone(testPassphrase),
			RSAKey:           clone(rsaKey),
			RSAKeyPassphrase: clone(testKeyPass),
		})
		require.NoError(t, err)

		return keys
	}

	require.Equal(t, recoverOnce(), recoverOnce())
}

// TestRecoverWrongPassphrase asserts that any passphrase other than the one
// the archive was sealed with fails with ErrCodeArchiveDecryption.
func TestRecoverWrongPassphrase(t *testing.T) {
	t.Parallel()

	key, _ := testRSAKeys(t)
	archive := testArchive(t, &key.PublicKey)
	rsaKey := pkcs1PEM(key)

	rapid.Check(t, func(t *rapid.T) {
		pass := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "pass")
		if bytes.Equal(pass, testPassphrase) {
			return
		}

		keys, err := Recover(context.Background(), &Bundle{
			Archive:    clone(archive),
			Passphrase: pass,
			RSAKey:     clone(rsaKey),
		})
		require.Nil(t, keys)
		require.ErrorIs(t, err, errorcodes.ErrCodeArchiveDecryption)
	})
}

// TestRecoverFailures asserts the error kind reported for each stage of the
// pipeline.
func TestRecoverFailures(t *testing.T) {
	t.Parallel()

	key, otherKey := testRSAKeys(t)
	archive := testArchive(t, &key.PublicKey)
	fingerprint, err := RSAFingerprint(&key.PublicKey)
	require.NoError(t, err)

	plaintext, err := encodeKeyMaterial(testSecrets(t))
	require.NoError(t, err)

	// The first two records are the ECDSA key and chain code, 34 bytes
	// each.
	ecdsaOnly := plaintext[:68]

	hostileHeader := clone(archive)
	hostileHeader[5] = 0xff

	flipped := clone(archive)
	flipped[len(flipped)-1] ^= 0x01

	var badScalar keychain.MasterSecrets
	badScalar.ECDSAChainCode[0] = 1
	badScalar.EdDSAKey[31] = 1
	badScalarPlaintext, err := encodeKeyMaterial(&badScalar)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		archive []byte
		pass    []byte
		rsaKey  []byte
		keyPass []byte
		code    errorcodes.Code
	}{{
		name:    "wrong rsa passphrase",
		archive: archive,
		pass:    testPassphrase,
		rsaKey:  pkcs8PEM(t, key, testKeyPass),
		keyPass: []byte("nope"),
		code:    errorcodes.ErrCodeRsaKeyDecryption,
	}, {
		name:    "wrong legacy rsa passphrase",
		archive: archive,
		pass:    testPassphrase,
		rsaKey:  legacyEncryptedPEM(t, key, testKeyPass),
		keyPass: []byte("nope"),
		code:    errorcodes.ErrCodeRsaKeyDecryption,
	}, {
		name:    "missing rsa passphrase",
		archive: archive,
		pass:    testPassphrase,
		rsaKey:  pkcs8PEM(t, key, testKeyPass),
		code:    errorcodes.ErrCodeRsaKeyDecryption,
	}, {
		name:    "not pem",
		archive: archive,
		pass:    testPassphrase,
		rsaKey:  []byte("not a key"),
		code:    errorcodes.ErrCodeRsaKeyDecryption,
	}, {
		name:    "empty archive",
		archive: nil,
		pass:    testPassphrase,
		rsaKey:  pkcs1PEM(key),
		code:    errorcodes.ErrCodeArchiveDecryption,
	}, {
		name:    "truncated archive",
		archive: archive[:archiveHeaderSize+8],
		pass:    testPassphrase,
		rsaKey:  pkcs1PEM(key),
		code:    errorcodes.ErrCodeArchiveDecryption,
	}, {
		name:    "tampered archive",
		archive: flipped,
		pass:    testPassphrase,
		rsaKey:  pkcs1PEM(key),
		code:    errorcodes.ErrCodeArchiveDecryption,
	}, {
		name:    "hostile kdf params",
		archive: hostileHeader,
		pass:    testPassphrase,
		rsaKey:  pkcs1PEM(key),
		code:    errorcodes.ErrCodeArchiveDecryption,
	}, {
		name:    "different rsa key",
		archive: archive,
		pass:    testPassphrase,
		rsaKey:  pkcs1PEM(otherKey),
		code:    errorcodes.ErrCodePayloadDecryption,
	}, {
		name: "different rsa key without fingerprint",
		archive: packRaw(
			t, &key.PublicKey, plaintext, "", nil,
		),
		pass:   testPassphrase,
		rsaKey: pkcs1PEM(otherKey),
		code:   errorcodes.ErrCodePayloadDecryption,
	}, {
		name: "tampered payload",
		archive: packRaw(
			t, &key.PublicKey, plaintext, fingerprint,
			func(b []byte) { b[len(b)-1] ^= 0x01 },
		),
		pass:   testPassphrase,
		rsaKey: pkcs1PEM(key),
		code:   errorcodes.ErrCodePayloadDecryption,
	}, {
		name: "tampered wrapped key",
		archive: packRaw(
			t, &key.PublicKey, plaintext, fingerprint,
			func(b []byte) { b[10] ^= 0x01 },
		),
		pass:   testPassphrase,
		rsaKey: pkcs1PEM(key),
		code:   errorcodes.ErrCodePayloadDecryption,
	}, {
		name: "missing eddsa records",
		archive: packRaw(
			t, &key.PublicKey, ecdsaOnly, fingerprint, nil,
		),
		pass:   testPassphrase,
		rsaKey: pkcs1PEM(key),
		code:   errorcodes.ErrCodeMalformedKeyMaterial,
	}, {
		name: "garbage key material",
		archive: packRaw(
			t, &key.PublicKey, []byte{0x00, 0x05, 0x01}, fingerprint,
			nil,
		),
		pass:   testPassphrase,
		rsaKey: pkcs1PEM(key),
		code:   errorcodes.ErrCodeMalformedKeyMaterial,
	}, {
		name: "zero ecdsa key",
		archive: packRaw(
			t, &key.PublicKey, badScalarPlaintext, fingerprint, nil,
		),
		pass:   testPassphrase,
		rsaKey: pkcs1PEM(key),
		code:   errorcodes.ErrCodeMalformedKeyMaterial,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			keys, err := Recover(context.Background(), &Bundle{
				Archive:          clone(tc.archive),
				Passphrase:       clone(tc.pass),
				RSAKey:           clone(tc.rsaKey),
				RSAKeyPassphrase: clone(tc.keyPass),
			})
			require.Nil(t, keys)
			require.ErrorIs(t, err, tc.code)
		})
	}
}

// TestRecoverCancelled asserts that a cancelled context aborts recovery
// without returning key material.
func TestRecoverCancelled(t *testing.T) {
	t.Parallel()

	key, _ := testRSAKeys(t)
	archive := testArchive(t, &key.PublicKey)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	keys, err := Recover(ctx, &Bundle{
		Archive:    archive,
		Passphrase: clone(testPassphrase),
		RSAKey:     pkcs1PEM(key),
	})
	require.Nil(t, keys)
	require.ErrorIs(t, err, context.Canceled)
}

// TestPackRejectsInvalidSecrets asserts that Pack won't build an archive
// that can't be recovered.
func TestPackRejectsInvalidSecrets(t *testing.T) {
	t.Parallel()

	key, _ := testRSAKeys(t)

	_, err := Pack(
		&keychain.MasterSecrets{}, &key.PublicKey, testPassphrase,
		WithKDFParams(testKDF),
	)
	require.ErrorIs(t, err, errorcodes.ErrCodeMalformedKeyMaterial)

	_, err = Pack(
		testSecrets(t), &key.PublicKey, testPassphrase,
		WithKDFParams(KDFParams{}),
	)
	require.Error(t, err)
}

// TestArchiveMetadata asserts the metadata Pack records.
func TestArchiveMetadata(t *testing.T) {
	t.Parallel()

	key, _ := testRSAKeys(t)
	created := time.Date(2024, 5, 1, 12, 30, 15, 999, time.UTC)

	archive, err := Pack(
		testSecrets(t), &key.PublicKey, testPassphrase,
		WithKDFParams(testKDF), WithCreated(created),
	)
	require.NoError(t, err)

	container, err := openArchive(archive, testPassphrase)
	require.NoError(t, err)

	meta, payload, err := readArchive(container)
	require.NoError(t, err)

	fingerprint, err := RSAFingerprint(&key.PublicKey)
	require.NoError(t, err)

	require.Equal(t, &Metadata{
		Version:        metadataVersion,
		Created:        created.Truncate(time.Second),
		Payload:        keyMaterialName,
		RSAFingerprint: fingerprint,
	}, meta)
	require.Greater(t, len(payload), key.Size())
}

// TestParseRSAPublicKey asserts every accepted public key encoding yields
// the same key.
func TestParseRSAPublicKey(t *testing.T) {
	t.Parallel()

	key, _ := testRSAKeys(t)

	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	encodings := map[string][]byte{
		"pkix": pem.EncodeToMemory(&pem.Block{
			Type: "PUBLIC KEY", Bytes: pkix,
		}),
		"pkcs1": pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PUBLIC KEY",
			Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
		}),
		"private": pkcs8PEM(t, key, testKeyPass),
	}
	for name, enc := range encodings {
		pub, err := ParseRSAPublicKey(enc, testKeyPass)
		require.NoError(t, err, name)
		require.True(t, key.PublicKey.Equal(pub), name)
	}
}
