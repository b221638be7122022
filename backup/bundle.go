// Package backup recovers master keys from encrypted backup bundles and
// builds such bundles.
//
// A bundle is made of an archive encrypted under a passphrase and an RSA
// private key. The archive is a zip file holding metadata and a key material
// blob; the blob's data key is wrapped to the RSA key, so both secrets are
// needed to recover.
package backup

// Bundle is the input of a recovery. All fields are raw bytes; callers
// decode any transport encoding first. The pipeline wipes every field once
// it is done, whatever the outcome.
type Bundle struct {
	// Archive is the encrypted archive.
	Archive []byte

	// Passphrase unlocks the archive.
	Passphrase []byte

	// RSAKey is the PEM encoded RSA private key.
	RSAKey []byte

	// RSAKeyPassphrase unlocks RSAKey if it is encrypted.
	RSAKeyPassphrase []byte
}

// Zero wipes all buffers of the bundle.
func (b *Bundle) Zero() {
	zeroBytes(b.Archive)
	zeroBytes(b.Passphrase)
	zeroBytes(b.RSAKey)
	zeroBytes(b.RSAKeyPassphrase)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
