package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodyhq/recoverd/keychain"
)

const (
	// DefaultPubKeyFileName is the default name of the public key file.
	DefaultPubKeyFileName = "master_pub.json"

	// tempPubKeyFileName is the name of the file written before the
	// swap.
	tempPubKeyFileName = "temp-dont-use.json"
)

// pubKeyFileContent is the on-disk format of the public key file.
type pubKeyFileContent struct {
	XPUB string `json:"xpub,omitempty"`
	FPUB string `json:"fpub,omitempty"`
}

// PubKeyFile keeps the public master keys on disk so that public
// derivation survives restarts. Private keys are never written.
type PubKeyFile struct {
	fileName     string
	tempFileName string
}

// NewPubKeyFile creates a key file handle for fileName.
func NewPubKeyFile(fileName string) *PubKeyFile {
	return &PubKeyFile{
		fileName: fileName,
		tempFileName: filepath.Join(
			filepath.Dir(fileName), tempPubKeyFileName,
		),
	}
}

// Write replaces the file with the public halves of keys. The new content
// is written to a temporary file first and then renamed over the old one,
// so a crash never leaves a partial file behind.
func (f *PubKeyFile) Write(keys *keychain.MasterKeys) error {
	content, err := json.MarshalIndent(pubKeyFileContent{
		XPUB: keys.XPUB,
		FPUB: keys.FPUB,
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.fileName), 0700); err != nil {
		return fmt.Errorf("unable to create key file dir: %w", err)
	}

	if _, err := os.Stat(f.tempFileName); err == nil {
		log.Infof("Found old temp key file @ %v, removing before swap",
			f.tempFileName)

		if err := os.Remove(f.tempFileName); err != nil {
			return fmt.Errorf("unable to remove temp key file: %w",
				err)
		}
	}

	tempFile, err := os.OpenFile(
		f.tempFileName, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600,
	)
	if err != nil {
		return fmt.Errorf("unable to create temp file: %w", err)
	}
	defer os.Remove(f.tempFileName)

	if _, err := tempFile.Write(content); err != nil {
		tempFile.Close()
		return fmt.Errorf("unable to write temp key file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("unable to sync temp key file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("unable to close temp key file: %w", err)
	}

	log.Debugf("Swapping public key file %v into %v", f.tempFileName,
		f.fileName)

	return os.Rename(f.tempFileName, f.fileName)
}

// Read returns the stored public keys, or nil if the file does not exist.
func (f *PubKeyFile) Read() (*keychain.MasterKeys, error) {
	raw, err := os.ReadFile(f.fileName)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil

	case err != nil:
		return nil, err
	}

	var content pubKeyFileContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("unable to parse key file %v: %w",
			f.fileName, err)
	}

	return &keychain.MasterKeys{
		XPUB: content.XPUB,
		FPUB: content.FPUB,
	}, nil
}
