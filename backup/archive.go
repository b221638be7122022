package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

const (
	// metadataName is the archive entry holding Metadata.
	metadataName = "metadata.json"

	// keyMaterialName is the archive entry holding the wrapped payload.
	keyMaterialName = "key_material.bin"

	// metadataVersion is the metadata layout written by Pack.
	metadataVersion = 1

	maxMetadataSize    = 64 * 1024
	maxKeyMaterialSize = 64 * 1024
)

var errMissingEntry = errors.New("archive entry missing")

// Metadata describes the contents of an archive.
type Metadata struct {
	// Version is the metadata layout version.
	Version int `json:"version"`

	// Created is the time the archive was packed.
	Created time.Time `json:"created"`

	// Payload names the entry carrying the wrapped key material.
	Payload string `json:"payload"`

	// RSAFingerprint is the fingerprint of the RSA key the payload is
	// wrapped to, see RSAFingerprint.
	RSAFingerprint string `json:"rsa_fingerprint"`
}

// writeArchive builds the zip container for the metadata and the wrapped
// payload.
func writeArchive(meta *Metadata, payload []byte) ([]byte, error) {
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	zw := zip.NewWriter(&b)

	entries := []struct {
		name string
		data []byte
	}{
		{metadataName, metaBytes},
		{meta.Payload, payload},
	}
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: meta.Created,
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// readArchive parses the zip container and returns its metadata and the
// wrapped payload it points at.
func readArchive(container []byte) (*Metadata, []byte, error) {
	zr, err := zip.NewReader(
		bytes.NewReader(container), int64(len(container)),
	)
	if err != nil {
		return nil, nil, err
	}

	metaBytes, err := readEntry(zr, metadataName, maxMetadataSize)
	if err != nil {
		return nil, nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, fmt.Errorf("invalid metadata: %w", err)
	}
	if meta.Version != metadataVersion {
		return nil, nil, fmt.Errorf("unsupported metadata version %d",
			meta.Version)
	}
	if meta.Payload == "" {
		meta.Payload = keyMaterialName
	}

	payload, err := readEntry(zr, meta.Payload, maxKeyMaterialSize)
	if err != nil {
		return nil, nil, err
	}

	return &meta, payload, nil
}

func readEntry(zr *zip.Reader, name string, limit int64) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		b, err := io.ReadAll(io.LimitReader(rc, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(b)) > limit {
			return nil, fmt.Errorf("entry %s exceeds %d bytes", name,
				limit)
		}

		return b, nil
	}

	return nil, fmt.Errorf("%w: %s", errMissingEntry, name)
}
