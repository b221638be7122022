package backup

import (
	"bytes"
	"fmt"

	"github.com/custodyhq/recoverd/errorcodes"
	"github.com/custodyhq/recoverd/keychain"
	"github.com/lightningnetwork/lnd/tlv"
)

const (
	typeECDSAKey       tlv.Type = 0
	typeECDSAChainCode tlv.Type = 2
	typeEdDSAKey       tlv.Type = 4
	typeEdDSAChainCode tlv.Type = 6

	stagePayload = "payload"
)

func secretsStream(s *keychain.MasterSecrets) (*tlv.Stream, error) {
	return tlv.NewStream(
		tlv.MakePrimitiveRecord(typeECDSAKey, &s.ECDSAKey),
		tlv.MakePrimitiveRecord(typeECDSAChainCode, &s.ECDSAChainCode),
		tlv.MakePrimitiveRecord(typeEdDSAKey, &s.EdDSAKey),
		tlv.MakePrimitiveRecord(typeEdDSAChainCode, &s.EdDSAChainCode),
	)
}

// encodeKeyMaterial serializes the master secrets as a TLV stream.
func encodeKeyMaterial(s *keychain.MasterSecrets) ([]byte, error) {
	stream, err := secretsStream(s)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// decodeKeyMaterial parses a TLV stream of master secrets. All four records
// are required.
func decodeKeyMaterial(b []byte) (*keychain.MasterSecrets, error) {
	var s keychain.MasterSecrets
	stream, err := secretsStream(&s)
	if err != nil {
		return nil, errorcodes.Wrap(
			errorcodes.ErrCodeInternal, stagePayload, err,
		)
	}

	typeMap, err := stream.DecodeWithParsedTypes(bytes.NewReader(b))
	if err != nil {
		s.Zero()
		return nil, errorcodes.New(
			errorcodes.ErrCodeMalformedKeyMaterial, stagePayload,
			"unable to decode key material: %v", err,
		)
	}

	required := []struct {
		typ  tlv.Type
		name string
	}{
		{typeECDSAKey, "ecdsa key"},
		{typeECDSAChainCode, "ecdsa chain code"},
		{typeEdDSAKey, "eddsa key"},
		{typeEdDSAChainCode, "eddsa chain code"},
	}
	for _, r := range required {
		if _, ok := typeMap[r.typ]; !ok {
			s.Zero()
			return nil, errorcodes.Wrap(
				errorcodes.ErrCodeMalformedKeyMaterial,
				stagePayload,
				fmt.Errorf("missing %s record", r.name),
			)
		}
	}

	return &s, nil
}
