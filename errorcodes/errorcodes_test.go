package errorcodes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestErrorIsCode makes sure wrapped errors still match their code sentinel
// and nothing else.
func TestErrorIsCode(t *testing.T) {
	t.Parallel()

	err := New(ErrCodeInvalidPath, "path", "index %d too large", 7)
	wrapped := fmt.Errorf("deriving: %w", err)

	require.ErrorIs(t, wrapped, ErrCodeInvalidPath)
	require.False(t, errors.Is(wrapped, ErrCodeInvalidRange))
	require.Equal(t, ErrCodeInvalidPath, CodeOf(wrapped))
}

func TestCodeOfFallback(t *testing.T) {
	t.Parallel()

	require.Equal(t, ErrCodeInternal, CodeOf(errors.New("boom")))
	require.Equal(t, ErrCodeUnknownAsset, CodeOf(ErrCodeUnknownAsset))
}

// TestErrorContext checks the message carries stage, asset and path context.
func TestErrorContext(t *testing.T) {
	t.Parallel()

	err := Annotate(
		Wrap(ErrCodeMissingMasterKey, "derive", errors.New("no xprv")),
		"ETH", "44,60,0,0,0",
	)
	require.EqualError(
		t, err, "MissingMasterKey [derive] asset=ETH "+
			"path=44,60,0,0,0: no xprv",
	)

	// Existing context is not overwritten.
	again := Annotate(err, "BTC", "44,0,0,0,0")
	require.Equal(t, err.Error(), again.Error())

	// Plain errors pass through untouched.
	plain := errors.New("plain")
	require.Equal(t, plain, Annotate(plain, "ETH", ""))
}

func TestCodeClass(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code  Code
		class Class
	}{
		{ErrCodeUnknownAsset, ClassValidation},
		{ErrCodeRegistrationConflict, ClassInternal},
		{ErrCodeInvalidPath, ClassValidation},
		{ErrCodeInvalidRange, ClassValidation},
		{ErrCodeUnsupportedOperation, ClassValidation},
		{ErrCodeMissingMasterKey, ClassState},
		{ErrCodeRsaKeyDecryption, ClassAuthentication},
		{ErrCodeArchiveDecryption, ClassAuthentication},
		{ErrCodePayloadDecryption, ClassAuthentication},
		{ErrCodeMalformedKeyMaterial, ClassValidation},
		{ErrCodeInternal, ClassInternal},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.class, tc.code.Class(), string(tc.code))
	}

	require.Equal(t, "authentication", ClassAuthentication.String())
}
