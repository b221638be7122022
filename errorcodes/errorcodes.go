// Package errorcodes defines the error taxonomy shared by the derivation
// engine, the recovery pipeline and the daemon's request surface.
package errorcodes

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies one kind of failure. Codes are compared with errors.Is, so
// a bare Code can be used as a sentinel against any wrapped *Error.
type Code string

const (
	ErrCodeUnknownAsset         Code = "UnknownAsset"
	ErrCodeRegistrationConflict Code = "RegistrationConflict"
	ErrCodeInvalidPath          Code = "InvalidPath"
	ErrCodeInvalidRange         Code = "InvalidRange"
	ErrCodeUnsupportedOperation Code = "UnsupportedOperation"
	ErrCodeMissingMasterKey     Code = "MissingMasterKey"
	ErrCodeRsaKeyDecryption     Code = "RsaKeyDecryption"
	ErrCodeArchiveDecryption    Code = "ArchiveDecryption"
	ErrCodePayloadDecryption    Code = "PayloadDecryption"
	ErrCodeMalformedKeyMaterial Code = "MalformedKeyMaterial"
	ErrCodeInvalidArgument      Code = "InvalidArgument"
	ErrCodeInternal             Code = "Internal"
)

// Error implements the error interface so a Code can be used directly as a
// sentinel value.
func (c Code) Error() string {
	return string(c)
}

// Class groups codes by how a caller should react to them.
type Class uint8

const (
	// ClassValidation marks bad input that has to be corrected before
	// retrying.
	ClassValidation Class = iota

	// ClassAuthentication marks a cryptographic check that failed. The
	// caller may retry with a different passphrase or key.
	ClassAuthentication

	// ClassState marks a request that is valid but cannot be served in
	// the current process state, e.g. before any recovery ran.
	ClassState

	// ClassInternal marks programming or environment errors.
	ClassInternal
)

// String returns a human readable name for the class.
func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthentication:
		return "authentication"
	case ClassState:
		return "state"
	default:
		return "internal"
	}
}

// Class returns the class the code belongs to.
func (c Code) Class() Class {
	switch c {
	case ErrCodeUnknownAsset, ErrCodeInvalidPath, ErrCodeInvalidRange,
		ErrCodeUnsupportedOperation, ErrCodeInvalidArgument,
		ErrCodeMalformedKeyMaterial:

		return ClassValidation

	case ErrCodeRsaKeyDecryption, ErrCodeArchiveDecryption,
		ErrCodePayloadDecryption:

		return ClassAuthentication

	case ErrCodeMissingMasterKey:
		return ClassState

	default:
		return ClassInternal
	}
}

// Error is a failure carrying its taxonomy code and enough context to point
// at the stage, asset and path involved. It never holds secret material.
type Error struct {
	// Code is the taxonomy kind of the failure.
	Code Code

	// Stage names the processing step that failed, e.g. "rsa-key" or
	// "derive".
	Stage string

	// Asset is the asset identifier of the request, if any.
	Asset string

	// Path is the canonical derivation path of the request, if any.
	Path string

	// Err is the underlying cause, if any.
	Err error
}

// New creates an error with the given code, stage and formatted message.
func New(code Code, stage string, format string, args ...any) *Error {
	return &Error{
		Code:  code,
		Stage: stage,
		Err:   fmt.Errorf(format, args...),
	}
}

// Wrap creates an error with the given code and stage around cause.
func Wrap(code Code, stage string, cause error) *Error {
	return &Error{
		Code:  code,
		Stage: stage,
		Err:   cause,
	}
}

// WithAsset returns a copy of e annotated with the asset identifier.
func (e *Error) WithAsset(asset string) *Error {
	c := *e
	c.Asset = asset

	return &c
}

// WithPath returns a copy of e annotated with a canonical path string.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path

	return &c
}

// Error returns the error string.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))

	if e.Stage != "" {
		fmt.Fprintf(&b, " [%s]", e.Stage)
	}
	if e.Asset != "" {
		fmt.Fprintf(&b, " asset=%s", e.Asset)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's code, which lets callers write
// errors.Is(err, errorcodes.ErrCodeInvalidPath).
func (e *Error) Is(target error) bool {
	code, ok := target.(Code)

	return ok && code == e.Code
}

// CodeOf extracts the taxonomy code from err, falling back to
// ErrCodeInternal for errors that carry none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	var code Code
	if errors.As(err, &code) {
		return code
	}

	return ErrCodeInternal
}

// Annotate adds asset and path context to err when it is an *Error that does
// not carry them yet. Other errors are returned unchanged.
func Annotate(err error, asset, path string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}

	c := *e
	if c.Asset == "" {
		c.Asset = asset
	}
	if c.Path == "" {
		c.Path = path
	}

	return &c
}
