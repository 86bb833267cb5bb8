// Package domain defines the core data model for the DPAPI-NG seed tree and
// envelope hierarchy: RootKey → L1 seed → L2 seed → KEK → CEK → content.
package domain

import (
	"fmt"

	"github.com/allisson/dpapi-ng/internal/errors"
)

// Protocol-level error kinds. Every error the core returns wraps exactly one
// of these sentinels so callers can branch with errors.Is regardless of the
// wrapped detail message.
var (
	// ErrInvalidFormat indicates an ASN.1/structural parse violation, a magic
	// mismatch, or an unexpected CMS version.
	ErrInvalidFormat = errors.Wrap(errors.ErrInvalidInput, "invalid format")

	// ErrUnsupported indicates an OID or protection-descriptor type the core
	// does not implement.
	ErrUnsupported = errors.Wrap(errors.ErrInvalidInput, "unsupported")

	// ErrDecryptionFailed indicates an AES-GCM tag mismatch or AES key-wrap
	// integrity failure.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrKeyUnavailable indicates a cache miss with no server or no
	// credentials configured to resolve it.
	ErrKeyUnavailable = errors.Wrap(errors.ErrNotFound, "key unavailable")

	// ErrTransport indicates a DNS or RPC failure surfaced from an external
	// collaborator.
	ErrTransport = errors.New("transport error")

	// ErrAuth indicates a Negotiate/Kerberos/NTLM failure.
	ErrAuth = errors.Wrap(errors.ErrUnauthorized, "authentication failed")
)

// ParseError reports a structural decode failure with enough context to
// locate the offending field without a hex dump.
type ParseError struct {
	Field  string
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidFormat
}

// NewParseError wraps a low-level decode failure with the field name and
// byte offset it was found at.
func NewParseError(field string, offset int, err error) error {
	return &ParseError{Field: field, Offset: offset, Err: err}
}
