package rootkey

import (
	"github.com/allisson/dpapi-ng/internal/errors"
)

// Environment-loading errors.
var (
	// ErrRootKeysNotSet indicates the ROOT_KEYS environment variable is not configured.
	ErrRootKeysNotSet = errors.Wrap(errors.ErrInvalidInput, "ROOT_KEYS not set")

	// ErrInvalidRootKeysFormat indicates ROOT_KEYS did not parse as a JSON array of root key records.
	ErrInvalidRootKeysFormat = errors.Wrap(errors.ErrInvalidInput, "invalid ROOT_KEYS format")

	// ErrInvalidRootKeyBase64 indicates a root key's data or parameters field is not valid base64.
	ErrInvalidRootKeyBase64 = errors.Wrap(errors.ErrInvalidInput, "invalid root key base64")

	// ErrInvalidRootKeyID indicates a root key record's id field is not a valid UUID.
	ErrInvalidRootKeyID = errors.Wrap(errors.ErrInvalidInput, "invalid root key id")

	// ErrRootKeyNotFound indicates a root key with the specified ID was not found.
	ErrRootKeyNotFound = errors.Wrap(errors.ErrNotFound, "root key not found")
)
