package content

import (
	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/errors"
)

// ErrIntegrityCheckFailed wraps domain.ErrDecryptionFailed: the RFC 3394
// default IV recovered from an unwrap did not match, meaning the wrong KEK
// was used or the wrapped key was corrupted.
var ErrIntegrityCheckFailed = errors.Wrap(domain.ErrDecryptionFailed, "AES key-unwrap integrity check failed")
