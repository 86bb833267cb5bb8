// Package transport declares the external collaborators Unprotect falls
// back to on a cache miss: the GKDI GetKey RPC and the domain-controller
// locator that resolves a DNS SRV record to a reachable server name. Neither
// is implemented here — DCE/RPC transport, NDR64 encoding, and
// Kerberos/NTLM/SPNEGO authentication live outside this module's scope, and
// callers supply their own implementation via dpaping.WithServer /
// dpaping.WithGetKeyClient.
package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// GetKeyClient resolves a GroupKeyEnvelope from a GKDI server for the given
// target security descriptor, optionally pinned to a specific root key and
// L0/L1/L2 index. A nil rootKeyID and l0 == -1 request the server's current
// envelope; a non-nil rootKeyID with explicit indices request a specific
// historical envelope for Unprotect.
type GetKeyClient interface {
	GetKey(ctx context.Context, targetSD []byte, rootKeyID *uuid.UUID, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, error)
}

// DCLocator resolves a reachable GKDI server name for a domain, typically by
// querying the domain's _ldap._tcp.dc._msdcs SRV records. An empty domain
// asks the locator to resolve the caller's own domain.
type DCLocator interface {
	LocateDC(ctx context.Context, domain string) (string, error)
}
