package dpaping

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jcmturner/gokrb5/v8/credentials"
	gocache "github.com/patrickmn/go-cache"

	"github.com/allisson/dpapi-ng/internal/audit"
	"github.com/allisson/dpapi-ng/internal/dpapi/cache"
	"github.com/allisson/dpapi-ng/internal/dpapi/transport"
	"github.com/allisson/dpapi-ng/internal/metrics"
	"github.com/allisson/dpapi-ng/internal/rootkey"
)

// Options carries the collaborators and tunables Protect and Unprotect run
// against. The zero value (no options) is usable for purely local
// operation against root keys loaded with WithRootKeys or WithRootKey: no
// server round-trip is ever attempted unless a GetKeyClient is configured.
type Options struct {
	cache        *cache.Cache
	rootKeys     *rootkey.Chain
	rootKeyID    *uuid.UUID
	domain       string
	getKeyClient transport.GetKeyClient
	dcLocator    transport.DCLocator
	metrics      metrics.DPAPIMetrics
	logger       *slog.Logger
	auditSink    *audit.Sink
	credentials  *credentials.Credentials
	dcCache      *gocache.Cache
}

// dcCacheTTL bounds how long a resolved domain-controller name is reused
// before the next GetKey call re-resolves it, so a DC falling out of
// rotation is rediscovered within one TTL window rather than wedging every
// future call onto a dead server.
const dcCacheTTL = 5 * time.Minute

// Option configures an Options value.
type Option func(*Options)

// WithCache overrides the default empty cache.Cache with one the caller
// already manages, for sharing a warm cache across multiple Client uses.
func WithCache(c *cache.Cache) Option {
	return func(o *Options) { o.cache = c }
}

// WithRootKeys registers a chain of locally-held root keys, the offline
// path used when no GKDI server is reachable.
func WithRootKeys(chain *rootkey.Chain) Option {
	return func(o *Options) { o.rootKeys = chain }
}

// WithRootKeyID pins Protect to a specific root key rather than asking the
// configured GetKeyClient for the server's current one.
func WithRootKeyID(id uuid.UUID) Option {
	return func(o *Options) { o.rootKeyID = &id }
}

// WithDomain sets the Active Directory domain name DCLocator.LocateDC
// resolves against. An empty domain (the default) asks the locator for the
// caller's own domain.
func WithDomain(d string) Option {
	return func(o *Options) { o.domain = d }
}

// WithGetKeyClient configures the GKDI GetKey RPC collaborator consulted on
// a cache miss. Without one, a miss with no matching local root key returns
// domain.ErrKeyUnavailable.
func WithGetKeyClient(c transport.GetKeyClient) Option {
	return func(o *Options) { o.getKeyClient = c }
}

// WithDCLocator configures the domain-controller locator used to resolve a
// server name before the first GetKey call when the caller hasn't supplied
// one out of band.
func WithDCLocator(l transport.DCLocator) Option {
	return func(o *Options) { o.dcLocator = l }
}

// WithMetrics wires a DPAPIMetrics sink. Without one, Protect/Unprotect
// record nothing.
func WithMetrics(m metrics.DPAPIMetrics) Option {
	return func(o *Options) { o.metrics = m }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.logger = l }
}

// WithAuditSink wires a tamper-evident audit trail: every Protect/Unprotect
// outcome is HMAC-signed with a key derived from the KEK that served the
// request and written through sink.
func WithAuditSink(sink *audit.Sink) Option {
	return func(o *Options) { o.auditSink = sink }
}

// WithCredentials attaches Kerberos credentials a GetKeyClient/DCLocator
// implementation can use to authenticate its RPC — this package never
// inspects or uses them itself; DCE/RPC transport and Negotiate/Kerberos
// authentication are the caller's responsibility.
func WithCredentials(creds *credentials.Credentials) Option {
	return func(o *Options) { o.credentials = creds }
}

// Credentials returns the Kerberos credentials configured via
// WithCredentials, for a GetKeyClient/DCLocator implementation constructed
// alongside this Options to retrieve.
func (o *Options) Credentials() *credentials.Credentials {
	return o.credentials
}

func newOptions(opts ...Option) *Options {
	o := &Options{
		cache:   cache.New(),
		metrics: metrics.NewNoOpDPAPIMetrics(),
		logger:  slog.Default(),
		dcCache: gocache.New(dcCacheTTL, 2*dcCacheTTL),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rootKeys != nil {
		for _, rk := range o.rootKeys.All() {
			o.cache.LoadKey(rk)
		}
	}
	return o
}
