// Package dpaping implements the client side of Microsoft's DPAPI-NG
// protocol: NCryptProtectSecret and NCryptUnprotectSecret against a
// security-descriptor protection descriptor, backed by the GKDI seed-tree
// key hierarchy. Protect and Unprotect are the only entry points; DCE/RPC
// transport, NDR64 encoding, and Kerberos/NTLM/SPNEGO authentication are
// the caller's responsibility, supplied through WithGetKeyClient and
// WithDCLocator.
package dpaping

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/dpapi-ng/internal/audit"
	"github.com/allisson/dpapi-ng/internal/dpapi/cache"
	"github.com/allisson/dpapi-ng/internal/dpapi/codec"
	"github.com/allisson/dpapi-ng/internal/dpapi/content"
	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/dpapi/kdf"
	"github.com/allisson/dpapi-ng/internal/dpapi/kek"
	"github.com/allisson/dpapi-ng/internal/dpapi/sd"
)

// keyInfoLength is the size of the random context Protect mints for the
// final KEK derivation step, matching the original implementation's key_info.
const keyInfoLength = 8

// protectGroupKeyVersion is the KeyIdentifier.Version this package writes.
const protectGroupKeyVersion = 1

// Protect encrypts data under a fresh content-encryption key wrapped by the
// KEK the protection descriptor SID resolves to, and returns the packed
// DPAPI-NG blob. Without WithRootKeyID or a root key preloaded via
// WithRootKeys/WithCache, it asks the configured GetKeyClient for the
// server's current root key and envelope.
func Protect(ctx context.Context, data []byte, protectionDescriptorSID string, opts ...Option) ([]byte, error) {
	o := newOptions(opts...)

	targetSD, err := sd.BuildTargetSD(protectionDescriptorSID)
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}

	l0, l1, l2 := cache.CurrentTimeIndex(time.Now())

	env, rootKeyID, err := resolveProtectEnvelope(ctx, o, targetSD, l0, l1, l2)
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}

	keyInfo := make([]byte, keyInfoLength)
	if _, err := rand.Read(keyInfo); err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, fmt.Errorf("dpaping: generate key_info: %w", err)
	}

	ki := &domain.KeyIdentifier{
		Version:   protectGroupKeyVersion,
		L0:        env.L0,
		L1:        env.L1,
		L2:        env.L2,
		RootKeyID: rootKeyID,
		KeyInfo:   keyInfo,
		Domain:    o.domain,
	}

	kekBytes, err := deriveKEK(env, ki, targetSD)
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}

	cek, iv, err := content.GenerateCEK()
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}
	encCEK, err := content.WrapCEK(kekBytes, cek)
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}
	cipher, err := content.NewGCMCipher(cek)
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}
	ciphertext := cipher.Encrypt(data, iv)

	gcmParams, err := codec.MarshalGCMParameters(iv)
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}

	blob := &domain.DPAPINGBlob{
		KeyIdentifier:        *ki,
		SecurityDescriptor:   targetSD,
		EncCEK:               encCEK,
		EncCEKAlgorithm:      codec.OIDAESKeyWrapAES256,
		EncContent:           ciphertext,
		EncContentAlgorithm:  codec.OIDAES256GCM,
		EncContentParameters: gcmParams,
		BlobInEnvelope:       true,
	}

	packed, err := codec.PackBlob(blob, protectionDescriptorSID)
	if err != nil {
		o.metrics.RecordCryptoOutcome("protect", "error")
		return nil, err
	}
	o.metrics.RecordCryptoOutcome("protect", "success")
	recordAudit(o, "protect", kekBytes, rootKeyID, ki.L0, ki.L1, ki.L2, "success")
	return packed, nil
}

// Unprotect decrypts a DPAPI-NG blob, resolving the KEK from the caller's
// local root keys, cache, or GetKeyClient as the blob's KeyIdentifier
// requires.
func Unprotect(ctx context.Context, blobData []byte, opts ...Option) ([]byte, error) {
	o := newOptions(opts...)

	blob, err := codec.UnpackBlob(blobData)
	if err != nil {
		o.metrics.RecordCryptoOutcome("unprotect", "error")
		return nil, err
	}
	ki := &blob.KeyIdentifier

	// A public-key KeyIdentifier still resolves through the same three-tier
	// lookup; the server (or a locally-synthesised envelope, which never
	// carries IsPublicKey) performs the DH/concat-KDF step and returns the
	// finished KEK in the envelope's L2Key, which deriveKEK recognises via
	// GroupKeyEnvelope.IsPublicKey.
	env, err := resolveEnvelope(ctx, o, ki.RootKeyID, blob.SecurityDescriptor, ki.L0, ki.L1, ki.L2)
	if err != nil {
		o.metrics.RecordCryptoOutcome("unprotect", "error")
		return nil, err
	}
	kekBytes, err := deriveKEK(env, ki, blob.SecurityDescriptor)
	if err != nil {
		o.metrics.RecordCryptoOutcome("unprotect", "error")
		return nil, err
	}

	cek, err := content.UnwrapCEK(kekBytes, blob.EncCEK)
	if err != nil {
		o.metrics.RecordCryptoOutcome("unprotect", "error")
		return nil, err
	}

	iv, err := codec.UnmarshalGCMParameters(blob.EncContentParameters)
	if err != nil {
		o.metrics.RecordCryptoOutcome("unprotect", "error")
		return nil, err
	}

	cipher, err := content.NewGCMCipher(cek)
	if err != nil {
		o.metrics.RecordCryptoOutcome("unprotect", "error")
		return nil, err
	}
	plaintext, err := cipher.Decrypt(blob.EncContent, iv)
	if err != nil {
		o.metrics.RecordCryptoOutcome("unprotect", "error")
		return nil, err
	}

	o.metrics.RecordCryptoOutcome("unprotect", "success")
	recordAudit(o, "unprotect", kekBytes, ki.RootKeyID, ki.L0, ki.L1, ki.L2, "success")
	return plaintext, nil
}

// recordAudit signs and emits an audit event when o.auditSink is
// configured; a signing failure is logged but never fails the operation it
// describes, since the crypto result is already final by the time this
// runs.
func recordAudit(o *Options, operation string, kekBytes []byte, rootKeyID uuid.UUID, l0, l1, l2 int32, outcome string) {
	if o.auditSink == nil {
		return
	}
	event := &audit.Event{
		Operation:  operation,
		RootKeyID:  rootKeyID,
		L0:         l0,
		L1:         l1,
		L2:         l2,
		Outcome:    outcome,
		OccurredAt: time.Now().UTC(),
	}
	if err := o.auditSink.Record(kekBytes, event); err != nil {
		o.logger.Warn("audit record failed", slog.String("error", err.Error()))
	}
}

// deriveKEK returns the final AES-256 KEK for ki against env: the
// envelope's L2Key directly on the public-key path (the server already
// performed the secret agreement), otherwise the SP800-108 final step over
// the resolved L2 seed.
func deriveKEK(env *domain.GroupKeyEnvelope, ki *domain.KeyIdentifier, targetSD []byte) ([]byte, error) {
	hash, err := kdf.HashFromParams(env.KDFAlgorithm, env.KDFParams)
	if err != nil {
		return nil, err
	}

	if env.IsPublicKey() {
		if len(env.L2Key) != kek.KEKLength {
			return nil, domain.ErrInvalidFormat
		}
		return env.L2Key, nil
	}

	l2Seed, err := kek.ResolveL2Seed(hash, env, ki, targetSD)
	if err != nil {
		return nil, err
	}
	return kek.DeriveSymmetric(hash, l2Seed, ki.KeyInfo), nil
}

// resolveProtectEnvelope determines the root key and dominating envelope
// Protect will derive its KEK from: a pinned root key, the server's
// current envelope, or the caller's sole locally-loaded root key, in that
// order of preference. The cache is always probed at the real current-time
// (l1,l2); a dominating hit is restamped to that coordinate before use.
func resolveProtectEnvelope(ctx context.Context, o *Options, targetSD []byte, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, uuid.UUID, error) {
	if o.rootKeyID != nil {
		env, err := resolveProtectEnvelopeForRootKey(ctx, o, *o.rootKeyID, targetSD, l0, l1, l2)
		if err != nil {
			return nil, uuid.Nil, err
		}
		return env, *o.rootKeyID, nil
	}

	if o.getKeyClient != nil {
		sfKey := cache.SingleflightKey(nil, targetSD, l0, -1, -1)
		env, err := o.cache.Singleflight(sfKey, func() (*domain.GroupKeyEnvelope, error) {
			logDCLocation(ctx, o)
			start := time.Now()
			env, err := o.getKeyClient.GetKey(ctx, targetSD, nil, -1, -1, -1)
			o.metrics.RecordRPC(rpcOutcome(err), time.Since(start))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
			}
			return env, nil
		})
		if err != nil {
			return nil, uuid.Nil, err
		}
		o.cache.Store(env.RootKeyID, targetSD, env.L0, env)
		return env, env.RootKeyID, nil
	}

	if id, ok := soleRootKeyID(o); ok {
		env, err := resolveProtectEnvelopeForRootKey(ctx, o, id, targetSD, l0, l1, l2)
		if err != nil {
			return nil, uuid.Nil, err
		}
		return env, id, nil
	}

	return nil, uuid.Nil, domain.ErrKeyUnavailable
}

// resolveProtectEnvelopeForRootKey resolves the dominating envelope for a
// known root key at the real current-time (l1,l2), falling back to a GetKey
// RPC with the server-selects-current sentinel (-1,-1,-1) on a cache miss —
// the pinned root key only tells the server which key to use, never which
// epoch.
func resolveProtectEnvelopeForRootKey(ctx context.Context, o *Options, rootKeyID uuid.UUID, targetSD []byte, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, error) {
	if rk, ok := o.cache.RootKey(rootKeyID); ok {
		hash, err := kdf.HashFromParams(rk.KDFAlgorithm, rk.KDFParams)
		if err != nil {
			return nil, err
		}
		env, hit, err := o.cache.Resolve(hash, rootKeyID, targetSD, l0, l1, l2)
		if err != nil {
			return nil, err
		}
		if hit {
			o.metrics.RecordCacheLookup("l1", "hit")
			return restampForCurrentTime(hash, env, rootKeyID, targetSD, l0, l1, l2)
		}
	}
	o.metrics.RecordCacheLookup("l1", "miss")

	if o.getKeyClient == nil {
		return nil, domain.ErrKeyUnavailable
	}

	sfKey := cache.SingleflightKey(&rootKeyID, targetSD, l0, -1, -1)
	env, err := o.cache.Singleflight(sfKey, func() (*domain.GroupKeyEnvelope, error) {
		logDCLocation(ctx, o)
		start := time.Now()
		env, err := o.getKeyClient.GetKey(ctx, targetSD, &rootKeyID, -1, -1, -1)
		o.metrics.RecordRPC(rpcOutcome(err), time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
		}
		return env, nil
	})
	if err != nil {
		return nil, err
	}
	o.cache.Store(rootKeyID, targetSD, env.L0, env)
	return env, nil
}

// restampForCurrentTime rebuilds a cache-resolved envelope at the actual
// current-time (l1,l2) coordinate, deriving a fresh L2 seed so the
// KeyIdentifier Protect stamps onto the blob reflects real time instead of
// the ratchet's synthesized top.
func restampForCurrentTime(hash kdf.HashFunc, env *domain.GroupKeyEnvelope, rootKeyID uuid.UUID, targetSD []byte, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, error) {
	if env.L1 == l1 && env.L2 == l2 && env.IsL2Valid() {
		return env, nil
	}

	ki := &domain.KeyIdentifier{RootKeyID: rootKeyID, L0: l0, L1: l1, L2: l2}
	l2Seed, err := kek.ResolveL2Seed(hash, env, ki, targetSD)
	if err != nil {
		return nil, err
	}

	restamped := *env
	restamped.L1 = l1
	restamped.L2 = l2
	restamped.L2Key = l2Seed
	restamped.Flags |= domain.L2Valid
	return &restamped, nil
}

// resolveEnvelope implements the three-tier lookup: cache (including
// local-root-key synthesis via Cache.Resolve), then a GetKey RPC on a
// miss, storing whatever is newly resolved before returning.
func resolveEnvelope(ctx context.Context, o *Options, rootKeyID uuid.UUID, targetSD []byte, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, error) {
	if rk, ok := o.cache.RootKey(rootKeyID); ok {
		hash, err := kdf.HashFromParams(rk.KDFAlgorithm, rk.KDFParams)
		if err != nil {
			return nil, err
		}
		env, hit, err := o.cache.Resolve(hash, rootKeyID, targetSD, l0, l1, l2)
		if err != nil {
			return nil, err
		}
		if hit {
			o.metrics.RecordCacheLookup("l1", "hit")
			return env, nil
		}
	}
	o.metrics.RecordCacheLookup("l1", "miss")

	if o.getKeyClient == nil {
		return nil, domain.ErrKeyUnavailable
	}

	sfKey := cache.SingleflightKey(&rootKeyID, targetSD, l0, l1, l2)
	env, err := o.cache.Singleflight(sfKey, func() (*domain.GroupKeyEnvelope, error) {
		logDCLocation(ctx, o)
		start := time.Now()
		env, err := o.getKeyClient.GetKey(ctx, targetSD, &rootKeyID, l0, l1, l2)
		o.metrics.RecordRPC(rpcOutcome(err), time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
		}
		return env, nil
	})
	if err != nil {
		return nil, err
	}
	o.cache.Store(rootKeyID, targetSD, l0, env)
	return env, nil
}

// soleRootKeyID returns the single locally-loaded root key's ID, when
// exactly one is configured. With zero or multiple candidates it's
// ambiguous which one Protect should use without an explicit pin.
func soleRootKeyID(o *Options) (uuid.UUID, bool) {
	if o.rootKeys == nil {
		return uuid.Nil, false
	}
	all := o.rootKeys.All()
	if len(all) != 1 {
		return uuid.Nil, false
	}
	return all[0].ID, true
}

// logDCLocation resolves and logs the domain controller a GetKeyClient
// implementation would reach out to, memoizing the result in o.dcCache so
// a burst of calls doesn't re-run SRV resolution per request.
func logDCLocation(ctx context.Context, o *Options) {
	if o.dcLocator == nil {
		return
	}
	if cached, ok := o.dcCache.Get(o.domain); ok {
		o.logger.DebugContext(ctx, "resolved domain controller (cached)", slog.String("dc", cached.(string)))
		return
	}

	dc, err := o.dcLocator.LocateDC(ctx, o.domain)
	if err != nil {
		o.logger.WarnContext(ctx, "dc locator failed", slog.String("error", err.Error()))
		return
	}
	o.dcCache.SetDefault(o.domain, dc)
	o.logger.DebugContext(ctx, "resolved domain controller", slog.String("dc", dc))
}

func rpcOutcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
