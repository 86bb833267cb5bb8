package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// envelopeJSON is the Redis wire shape of a GroupKeyEnvelope; encoding/json
// base64-encodes the byte-slice fields.
type envelopeJSON struct {
	Version   uint32
	Flags     uint32
	L0, L1, L2 int32
	RootKeyID uuid.UUID

	KDFAlgorithm string
	KDFParams    []byte

	SecretAgreementAlgorithm string
	SecretAgreementParams    []byte
	PrivateKeyLength         uint32
	PublicKeyLength          uint32

	Domain, Forest string
	L1Key, L2Key   []byte
}

func fromDomain(env *domain.GroupKeyEnvelope) envelopeJSON {
	return envelopeJSON{
		Version: env.Version, Flags: env.Flags,
		L0: env.L0, L1: env.L1, L2: env.L2,
		RootKeyID:                env.RootKeyID,
		KDFAlgorithm:             env.KDFAlgorithm,
		KDFParams:                env.KDFParams,
		SecretAgreementAlgorithm: env.SecretAgreementAlgorithm,
		SecretAgreementParams:    env.SecretAgreementParams,
		PrivateKeyLength:         env.PrivateKeyLength,
		PublicKeyLength:          env.PublicKeyLength,
		Domain:                   env.Domain,
		Forest:                   env.Forest,
		L1Key:                    env.L1Key,
		L2Key:                    env.L2Key,
	}
}

func (ej envelopeJSON) toDomain() *domain.GroupKeyEnvelope {
	return &domain.GroupKeyEnvelope{
		Version: ej.Version, Flags: ej.Flags,
		L0: ej.L0, L1: ej.L1, L2: ej.L2,
		RootKeyID:                ej.RootKeyID,
		KDFAlgorithm:             ej.KDFAlgorithm,
		KDFParams:                ej.KDFParams,
		SecretAgreementAlgorithm: ej.SecretAgreementAlgorithm,
		SecretAgreementParams:    ej.SecretAgreementParams,
		PrivateKeyLength:         ej.PrivateKeyLength,
		PublicKeyLength:          ej.PublicKeyLength,
		Domain:                   ej.Domain,
		Forest:                   ej.Forest,
		L1Key:                    ej.L1Key,
		L2Key:                    ej.L2Key,
	}
}

// RedisStore mirrors Cache's envelope dominance discipline against a
// shared Redis instance, letting a fleet of processes share one
// KDS-derived cache instead of each cold-starting its own. It is a second
// tier: callers check it on a local Cache miss and feed whatever it
// returns back into the local Cache via Store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a RedisStore backed by client, expiring entries
// after ttl. A zero ttl means entries never expire.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisEnvelopeKey(rootKeyID uuid.UUID, targetSD []byte, l0 int32) string {
	return fmt.Sprintf("dpapi-ng:envelope:%s:%x:%d", rootKeyID, hashTargetSD(targetSD), l0)
}

// Get returns the stored envelope at (rootKeyID, targetSD, l0) if one
// exists in Redis and dominates (l1, l2).
func (r *RedisStore) Get(ctx context.Context, rootKeyID uuid.UUID, targetSD []byte, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, bool, error) {
	raw, err := r.client.Get(ctx, redisEnvelopeKey(rootKeyID, targetSD, l0)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ej envelopeJSON
	if err := json.Unmarshal(raw, &ej); err != nil {
		return nil, false, err
	}
	env := ej.toDomain()
	if !env.Dominates(l1, l2) {
		return nil, false, nil
	}
	return env, true, nil
}

// Store writes env at (rootKeyID, targetSD, l0). Public-key envelopes are
// never stored, matching the one-shot-ephemeral invariant Cache.Store
// enforces locally. Store does not itself enforce the dominance-only
// replacement rule — callers sharing one Redis instance across processes
// are expected to only ever Store envelopes obtained from a GetKey RPC or
// Cache.Resolve, which already never regress (L1,L2).
func (r *RedisStore) Store(ctx context.Context, rootKeyID uuid.UUID, targetSD []byte, l0 int32, env *domain.GroupKeyEnvelope) error {
	if env.IsPublicKey() {
		return nil
	}
	raw, err := json.Marshal(fromDomain(env))
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisEnvelopeKey(rootKeyID, targetSD, l0), raw, r.ttl).Err()
}
