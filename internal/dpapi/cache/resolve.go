package cache

import (
	"github.com/google/uuid"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/dpapi/kdf"
	"github.com/allisson/dpapi-ng/internal/dpapi/seedtree"
)

// topOfRatchet is the L1/L2 index both ratchets start descending from when
// no narrower cached seed is available.
const topOfRatchet = 31

// Resolve implements the §4.8 lookup algorithm: return a cached envelope
// that already dominates (l1,l2) when one exists; otherwise, if a RootKey
// is registered for rootKeyID, synthesise a fresh L1 seed at l0 (the top of
// the L1 ratchet) and cache it; otherwise report a miss so the caller can
// fall back to the external GetKey collaborator.
func (c *Cache) Resolve(newHash kdf.HashFunc, rootKeyID uuid.UUID, targetSD []byte, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, bool, error) {
	if env, ok := c.Get(rootKeyID, targetSD, l0, l1, l2); ok {
		return env, true, nil
	}

	rk, ok := c.RootKey(rootKeyID)
	if !ok {
		return nil, false, nil
	}

	l1Seed, err := seedtree.DeriveL1(newHash, rk.Data, rootKeyID, l0, topOfRatchet, targetSD)
	if err != nil {
		return nil, false, err
	}

	env := &domain.GroupKeyEnvelope{
		Version:                  rk2EnvelopeVersion,
		L0:                       l0,
		L1:                       topOfRatchet,
		L2:                       topOfRatchet,
		RootKeyID:                rootKeyID,
		KDFAlgorithm:             rk.KDFAlgorithm,
		KDFParams:                rk.KDFParams,
		SecretAgreementAlgorithm: rk.SecretAgreementAlgorithm,
		SecretAgreementParams:    rk.SecretAgreementParams,
		PrivateKeyLength:         rk.PrivateKeyLength,
		PublicKeyLength:          rk.PublicKeyLength,
		L1Key:                    l1Seed,
	}
	c.Store(rootKeyID, targetSD, l0, env)
	return env, true, nil
}

// rk2EnvelopeVersion is the version stamped on envelopes synthesised
// locally from a RootKey (as opposed to ones returned by GetKey).
const rk2EnvelopeVersion = 1
