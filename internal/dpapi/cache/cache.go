// Package cache implements the three-level keyed cache of GroupKeyEnvelopes
// — root_key_id → target_sd → L0 → envelope — plus the root_key_id →
// RootKey map populated by LoadKey. A single writer / multiple readers
// discipline is enforced per (root_key_id, target_sd, L0) slot: stores are
// serialised under an exclusive lock and never move an entry's (L1,L2)
// backward.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// epochFiletimeOffset converts a Unix epoch to the Windows FILETIME epoch
// (100ns ticks since 1601-01-01), per the original implementation's
// constant.
const epochFiletimeOffset = 116444736000000000

// ftBase is the FILETIME tick duration of one L2 step (100ns units).
const ftBase = 3.6e11

type slotKey struct {
	rootKeyID uuid.UUID
	targetSD  uint64 // non-cryptographic hash, per the design notes
	l0        int32
}

// Cache is a concurrency-safe keyed cache of GroupKeyEnvelopes and
// registered RootKeys. The zero value is not usable; construct with New.
type Cache struct {
	mu        sync.RWMutex
	envelopes map[slotKey]*domain.GroupKeyEnvelope
	rootKeys  map[uuid.UUID]*domain.RootKey
	sf        singleflight.Group
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{
		envelopes: make(map[slotKey]*domain.GroupKeyEnvelope),
		rootKeys:  make(map[uuid.UUID]*domain.RootKey),
	}
}

func hashTargetSD(targetSD []byte) uint64 {
	sum := sha256.Sum256(targetSD)
	return binary.LittleEndian.Uint64(sum[:8])
}

func key(rootKeyID uuid.UUID, targetSD []byte, l0 int32) slotKey {
	return slotKey{rootKeyID: rootKeyID, targetSD: hashTargetSD(targetSD), l0: l0}
}

// Get returns the cached envelope at (rootKeyID, targetSD, l0) if one
// exists and dominates (l1, l2), per domain.GroupKeyEnvelope.Dominates. The
// second return reports whether a dominating entry was found.
func (c *Cache) Get(rootKeyID uuid.UUID, targetSD []byte, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	env, ok := c.envelopes[key(rootKeyID, targetSD, l0)]
	if !ok || !env.Dominates(l1, l2) {
		return nil, false
	}
	return env, true
}

// Store records env at (rootKeyID, targetSD, l0), replacing any existing
// entry only when env's (L1,L2) strictly exceeds the one on record.
// Public-key envelopes are never stored, matching the one-shot-ephemeral
// invariant.
func (c *Cache) Store(rootKeyID uuid.UUID, targetSD []byte, l0 int32, env *domain.GroupKeyEnvelope) {
	if env.IsPublicKey() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(rootKeyID, targetSD, l0)
	existing, ok := c.envelopes[k]
	if ok && !strictlyGreater(env.L1, env.L2, existing.L1, existing.L2) {
		return
	}
	c.envelopes[k] = env
}

// strictlyGreater reports whether (l1,l2) lexicographically exceeds
// (otherL1,otherL2).
func strictlyGreater(l1, l2, otherL1, otherL2 int32) bool {
	if l1 != otherL1 {
		return l1 > otherL1
	}
	return l2 > otherL2
}

// Singleflight coalesces concurrent GetKey RPCs sharing the same key (a
// caller-chosen encoding of root_key_id/target_sd/L0/L1/L2) into a single
// in-flight call; every caller with the same key blocks on and shares its
// result instead of dispatching a redundant round-trip to the KDS.
func (c *Cache) Singleflight(key string, fn func() (*domain.GroupKeyEnvelope, error)) (*domain.GroupKeyEnvelope, error) {
	v, err, _ := c.sf.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.GroupKeyEnvelope), nil
}

// SingleflightKey builds the coalescing key for a (rootKeyID, targetSD, L0,
// L1, L2) GetKey request. A nil rootKeyID (the Protect "give me the
// server's current envelope" sentinel) coalesces separately per target SD
// and L0.
func SingleflightKey(rootKeyID *uuid.UUID, targetSD []byte, l0, l1, l2 int32) string {
	id := "current"
	if rootKeyID != nil {
		id = rootKeyID.String()
	}
	return fmt.Sprintf("%s|%x|%d|%d|%d", id, hashTargetSD(targetSD), l0, l1, l2)
}

// LoadKey registers a RootKey. Registration is a pure upsert: entries are
// immutable once loaded and live as long as the cache.
func (c *Cache) LoadKey(rk *domain.RootKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rootKeys[rk.ID] = rk
}

// RootKey returns the registered RootKey for id, if any.
func (c *Cache) RootKey(id uuid.UUID) (*domain.RootKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rk, ok := c.rootKeys[id]
	return rk, ok
}

// CurrentTimeIndex computes the (L0,L1,L2) triple for "now", per the
// Protect path's cache-probe derivation: FILETIME ticks since 1601-01-01,
// divided into 1024-L0 / 32-L1 / 1-L2 step sizes of ftBase ticks each.
func CurrentTimeIndex(now time.Time) (l0, l1, l2 int32) {
	nowFT := now.UnixNano()/100 + epochFiletimeOffset
	l0 = int32(float64(nowFT) / (1024 * ftBase))
	l1 = int32(float64(nowFT-int64(l0)*1024*int64(ftBase)) / (32 * ftBase))
	l2 = int32(float64(nowFT-int64(l0)*1024*int64(ftBase)-int64(l1)*32*int64(ftBase)) / ftBase)
	return l0, l1, l2
}
