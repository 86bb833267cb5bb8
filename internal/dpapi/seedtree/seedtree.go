// Package seedtree computes the L1 and L2 seeds of the GKDI hierarchical
// seed tree: given a RootKey and an L0 index, descend from L1=31 to the
// target L1; given an L1 seed, descend from L2=31 (or a cached L2-1) to the
// target L2.
package seedtree

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/dpapi/kdf"
)

const kdsServiceLabel = "KDS service"

// topOfRatchet is the starting index the descent begins from when no
// cached seed narrows the search: both L1 and L2 ratchets run from 31 down
// to the requested value.
const topOfRatchet = 31

// buildContext assembles target_sd || root_key_id_le || l0_le || index_le ||
// target_sd, the fixed-input context SP800-108 hashes at each ratchet step.
// index carries the 0xFFFFFFFF root-transition sentinel as int32(-1).
func buildContext(targetSD []byte, rootKeyID uuid.UUID, l0, index int32) []byte {
	rootLE := rootKeyIDBytesLE(rootKeyID)

	l0LE := make([]byte, 4)
	binary.LittleEndian.PutUint32(l0LE, uint32(l0))

	indexLE := make([]byte, 4)
	binary.LittleEndian.PutUint32(indexLE, uint32(index))

	ctx := make([]byte, 0, len(targetSD)*2+16+8)
	ctx = append(ctx, targetSD...)
	ctx = append(ctx, rootLE...)
	ctx = append(ctx, l0LE...)
	ctx = append(ctx, indexLE...)
	ctx = append(ctx, targetSD...)
	return ctx
}

func rootKeyIDBytesLE(id uuid.UUID) []byte {
	be, _ := id.MarshalBinary()
	le := make([]byte, 16)
	le[0], le[1], le[2], le[3] = be[3], be[2], be[1], be[0]
	le[4], le[5] = be[5], be[4]
	le[6], le[7] = be[7], be[6]
	copy(le[8:], be[8:])
	return le
}

// DeriveL1 walks the L1 ratchet from 31 down to targetL1 using key as the
// starting material (the 64-byte RootKey bytes) and returns only the final
// 32-byte value at targetL1.
func DeriveL1(newHash kdf.HashFunc, key []byte, rootKeyID uuid.UUID, l0, targetL1 int32, targetSD []byte) ([]byte, error) {
	if targetL1 < 0 || targetL1 > topOfRatchet {
		return nil, domain.ErrUnsupported
	}
	label := kdf.UTF16LELabel(kdsServiceLabel)

	current := key
	// The first step additionally folds in a 0xFFFFFFFF sentinel marking
	// the transition from root-key material to the L1 ratchet proper.
	ctx := buildContext(targetSD, rootKeyID, l0, -1)
	current = kdf.CounterHMAC(newHash, current, label, ctx, 32)

	for i := int32(topOfRatchet); i > targetL1; i-- {
		ctx := buildContext(targetSD, rootKeyID, l0, i-1)
		current = kdf.CounterHMAC(newHash, current, label, ctx, 32)
	}
	return current, nil
}

// DeriveL1FromSeed continues the L1 ratchet from an already-derived seed at
// startL1 down to targetL1, without the root-key transition step DeriveL1
// applies when starting from raw RootKey.Data. Use this when resuming
// descent from a cached or envelope-carried L1 seed rather than from the
// root key itself.
func DeriveL1FromSeed(newHash kdf.HashFunc, seed []byte, rootKeyID uuid.UUID, l0, startL1, targetL1 int32, targetSD []byte) ([]byte, error) {
	if targetL1 < 0 || targetL1 > startL1 {
		return nil, domain.ErrUnsupported
	}
	label := kdf.UTF16LELabel(kdsServiceLabel)

	current := seed
	for i := startL1; i > targetL1; i-- {
		ctx := buildContext(targetSD, rootKeyID, l0, i-1)
		current = kdf.CounterHMAC(newHash, current, label, ctx, 32)
	}
	return current, nil
}

// DeriveL2 walks the L2 ratchet from startL2 down to targetL2 using l1Key
// (or an already-partial L2 seed) as the starting material, returning the
// final 32-byte value at targetL2. Callers must ensure startL2 dominates
// targetL2; the seed-tree invariant is that derivation only ever walks the
// ratchet forward (to a smaller index), never backward.
func DeriveL2(newHash kdf.HashFunc, seed []byte, rootKeyID uuid.UUID, l0, startL2, targetL2 int32, targetSD []byte) ([]byte, error) {
	if targetL2 < 0 || targetL2 > startL2 {
		return nil, domain.ErrUnsupported
	}
	label := kdf.UTF16LELabel(kdsServiceLabel)

	current := seed
	for i := startL2; i > targetL2; i-- {
		ctx := buildContext(targetSD, rootKeyID, l0, i-1)
		current = kdf.CounterHMAC(newHash, current, label, ctx, 32)
	}
	return current, nil
}
