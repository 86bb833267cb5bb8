package seedtree

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContext_Layout(t *testing.T) {
	targetSD := []byte{0xAA, 0xBB, 0xCC}
	rootKeyID := uuid.New()

	ctx := buildContext(targetSD, rootKeyID, 7, 42)

	require.Len(t, ctx, len(targetSD)*2+16+8)
	assert.Equal(t, targetSD, ctx[:len(targetSD)])
	assert.Equal(t, rootKeyIDBytesLE(rootKeyID), ctx[len(targetSD):len(targetSD)+16])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(ctx[len(targetSD)+16:len(targetSD)+20]))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(ctx[len(targetSD)+20:len(targetSD)+24]))
	assert.Equal(t, targetSD, ctx[len(targetSD)+24:])
}

func TestBuildContext_RootTransitionSentinel(t *testing.T) {
	targetSD := []byte{0x01, 0x02}
	rootKeyID := uuid.New()

	ctx := buildContext(targetSD, rootKeyID, 3, -1)

	sentinelOffset := len(targetSD) + 16 + 4
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, ctx[sentinelOffset:sentinelOffset+4])
	// The sentinel sits between l0_le and the trailing target_sd, not after it.
	assert.Equal(t, targetSD, ctx[len(ctx)-len(targetSD):])
}

func TestDeriveL1_DescendsToTarget(t *testing.T) {
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i)
	}
	rootKeyID := uuid.New()
	targetSD := []byte{0x10, 0x20}

	full, err := DeriveL1(sha256.New, key, rootKeyID, 1, 31, targetSD)
	require.NoError(t, err)
	partial, err := DeriveL1(sha256.New, key, rootKeyID, 1, 20, targetSD)
	require.NoError(t, err)

	assert.NotEqual(t, full, partial)
	assert.Len(t, full, 32)

	resumed, err := DeriveL1FromSeed(sha256.New, full, rootKeyID, 1, 31, 20, targetSD)
	require.NoError(t, err)
	assert.Equal(t, partial, resumed)
}

func TestDeriveL1_RejectsOutOfRangeTarget(t *testing.T) {
	key := make([]byte, 64)
	rootKeyID := uuid.New()
	_, err := DeriveL1(sha256.New, key, rootKeyID, 1, 32, nil)
	assert.Error(t, err)
	_, err = DeriveL1(sha256.New, key, rootKeyID, 1, -1, nil)
	assert.Error(t, err)
}

func TestDeriveL2_DescendsToTarget(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(64 - i)
	}
	rootKeyID := uuid.New()
	targetSD := []byte{0x30}

	full, err := DeriveL2(sha256.New, seed, rootKeyID, 5, 31, 31, targetSD)
	require.NoError(t, err)
	assert.Equal(t, seed, full)

	stepped, err := DeriveL2(sha256.New, seed, rootKeyID, 5, 31, 10, targetSD)
	require.NoError(t, err)
	assert.NotEqual(t, seed, stepped)

	_, err = DeriveL2(sha256.New, seed, rootKeyID, 5, 10, 31, targetSD)
	assert.Error(t, err)
}

func TestDeriveL1L2_DifferentL0ProducesDifferentSeed(t *testing.T) {
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i)
	}
	rootKeyID := uuid.New()
	targetSD := []byte{0x10, 0x20}

	atL0One, err := DeriveL1(sha256.New, key, rootKeyID, 1, 20, targetSD)
	require.NoError(t, err)
	atL0Two, err := DeriveL1(sha256.New, key, rootKeyID, 2, 20, targetSD)
	require.NoError(t, err)

	assert.NotEqual(t, atL0One, atL0Two)
}
