package cache

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

func TestEnvelopeJSON_RoundTrip(t *testing.T) {
	env := &domain.GroupKeyEnvelope{
		Version:      1,
		Flags:        domain.L2Valid,
		L0:           1, L1: 20, L2: 5,
		RootKeyID:    uuid.New(),
		KDFAlgorithm: "SHA256",
		KDFParams:    []byte{0x01, 0x02},
		L1Key:        []byte("l1-seed-material-32-bytes-long!!"),
		L2Key:        []byte("l2-seed-material-32-bytes-long!!"),
	}

	raw, err := json.Marshal(fromDomain(env))
	require.NoError(t, err)

	var ej envelopeJSON
	require.NoError(t, json.Unmarshal(raw, &ej))

	got := ej.toDomain()
	assert.Equal(t, env.Version, got.Version)
	assert.Equal(t, env.Flags, got.Flags)
	assert.Equal(t, env.L0, got.L0)
	assert.Equal(t, env.L1, got.L1)
	assert.Equal(t, env.L2, got.L2)
	assert.Equal(t, env.RootKeyID, got.RootKeyID)
	assert.Equal(t, env.KDFAlgorithm, got.KDFAlgorithm)
	assert.Equal(t, env.KDFParams, got.KDFParams)
	assert.Equal(t, env.L1Key, got.L1Key)
	assert.Equal(t, env.L2Key, got.L2Key)
	assert.True(t, got.IsL2Valid())
}

func TestRedisEnvelopeKey_Deterministic(t *testing.T) {
	id := uuid.New()
	sd := []byte("target-sd-bytes")
	assert.Equal(t, redisEnvelopeKey(id, sd, 7), redisEnvelopeKey(id, sd, 7))
	assert.NotEqual(t, redisEnvelopeKey(id, sd, 7), redisEnvelopeKey(id, sd, 8))
}
