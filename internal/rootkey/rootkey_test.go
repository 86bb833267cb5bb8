package rootkey

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/dpapi-ng/internal/dpapi/kdf"
)

func TestLoad_DefaultsKDFAndSecretAgreement(t *testing.T) {
	id := uuid.New()
	data := make([]byte, 64)

	rk := Load(id, data)

	assert.Equal(t, "SP800_108_CTR_HMAC", rk.KDFAlgorithm)
	name, err := kdf.UnpackKDFParameters(rk.KDFParams)
	require.NoError(t, err)
	assert.Equal(t, "SHA512", name)

	assert.Equal(t, "DH", rk.SecretAgreementAlgorithm)
	assert.NotEmpty(t, rk.SecretAgreementParams)
	assert.Equal(t, uint32(512), rk.PrivateKeyLength)
	assert.Equal(t, uint32(2048), rk.PublicKeyLength)
}

func TestLoad_WithKDFParamsOverride(t *testing.T) {
	params := kdf.PackKDFParameters("SHA384")
	rk := Load(uuid.New(), make([]byte, 64), WithKDFParams("SP800_108_CTR_HMAC", params))

	name, err := kdf.UnpackKDFParameters(rk.KDFParams)
	require.NoError(t, err)
	assert.Equal(t, "SHA384", name)
}

func TestLoad_WithKeyLengthsOverride(t *testing.T) {
	rk := Load(uuid.New(), make([]byte, 64), WithKeyLengths(256, 1024))

	assert.Equal(t, uint32(256), rk.PrivateKeyLength)
	assert.Equal(t, uint32(1024), rk.PublicKeyLength)
	// SecretAgreementParams defaulting must key off the overridden public length.
	assert.Len(t, rk.SecretAgreementParams, 8+2*1024/8)
}

func TestLoad_WithSecretAgreementOverride(t *testing.T) {
	rk := Load(uuid.New(), make([]byte, 64), WithSecretAgreement("ECDH_P256", nil))

	assert.Equal(t, "ECDH_P256", rk.SecretAgreementAlgorithm)
	assert.Nil(t, rk.SecretAgreementParams)
}

func TestLoadChainFromEnv_LiteralHashNameLeftUndecorated(t *testing.T) {
	chain, err := loadChain(`[{"id":"` + uuid.New().String() + `","data":"` +
		base64.StdEncoding.EncodeToString(make([]byte, 64)) + `","kdf_algorithm":"SHA256"}]`)
	require.NoError(t, err)

	all := chain.All()
	require.Len(t, all, 1)
	assert.Equal(t, "SHA256", all[0].KDFAlgorithm)
	assert.Empty(t, all[0].KDFParams)
}

func TestLoadChainFromEnv_DefaultsOmittedFields(t *testing.T) {
	chain, err := loadChain(`[{"id":"` + uuid.New().String() + `","data":"` +
		base64.StdEncoding.EncodeToString(make([]byte, 64)) + `"}]`)
	require.NoError(t, err)

	all := chain.All()
	require.Len(t, all, 1)
	assert.Equal(t, "SP800_108_CTR_HMAC", all[0].KDFAlgorithm)
	name, err := kdf.UnpackKDFParameters(all[0].KDFParams)
	require.NoError(t, err)
	assert.Equal(t, "SHA512", name)
	assert.Equal(t, "DH", all[0].SecretAgreementAlgorithm)
	assert.NotEmpty(t, all[0].SecretAgreementParams)
}

func TestLoadChainFromEnv_NotSet(t *testing.T) {
	t.Setenv("ROOT_KEYS", "")
	_, err := LoadChainFromEnv()
	assert.ErrorIs(t, err, ErrRootKeysNotSet)
}
