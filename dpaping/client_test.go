package dpaping

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/rootkey"
)

func testRootKey(t *testing.T) *domain.RootKey {
	t.Helper()
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	return &domain.RootKey{
		ID:           uuid.New(),
		Data:         data,
		KDFAlgorithm: "SHA256",
	}
}

func TestProtectUnprotect_LocalRootKey_RoundTrip(t *testing.T) {
	rk := testRootKey(t)
	chain := rootkey.New()
	chain.LoadKey(rk)

	plaintext := []byte("hunter2 database password")
	blob, err := Protect(context.Background(), plaintext, "S-1-5-21-1-2-3-1000",
		WithRootKeys(chain), WithRootKeyID(rk.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, blob)

	recovered, err := Unprotect(context.Background(), blob, WithRootKeys(chain))
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}

func TestProtect_SoleLocalRootKey_NoPin(t *testing.T) {
	rk := testRootKey(t)
	chain := rootkey.New()
	chain.LoadKey(rk)

	blob, err := Protect(context.Background(), []byte("data"), "S-1-5-21-1-2-3-1000", WithRootKeys(chain))
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
}

func TestProtect_NoCollaborators_ReturnsKeyUnavailable(t *testing.T) {
	_, err := Protect(context.Background(), []byte("data"), "S-1-5-21-1-2-3-1000")
	assert.ErrorIs(t, err, domain.ErrKeyUnavailable)
}

func TestUnprotect_TamperedBlob_FailsIntegrity(t *testing.T) {
	rk := testRootKey(t)
	chain := rootkey.New()
	chain.LoadKey(rk)

	blob, err := Protect(context.Background(), []byte("data"), "S-1-5-21-1-2-3-1000",
		WithRootKeys(chain), WithRootKeyID(rk.ID))
	require.NoError(t, err)

	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = Unprotect(context.Background(), tampered, WithRootKeys(chain))
	assert.Error(t, err)
}

// fakeGetKeyClient answers every GetKey call with a public-key envelope
// carrying a fixed KEK, exercising the public-key path end to end without
// a real DH exchange.
type fakeGetKeyClient struct {
	rootKeyID uuid.UUID
	kek       []byte
}

func (f *fakeGetKeyClient) GetKey(_ context.Context, _ []byte, rootKeyID *uuid.UUID, l0, l1, l2 int32) (*domain.GroupKeyEnvelope, error) {
	id := f.rootKeyID
	if rootKeyID != nil {
		id = *rootKeyID
	}
	return &domain.GroupKeyEnvelope{
		Version:      1,
		Flags:        domain.IsPublicKey,
		L0:           l0,
		L1:           l1,
		L2:           l2,
		RootKeyID:    id,
		KDFAlgorithm: "SHA256",
		L2Key:        f.kek,
	}, nil
}

func TestProtectUnprotect_PublicKeyPath_RoundTrip(t *testing.T) {
	kekBytes := make([]byte, 32)
	for i := range kekBytes {
		kekBytes[i] = byte(255 - i)
	}
	client := &fakeGetKeyClient{rootKeyID: uuid.New(), kek: kekBytes}

	plaintext := []byte("cross-forest secret")
	blob, err := Protect(context.Background(), plaintext, "S-1-5-21-1-2-3-1000", WithGetKeyClient(client))
	require.NoError(t, err)

	recovered, err := Unprotect(context.Background(), blob, WithGetKeyClient(client))
	require.NoError(t, err)
	assert.Equal(t, plaintext, recovered)
}
