package audit

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKEK(t *testing.T) []byte {
	t.Helper()
	kek := make([]byte, 32)
	_, err := rand.Read(kek)
	require.NoError(t, err)
	return kek
}

func TestSigner_SignAndVerify(t *testing.T) {
	signer := NewSigner()
	kek := randomKEK(t)

	event := &Event{
		Operation:  "protect",
		RootKeyID:  uuid.New(),
		L0:         1, L1: 31, L2: 31,
		Outcome:    "success",
		OccurredAt: time.Now().UTC(),
	}

	require.NoError(t, signer.Sign(kek, event))
	assert.Len(t, event.Signature, 32)

	ok, err := signer.Verify(kek, event)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSigner_VerifyDetectsTampering(t *testing.T) {
	signer := NewSigner()
	kek := randomKEK(t)

	event := &Event{
		Operation:  "unprotect",
		RootKeyID:  uuid.New(),
		L0:         1, L1: 20, L2: 5,
		Outcome:    "success",
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, signer.Sign(kek, event))

	event.Outcome = "error"

	ok, err := signer.Verify(kek, event)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_VerifyWrongKEK(t *testing.T) {
	signer := NewSigner()
	event := &Event{
		Operation:  "protect",
		RootKeyID:  uuid.New(),
		OccurredAt: time.Now().UTC(),
		Outcome:    "success",
	}
	require.NoError(t, signer.Sign(randomKEK(t), event))

	ok, err := signer.Verify(randomKEK(t), event)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSink_Record(t *testing.T) {
	sink := NewSink(zerolog.Nop())
	err := sink.Record(randomKEK(t), &Event{
		Operation:  "protect",
		RootKeyID:  uuid.New(),
		OccurredAt: time.Now().UTC(),
		Outcome:    "success",
	})
	assert.NoError(t, err)
}
