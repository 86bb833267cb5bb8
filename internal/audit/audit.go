// Package audit signs and emits a tamper-evident trail of Protect/Unprotect
// operations. Each Event is HMAC-SHA256 signed with a key derived via
// HKDF-SHA256 from the KEK that served the request — never the KEK
// itself, so a leaked audit trail can't be used to rederive content
// encryption material — then written through a zerolog logger.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"
)

const signingKeyInfo = "dpapi-ng-audit-signing-v1"

// Event records one Protect or Unprotect call against the seed tree.
type Event struct {
	Operation  string // "protect" or "unprotect"
	RootKeyID  uuid.UUID
	L0, L1, L2 int32
	Outcome    string // "success" or "error"
	OccurredAt time.Time
	Signature  []byte
}

// Signer signs and verifies Events.
type Signer struct{}

// NewSigner creates an HMAC-based audit event signer.
func NewSigner() *Signer {
	return &Signer{}
}

func (s *Signer) deriveSigningKey(kek []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, kek, nil, []byte(signingKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// canonicalize builds the length-prefixed byte representation Sign and
// Verify compute their HMAC over.
func (s *Signer) canonicalize(e *Event) []byte {
	buf := make([]byte, 0, 64+len(e.Operation)+len(e.Outcome))
	buf = append(buf, e.RootKeyID[:]...)
	buf = appendLengthPrefixed(buf, []byte(e.Operation))
	buf = appendLengthPrefixed(buf, []byte(e.Outcome))

	var idx [12]byte
	binary.BigEndian.PutUint32(idx[0:4], uint32(e.L0))
	binary.BigEndian.PutUint32(idx[4:8], uint32(e.L1))
	binary.BigEndian.PutUint32(idx[8:12], uint32(e.L2))
	buf = append(buf, idx[:]...)

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.OccurredAt.UnixNano()))
	buf = append(buf, ts[:]...)

	return buf
}

func appendLengthPrefixed(buf, data []byte) []byte {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf = append(buf, length[:]...)
	return append(buf, data...)
}

// Sign computes e's HMAC-SHA256 signature keyed by a value derived from kek
// via HKDF, storing it in e.Signature.
func (s *Signer) Sign(kek []byte, e *Event) error {
	signingKey, err := s.deriveSigningKey(kek)
	if err != nil {
		return err
	}
	defer zero(signingKey)

	mac := hmac.New(sha256.New, signingKey)
	mac.Write(s.canonicalize(e))
	e.Signature = mac.Sum(nil)
	return nil
}

// Verify reports whether e.Signature matches the signature Sign would
// compute for e under kek.
func (s *Signer) Verify(kek []byte, e *Event) (bool, error) {
	want := &Event{
		Operation:  e.Operation,
		RootKeyID:  e.RootKeyID,
		L0:         e.L0,
		L1:         e.L1,
		L2:         e.L2,
		Outcome:    e.Outcome,
		OccurredAt: e.OccurredAt,
	}
	if err := s.Sign(kek, want); err != nil {
		return false, err
	}
	return hmac.Equal(e.Signature, want.Signature), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Sink signs and emits Events as structured zerolog records.
type Sink struct {
	logger zerolog.Logger
	signer *Signer
}

// NewSink builds a Sink writing through logger.
func NewSink(logger zerolog.Logger) *Sink {
	return &Sink{logger: logger, signer: NewSigner()}
}

// Record signs e against kek and writes it to the underlying logger. kek
// itself is never logged, only the event metadata and its signature.
func (s *Sink) Record(kek []byte, e *Event) error {
	if err := s.signer.Sign(kek, e); err != nil {
		return err
	}
	s.logger.Info().
		Str("operation", e.Operation).
		Str("root_key_id", e.RootKeyID.String()).
		Int32("l0", e.L0).
		Int32("l1", e.L1).
		Int32("l2", e.L2).
		Str("outcome", e.Outcome).
		Time("occurred_at", e.OccurredAt).
		Hex("signature", e.Signature).
		Msg("dpapi-ng operation")
	return nil
}
