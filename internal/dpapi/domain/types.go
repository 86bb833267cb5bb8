package domain

import "github.com/google/uuid"

// KeyIdentifierMagic is the four-byte tag identifying a KeyIdentifier on the
// wire.
const KeyIdentifierMagic = "KDSK"

// IsPublicKey is the bit-0 flag in KeyIdentifier.Flags marking a one-shot
// ephemeral DH/ECDH public key envelope rather than a symmetric seed.
const IsPublicKey uint32 = 1 << 0

// L2Valid is the bit-1 flag in GroupKeyEnvelope.Flags marking L2Key as the
// authoritative seed at (L0,L1,L2), as opposed to L1Key being the seed at
// (L0,L1) from which L2 must still be derived.
const L2Valid uint32 = 1 << 1

// KeyIdentifier identifies one leaf of the seed tree. It is immutable once
// decoded.
type KeyIdentifier struct {
	Version   uint32
	Flags     uint32
	L0        int32
	L1        int32
	L2        int32
	RootKeyID uuid.UUID
	// KeyInfo carries public key material when IsPublicKey is set, otherwise
	// the KDF context used for the final KEK derivation step.
	KeyInfo []byte
	Domain  string
	Forest  string
}

// IsPublicKey reports whether this identifier names an ephemeral DH/ECDH
// public key envelope rather than a symmetric seed.
func (k *KeyIdentifier) IsPublicKey() bool {
	return k.Flags&IsPublicKey != 0
}

// GroupKeyEnvelope is a possibly partial seed tree node returned by the KDS
// (or synthesised locally from a RootKey). It is immutable after
// derivation; the cache may only replace an entry with one at the same or
// greater (L1,L2) within the same L0.
type GroupKeyEnvelope struct {
	Version   uint32
	Flags     uint32
	L0        int32
	L1        int32
	L2        int32
	RootKeyID uuid.UUID

	KDFAlgorithm string
	KDFParams    []byte

	SecretAgreementAlgorithm string
	SecretAgreementParams    []byte
	PrivateKeyLength         uint32
	PublicKeyLength          uint32

	Domain string
	Forest string

	// L1Key is the seed at (L0,L1) from which L2 can still be derived.
	L1Key []byte
	// L2Key is the authoritative seed at (L0,L1,L2) when Flags&L2Valid.
	L2Key []byte
}

// IsL2Valid reports whether L2Key is the authoritative seed at this
// envelope's (L0,L1,L2), as opposed to needing further descent from L1Key.
func (e *GroupKeyEnvelope) IsL2Valid() bool {
	return e.Flags&L2Valid != 0
}

// IsPublicKey reports whether this envelope resulted from a one-shot
// ephemeral DH/ECDH exchange and therefore must never be cached.
func (e *GroupKeyEnvelope) IsPublicKey() bool {
	return e.Flags&IsPublicKey != 0
}

// Dominates reports whether this envelope's (L1,L2) dominates a requested
// (l1,l2) pair: cached.L1 > l1, or cached.L1 = l1 and cached.L2 >= l2.
func (e *GroupKeyEnvelope) Dominates(l1, l2 int32) bool {
	if e.L1 > l1 {
		return true
	}
	return e.L1 == l1 && e.L2 >= l2
}

// RootKey is the 64-byte msKds-RootKeyData plus the metadata needed to
// reproduce the derivation parameters a GroupKeyEnvelope would otherwise
// carry.
type RootKey struct {
	ID   uuid.UUID
	Data []byte // 64 bytes

	KDFAlgorithm string
	KDFParams    []byte

	SecretAgreementAlgorithm string
	SecretAgreementParams    []byte
	PrivateKeyLength         uint32
	PublicKeyLength          uint32
}

// Close zeroes the root key's secret material. RootKeys otherwise live as
// long as the cache.
func (r *RootKey) Close() {
	Zero(r.Data)
}

// DPAPINGBlob is the decoded form of a DPAPI-NG wire blob: a CMS
// EnvelopedData envelope carrying exactly one KEKRecipientInfo plus the
// wrapped content-encryption key and encrypted content.
type DPAPINGBlob struct {
	KeyIdentifier       KeyIdentifier
	SecurityDescriptor  []byte
	EncCEK              []byte
	EncCEKAlgorithm     string
	EncCEKParameters    []byte // nil when the algorithm carries none
	EncContent          []byte
	EncContentAlgorithm string
	EncContentParameters []byte // DER SEQUENCE{ OCTET STRING iv, INTEGER tagLen }

	// BlobInEnvelope reports which of the two content-placement modes this
	// blob was decoded from or should be packed as: true places
	// EncContent inside EncryptedContentInfo ([0] IMPLICIT OCTET STRING);
	// false (LAPS/appended style) places it as raw trailing bytes after the
	// DER-encoded ContentInfo.
	BlobInEnvelope bool
}
