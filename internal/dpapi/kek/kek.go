// Package kek derives the 32-byte AES-256 key-encryption-key from a
// GroupKeyEnvelope and a KeyIdentifier, following the symmetric or
// public-key path selected by KeyIdentifier.IsPublicKey.
package kek

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/dpapi/kdf"
	"github.com/allisson/dpapi-ng/internal/dpapi/seedtree"
)

const kdsServiceLabel = "KDS service"

// KEKLength is the AES-256 KEK output length in bytes.
const KEKLength = 32

// kekLength is kept as an internal alias so the derivation helpers below
// read naturally.
const kekLength = KEKLength

// DeriveSymmetric computes the KEK for a symmetric (non-public-key)
// KeyIdentifier: first the L2 seed for the identifier's (L0,L1,L2), then a
// final SP800-108 CTR-HMAC step keyed by that seed with the identifier's
// stored key_info as context.
func DeriveSymmetric(newHash kdf.HashFunc, l2Seed []byte, keyInfo []byte) []byte {
	label := kdf.UTF16LELabel(kdsServiceLabel)
	return kdf.CounterHMAC(newHash, l2Seed, label, keyInfo, kekLength)
}

// ResolveL2Seed produces the L2 seed for env at the KeyIdentifier's
// requested (L0,L1,L2), deriving through L1 first when the envelope only
// carries L1Key. It returns domain.ErrUnsupported if env does not dominate
// the requested (L1,L2) — derivation never walks the ratchet backward.
func ResolveL2Seed(newHash kdf.HashFunc, env *domain.GroupKeyEnvelope, ki *domain.KeyIdentifier, targetSD []byte) ([]byte, error) {
	if !env.Dominates(ki.L1, ki.L2) {
		return nil, domain.ErrUnsupported
	}

	if env.IsL2Valid() && env.L1 == ki.L1 {
		return seedtree.DeriveL2(newHash, env.L2Key, ki.RootKeyID, ki.L0, env.L2, ki.L2, targetSD)
	}

	l1Seed := env.L1Key
	if env.L1 != ki.L1 {
		var err error
		l1Seed, err = seedtree.DeriveL1FromSeed(newHash, env.L1Key, ki.RootKeyID, ki.L0, env.L1, ki.L1, targetSD)
		if err != nil {
			return nil, err
		}
	}
	return seedtree.DeriveL2(newHash, l1Seed, ki.RootKeyID, ki.L0, 31, ki.L2, targetSD)
}

// FFCDHParams carries the RFC 5114 finite-field Diffie-Hellman domain
// parameters a secret-agreement step runs against.
type FFCDHParams struct {
	P *big.Int
	G *big.Int
	Q *big.Int
}

// RFC5114MODP2048With256 returns the 2048-bit MODP group with a 256-bit
// prime-order subgroup defined in RFC 5114 section 2.3, the default
// secret-agreement parameter set GKDI uses when an envelope omits explicit
// FFC parameters.
func RFC5114MODP2048With256() *FFCDHParams {
	return &FFCDHParams{
		P: mustHex(rfc5114ModP2048With256P),
		G: mustHex(rfc5114ModP2048With256G),
		Q: mustHex(rfc5114ModP2048With256Q),
	}
}

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("kek: invalid embedded FFC-DH constant")
	}
	return n
}

// ffcdhMagic is the "DHPM" tag identifying an FFC DH parameters blob on the
// wire, per MS-GKDI's FFC_DH_PARAMETERS structure.
const ffcdhMagic = "DHPM"

// Pack serialises p as an FFC_DH_PARAMETERS blob: a 4-byte LE length
// covering the whole structure, the "DHPM" magic, then the field order (P)
// and generator (G) each left-padded to keyLengthBits/8 bytes.
func (p *FFCDHParams) Pack(keyLengthBits uint32) []byte {
	keyLen := int(keyLengthBits / 8)
	fieldOrder := leftPad(p.P.Bytes(), keyLen)
	generator := leftPad(p.G.Bytes(), keyLen)

	buf := make([]byte, 8+2*keyLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	copy(buf[4:8], ffcdhMagic)
	copy(buf[8:8+keyLen], fieldOrder)
	copy(buf[8+keyLen:], generator)
	return buf
}

func leftPad(b []byte, length int) []byte {
	if len(b) >= length {
		return b[len(b)-length:]
	}
	out := make([]byte, length)
	copy(out[length-len(b):], b)
	return out
}

// GenerateEphemeral produces a fresh private exponent of the requested bit
// length and the corresponding public value g^x mod p, for use on the
// encrypt (Protect) side of the public-key path.
func GenerateEphemeral(params *FFCDHParams, privateKeyLength uint32) (priv, pub *big.Int, err error) {
	max := new(big.Int).Lsh(big.NewInt(1), uint(privateKeyLength))
	priv, err = rand.Int(rand.Reader, max)
	if err != nil {
		return nil, nil, err
	}
	pub = new(big.Int).Exp(params.G, priv, params.P)
	return priv, pub, nil
}

// DerivePublic computes the KEK on the public-key path: a Diffie-Hellman
// secret agreement between an ephemeral private exponent and a peer public
// value, followed by the SP800-56A concat KDF over the resulting shared
// secret.
func DerivePublic(newHash kdf.HashFunc, params *FFCDHParams, ephemeralPriv, peerPub *big.Int, otherInfo []byte) []byte {
	shared := new(big.Int).Exp(peerPub, ephemeralPriv, params.P)
	return kdf.ConcatKDF(newHash, shared.Bytes(), otherInfo, kekLength)
}
