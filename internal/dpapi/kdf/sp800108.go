// Package kdf implements the two key-derivation functions the seed tree and
// KEK derivation depend on: SP800-108 counter-mode HMAC, and the SP800-56A
// concatenation KDF used on the public-key secret-agreement path.
package kdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// HashFunc constructs a fresh hash.Hash, matching the signature every
// standard library hash package exposes (sha256.New, sha512.New, ...).
type HashFunc func() hash.Hash

// HashByName resolves the ASCII hash name carried in a KDF-parameters blob
// ("SHA256", "SHA384", "SHA512") to a hash.Hash constructor. An unrecognised
// name is domain.ErrUnsupported.
func HashByName(name string) (HashFunc, error) {
	switch name {
	case "SHA256", "sha256":
		return sha256.New, nil
	case "SHA384", "sha384":
		return sha512.New384, nil
	case "SHA512", "sha512":
		return sha512.New, nil
	default:
		return nil, domain.ErrUnsupported
	}
}

// CounterHMAC implements SP800-108 counter-mode HMAC KDF (NIST SP 800-108r1,
// section 4.1). The fixed-input data for counter value i is
// label || 0x00 || context || L, where L is the requested output bit length
// as a 32-bit big-endian integer and the counter i is prefixed as a 32-bit
// big-endian integer. Successive HMAC blocks are concatenated and truncated
// to outputLen bytes.
func CounterHMAC(newHash func() hash.Hash, key, label, context []byte, outputLen int) []byte {
	mac := hmac.New(newHash, key)
	blockSize := mac.Size()

	lengthBits := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBits, uint32(outputLen)*8)

	fixed := make([]byte, 0, len(label)+1+len(context)+4)
	fixed = append(fixed, label...)
	fixed = append(fixed, 0x00)
	fixed = append(fixed, context...)
	fixed = append(fixed, lengthBits...)

	out := make([]byte, 0, outputLen+blockSize)
	counterBuf := make([]byte, 4)
	for counter := uint32(1); len(out) < outputLen; counter++ {
		binary.BigEndian.PutUint32(counterBuf, counter)
		mac.Reset()
		mac.Write(counterBuf)
		mac.Write(fixed)
		out = mac.Sum(out)
	}
	return out[:outputLen]
}

// UTF16LELabel encodes an ASCII label as UTF-16LE without a trailing NUL,
// matching the "KDS service" label the seed-tree and KEK derivations use.
func UTF16LELabel(s string) []byte {
	out := make([]byte, len(s)*2)
	for i := 0; i < len(s); i++ {
		out[i*2] = s[i]
	}
	return out
}
