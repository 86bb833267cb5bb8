package kdf

import (
	"encoding/binary"
	"hash"
)

// ConcatKDF implements the SP800-56A single-step key-derivation function
// (the "concatenation KDF") used to derive the KEK from a DH/ECDH shared
// secret on the public-key path. Per SP800-56A section 5.8.1, each round
// hashes a 32-bit big-endian counter, the shared secret, and fixed
// otherInfo, concatenating rounds until outputLen bytes are produced.
func ConcatKDF(newHash func() hash.Hash, sharedSecret, otherInfo []byte, outputLen int) []byte {
	h := newHash()
	hashLen := h.Size()

	out := make([]byte, 0, outputLen+hashLen)
	counterBuf := make([]byte, 4)
	for counter := uint32(1); len(out) < outputLen; counter++ {
		binary.BigEndian.PutUint32(counterBuf, counter)
		h.Reset()
		h.Write(counterBuf)
		h.Write(sharedSecret)
		h.Write(otherInfo)
		out = h.Sum(out)
	}
	return out[:outputLen]
}
