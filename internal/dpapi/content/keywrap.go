package content

import (
	"crypto/aes"
	"errors"
)

// defaultWrapIV is the RFC 3394 default integrity check value prepended to
// every wrapped key.
var defaultWrapIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// WrapCEK wraps a content-encryption key with the given KEK per RFC 3394
// AES Key Wrap. cek's length must be a multiple of 8 bytes; for this
// package's sole caller it is always the 32-byte CEK.
func WrapCEK(kek, cek []byte) ([]byte, error) {
	if len(cek)%8 != 0 {
		return nil, errors.New("content: CEK length must be a multiple of 8")
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(cek) / 8
	r := make([]byte, (n+1)*8)
	copy(r[:8], defaultWrapIV[:])
	copy(r[8:], cek)

	b := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(b[:8], r[:8])
			copy(b[8:], r[i*8:i*8+8])

			block.Encrypt(b, b)

			t := uint64(j)*uint64(n) + uint64(i)
			for k := 0; k < 8; k++ {
				b[7-k] ^= byte(t >> (8 * k))
			}

			copy(r[:8], b[:8])
			copy(r[i*8:i*8+8], b[8:])
		}
	}
	return r, nil
}

// UnwrapCEK reverses WrapCEK, returning domain-level ErrIntegrityCheckFailed
// when the recovered default IV does not match: the wrapped key was
// produced with a different KEK or has been corrupted.
func UnwrapCEK(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped)%8 != 0 || len(wrapped) < 16 {
		return nil, errors.New("content: invalid wrapped key length")
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := (len(wrapped) / 8) - 1
	r := make([]byte, (n+1)*8)
	copy(r, wrapped)

	b := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(j)*uint64(n) + uint64(i)
			copy(b[:8], r[:8])
			for k := 0; k < 8; k++ {
				b[7-k] ^= byte(t >> (8 * k))
			}
			copy(b[8:], r[i*8:i*8+8])

			block.Decrypt(b, b)

			copy(r[:8], b[:8])
			copy(r[i*8:i*8+8], b[8:])
		}
	}

	if string(r[:8]) != string(defaultWrapIV[:]) {
		return nil, ErrIntegrityCheckFailed
	}
	return r[8:], nil
}
