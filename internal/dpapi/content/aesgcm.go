package content

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// CEKLength is the AES-256 content-encryption key length in bytes.
const CEKLength = 32

// GCMIVLength is the canonical IV length this package emits; Decrypt
// accepts any length the provided cipher.AEAD supports.
const GCMIVLength = 12

// GCMTagLength is the canonical GCM authentication tag length in bytes.
const GCMTagLength = 16

// GenerateCEK draws a fresh 32-byte content-encryption key and 12-byte IV
// from a cryptographically secure source, as required before every
// Protect call.
func GenerateCEK() (cek, iv []byte, err error) {
	cek = make([]byte, CEKLength)
	if _, err = rand.Read(cek); err != nil {
		return nil, nil, fmt.Errorf("content: generate CEK: %w", err)
	}
	iv = make([]byte, GCMIVLength)
	if _, err = rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("content: generate IV: %w", err)
	}
	return cek, iv, nil
}

// GCMCipher implements content encryption/decryption with AES-256-GCM.
type GCMCipher struct {
	aead cipher.AEAD
}

// NewGCMCipher builds a GCMCipher over a 32-byte CEK.
func NewGCMCipher(cek []byte) (*GCMCipher, error) {
	if len(cek) != CEKLength {
		return nil, domain.ErrUnsupported
	}
	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("content: new AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("content: new GCM: %w", err)
	}
	return &GCMCipher{aead: aead}, nil
}

// Encrypt seals plaintext under iv with no associated data, matching the
// wire format: the CMS EncryptedContentInfo carries no AAD.
func (g *GCMCipher) Encrypt(plaintext, iv []byte) []byte {
	return g.aead.Seal(nil, iv, plaintext, nil)
}

// Decrypt opens ciphertext under iv. A tag mismatch returns
// domain.ErrDecryptionFailed.
func (g *GCMCipher) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	plaintext, err := g.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, errorsWrapDecrypt(err)
	}
	return plaintext, nil
}

func errorsWrapDecrypt(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
}
