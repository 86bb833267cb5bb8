package codec

import (
	"github.com/jcmturner/gofork/encoding/asn1"
)

// gcmParameters models RFC 5084's GCMParameters SEQUENCE, the content
// encryption AlgorithmIdentifier's parameters for AES-256-GCM.
type gcmParameters struct {
	Nonce  []byte
	ICVLen int
}

const gcmICVLen = 16

// MarshalGCMParameters builds the DER bytes of a GCMParameters SEQUENCE
// carrying iv as the nonce and the 16-byte GCM tag length.
func MarshalGCMParameters(iv []byte) ([]byte, error) {
	return asn1.Marshal(gcmParameters{Nonce: iv, ICVLen: gcmICVLen})
}

// UnmarshalGCMParameters extracts the nonce from a DER-encoded GCMParameters
// SEQUENCE.
func UnmarshalGCMParameters(der []byte) ([]byte, error) {
	var p gcmParameters
	if _, err := asn1.Unmarshal(der, &p); err != nil {
		return nil, err
	}
	return p.Nonce, nil
}
