package kdf

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// kdfParametersHeaderLen is two reserved 4-byte fields, the hash-name
// length field, and one more reserved 4-byte field preceding the UTF-16LE
// hash name: 4+4+4+4 = 16.
const kdfParametersHeaderLen = 16

var errShortKDFParameters = errors.New("kdf_parameters blob too short")

// PackKDFParameters serialises the KDF-parameters blob a RootKey or
// GroupKeyEnvelope carries alongside kdf_algorithm="SP800_108_CTR_HMAC":
// a fixed 16-byte header (version, a format marker, the hash-name byte
// length including its NUL terminator, and a reserved field) followed by
// the hash name as NUL-terminated UTF-16LE.
func PackKDFParameters(hashAlgorithm string) []byte {
	name := encodeUTF16NulTerminated(hashAlgorithm)

	buf := make([]byte, kdfParametersHeaderLen+len(name))
	binary.LittleEndian.PutUint32(buf[0:4], 0)
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(name)))
	binary.LittleEndian.PutUint32(buf[12:16], 0)
	copy(buf[16:], name)
	return buf
}

// UnpackKDFParameters parses the blob PackKDFParameters produces, returning
// the ASCII hash algorithm name it carries ("SHA256", "SHA384", "SHA512").
func UnpackKDFParameters(b []byte) (string, error) {
	if len(b) < kdfParametersHeaderLen {
		return "", domain.NewParseError("kdf_parameters", 0, errShortKDFParameters)
	}

	nameLen := int(binary.LittleEndian.Uint32(b[8:12]))
	if nameLen < 2 || kdfParametersHeaderLen+nameLen > len(b) {
		return "", domain.NewParseError("kdf_parameters.hash_name", 8, errShortKDFParameters)
	}

	name, err := decodeUTF16NulTerminated(b[kdfParametersHeaderLen : kdfParametersHeaderLen+nameLen])
	if err != nil {
		return "", domain.NewParseError("kdf_parameters.hash_name", kdfParametersHeaderLen, err)
	}
	return name, nil
}

// HashFromParams resolves the hash to use for SP800-108 CTR-HMAC derivation
// from a RootKey/GroupKeyEnvelope's kdf_algorithm/kdf_parameters pair. A
// real GKDI envelope names kdf_algorithm "SP800_108_CTR_HMAC" and carries
// the actual hash name inside kdf_parameters; locally-loaded root keys may
// instead name the hash directly as kdf_algorithm with no parameters blob.
// Whenever a parameters blob is present it takes precedence, matching
// KDFParameters.unpack(rk.kdf_parameters).hash_algorithm in the original.
func HashFromParams(algorithm string, params []byte) (HashFunc, error) {
	if len(params) > 0 {
		name, err := UnpackKDFParameters(params)
		if err != nil {
			return nil, err
		}
		return HashByName(name)
	}
	return HashByName(algorithm)
}

func encodeUTF16NulTerminated(s string) []byte {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, (len(units)+1)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:], u)
	}
	// trailing NUL is already zero-valued in the final code unit slot
	return buf
}

func decodeUTF16NulTerminated(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	if len(b)%2 != 0 {
		return "", errShortKDFParameters
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	if len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units)), nil
}
