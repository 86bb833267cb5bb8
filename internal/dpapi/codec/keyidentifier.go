// Package codec packs and unpacks the wire structures DPAPI-NG exchanges:
// the binary KeyIdentifier ("KDSK") structure and the CMS EnvelopedData
// blob that carries it.
package codec

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// keyIdentifierFixedHeaderLen is version + magic + flags + L0 + L1 + L2 +
// root_key_id + three 4-byte length prefixes: 4+4+4+4+4+4+16+4+4+4 = 52.
const keyIdentifierFixedHeaderLen = 52

// PackKeyIdentifier serialises a KeyIdentifier into its wire form: version,
// magic, flags, L0, L1, L2 (4-byte LE each), root_key_id as 16-byte
// bytes_le, three 4-byte LE trailer lengths, then the key_info, domain and
// forest payloads in that order. Domain/forest are encoded as UTF-16LE with
// a trailing NUL included in the stored length.
func PackKeyIdentifier(k *domain.KeyIdentifier) []byte {
	domainBytes := encodeUTF16NulTerminated(k.Domain)
	forestBytes := encodeUTF16NulTerminated(k.Forest)

	buf := make([]byte, keyIdentifierFixedHeaderLen+len(k.KeyInfo)+len(domainBytes)+len(forestBytes))

	off := 0
	binary.LittleEndian.PutUint32(buf[off:], k.Version)
	off += 4
	copy(buf[off:], domain.KeyIdentifierMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], k.Flags)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(k.L0))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(k.L1))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(k.L2))
	off += 4
	rootKeyLE, _ := k.RootKeyID.MarshalBinary()
	copy(buf[off:], uuidToBytesLE(rootKeyLE))
	off += 16
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(k.KeyInfo)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(domainBytes)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(forestBytes)))
	off += 4
	off += copy(buf[off:], k.KeyInfo)
	off += copy(buf[off:], domainBytes)
	copy(buf[off:], forestBytes)

	return buf
}

// UnpackKeyIdentifier parses the wire form produced by PackKeyIdentifier.
// It verifies the "KDSK" magic before touching anything else and returns a
// *domain.ParseError naming the failing field on any structural violation.
func UnpackKeyIdentifier(b []byte) (*domain.KeyIdentifier, error) {
	if len(b) < keyIdentifierFixedHeaderLen {
		return nil, domain.NewParseError("header", 0, errShortBuffer)
	}

	magic := b[4:8]
	if string(magic) != domain.KeyIdentifierMagic {
		return nil, domain.NewParseError("magic", 4, errBadMagic)
	}

	k := &domain.KeyIdentifier{}
	off := 0
	k.Version = binary.LittleEndian.Uint32(b[off:])
	off += 4
	off += 4 // magic, already verified
	k.Flags = binary.LittleEndian.Uint32(b[off:])
	off += 4
	k.L0 = int32(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	k.L1 = int32(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	k.L2 = int32(binary.LittleEndian.Uint32(b[off:]))
	off += 4

	rootKeyID, err := uuidFromBytesLE(b[off : off+16])
	if err != nil {
		return nil, domain.NewParseError("root_key_id", off, err)
	}
	k.RootKeyID = rootKeyID
	off += 16

	keyInfoLen := int(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	domainLen := int(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	forestLen := int(binary.LittleEndian.Uint32(b[off:]))
	off += 4

	need := off + keyInfoLen + domainLen + forestLen
	if len(b) < need {
		return nil, domain.NewParseError("trailers", off, errShortBuffer)
	}

	k.KeyInfo = append([]byte(nil), b[off:off+keyInfoLen]...)
	off += keyInfoLen

	domainStr, err := decodeUTF16NulTerminated(b[off : off+domainLen])
	if err != nil {
		return nil, domain.NewParseError("domain", off, err)
	}
	k.Domain = domainStr
	off += domainLen

	forestStr, err := decodeUTF16NulTerminated(b[off : off+forestLen])
	if err != nil {
		return nil, domain.NewParseError("forest", off, err)
	}
	k.Forest = forestStr

	return k, nil
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
		return "", errOddUTF16Length
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

// uuidToBytesLE converts the big-endian wire form MarshalBinary returns into
// Microsoft's mixed-endian bytes_le layout: the first three fields
// (time_low, time_mid, time_hi_and_version) are byte-swapped, the final two
// fields are left big-endian.
func uuidToBytesLE(be []byte) []byte {
	le := make([]byte, 16)
	le[0], le[1], le[2], le[3] = be[3], be[2], be[1], be[0]
	le[4], le[5] = be[5], be[4]
	le[6], le[7] = be[7], be[6]
	copy(le[8:], be[8:])
	return le
}

func uuidFromBytesLE(le []byte) (uuid.UUID, error) {
	be := make([]byte, 16)
	be[0], be[1], be[2], be[3] = le[3], le[2], le[1], le[0]
	be[4], be[5] = le[5], le[4]
	be[6], be[7] = le[7], le[6]
	copy(be[8:], le[8:])
	return uuid.FromBytes(be)
}
