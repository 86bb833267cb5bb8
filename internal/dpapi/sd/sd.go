// Package sd synthesises the self-relative Windows security-descriptor
// bytes used as the GKDI target SD and as the cache key component: owner
// and group are always S-1-5-18 (LocalSystem), and the DACL always grants
// the protected SID 0x3 ("may unprotect") plus S-1-1-0 (Everyone) 0x2 — the
// signature two-ACE DACL Windows expects on the wire.
package sd

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
)

// LocalSystemSID is S-1-5-18, used as both owner and group of every
// synthesised target security descriptor.
const LocalSystemSID = "S-1-5-18"

// EveryoneSID is S-1-1-0, the second DACL entry every target security
// descriptor carries.
const EveryoneSID = "S-1-1-0"

const (
	accessAllowedACEType = 0x00
	seSelfRelative       = 0x8000
	seDACLPresent        = 0x0004

	mayUnprotectMask = 0x3
	everyoneMask     = 0x2
)

// SID is a parsed Windows security identifier in S-1-<authority>-<sub>...
// form.
type SID struct {
	Revision            byte
	IdentifierAuthority uint64
	SubAuthority        []uint32
}

// ParseSID parses the canonical "S-1-5-21-..." string form. It returns
// domain.ErrInvalidFormat on a malformed prefix, revision, or sub-authority.
func ParseSID(s string) (*SID, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 3 || parts[0] != "S" {
		return nil, domain.NewParseError("sid", 0, fmt.Errorf("%q is not a SID string", s))
	}
	revision, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, domain.NewParseError("sid.revision", 0, err)
	}
	authority, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, domain.NewParseError("sid.authority", 0, err)
	}

	sub := make([]uint32, 0, len(parts)-3)
	for i, p := range parts[3:] {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, domain.NewParseError(fmt.Sprintf("sid.subAuthority[%d]", i), 0, err)
		}
		sub = append(sub, uint32(v))
	}

	return &SID{Revision: byte(revision), IdentifierAuthority: authority, SubAuthority: sub}, nil
}

// Binary encodes the SID per MS-DTYP 2.4.2: 1-byte revision, 1-byte
// sub-authority count, 6-byte big-endian authority, then each sub-authority
// as a little-endian uint32.
func (s *SID) Binary() []byte {
	out := make([]byte, 8+4*len(s.SubAuthority))
	out[0] = s.Revision
	out[1] = byte(len(s.SubAuthority))

	auth := s.IdentifierAuthority
	for i := 7; i >= 2; i-- {
		out[i] = byte(auth & 0xFF)
		auth >>= 8
	}
	for i, sa := range s.SubAuthority {
		binary.LittleEndian.PutUint32(out[8+4*i:], sa)
	}
	return out
}

// ace is one access-control entry: a 4-byte header, a 4-byte access mask,
// then the trustee SID in binary form.
type ace struct {
	accessMask uint32
	sid        *SID
}

func (a *ace) binary() []byte {
	sidBin := a.sid.Binary()
	size := 8 + len(sidBin)
	out := make([]byte, size)
	out[0] = accessAllowedACEType
	out[1] = 0 // AceFlags
	binary.LittleEndian.PutUint16(out[2:4], uint16(size))
	binary.LittleEndian.PutUint32(out[4:8], a.accessMask)
	copy(out[8:], sidBin)
	return out
}

// BuildTargetSD synthesises the self-relative security descriptor bytes for
// the given protected SID string: revision 1, no SACL, owner = group =
// LocalSystemSID, DACL = [ACE(protectedSID, 0x3), ACE(EveryoneSID, 0x2)].
func BuildTargetSD(protectedSID string) ([]byte, error) {
	owner, err := ParseSID(LocalSystemSID)
	if err != nil {
		return nil, err
	}
	protected, err := ParseSID(protectedSID)
	if err != nil {
		return nil, err
	}
	everyone, err := ParseSID(EveryoneSID)
	if err != nil {
		return nil, err
	}

	ownerBin := owner.Binary()
	groupBin := owner.Binary() // group == owner == LocalSystem

	aces := []*ace{
		{accessMask: mayUnprotectMask, sid: protected},
		{accessMask: everyoneMask, sid: everyone},
	}
	var aclBody []byte
	for _, a := range aces {
		aclBody = append(aclBody, a.binary()...)
	}
	// ACL header: AclRevision(1) Sbz1(1) AclSize(2) AceCount(2) Sbz2(2)
	aclSize := 8 + len(aclBody)
	dacl := make([]byte, aclSize)
	dacl[0] = 2 // ACL_REVISION
	binary.LittleEndian.PutUint16(dacl[2:4], uint16(aclSize))
	binary.LittleEndian.PutUint16(dacl[4:6], uint16(len(aces)))
	copy(dacl[8:], aclBody)

	const fixedHeaderLen = 20
	total := fixedHeaderLen + len(ownerBin) + len(groupBin) + len(dacl)
	out := make([]byte, total)
	out[0] = 1 // Revision
	out[1] = 0 // Sbz1
	binary.LittleEndian.PutUint16(out[2:4], seSelfRelative|seDACLPresent)

	offset := fixedHeaderLen
	binary.LittleEndian.PutUint32(out[4:8], uint32(offset))
	copy(out[offset:], ownerBin)
	offset += len(ownerBin)

	binary.LittleEndian.PutUint32(out[8:12], uint32(offset))
	copy(out[offset:], groupBin)
	offset += len(groupBin)

	binary.LittleEndian.PutUint32(out[12:16], 0) // no SACL
	binary.LittleEndian.PutUint32(out[16:20], uint32(offset))
	copy(out[offset:], dacl)

	return out, nil
}
