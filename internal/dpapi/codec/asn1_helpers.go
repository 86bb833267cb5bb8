package codec

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jcmturner/gofork/encoding/asn1"
)

var (
	errUnexpectedCMSVersion = errors.New("unexpected CMS version")
	errRecipientCount       = errors.New("recipient count is not 1")
	errNotKEKRecipientInfo  = errors.New("recipient is not a KEKRecipientInfo")
	errUnknownKeyAttrOID    = errors.New("kekid.other carries an unrecognised OID")
)

// parseOID parses a dotted-decimal OID string ("2.16.840.1.101.3.4.1.45")
// into its component arcs.
func parseOID(dotted string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(dotted, ".")
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		oid[i] = v
	}
	return oid, nil
}

// wrapSequence wraps body in a DER SEQUENCE tag and length, using long-form
// length encoding once the content exceeds 127 bytes. It exists because
// AlgorithmIdentifier's optional parameters component must sometimes be
// omitted entirely rather than marshalled as a zero value, which asn1
// struct tags alone can't express.
func wrapSequence(body []byte) []byte {
	out := append([]byte{0x30}, encodeDERLength(len(body))...)
	return append(out, body...)
}

// encodeDERLength encodes n as a DER length octet sequence: short form for
// n < 128, otherwise long form with a leading count-of-octets byte.
func encodeDERLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var tmp []byte
	for n > 0 {
		tmp = append([]byte{byte(n & 0xFF)}, tmp...)
		n >>= 8
	}
	return append([]byte{0x80 | byte(len(tmp))}, tmp...)
}

// retagSequence rewrites a DER-encoded universal SEQUENCE's identifier
// octet to a context-specific constructed tag, implementing the IMPLICIT
// tag override ASN.1 struct tags can't express across a whole marshalled
// value in one pass. Only the identifier octet changes; length and content
// octets are untouched.
func retagSequence(der []byte, tagNumber byte) ([]byte, error) {
	if len(der) == 0 || der[0] != 0x30 {
		return nil, errors.New("codec: expected a universal SEQUENCE to retag")
	}
	out := append([]byte(nil), der...)
	out[0] = 0xA0 | tagNumber // context-specific, constructed
	return out, nil
}
