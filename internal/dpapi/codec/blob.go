package codec

import (
	"github.com/jcmturner/gofork/encoding/asn1"

	"github.com/allisson/dpapi-ng/internal/dpapi/domain"
	"github.com/allisson/dpapi-ng/internal/dpapi/sd"
)

// OIDs used by the DPAPI-NG CMS structure. Encoded as asn1.ObjectIdentifier
// literals per the style jcmturner/gofork/encoding/asn1 consumers use
// elsewhere in this tree.
var (
	oidEnvelopedData           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}
	oidData                    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidMicrosoftSoftware       = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 74, 1}
	oidMicrosoftSoftwareSystem = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 74, 1, 1}
)

// OIDAESKeyWrapAES256 is the CEK encryption algorithm (RFC 3394 AES-256 key
// wrap).
const OIDAESKeyWrapAES256 = "2.16.840.1.101.3.4.1.45"

// OIDAES256GCM is the content encryption algorithm.
const OIDAES256GCM = "2.16.840.1.101.3.4.1.46"

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

type envelopedData struct {
	Version              int
	RecipientInfos       []asn1.RawValue `asn1:"set"`
	EncryptedContentInfo encryptedContentInfo
}

type encryptedContentInfo struct {
	ContentType                asn1.ObjectIdentifier
	ContentEncryptionAlgorithm asn1.RawValue
	EncryptedContent           []byte `asn1:"optional,tag:0"`
}

// algorithmIdentifier models AlgorithmIdentifier for decode, where
// Parameters may or may not be present. For encode, algorithmIdentifier
// bytes are built field-by-field (see marshalAlgorithmIdentifier) so a
// caller can omit Parameters entirely rather than encode a zero value —
// preserving the wire quirk noted where the original implementation skips
// the parameters field instead of encoding NULL.
type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

// derNull is the DER encoding of an ASN.1 NULL value.
var derNull = []byte{0x05, 0x00}

// marshalAlgorithmIdentifier builds the DER bytes of an AlgorithmIdentifier
// SEQUENCE. When params is nil the parameters component is omitted
// entirely; otherwise params is embedded verbatim (it must already be a
// complete DER-encoded value, e.g. derNull or a parameters SEQUENCE).
func marshalAlgorithmIdentifier(oidStr string, params []byte) ([]byte, error) {
	oidBytes, err := asn1.Marshal(mustParseOID(oidStr))
	if err != nil {
		return nil, err
	}
	body := append([]byte(nil), oidBytes...)
	body = append(body, params...)
	return wrapSequence(body), nil
}

// kekRecipientInfo is the content of a RecipientInfo CHOICE's kekri
// alternative, [2] IMPLICIT SEQUENCE per RFC 5652 section 6.2.3.
type kekRecipientInfo struct {
	Version                int
	Kekid                  kekIdentifier
	KeyEncryptionAlgorithm asn1.RawValue
	EncryptedKey           []byte
}

type kekIdentifier struct {
	KeyIdentifier []byte
	Other         otherKeyAttribute `asn1:"optional"`
}

type otherKeyAttribute struct {
	KeyAttrID            asn1.ObjectIdentifier
	ProtectionDescriptor protectionDescriptor `asn1:"optional"`
}

// protectionDescriptor models the NCryptProtectionDescriptor content: an
// inner content-type OID (always oidMicrosoftSoftwareSystem in this domain)
// followed by the triple-nested SEQUENCE wrapping a single (type, value)
// string pair — the shape the original implementation emits for every
// protection descriptor, SID-typed or not.
type protectionDescriptor struct {
	ContentType asn1.ObjectIdentifier
	Body        protectionDescriptorL2
}

type protectionDescriptorL2 struct {
	Inner protectionDescriptorL3
}

type protectionDescriptorL3 struct {
	Pair protectionDescriptorPair
}

type protectionDescriptorPair struct {
	Type  string `asn1:"utf8"`
	Value string `asn1:"utf8"`
}

// PackBlob assembles a DPAPI-NG blob for the given key identifier, wrapped
// CEK and encrypted content, binding the protectionDescriptor SID string
// into the kekid.other NCryptProtectionDescriptor. blobInEnvelope selects
// between the two content-placement modes described in domain.DPAPINGBlob.
func PackBlob(b *domain.DPAPINGBlob, protectionDescriptorSID string) ([]byte, error) {
	kekID := PackKeyIdentifier(&b.KeyIdentifier)

	kekAlgBytes, err := marshalAlgorithmIdentifier(b.EncCEKAlgorithm, derNull)
	if err != nil {
		return nil, err
	}
	contentAlgBytes, err := marshalAlgorithmIdentifier(b.EncContentAlgorithm, b.EncContentParameters)
	if err != nil {
		return nil, err
	}

	kekRI := kekRecipientInfo{
		Version: 4,
		Kekid: kekIdentifier{
			KeyIdentifier: kekID,
			Other: otherKeyAttribute{
				KeyAttrID: oidMicrosoftSoftware,
				ProtectionDescriptor: protectionDescriptor{
					ContentType: oidMicrosoftSoftwareSystem,
					Body: protectionDescriptorL2{
						Inner: protectionDescriptorL3{
							Pair: protectionDescriptorPair{
								Type:  "SID",
								Value: protectionDescriptorSID,
							},
						},
					},
				},
			},
		},
		KeyEncryptionAlgorithm: asn1.RawValue{FullBytes: kekAlgBytes},
		EncryptedKey:           b.EncCEK,
	}

	kekRIBytes, err := asn1.Marshal(kekRI)
	if err != nil {
		return nil, err
	}
	kekRIBytes, err = retagSequence(kekRIBytes, 2)
	if err != nil {
		return nil, err
	}

	eci := encryptedContentInfo{
		ContentType:                oidData,
		ContentEncryptionAlgorithm: asn1.RawValue{FullBytes: contentAlgBytes},
	}
	if b.BlobInEnvelope {
		eci.EncryptedContent = b.EncContent
	}

	ed := envelopedData{
		Version:              2,
		RecipientInfos:       []asn1.RawValue{{FullBytes: kekRIBytes}},
		EncryptedContentInfo: eci,
	}
	edBytes, err := asn1.Marshal(ed)
	if err != nil {
		return nil, err
	}

	ci := contentInfo{
		ContentType: oidEnvelopedData,
		Content:     asn1.RawValue{FullBytes: edBytes},
	}
	ciBytes, err := asn1.MarshalWithParams(ci, "")
	if err != nil {
		return nil, err
	}

	if !b.BlobInEnvelope {
		ciBytes = append(ciBytes, b.EncContent...)
	}
	return ciBytes, nil
}

// UnpackBlob parses the wire form PackBlob produces. It tolerates both
// content-placement modes: when EncryptedContentInfo carries no
// encryptedContent, the ciphertext is whatever trails the DER encoding.
func UnpackBlob(data []byte) (*domain.DPAPINGBlob, error) {
	var ci contentInfo
	rest, err := asn1.Unmarshal(data, &ci)
	if err != nil {
		return nil, domain.NewParseError("ContentInfo", 0, err)
	}

	if !ci.ContentType.Equal(oidEnvelopedData) {
		return nil, domain.ErrUnsupported
	}

	var ed envelopedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &ed); err != nil {
		return nil, domain.NewParseError("EnvelopedData", 0, err)
	}
	if ed.Version != 2 {
		return nil, domain.NewParseError("EnvelopedData.version", 0, errUnexpectedCMSVersion)
	}
	if len(ed.RecipientInfos) != 1 {
		return nil, domain.NewParseError("EnvelopedData.recipientInfos", 0, errRecipientCount)
	}

	raw := ed.RecipientInfos[0]
	if raw.Class != asn1.ClassContextSpecific || raw.Tag != 2 {
		return nil, domain.NewParseError("RecipientInfo", 0, errNotKEKRecipientInfo)
	}

	var kekRI kekRecipientInfo
	if _, err := asn1.UnmarshalWithParams(raw.FullBytes, &kekRI, "tag:2"); err != nil {
		return nil, domain.NewParseError("KEKRecipientInfo", 0, err)
	}
	if kekRI.Version != 4 {
		return nil, domain.NewParseError("KEKRecipientInfo.version", 0, errUnexpectedCMSVersion)
	}

	ki, err := UnpackKeyIdentifier(kekRI.Kekid.KeyIdentifier)
	if err != nil {
		return nil, err
	}

	var kekAlg algorithmIdentifier
	if _, err := asn1.Unmarshal(kekRI.KeyEncryptionAlgorithm.FullBytes, &kekAlg); err != nil {
		return nil, domain.NewParseError("KEKRecipientInfo.keyEncryptionAlgorithm", 0, err)
	}
	var contentAlg algorithmIdentifier
	if _, err := asn1.Unmarshal(ed.EncryptedContentInfo.ContentEncryptionAlgorithm.FullBytes, &contentAlg); err != nil {
		return nil, domain.NewParseError("EncryptedContentInfo.contentEncryptionAlgorithm", 0, err)
	}

	if kekRI.Kekid.Other.KeyAttrID == nil || !kekRI.Kekid.Other.KeyAttrID.Equal(oidMicrosoftSoftware) {
		return nil, domain.NewParseError("kekid.other.keyAttrId", 0, errUnknownKeyAttrOID)
	}
	pd := kekRI.Kekid.Other.ProtectionDescriptor
	if !pd.ContentType.Equal(oidMicrosoftSoftwareSystem) {
		return nil, domain.NewParseError("kekid.other.protectionDescriptor.contentType", 0, errUnknownKeyAttrOID)
	}
	if pd.Body.Inner.Pair.Type != "SID" {
		return nil, domain.ErrUnsupported
	}
	sidString := pd.Body.Inner.Pair.Value

	targetSD, err := sd.BuildTargetSD(sidString)
	if err != nil {
		return nil, err
	}

	encContent := ed.EncryptedContentInfo.EncryptedContent
	blobInEnvelope := true
	if len(encContent) == 0 {
		encContent = rest
		blobInEnvelope = false
	}

	return &domain.DPAPINGBlob{
		KeyIdentifier:        *ki,
		SecurityDescriptor:   targetSD,
		EncCEK:               kekRI.EncryptedKey,
		EncCEKAlgorithm:      kekAlg.Algorithm.String(),
		EncCEKParameters:     kekAlg.Parameters.FullBytes,
		EncContent:           encContent,
		EncContentAlgorithm:  contentAlg.Algorithm.String(),
		EncContentParameters: contentAlg.Parameters.FullBytes,
		BlobInEnvelope:       blobInEnvelope,
	}, nil
}

// mustParseOID parses a compile-time OID constant, panicking on failure.
func mustParseOID(dotted string) asn1.ObjectIdentifier {
	oid, err := parseOID(dotted)
	if err != nil {
		// Both OIDs this package ever marshals (AES-KW, AES-GCM) are
		// compile-time constants; a parse failure here means the constant
		// itself is malformed.
		panic(err)
	}
	return oid
}
