package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"math/big"
	"sort"
	"time"

	"crypto/x509/pkix"
)

// OIDs the builder emits; they mirror what real SOD producers use.
var (
	oidSignedData        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidLDSSecurityObject = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 1}
	oidContentType       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidMessageDigest     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidSigningTime       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	oidSHA256            = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidECDSAWithSHA256   = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidSHA256WithRSA     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
)

// SODSpec describes the security object to build. Hashing is SHA-256
// throughout, the dominant choice in issued documents.
type SODSpec struct {
	DSC        *Credential
	DataGroups map[int][]byte
	// SigningTime adds the signed signingTime attribute when non-zero.
	SigningTime time.Time
	// IcaoWrapper adds the Doc 9303 application-23 tag around the CMS.
	IcaoWrapper bool
}

type ldsSecurityObjectT struct {
	Version         int
	HashAlgorithm   pkix.AlgorithmIdentifier
	DataGroupHashes []dataGroupHashT
}

type dataGroupHashT struct {
	Number int
	Hash   []byte
}

type attributeT struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue
}

type issuerAndSerialT struct {
	IssuerName   asn1.RawValue
	SerialNumber *big.Int
}

type signerInfoT struct {
	Version            int
	IssuerAndSerial    issuerAndSerialT
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
}

type encapContentT struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

type signedDataT struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo      encapContentT
	Certificates     asn1.RawValue
	SignerInfos      []signerInfoT `asn1:"set"`
}

type contentInfoT struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

// BuildSOD assembles and signs a complete security object.
func BuildSOD(spec SODSpec) []byte {
	lds := ldsSecurityObjectT{
		Version:       0,
		HashAlgorithm: algID(oidSHA256),
	}
	nums := make([]int, 0, len(spec.DataGroups))
	for n := range spec.DataGroups {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		sum := sha256.Sum256(spec.DataGroups[n])
		lds.DataGroupHashes = append(lds.DataGroupHashes, dataGroupHashT{Number: n, Hash: sum[:]})
	}
	ldsDER := mustMarshal(lds)

	contentDigest := sha256.Sum256(ldsDER)
	attrs := []attributeT{
		{Type: oidContentType, Values: rawSet(mustMarshal(oidLDSSecurityObject))},
		{Type: oidMessageDigest, Values: rawSet(mustMarshal(contentDigest[:]))},
	}
	if !spec.SigningTime.IsZero() {
		attrs = append(attrs, attributeT{
			Type:   oidSigningTime,
			Values: rawSet(mustMarshalWithParams(spec.SigningTime.UTC(), "utc")),
		})
	}
	attrsDER := mustMarshalWithParams(attrs, "set")

	attrDigest := sha256.Sum256(attrsDER)
	signature, sigAlg := sign(spec.DSC, attrDigest[:])

	// In the signer info the attribute set carries the implicit [0] tag.
	implicitAttrs := make([]byte, len(attrsDER))
	copy(implicitAttrs, attrsDER)
	implicitAttrs[0] = 0xA0

	signer := signerInfoT{
		Version: 1,
		IssuerAndSerial: issuerAndSerialT{
			IssuerName:   asn1.RawValue{FullBytes: spec.DSC.Certificate.RawIssuer},
			SerialNumber: spec.DSC.Certificate.SerialNumber,
		},
		DigestAlgorithm:    algID(oidSHA256),
		SignedAttrs:        asn1.RawValue{FullBytes: implicitAttrs},
		SignatureAlgorithm: algID(sigAlg),
		Signature:          signature,
	}

	// asn1.Marshal emits FullBytes verbatim and ignores the explicit tag
	// params, so every [0] EXPLICIT wrapper is pre-encoded here.
	sd := signedDataT{
		Version:          3,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{algID(oidSHA256)},
		ContentInfo: encapContentT{
			ContentType: oidLDSSecurityObject,
			Content:     asn1.RawValue{FullBytes: encodeTLV(0xA0, mustMarshal(ldsDER))},
		},
		Certificates: asn1.RawValue{FullBytes: encodeTLV(0xA0, spec.DSC.DER)},
		SignerInfos:  []signerInfoT{signer},
	}

	cms := mustMarshal(contentInfoT{
		ContentType: oidSignedData,
		Content:     asn1.RawValue{FullBytes: encodeTLV(0xA0, mustMarshal(sd))},
	})

	if spec.IcaoWrapper {
		return encodeTLV(0x77, cms)
	}
	return cms
}

func sign(dsc *Credential, digest []byte) ([]byte, asn1.ObjectIdentifier) {
	switch key := dsc.Key.(type) {
	case *ecdsa.PrivateKey:
		sig, err := ecdsa.SignASN1(rand.Reader, key, digest)
		if err != nil {
			panic(err)
		}
		return sig, oidECDSAWithSHA256
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
		if err != nil {
			panic(err)
		}
		return sig, oidSHA256WithRSA
	default:
		panic(fmt.Sprintf("testpki: unsupported DSC key type %T", dsc.Key))
	}
}

func algID(oid asn1.ObjectIdentifier) pkix.AlgorithmIdentifier {
	return pkix.AlgorithmIdentifier{Algorithm: oid, Parameters: asn1.NullRawValue}
}

// rawSet wraps one DER value in a SET.
func rawSet(value []byte) asn1.RawValue {
	return asn1.RawValue{FullBytes: encodeTLV(0x31, value)}
}

// encodeTLV prepends a tag and DER length octets to content.
func encodeTLV(tag byte, content []byte) []byte {
	n := len(content)
	var header []byte
	switch {
	case n < 0x80:
		header = []byte{tag, byte(n)}
	case n <= 0xFF:
		header = []byte{tag, 0x81, byte(n)}
	case n <= 0xFFFF:
		header = []byte{tag, 0x82, byte(n >> 8), byte(n)}
	default:
		header = []byte{tag, 0x83, byte(n >> 16), byte(n >> 8), byte(n)}
	}
	return append(header, content...)
}

func mustMarshal(v any) []byte {
	der, err := asn1.Marshal(v)
	if err != nil {
		panic(err)
	}
	return der
}

func mustMarshalWithParams(v any, params string) []byte {
	der, err := asn1.MarshalWithParams(v, params)
	if err != nil {
		panic(err)
	}
	return der
}
