// Package sod parses ePassport Security Object Documents: a CMS SignedData
// structure (RFC 5652), optionally wrapped in the ICAO application-23 tag
// 0x77 (Doc 9303 Part 10), whose encapsulated content is an
// LDSSecurityObject listing the hash algorithm and per-data-group hashes.
//
// The ASN.1 struct shapes follow the classic Go pkcs7 layout; the ICAO
// wrapper and LDSSecurityObject decoding are specific to Doc 9303.
package sod

import (
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"crypto/x509/pkix"
)

// ErrParse indicates malformed SOD input. Every length decode is validated
// against the remaining buffer; out-of-bounds advances are hard errors.
var ErrParse = errors.New("sod parse error")

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type signedData struct {
	Version          int                        `asn1:"default:1"`
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo      contentInfo
	Certificates     rawCertificates `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue   `asn1:"optional,tag:1"`
	SignerInfos      []signerInfo    `asn1:"set"`
}

type rawCertificates struct {
	Raw asn1.RawContent
}

type issuerAndSerial struct {
	IssuerName   asn1.RawValue
	SerialNumber *big.Int
}

type signerInfo struct {
	Version            int `asn1:"default:1"`
	IssuerAndSerial    issuerAndSerial
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

// ldsSecurityObject is the encapsulated content of an ePassport SOD.
type ldsSecurityObject struct {
	Version         int
	HashAlgorithm   pkix.AlgorithmIdentifier
	DataGroupHashes []dataGroupHash
}

type dataGroupHash struct {
	Number int
	Hash   []byte
}

// SecurityObject is the parsed form of one SOD.
type SecurityObject struct {
	// Raw is the CMS DER with any ICAO 0x77 wrapper stripped.
	Raw []byte
	// HadIcaoWrapper records whether the outer 0x77 tag was present.
	HadIcaoWrapper bool

	// EncapContent is the DER of the LDSSecurityObject the signature covers.
	EncapContent []byte

	LDSVersion         int
	HashAlgorithm      string // from the LDSSecurityObject
	DigestAlgorithm    string // from the signer info
	SignatureAlgorithm string

	// DataGroupHashes maps dg number to the expected lowercase hex hash.
	// Unknown DG numbers are retained; the digester only uses the ones that
	// also appear in the supplied data-group set.
	DataGroupHashes map[int]string

	// DSCCertificate is the DER of certificates[0], the document signer.
	DSCCertificate []byte

	// SigningTime is the signed signingTime attribute, when present.
	SigningTime *time.Time

	signer signerInfo
}

// DataGroupNumbers returns the DG numbers present in the security object in
// ascending order.
func (s *SecurityObject) DataGroupNumbers() []int {
	nums := make([]int, 0, len(s.DataGroupHashes))
	for n := range s.DataGroupHashes {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Parse decodes SOD bytes: an optional ICAO tag 0x77 wrapper around a CMS
// ContentInfo of type SignedData. Anything else is rejected.
func Parse(data []byte) (*SecurityObject, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrParse)
	}

	cms := data
	wrapped := false
	if data[0] == 0x77 {
		inner, err := unwrapIcaoTag(data)
		if err != nil {
			return nil, err
		}
		cms = inner
		wrapped = true
	}

	var ci contentInfo
	rest, err := asn1.Unmarshal(cms, &ci)
	if err != nil {
		return nil, fmt.Errorf("%w: not a CMS ContentInfo: %v", ErrParse, err)
	}
	_ = rest // trailing bytes after a well-formed ContentInfo are tolerated
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, fmt.Errorf("%w: content type %s is not SignedData", ErrParse, ci.ContentType)
	}

	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, fmt.Errorf("%w: malformed SignedData: %v", ErrParse, err)
	}
	if len(sd.SignerInfos) == 0 {
		return nil, fmt.Errorf("%w: SignedData has no signer info", ErrParse)
	}

	dscDER, err := firstCertificateDER(sd.Certificates)
	if err != nil {
		return nil, err
	}

	encap, err := encapContentBytes(sd.ContentInfo)
	if err != nil {
		return nil, err
	}

	var lds ldsSecurityObject
	if _, err := asn1.Unmarshal(encap, &lds); err != nil {
		return nil, fmt.Errorf("%w: malformed LDSSecurityObject: %v", ErrParse, err)
	}

	hashes := make(map[int]string, len(lds.DataGroupHashes))
	for _, dg := range lds.DataGroupHashes {
		hashes[dg.Number] = hex.EncodeToString(dg.Hash)
	}

	signer := sd.SignerInfos[0]
	digest := digestName(signer.DigestAlgorithm.Algorithm)

	obj := &SecurityObject{
		Raw:                cms,
		HadIcaoWrapper:     wrapped,
		EncapContent:       encap,
		LDSVersion:         lds.Version,
		HashAlgorithm:      digestName(lds.HashAlgorithm.Algorithm),
		DigestAlgorithm:    digest,
		SignatureAlgorithm: signatureName(signer.SignatureAlgorithm.Algorithm, digest),
		DataGroupHashes:    hashes,
		DSCCertificate:     dscDER,
		signer:             signer,
	}
	obj.SigningTime = signedAttrTime(signer, oidAttributeSigningTime)
	return obj, nil
}

// unwrapIcaoTag strips the Doc 9303 application-23 TLV wrapper. The length
// octets are validated against the buffer before any advance.
func unwrapIcaoTag(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: truncated ICAO wrapper", ErrParse)
	}
	length, consumed, err := decodeLength(data[1:])
	if err != nil {
		return nil, err
	}
	start := 1 + consumed
	end := start + length
	if end > len(data) {
		return nil, fmt.Errorf("%w: ICAO wrapper length %d overruns buffer", ErrParse, length)
	}
	return data[start:end], nil
}

func decodeLength(data []byte) (length, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: truncated length", ErrParse)
	}
	first := data[0]
	if first < 0x80 {
		return int(first), 1, nil
	}
	numOctets := int(first & 0x7F)
	if numOctets == 0 || numOctets > 4 {
		return 0, 0, fmt.Errorf("%w: unsupported length form 0x%02X", ErrParse, first)
	}
	if len(data) < 1+numOctets {
		return 0, 0, fmt.Errorf("%w: truncated long-form length", ErrParse)
	}
	for i := 1; i <= numOctets; i++ {
		length = length<<8 | int(data[i])
	}
	if length < 0 {
		return 0, 0, fmt.Errorf("%w: negative length", ErrParse)
	}
	return length, 1 + numOctets, nil
}

// firstCertificateDER extracts certificates[0] from the raw [0] IMPLICIT
// certificate set without re-encoding the rest.
func firstCertificateDER(raw rawCertificates) ([]byte, error) {
	if len(raw.Raw) == 0 {
		return nil, fmt.Errorf("%w: SignedData carries no certificates", ErrParse)
	}
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(raw.Raw, &outer); err != nil {
		return nil, fmt.Errorf("%w: malformed certificate set: %v", ErrParse, err)
	}
	var first asn1.RawValue
	if _, err := asn1.Unmarshal(outer.Bytes, &first); err != nil {
		return nil, fmt.Errorf("%w: malformed certificate entry: %v", ErrParse, err)
	}
	return first.FullBytes, nil
}

// encapContentBytes unwraps the eContent OCTET STRING holding the
// LDSSecurityObject DER. Some producers double-wrap the octet string; one
// extra level is tolerated.
func encapContentBytes(ci contentInfo) ([]byte, error) {
	if len(ci.Content.Bytes) == 0 {
		return nil, fmt.Errorf("%w: SignedData has no encapsulated content", ErrParse)
	}
	var octets []byte
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &octets); err != nil {
		// eContent may be the bare value already
		return ci.Content.Bytes, nil
	}
	if len(octets) > 0 && octets[0] == 0x04 {
		var inner []byte
		if _, err := asn1.Unmarshal(octets, &inner); err == nil {
			return inner, nil
		}
	}
	return octets, nil
}

// signedAttrTime extracts a UTCTime/GeneralizedTime signed attribute.
func signedAttrTime(si signerInfo, oid asn1.ObjectIdentifier) *time.Time {
	value := signedAttrValue(si, oid)
	if value == nil {
		return nil
	}
	var t time.Time
	if _, err := asn1.Unmarshal(value, &t); err != nil {
		return nil
	}
	return &t
}

// signedAttrValue returns the raw DER of the first value of the named
// signed attribute, or nil.
func signedAttrValue(si signerInfo, oid asn1.ObjectIdentifier) []byte {
	rest := si.SignedAttrs.Bytes
	for len(rest) > 0 {
		var attr attribute
		var err error
		rest, err = asn1.Unmarshal(rest, &attr)
		if err != nil {
			return nil
		}
		if attr.Type.Equal(oid) {
			var value asn1.RawValue
			if _, err := asn1.Unmarshal(attr.Values.Bytes, &value); err != nil {
				return nil
			}
			return value.FullBytes
		}
	}
	return nil
}
