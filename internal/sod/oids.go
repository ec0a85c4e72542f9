package sod

import "encoding/asn1"

// OIDs used by CMS SignedData and the ICAO LDS security object.
var (
	oidSignedData             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidLDSSecurityObject      = asn1.ObjectIdentifier{2, 23, 136, 1, 1, 1}
	oidAttributeContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidAttributeMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidAttributeSigningTime   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}

	oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
)

// digestNames maps digest algorithm OIDs to their ICAO-facing names.
var digestNames = map[string]string{
	"1.3.14.3.2.26":          "SHA-1",
	"2.16.840.1.101.3.4.2.1": "SHA-256",
	"2.16.840.1.101.3.4.2.2": "SHA-384",
	"2.16.840.1.101.3.4.2.3": "SHA-512",
}

// signatureNames maps signature algorithm OIDs to their ICAO-facing names.
var signatureNames = map[string]string{
	"1.2.840.113549.1.1.5":  "SHA1withRSA",
	"1.2.840.113549.1.1.11": "SHA256withRSA",
	"1.2.840.113549.1.1.12": "SHA384withRSA",
	"1.2.840.113549.1.1.13": "SHA512withRSA",
	"1.2.840.10045.4.1":     "SHA1withECDSA",
	"1.2.840.10045.4.3.2":   "SHA256withECDSA",
	"1.2.840.10045.4.3.3":   "SHA384withECDSA",
	"1.2.840.10045.4.3.4":   "SHA512withECDSA",
}

// digestName resolves a digest OID, defaulting to SHA-256 when the OID is
// absent or unknown (the overwhelming majority of issued SODs use SHA-256).
func digestName(oid asn1.ObjectIdentifier) string {
	if name, ok := digestNames[oid.String()]; ok {
		return name
	}
	return "SHA-256"
}

// signatureName resolves a signature OID. Bare rsaEncryption is qualified by
// the signer's digest algorithm, matching how legacy DSCs encode it.
func signatureName(oid asn1.ObjectIdentifier, digest string) string {
	if name, ok := signatureNames[oid.String()]; ok {
		return name
	}
	if oid.Equal(oidRSAEncryption) {
		switch digest {
		case "SHA-1":
			return "SHA1withRSA"
		case "SHA-384":
			return "SHA384withRSA"
		case "SHA-512":
			return "SHA512withRSA"
		default:
			return "SHA256withRSA"
		}
	}
	return "SHA256withRSA"
}
