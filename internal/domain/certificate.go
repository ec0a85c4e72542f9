package domain

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/sufield/pkdpa/internal/assert"
)

// CertificateType classifies a stored certificate within the PKD.
type CertificateType string

const (
	CertTypeCSCA  CertificateType = "CSCA"
	CertTypeDSC   CertificateType = "DSC"
	CertTypeDSCNC CertificateType = "DSC_NC"
	CertTypeMLSC  CertificateType = "MLSC"
)

// Conformance tags which branch of the PKD a certificate belongs to.
type Conformance string

const (
	Conformant    Conformance = "CONFORMANT"
	NonConformant Conformance = "NON_CONFORMANT"
)

// ValidationStatus is the materialized outcome of the last revalidation pass.
type ValidationStatus string

const (
	ValidationUnknown     ValidationStatus = "UNKNOWN"
	ValidationValid       ValidationStatus = "VALID"
	ValidationExpired     ValidationStatus = "EXPIRED"
	ValidationNotYetValid ValidationStatus = "NOT_YET_VALID"
	ValidationInvalid     ValidationStatus = "INVALID"
	ValidationError       ValidationStatus = "ERROR"
)

// SourceType records how a certificate entered the store.
type SourceType string

const (
	SourceUpload      SourceType = "UPLOAD"
	SourcePAExtracted SourceType = "PA_EXTRACTED"
)

// Certificate is an immutable X.509 record keyed by (Type, FingerprintSHA256).
//
// Invariants (enforced at construction, re-checkable from DER):
//   - FingerprintSHA256 == sha256(DER), lowercase hex.
//   - CountryCode derives from the subject DN C= for CSCA/MLSC and from
//     the issuer DN C= for DSC/DSC_NC.
//   - SelfSigned ⇔ subject and issuer DN are equal under
//     format-independent comparison.
//
// The DER bytes are the source of truth; Parse() re-parses them on demand
// instead of sharing an x509.Certificate across flows.
type Certificate struct {
	ID                 string
	Type               CertificateType
	CountryCode        string
	SubjectDN          string
	IssuerDN           string
	SerialNumber       string // lowercase hex
	NotBefore          time.Time
	NotAfter           time.Time
	DER                []byte
	FingerprintSHA256  string
	SignatureAlgorithm string
	PublicKeyAlgorithm string
	PublicKeyBits      int
	SelfSigned         bool
	StoredInLDAP       bool
	Source             SourceType
	FirstUploadID      string
	ValidationStatus   ValidationStatus
	Conformance        Conformance
	CreatedAt          time.Time
}

// NewCertificateFromDER parses DER bytes into a validated Certificate.
// The caller supplies the classification and provenance; everything else is
// derived from the encoded certificate.
func NewCertificateFromDER(certType CertificateType, der []byte, source SourceType) (*Certificate, error) {
	if len(der) == 0 {
		return nil, fmt.Errorf("%w: empty DER", ErrInvalidCertificate)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	subjectDN := parsed.Subject.String()
	issuerDN := parsed.Issuer.String()

	country, err := certificateCountry(certType, subjectDN, issuerDN)
	if err != nil {
		return nil, err
	}

	conformance := Conformant
	if certType == CertTypeDSCNC {
		conformance = NonConformant
	}

	derCopy := make([]byte, len(der))
	copy(derCopy, der)

	cert := &Certificate{
		Type:               certType,
		CountryCode:        country,
		SubjectDN:          subjectDN,
		IssuerDN:           issuerDN,
		SerialNumber:       fmt.Sprintf("%x", parsed.SerialNumber),
		NotBefore:          parsed.NotBefore,
		NotAfter:           parsed.NotAfter,
		DER:                derCopy,
		FingerprintSHA256:  Fingerprint(der),
		SignatureAlgorithm: parsed.SignatureAlgorithm.String(),
		PublicKeyAlgorithm: parsed.PublicKeyAlgorithm.String(),
		PublicKeyBits:      publicKeyBits(parsed),
		SelfSigned:         DNEqual(subjectDN, issuerDN),
		Source:             source,
		ValidationStatus:   ValidationUnknown,
		Conformance:        conformance,
	}

	assert.Invariant(cert.FingerprintSHA256 != "",
		"fingerprint must be set after construction")
	assert.Invariant(len(cert.CountryCode) == 2,
		"country code must be normalized to two letters")
	return cert, nil
}

// certificateCountry derives the country from the type-appropriate DN. A certificate
// whose relevant DN carries no C= component is rejected: the directory
// layout has no place to put it.
func certificateCountry(certType CertificateType, subjectDN, issuerDN string) (string, error) {
	dn := subjectDN
	if certType == CertTypeDSC || certType == CertTypeDSCNC {
		dn = issuerDN
	}
	raw := DNAttribute(dn, "C")
	if raw == "" {
		return "", fmt.Errorf("%w: no C= component in %q", ErrInvalidCertificate, dn)
	}
	country, err := NormalizeCountry(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return country, nil
}

// Parse re-parses the stored DER. Each caller owns the returned object;
// parsed certificates are never shared between flows.
func (c *Certificate) Parse() (*x509.Certificate, error) {
	parsed, err := x509.ParseCertificate(c.DER)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return parsed, nil
}

// IsExpiredAt reports whether the certificate is past NotAfter at t.
func (c *Certificate) IsExpiredAt(t time.Time) bool {
	return t.After(c.NotAfter)
}

// IsValidAt reports whether t falls inside the validity window.
func (c *Certificate) IsValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// ValidationStatusAt computes the window-only validation status at t.
// Chain and revocation results are layered on top by the chain validator.
func (c *Certificate) ValidationStatusAt(t time.Time) ValidationStatus {
	switch {
	case t.Before(c.NotBefore):
		return ValidationNotYetValid
	case t.After(c.NotAfter):
		return ValidationExpired
	default:
		return ValidationValid
	}
}

func publicKeyBits(cert *x509.Certificate) int {
	switch key := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return key.N.BitLen()
	case *ecdsa.PublicKey:
		return key.Curve.Params().BitSize
	case ed25519.PublicKey:
		return len(key) * 8
	default:
		return 0
	}
}
