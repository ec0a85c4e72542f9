package domain

import (
	"crypto/x509"
	"fmt"
	"time"

	"github.com/sufield/pkdpa/internal/assert"
)

// CRL is an immutable certificate revocation list record, content-addressed
// like certificates.
//
// (CountryCode, FingerprintSHA256) is unique in the store and
// ThisUpdate never exceeds NextUpdate.
type CRL struct {
	ID                string
	CountryCode       string
	IssuerDN          string
	ThisUpdate        time.Time
	NextUpdate        time.Time
	DER               []byte
	FingerprintSHA256 string
	StoredInLDAP      bool
}

// NewCRLFromDER parses DER bytes into a validated CRL record. The country is
// derived from the issuer DN C= component.
func NewCRLFromDER(der []byte) (*CRL, error) {
	if len(der) == 0 {
		return nil, fmt.Errorf("%w: empty DER", ErrInvalidCRL)
	}
	parsed, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCRL, err)
	}

	issuerDN := parsed.Issuer.String()
	raw := DNAttribute(issuerDN, "C")
	if raw == "" {
		return nil, fmt.Errorf("%w: no C= component in issuer %q", ErrInvalidCRL, issuerDN)
	}
	country, err := NormalizeCountry(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCRL, err)
	}

	if parsed.NextUpdate.Before(parsed.ThisUpdate) {
		return nil, fmt.Errorf("%w: thisUpdate %s after nextUpdate %s",
			ErrInvalidCRL, parsed.ThisUpdate.Format(time.RFC3339), parsed.NextUpdate.Format(time.RFC3339))
	}

	derCopy := make([]byte, len(der))
	copy(derCopy, der)

	crl := &CRL{
		CountryCode:       country,
		IssuerDN:          issuerDN,
		ThisUpdate:        parsed.ThisUpdate,
		NextUpdate:        parsed.NextUpdate,
		DER:               derCopy,
		FingerprintSHA256: Fingerprint(der),
	}

	assert.Invariant(!crl.NextUpdate.Before(crl.ThisUpdate),
		"thisUpdate must not exceed nextUpdate after construction")
	return crl, nil
}

// Parse re-parses the stored DER; the caller owns the result.
func (c *CRL) Parse() (*x509.RevocationList, error) {
	parsed, err := x509.ParseRevocationList(c.DER)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCRL, err)
	}
	return parsed, nil
}

// IsExpiredAt reports whether the CRL is past its NextUpdate time at t
// (RFC 5280: an expired CRL cannot be relied on for revocation status).
func (c *CRL) IsExpiredAt(t time.Time) bool {
	return t.After(c.NextUpdate)
}
