package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sufield/pkdpa/internal/domain"
)

func TestOverallStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                       string
		chain, sodSig, dg, revoked bool
		want                       domain.VerificationStatus
	}{
		{"all good", true, true, true, false, domain.VerificationValid},
		{"chain broken", false, true, true, false, domain.VerificationInvalid},
		{"sod signature bad", true, false, true, false, domain.VerificationInvalid},
		{"dg mismatch", true, true, false, false, domain.VerificationInvalid},
		{"revoked", true, true, true, true, domain.VerificationInvalid},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, domain.OverallStatus(tc.chain, tc.sodSig, tc.dg, tc.revoked))
		})
	}
}

func TestNewDataGroupResult_HashComparison(t *testing.T) {
	t.Parallel()

	// Hex comparison is case-insensitive; validity is derived, never supplied.
	r := domain.NewDataGroupResult(2, "ABCDEF01", "abcdef01", "SHA-256", nil)
	assert.True(t, r.HashValid)

	r = domain.NewDataGroupResult(2, "abcdef01", "abcdef02", "SHA-256", nil)
	assert.False(t, r.HashValid)

	r = domain.NewDataGroupResult(2, "abcdef01", "", "SHA-256", nil)
	assert.False(t, r.HashValid)
}

func TestHexEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, domain.HexEqual("0A1b", "0a1B"))
	assert.False(t, domain.HexEqual("0a1b", "0a1c"))

	assert.True(t, domain.HexEqualConstantTime("DEAD", "dead"))
	assert.False(t, domain.HexEqualConstantTime("dead", "beef"))
	assert.False(t, domain.HexEqualConstantTime("dead", "de"))
	assert.False(t, domain.HexEqualConstantTime("not-hex", "not-hex"))
}

func TestExpirationStatusFor(t *testing.T) {
	t.Parallel()

	now := time.Now()
	farOut := now.Add(365 * 24 * time.Hour)
	soon := now.Add(30 * 24 * time.Hour)

	assert.Equal(t, domain.ExpirationValid, domain.ExpirationStatusFor(now, farOut, false, false))
	assert.Equal(t, domain.ExpirationExpired, domain.ExpirationStatusFor(now, now.Add(-time.Hour), true, false))
	// CSCA expired while the DSC still holds.
	assert.Equal(t, domain.ExpirationWarning, domain.ExpirationStatusFor(now, farOut, false, true))
	// DSC inside the 90-day warning window.
	assert.Equal(t, domain.ExpirationWarning, domain.ExpirationStatusFor(now, soon, false, false))
	// DSC expiry dominates a CSCA expiry.
	assert.Equal(t, domain.ExpirationExpired, domain.ExpirationStatusFor(now, now.Add(-time.Hour), true, true))
}

func TestMessageCatalog(t *testing.T) {
	t.Parallel()

	msg := domain.MessageForCrlStatus(domain.CrlRevoked)
	assert.Equal(t, "DSC_REVOKED", msg.Code)
	assert.Equal(t, domain.SeverityCritical, msg.Severity)

	msg = domain.MessageForCrlStatus(domain.CrlUnavailable)
	assert.Equal(t, "CRL_UNAVAILABLE", msg.Code)
	assert.Equal(t, domain.SeverityWarning, msg.Severity)

	// Unknown statuses fall back rather than returning a zero message.
	msg = domain.MessageForCrlStatus(domain.CrlStatus("BOGUS"))
	assert.Equal(t, "CRL_NOT_CHECKED", msg.Code)

	msg = domain.MessageForExpirationStatus(domain.ExpirationExpired)
	assert.Equal(t, "DSC_EXPIRED", msg.Code)

	msg = domain.MessageForExpirationStatus(domain.ExpirationStatus("BOGUS"))
	assert.Equal(t, "CERT_WINDOW_VALID", msg.Code)
}
