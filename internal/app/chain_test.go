package app_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
	"github.com/sufield/pkdpa/internal/testpki"
)

func TestValidateChain_CrlUnavailableFailsOpen(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)
	// No CRL published for KR.

	result, err := f.validator.ValidateChain(context.Background(), f.dsc.DER, "", nil)
	require.NoError(t, err)

	// The country comes off the DSC issuer when the caller passes none.
	assert.Equal(t, "KR", result.CountryCode)
	assert.True(t, result.SignatureVerified)
	assert.True(t, result.CrlChecked)
	assert.Equal(t, domain.CrlUnavailable, result.CrlStatus)
	assert.Equal(t, "CRL_UNAVAILABLE", result.CrlMessage.Code)
	assert.False(t, result.Revoked)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.TrustChainDepth)
}

func TestValidateChain_ExpiredCrlShortCircuits(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)

	// The CRL lists the DSC serial, but it lapsed yesterday. Staleness is
	// decided before the revocation list is consulted.
	der := f.csca.SignCRL([]*big.Int{f.dsc.Certificate.SerialNumber},
		f.now.Add(-48*time.Hour), f.now.Add(-24*time.Hour))
	crl, err := domain.NewCRLFromDER(der)
	require.NoError(t, err)
	_, err = f.dir.AddCRL(context.Background(), crl)
	require.NoError(t, err)

	result, err := f.validator.ValidateChain(context.Background(), f.dsc.DER, "KR", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.CrlExpired, result.CrlStatus)
	assert.False(t, result.Revoked)
	assert.True(t, result.Valid)
	require.NotNil(t, result.CrlNextUpdate)
	assert.True(t, f.now.After(*result.CrlNextUpdate))
}

func TestValidateChain_CrlFromForeignSigner(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)

	// A CRL for the right country signed by a key other than the binding
	// CSCA must be treated as invalid, not as a revocation verdict.
	rogue := testpki.NewCSCA("KR", "CSCA Korea Rogue", f.now.Add(-time.Hour), f.now.Add(24*time.Hour))
	der := rogue.SignCRL(nil, f.now.Add(-time.Hour), f.now.Add(24*time.Hour))
	crl, err := domain.NewCRLFromDER(der)
	require.NoError(t, err)
	_, err = f.dir.AddCRL(context.Background(), crl)
	require.NoError(t, err)

	result, err := f.validator.ValidateChain(context.Background(), f.dsc.DER, "KR", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.CrlInvalid, result.CrlStatus)
	assert.False(t, result.Revoked)
	assert.True(t, result.Valid)
}

func TestValidateChain_UnparseableDSC(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)

	result, err := f.validator.ValidateChain(context.Background(), []byte{0x30, 0x03, 0x01, 0x01, 0x00}, "KR", nil)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, result.ValidationErrors, "DSC does not parse")
	assert.Equal(t, domain.CrlNotChecked, result.CrlStatus)
}

func TestValidateChain_NoUsableCountry(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)

	// A DSC whose issuer country is not an ISO alpha-2 code and no caller
	// hint. The DSC also lapsed, and the expiration verdict must say so
	// even though the chain walk stops at the country.
	odd := testpki.NewCSCA("XXX", "CSCA Nowhere", f.now.Add(-48*time.Hour), f.now.Add(24*time.Hour))
	dsc := odd.IssueDSC("DS Nowhere", f.now.Add(-48*time.Hour), f.now.Add(-24*time.Hour))

	result, err := f.validator.ValidateChain(context.Background(), dsc.DER, "", nil)
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Contains(t, result.ValidationErrors, "no usable country code")
	assert.True(t, result.DSCExpired)
	assert.Equal(t, domain.ExpirationExpired, result.ExpirationStatus)
}

func TestValidateChain_PrefersCurrentCSCAOnRollover(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)

	// Two KR roots exist after a key rollover; only the fixture's CSCA
	// actually signed the DSC, so the other must never be selected.
	f.seedCSCA(t)
	stale := testpki.NewCSCA("KR", "CSCA Korea", f.now.Add(-6*8760*time.Hour), f.now.Add(-3*8760*time.Hour))
	staleCert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, stale.DER, domain.SourceUpload)
	require.NoError(t, err)
	_, err = f.dir.AddCertificate(context.Background(), staleCert)
	require.NoError(t, err)

	result, err := f.validator.ValidateChain(context.Background(), f.dsc.DER, "KR", nil)
	require.NoError(t, err)

	assert.True(t, result.SignatureVerified)
	assert.Equal(t, f.csca.Certificate.Subject.String(), result.CSCASubject)
}

func TestRevalidateCertificate_RevokedDSC(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)
	f.seedCRL(t, f.dsc.Certificate.SerialNumber)

	cert, err := domain.NewCertificateFromDER(domain.CertTypeDSC, f.dsc.DER, domain.SourceUpload)
	require.NoError(t, err)
	_, _, err = f.certs.Put(context.Background(), cert, ports.UploadMeta{UploadID: "u1", SourceType: domain.SourceUpload})
	require.NoError(t, err)
	stored, err := f.certs.GetByFingerprint(context.Background(), domain.CertTypeDSC, cert.FingerprintSHA256)
	require.NoError(t, err)

	status, err := f.validator.RevalidateCertificate(context.Background(), stored)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationInvalid, status)

	// The outcome is materialized on the row and the result history.
	after, err := f.certs.GetByFingerprint(context.Background(), domain.CertTypeDSC, cert.FingerprintSHA256)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationInvalid, after.ValidationStatus)

	results := f.certs.ValidationResults()
	require.Len(t, results, 1)
	assert.Equal(t, domain.RevocationRevoked, results[0].RevocationStatus)
	assert.True(t, results[0].CscaFound)
	assert.False(t, results[0].TrustChainValid)
}

func TestRevalidateCertificate_ExpiredCSCA(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	old := testpki.NewCSCA("DE", "CSCA DE Old", f.now.Add(-4*8760*time.Hour), f.now.Add(-8760*time.Hour))
	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, old.DER, domain.SourceUpload)
	require.NoError(t, err)
	_, _, err = f.certs.Put(context.Background(), cert, ports.UploadMeta{UploadID: "u1", SourceType: domain.SourceUpload})
	require.NoError(t, err)
	stored, err := f.certs.GetByFingerprint(context.Background(), domain.CertTypeCSCA, cert.FingerprintSHA256)
	require.NoError(t, err)

	status, err := f.validator.RevalidateCertificate(context.Background(), stored)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationExpired, status)

	results := f.certs.ValidationResults()
	require.Len(t, results, 1)
	// Roots have no chain above them; only the window decides.
	assert.True(t, results[0].CscaFound)
	assert.False(t, results[0].ValidityPeriodValid)
	assert.Equal(t, domain.RevocationUnknown, results[0].RevocationStatus)
}
