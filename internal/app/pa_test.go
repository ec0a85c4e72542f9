package app_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/adapters/outbound/inmemory"
	"github.com/sufield/pkdpa/internal/app"
	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
	"github.com/sufield/pkdpa/internal/testpki"
)

// paFixture wires the PA pipeline over the in-memory adapters with a Korean
// CSCA and one DSC issued under it.
type paFixture struct {
	now    time.Time
	certs  *inmemory.CertificateStore
	crls   *inmemory.CRLStore
	verifs *inmemory.VerificationStore
	dir    *inmemory.Directory
	audit  *inmemory.AuditLog

	validator *app.ChainValidator
	engine    *app.PAEngine

	csca *testpki.Authority
	dsc  *testpki.Credential
}

func newPAFixture(t *testing.T) *paFixture {
	t.Helper()
	now := time.Now()
	f := &paFixture{
		now:    now,
		certs:  inmemory.NewCertificateStore(inmemory.NewDuplicateLedger()),
		crls:   inmemory.NewCRLStore(),
		verifs: inmemory.NewVerificationStore(),
		dir:    inmemory.NewDirectory("dc=pkd,dc=local"),
		audit:  inmemory.NewAuditLog(),
	}
	f.csca = testpki.NewCSCA("KR", "CSCA Korea", now.Add(-2*8760*time.Hour), now.Add(3*8760*time.Hour))
	f.dsc = f.csca.IssueDSC("DS KR 01", now.Add(-8760*time.Hour), now.Add(8760*time.Hour))

	clock := func() time.Time { return f.now }
	f.validator = app.NewChainValidator(f.dir, f.certs, app.WithChainClock(clock))
	f.engine = app.NewPAEngine(f.certs, f.verifs, f.validator,
		app.WithPAClock(clock),
		app.WithConformanceProber(f.dir),
		app.WithPAAudit(f.audit))
	return f
}

func (f *paFixture) seedCSCA(t *testing.T) {
	t.Helper()
	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, f.csca.DER, domain.SourceUpload)
	require.NoError(t, err)
	_, err = f.dir.AddCertificate(context.Background(), cert)
	require.NoError(t, err)
}

func (f *paFixture) seedCRL(t *testing.T, revoked ...*big.Int) {
	t.Helper()
	der := f.csca.SignCRL(revoked, f.now.Add(-time.Hour), f.now.Add(7*24*time.Hour))
	crl, err := domain.NewCRLFromDER(der)
	require.NoError(t, err)
	_, err = f.dir.AddCRL(context.Background(), crl)
	require.NoError(t, err)
}

func (f *paFixture) request(dsc *testpki.Credential, wrapper bool) ports.PARequest {
	dg1 := testpki.TD3MRZ("KOR", "M12345678")
	dg2 := []byte("face biometrics")
	sod := testpki.BuildSOD(testpki.SODSpec{
		DSC:         dsc,
		DataGroups:  map[int][]byte{1: dg1, 2: dg2},
		IcaoWrapper: wrapper,
	})
	return ports.PARequest{
		SOD:        sod,
		DataGroups: map[int][]byte{1: dg1, 2: dg2},
		IPAddress:  "192.0.2.10",
	}
}

func TestVerify_ValidDocument(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)
	f.seedCRL(t)

	req := f.request(f.dsc, true)
	// A data group the SOD does not cover is skipped, not failed.
	req.DataGroups[14] = []byte("extra")

	result, err := f.engine.Verify(context.Background(), req)
	require.NoError(t, err)

	v := result.Verification
	assert.Equal(t, domain.VerificationValid, v.Status)
	assert.True(t, v.ChainValid)
	assert.True(t, v.SodSignatureValid)
	assert.True(t, v.DgHashesValid)
	assert.False(t, v.Revoked)
	assert.Equal(t, domain.CrlValid, v.CrlStatus)
	assert.Equal(t, domain.ExpirationValid, v.ExpirationStatus)

	// Identity salvaged from the DG1 MRZ.
	assert.Equal(t, "M12345678", v.DocumentNumber)
	assert.Equal(t, "KR", v.CountryCode)

	require.Len(t, result.DataGroups, 2)
	for _, dg := range result.DataGroups {
		assert.True(t, dg.HashValid, "dg%d", dg.DgNumber)
	}
	assert.Equal(t, "DSC -> "+f.dsc.Certificate.Issuer.String(), result.Chain.TrustChainPath)

	// The verdict is persisted and the extracted DSC registered.
	stored, dgRows, err := f.verifs.GetByID(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationValid, stored.Status)
	assert.Len(t, dgRows, 2)

	extracted, err := f.certs.GetByFingerprint(context.Background(), domain.CertTypeDSC, domain.Fingerprint(f.dsc.DER))
	require.NoError(t, err)
	assert.Equal(t, domain.SourcePAExtracted, extracted.Source)

	entries := f.audit.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.AuditPaVerify, entries[len(entries)-1].Operation)
}

func TestVerify_MissingCSCA(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	// Directory left empty: no trust anchor for KR.

	result, err := f.engine.Verify(context.Background(), f.request(f.dsc, false))
	require.NoError(t, err)

	v := result.Verification
	assert.Equal(t, domain.VerificationInvalid, v.Status)
	assert.False(t, v.ChainValid)
	assert.Contains(t, v.ValidationErrors, "CSCA not found for issuer")

	// No CSCA means no CRL lookup is attempted.
	assert.False(t, v.CrlChecked)
	assert.Equal(t, domain.CrlNotChecked, v.CrlStatus)
}

func TestVerify_RevokedDSC(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)
	f.seedCRL(t, f.dsc.Certificate.SerialNumber)

	result, err := f.engine.Verify(context.Background(), f.request(f.dsc, false))
	require.NoError(t, err)

	v := result.Verification
	assert.Equal(t, domain.VerificationInvalid, v.Status)
	assert.True(t, v.Revoked)
	assert.Equal(t, domain.CrlRevoked, v.CrlStatus)
	assert.False(t, v.ChainValid)
	// The signature itself still verifies; revocation alone sinks the chain.
	assert.True(t, result.Chain.SignatureVerified)
	assert.Equal(t, "DSC_REVOKED", result.Chain.CrlMessage.Code)
}

func TestVerify_ExpiredDSCValidAtSigningTime(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)
	f.seedCRL(t)

	// DSC expired a year ago; the document was signed while it was valid.
	oldDSC := f.csca.IssueDSC("DS KR legacy", f.now.Add(-2*8760*time.Hour), f.now.Add(-8760*time.Hour))
	signing := f.now.Add(-18 * 730 * time.Hour)

	dg1 := testpki.TD3MRZ("KOR", "M00000001")
	sod := testpki.BuildSOD(testpki.SODSpec{
		DSC:         oldDSC,
		DataGroups:  map[int][]byte{1: dg1},
		SigningTime: signing,
	})

	result, err := f.engine.Verify(context.Background(), ports.PARequest{
		SOD:        sod,
		DataGroups: map[int][]byte{1: dg1},
	})
	require.NoError(t, err)

	v := result.Verification
	assert.Equal(t, domain.VerificationValid, v.Status)
	assert.True(t, v.ChainValid)
	assert.True(t, v.DSCExpired)
	assert.Equal(t, domain.ExpirationExpired, v.ExpirationStatus)

	require.NotNil(t, result.Chain.ValidAtSigningTime)
	assert.True(t, *result.Chain.ValidAtSigningTime)
	require.NotNil(t, result.Chain.SigningTime)
	assert.WithinDuration(t, signing, *result.Chain.SigningTime, time.Second)
}

func TestVerify_DataGroupMismatch(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)
	f.seedCRL(t)

	req := f.request(f.dsc, false)
	req.DataGroups[2] = []byte("substituted photo")

	result, err := f.engine.Verify(context.Background(), req)
	require.NoError(t, err)

	v := result.Verification
	assert.Equal(t, domain.VerificationInvalid, v.Status)
	assert.True(t, v.ChainValid)
	assert.True(t, v.SodSignatureValid)
	assert.False(t, v.DgHashesValid)

	var dg2 *domain.DataGroupResult
	for i := range result.DataGroups {
		if result.DataGroups[i].DgNumber == 2 {
			dg2 = &result.DataGroups[i]
		}
	}
	require.NotNil(t, dg2)
	assert.False(t, dg2.HashValid)
	assert.NotEqual(t, dg2.ExpectedHash, dg2.ActualHash)
}

func TestVerify_MalformedSODStillPersisted(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)

	result, err := f.engine.Verify(context.Background(), ports.PARequest{
		SOD: []byte{0xDE, 0xAD},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.VerificationError, result.Verification.Status)
	assert.Contains(t, result.Verification.ValidationErrors, "SOD parse failed")

	history, err := f.verifs.List(context.Background(), ports.VerificationFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.VerificationError, history[0].Status)
}

func TestVerify_NonConformantDSCIsFlagged(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)
	f.seedCRL(t)
	f.dir.SeedNonConformant("KR", domain.Fingerprint(f.dsc.DER), "NC-01", "missing AKI extension")

	result, err := f.engine.Verify(context.Background(), f.request(f.dsc, false))
	require.NoError(t, err)

	assert.True(t, result.Chain.DSCNonConformant)
	assert.Equal(t, "NC-01", result.Chain.PkdConformanceCode)
	// Conformance is informational: the verdict stays VALID.
	assert.Equal(t, domain.VerificationValid, result.Verification.Status)
}

// unreachableTrust fails every lookup, simulating a directory outage.
type unreachableTrust struct{}

func (unreachableTrust) FindCscaByIssuer(context.Context, string, string) ([]*domain.Certificate, error) {
	return nil, errors.New("ldap unreachable")
}

func (unreachableTrust) FindAllCscasByCountry(context.Context, string) ([]*domain.Certificate, error) {
	return nil, errors.New("ldap unreachable")
}

func (unreachableTrust) FindCrlByCountry(context.Context, string) (*domain.CRL, error) {
	return nil, errors.New("ldap unreachable")
}

func TestVerify_TrustOutageStillPersisted(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	clock := func() time.Time { return f.now }
	validator := app.NewChainValidator(unreachableTrust{}, f.certs, app.WithChainClock(clock))
	engine := app.NewPAEngine(f.certs, f.verifs, validator, app.WithPAClock(clock))

	result, err := engine.Verify(context.Background(), f.request(f.dsc, false))
	require.NoError(t, err)

	v := result.Verification
	assert.Equal(t, domain.VerificationError, v.Status)
	assert.Contains(t, v.ValidationErrors, "CSCA lookup failed")

	// The outage verdict lands in the history like any other outcome.
	history, err := f.verifs.List(context.Background(), ports.VerificationFilter{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.VerificationError, history[0].Status)
}

func TestVerify_CancelledContext(t *testing.T) {
	t.Parallel()

	f := newPAFixture(t)
	f.seedCSCA(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Verify(ctx, f.request(f.dsc, false))
	assert.ErrorIs(t, err, context.Canceled)
}
