package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/adapters/outbound/inmemory"
	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/testpki"
)

func TestDirectory_DNLayout(t *testing.T) {
	t.Parallel()

	d := inmemory.NewDirectory("dc=pkd,dc=local")
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))

	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, csca.DER, domain.SourceUpload)
	require.NoError(t, err)
	assert.Equal(t,
		"cn="+cert.FingerprintSHA256+",o=csca,c=KR,dc=data,dc=pkd,dc=local",
		d.CertificateDN(cert))

	// Non-conformant entries live under the nc-data branch.
	ncDSC := csca.IssueDSC("DS NC", now.Add(-time.Hour), now.Add(24*time.Hour))
	nc, err := domain.NewCertificateFromDER(domain.CertTypeDSCNC, ncDSC.DER, domain.SourceUpload)
	require.NoError(t, err)
	assert.Contains(t, d.CertificateDN(nc), "dc=nc-data")

	crl, err := domain.NewCRLFromDER(csca.SignCRL(nil, now.Add(-time.Hour), now.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t,
		"cn="+crl.FingerprintSHA256+",o=crl,c=KR,dc=data,dc=pkd,dc=local",
		d.CRLDN(crl))
}

func TestDirectory_AddAndCount(t *testing.T) {
	t.Parallel()

	d := inmemory.NewDirectory("dc=pkd,dc=local")
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, csca.DER, domain.SourceUpload)
	require.NoError(t, err)

	dn, err := d.AddCertificate(context.Background(), cert)
	require.NoError(t, err)

	// Adding twice is ALREADY_EXISTS, treated as success.
	again, err := d.AddCertificate(context.Background(), cert)
	require.NoError(t, err)
	assert.Equal(t, dn, again)

	exists, err := d.Exists(context.Background(), dn)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = d.Exists(context.Background(), "cn=missing,"+dn)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, d.EnsureParentDNs(context.Background(), "KR", domain.KindDSC, true))
	exists, err = d.Exists(context.Background(), "o=dsc,c=KR,dc=data,dc=pkd,dc=local")
	require.NoError(t, err)
	assert.True(t, exists)

	totals, perCountry, err := d.CountByKind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, totals[domain.KindCSCA])
	assert.Equal(t, 1, perCountry[domain.KindCSCA]["KR"])
}

func TestDirectory_TrustLookups(t *testing.T) {
	t.Parallel()

	d := inmemory.NewDirectory("dc=pkd,dc=local")
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, csca.DER, domain.SourceUpload)
	require.NoError(t, err)
	_, err = d.AddCertificate(context.Background(), cert)
	require.NoError(t, err)

	byIssuer, err := d.FindCscaByIssuer(context.Background(), cert.SubjectDN, "KR")
	require.NoError(t, err)
	assert.Len(t, byIssuer, 1)

	byIssuer, err = d.FindCscaByIssuer(context.Background(), "cn=other,c=KR", "KR")
	require.NoError(t, err)
	assert.Empty(t, byIssuer)

	all, err := d.FindAllCscasByCountry(context.Background(), "KR")
	require.NoError(t, err)
	assert.Len(t, all, 1)
	all, err = d.FindAllCscasByCountry(context.Background(), "DE")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDirectory_ConformanceProbe(t *testing.T) {
	t.Parallel()

	d := inmemory.NewDirectory("dc=pkd,dc=local")
	d.SeedNonConformant("KR", "abc123", "NC-7", "wrong signature algorithm")

	info, err := d.ProbeDscConformance(context.Background(), "KR", "abc123")
	require.NoError(t, err)
	assert.True(t, info.NonConformant)
	assert.Equal(t, "NC-7", info.Code)

	info, err = d.ProbeDscConformance(context.Background(), "KR", "other")
	require.NoError(t, err)
	assert.False(t, info.NonConformant)
}
