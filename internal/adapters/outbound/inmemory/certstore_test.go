package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/adapters/outbound/inmemory"
	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
	"github.com/sufield/pkdpa/internal/testpki"
)

func storeCert(t *testing.T, s *inmemory.CertificateStore, certType domain.CertificateType, der []byte, meta ports.UploadMeta) string {
	t.Helper()
	cert, err := domain.NewCertificateFromDER(certType, der, meta.SourceType)
	require.NoError(t, err)
	id, _, err := s.Put(context.Background(), cert, meta)
	require.NoError(t, err)
	return id
}

func TestCertificateStore_PutAndDuplicates(t *testing.T) {
	t.Parallel()

	ledger := inmemory.NewDuplicateLedger()
	s := inmemory.NewCertificateStore(ledger)
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))

	id := storeCert(t, s, domain.CertTypeCSCA, csca.DER,
		ports.UploadMeta{UploadID: "upload-1", SourceType: domain.SourceUpload, SourceFileName: "a.ldif"})

	// Same certificate again: same row, duplicate flag, one sighting.
	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, csca.DER, domain.SourceUpload)
	require.NoError(t, err)
	again, duplicate, err := s.Put(context.Background(), cert,
		ports.UploadMeta{UploadID: "upload-2", SourceType: domain.SourceUpload, SourceFileName: "b.ldif"})
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, id, again)

	n, err := ledger.CountByCertificate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Replaying the same upload does not inflate the ledger.
	_, _, err = s.Put(context.Background(), cert,
		ports.UploadMeta{UploadID: "upload-2", SourceType: domain.SourceUpload, SourceFileName: "b.ldif"})
	require.NoError(t, err)
	n, err = ledger.CountByCertificate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCertificateStore_LookupAndPaging(t *testing.T) {
	t.Parallel()

	s := inmemory.NewCertificateStore(inmemory.NewDuplicateLedger())
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	storeCert(t, s, domain.CertTypeCSCA, csca.DER, ports.UploadMeta{UploadID: "u", SourceType: domain.SourceUpload})
	for i := 0; i < 3; i++ {
		dsc := csca.IssueDSC("DS", now.Add(-time.Hour), now.Add(24*time.Hour))
		storeCert(t, s, domain.CertTypeDSC, dsc.DER, ports.UploadMeta{UploadID: "u", SourceType: domain.SourceUpload})
	}

	got, err := s.GetByFingerprint(context.Background(), domain.CertTypeCSCA, domain.Fingerprint(csca.DER))
	require.NoError(t, err)
	assert.Equal(t, "KR", got.CountryCode)

	_, err = s.GetByFingerprint(context.Background(), domain.CertTypeDSC, domain.Fingerprint(csca.DER))
	assert.ErrorIs(t, err, ports.ErrCertNotFound)

	byCountry, err := s.FindByCountry(context.Background(), domain.CertTypeDSC, "KR")
	require.NoError(t, err)
	assert.Len(t, byCountry, 3)

	byIssuer, err := s.FindByIssuer(context.Background(), domain.CertTypeCSCA, got.SubjectDN, "KR")
	require.NoError(t, err)
	assert.Len(t, byIssuer, 1)

	page, err := s.List(context.Background(), domain.CertTypeDSC, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	page, err = s.List(context.Background(), domain.CertTypeDSC, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	page, err = s.List(context.Background(), domain.CertTypeDSC, 2, 5)
	require.NoError(t, err)
	assert.Empty(t, page)

	counts, err := s.CountByKind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[domain.EntityKind]int{domain.KindCSCA: 1, domain.KindDSC: 3}, counts)
}

func TestCertificateStore_LdapFlag(t *testing.T) {
	t.Parallel()

	s := inmemory.NewCertificateStore(inmemory.NewDuplicateLedger())
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	id := storeCert(t, s, domain.CertTypeCSCA, csca.DER, ports.UploadMeta{UploadID: "u", SourceType: domain.SourceUpload})

	pending, err := s.FindNotInLDAP(context.Background(), domain.CertTypeCSCA, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkStoredInLDAP(context.Background(), id))
	pending, err = s.FindNotInLDAP(context.Background(), domain.CertTypeCSCA, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, s.MarkStoredInLDAP(context.Background(), "missing"), ports.ErrCertNotFound)
}
