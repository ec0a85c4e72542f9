package app_test

import (
	"context"
	"errors"
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

type syncFixture struct {
	certs    *inmemory.CertificateStore
	crls     *inmemory.CRLStore
	dir      *inmemory.Directory
	statuses *inmemory.SyncStatusStore
	audit    *inmemory.AuditLog
	svc      *app.SyncService

	csca *testpki.Authority
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	now := time.Now()
	f := &syncFixture{
		certs:    inmemory.NewCertificateStore(inmemory.NewDuplicateLedger()),
		crls:     inmemory.NewCRLStore(),
		dir:      inmemory.NewDirectory("dc=pkd,dc=local"),
		statuses: inmemory.NewSyncStatusStore(),
		audit:    inmemory.NewAuditLog(),
	}
	f.csca = testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	f.svc = app.NewSyncService(f.certs, f.crls, f.dir, f.statuses, app.WithSyncAudit(f.audit))
	return f
}

func (f *syncFixture) storeCSCA(t *testing.T, a *testpki.Authority) *domain.Certificate {
	t.Helper()
	cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, a.DER, domain.SourceUpload)
	require.NoError(t, err)
	_, _, err = f.certs.Put(context.Background(), cert, ports.UploadMeta{UploadID: "u1", SourceType: domain.SourceUpload})
	require.NoError(t, err)
	return cert
}

func TestRunSyncCheck_Discrepancy(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t)
	f.storeCSCA(t, f.csca)
	// Directory empty: one CSCA short.

	status, err := f.svc.RunSyncCheck(context.Background(), "TEST")
	require.NoError(t, err)

	assert.Equal(t, domain.SyncDiscrepancy, status.State)
	assert.Equal(t, 1, status.DBCounts[domain.KindCSCA])
	assert.Equal(t, 0, status.LDAPCounts[domain.KindCSCA])
	assert.Equal(t, 1, status.TotalDiscrepancy())
	assert.Equal(t, map[string]int{"KR": 1}, status.PerCountry[domain.KindCSCA])

	latest, err := f.statuses.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.ID, latest.ID)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditSyncCheck, entries[0].Operation)
	assert.Equal(t, "TEST", entries[0].Username)
	assert.True(t, entries[0].Success)
}

func TestRunSyncCheck_Synced(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t)
	cert := f.storeCSCA(t, f.csca)
	_, err := f.dir.AddCertificate(context.Background(), cert)
	require.NoError(t, err)

	now := time.Now()
	crlDER := f.csca.SignCRL(nil, now.Add(-time.Hour), now.Add(24*time.Hour))
	crl, err := domain.NewCRLFromDER(crlDER)
	require.NoError(t, err)
	_, _, err = f.crls.Put(context.Background(), crl)
	require.NoError(t, err)
	_, err = f.dir.AddCRL(context.Background(), crl)
	require.NoError(t, err)

	status, err := f.svc.RunSyncCheck(context.Background(), "TEST")
	require.NoError(t, err)

	assert.Equal(t, domain.SyncSynced, status.State)
	assert.Zero(t, status.TotalDiscrepancy())
	assert.Equal(t, 1, status.DBCounts[domain.KindCRL])
	assert.Equal(t, 1, status.LDAPCounts[domain.KindCRL])
}

// brokenGateway fails the directory count while keeping the rest of the
// gateway surface intact.
type brokenGateway struct {
	*inmemory.Directory
}

func (g brokenGateway) CountByKind(ctx context.Context) (map[domain.EntityKind]int, map[domain.EntityKind]map[string]int, error) {
	return nil, nil, errors.New("connection reset")
}

func TestRunSyncCheck_LdapCountFailure(t *testing.T) {
	t.Parallel()

	f := newSyncFixture(t)
	f.storeCSCA(t, f.csca)
	svc := app.NewSyncService(f.certs, f.crls, brokenGateway{f.dir}, f.statuses, app.WithSyncAudit(f.audit))

	status, err := f.svc.RunSyncCheck(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncDiscrepancy, status.State)

	status, err = svc.RunSyncCheck(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncError, status.State)
	assert.Contains(t, status.Error, "ldap count failed")

	// The failed snapshot is still persisted.
	latest, err := f.statuses.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncError, latest.State)

	entries := f.audit.Entries()
	require.Len(t, entries, 2)
	assert.False(t, entries[1].Success)
}
