package app_test

import (
	"context"
	"errors"
	"fmt"
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

type reconcileFixture struct {
	certs  *inmemory.CertificateStore
	crls   *inmemory.CRLStore
	dir    *inmemory.Directory
	runs   *inmemory.ReconciliationStore
	config *inmemory.SyncConfigStore
	audit  *inmemory.AuditLog
	svc    *app.ReconcilerService
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		certs:  inmemory.NewCertificateStore(inmemory.NewDuplicateLedger()),
		crls:   inmemory.NewCRLStore(),
		dir:    inmemory.NewDirectory("dc=pkd,dc=local"),
		runs:   inmemory.NewReconciliationStore(),
		config: inmemory.NewSyncConfigStore(),
		audit:  inmemory.NewAuditLog(),
	}
	f.svc = app.NewReconcilerService(f.certs, f.crls, f.dir, f.runs, f.config, app.WithReconcilerAudit(f.audit))
	return f
}

// storeCSCAs puts n distinct KR roots into the relational store, all flagged
// as missing from the directory.
func (f *reconcileFixture) storeCSCAs(t *testing.T, n int) []*domain.Certificate {
	t.Helper()
	now := time.Now()
	out := make([]*domain.Certificate, 0, n)
	for i := 0; i < n; i++ {
		a := testpki.NewCSCA("KR", fmt.Sprintf("CSCA Korea %02d", i), now.Add(-time.Hour), now.Add(24*time.Hour))
		cert, err := domain.NewCertificateFromDER(domain.CertTypeCSCA, a.DER, domain.SourceUpload)
		require.NoError(t, err)
		_, _, err = f.certs.Put(context.Background(), cert, ports.UploadMeta{UploadID: "u1", SourceType: domain.SourceUpload})
		require.NoError(t, err)
		out = append(out, cert)
	}
	return out
}

func (f *reconcileFixture) storeCRL(t *testing.T) *domain.CRL {
	t.Helper()
	now := time.Now()
	a := testpki.NewCSCA("DE", "CSCA DE", now.Add(-time.Hour), now.Add(24*time.Hour))
	crl, err := domain.NewCRLFromDER(a.SignCRL(nil, now.Add(-time.Hour), now.Add(24*time.Hour)))
	require.NoError(t, err)
	_, _, err = f.crls.Put(context.Background(), crl)
	require.NoError(t, err)
	return crl
}

func TestReconcile_RepairsMissingEntries(t *testing.T) {
	t.Parallel()

	f := newReconcileFixture(t)
	f.storeCSCAs(t, 3)
	f.storeCRL(t)

	summary, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST"})
	require.NoError(t, err)

	assert.Equal(t, domain.ReconcileCompleted, summary.Status)
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, summary.CscaAdded)
	assert.Equal(t, 1, summary.CrlAdded)
	assert.Equal(t, "TEST", summary.TriggeredBy)

	totals, _, err := f.dir.CountByKind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, totals[domain.KindCSCA])
	assert.Equal(t, 1, totals[domain.KindCRL])

	logs := f.runs.Logs()
	require.Len(t, logs, 4)
	for _, log := range logs {
		assert.Equal(t, "SUCCESS", log.Result)
		assert.Equal(t, summary.ID, log.SummaryID)
	}

	stored := f.runs.Summary(summary.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.ReconcileCompleted, stored.Status)

	// A second pass finds nothing left to repair.
	again, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, domain.ReconcileCompleted, again.Status)
}

func TestReconcile_DryRunTouchesNothing(t *testing.T) {
	t.Parallel()

	f := newReconcileFixture(t)
	f.storeCSCAs(t, 2)

	summary, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{DryRun: true, TriggeredBy: "TEST"})
	require.NoError(t, err)

	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.CscaAdded)
	assert.Equal(t, 2, summary.Succeeded)

	totals, _, err := f.dir.CountByKind(context.Background())
	require.NoError(t, err)
	assert.Empty(t, totals)

	// Candidates stay flagged: the real pass still repairs them.
	real, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, 2, real.CscaAdded)
}

func TestReconcile_ExistingEntryOnlyMarksRow(t *testing.T) {
	t.Parallel()

	f := newReconcileFixture(t)
	certs := f.storeCSCAs(t, 1)
	// The entry already exists, e.g. written by a concurrent upload.
	_, err := f.dir.AddCertificate(context.Background(), certs[0])
	require.NoError(t, err)

	summary, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.CscaAdded)

	again, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
}

// failingCRLStore fails the candidate query, simulating a relational outage
// mid-run.
type failingCRLStore struct{ *inmemory.CRLStore }

func (failingCRLStore) FindNotInLDAP(context.Context, int) ([]*domain.CRL, error) {
	return nil, errors.New("db gone away")
}

func TestReconcile_CandidateQueryFailureDegradesStatus(t *testing.T) {
	t.Parallel()

	f := newReconcileFixture(t)
	f.storeCSCAs(t, 2)
	svc := app.NewReconcilerService(f.certs, failingCRLStore{f.crls}, f.dir, f.runs, f.config)

	// The certificate phase repaired its candidates; only the CRL query
	// failed, so the run is PARTIAL, not FAILED.
	summary, err := svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcilePartial, summary.Status)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.ErrorText, "CRL candidate query")

	// With nothing else to repair the same failure means zero successes.
	empty := newReconcileFixture(t)
	svc = app.NewReconcilerService(empty.certs, failingCRLStore{empty.crls}, empty.dir, empty.runs, empty.config)
	summary, err = svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileFailed, summary.Status)
}

func TestReconcile_BatchSizeCapsCandidates(t *testing.T) {
	t.Parallel()

	f := newReconcileFixture(t)
	f.storeCSCAs(t, 3)

	summary, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)

	rest, err := f.svc.Reconcile(context.Background(), ports.ReconcileOptions{TriggeredBy: "TEST", BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, rest.Processed)
}
