package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// certKindOrder fixes the certificate reconciliation order. The
// non-conformant DSC branch is inbound-only (entries there originate from
// ICAO deltas, never from local repair), so DSC_NC is not pushed outbound.
var certKindOrder = []struct {
	kind     domain.EntityKind
	certType domain.CertificateType
}{
	{domain.KindCSCA, domain.CertTypeCSCA},
	{domain.KindMLSC, domain.CertTypeMLSC},
	{domain.KindDSC, domain.CertTypeDSC},
}

// ReconcilerService repairs missing LDAP entries from the relational store.
// Strictly one-way: LDAP entries are only added, never removed or taken as
// the source of truth.
type ReconcilerService struct {
	certs   ports.CertificateStore
	crls    ports.CRLStore
	gateway ports.DirectoryGateway
	runs    ports.ReconciliationStore
	config  ports.SyncConfigStore
	audit   ports.AuditLog
	clock   func() time.Time
	logger  *zap.Logger
}

// ReconcilerOption configures a ReconcilerService.
type ReconcilerOption func(*ReconcilerService)

// WithReconcilerClock injects the time source.
func WithReconcilerClock(clock func() time.Time) ReconcilerOption {
	return func(r *ReconcilerService) { r.clock = clock }
}

// WithReconcilerLogger sets a structured logger.
func WithReconcilerLogger(logger *zap.Logger) ReconcilerOption {
	return func(r *ReconcilerService) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReconcilerAudit attaches the audit log.
func WithReconcilerAudit(audit ports.AuditLog) ReconcilerOption {
	return func(r *ReconcilerService) { r.audit = audit }
}

// NewReconcilerService wires the DB→LDAP repair service.
func NewReconcilerService(certs ports.CertificateStore, crls ports.CRLStore, gateway ports.DirectoryGateway, runs ports.ReconciliationStore, config ports.SyncConfigStore, opts ...ReconcilerOption) *ReconcilerService {
	r := &ReconcilerService{
		certs:   certs,
		crls:    crls,
		gateway: gateway,
		runs:    runs,
		config:  config,
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile runs one repair pass. Candidates are rows flagged as not stored
// in LDAP; for certificates each candidate is confirmed missing by a
// SCOPE_BASE lookup before an add is attempted. Per-entry failures are
// logged and counted, never abort the run.
func (r *ReconcilerService) Reconcile(ctx context.Context, opts ports.ReconcileOptions) (*domain.ReconciliationSummary, error) {
	start := r.clock()

	batch := opts.BatchSize
	if batch <= 0 {
		cfg, err := r.config.Load(ctx)
		if err != nil {
			cfg = ports.DefaultSyncConfig()
		}
		batch = cfg.MaxReconcileBatchSize
	}

	summary := &domain.ReconciliationSummary{
		TriggeredBy:  opts.TriggeredBy,
		DryRun:       opts.DryRun,
		SyncStatusID: opts.SyncStatusID,
		StartedAt:    start,
		Status:       domain.ReconcileInProgress,
	}
	id, err := r.runs.CreateSummary(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("creating reconciliation summary: %w", err)
	}
	summary.ID = id

	for _, entry := range certKindOrder {
		if err := ctx.Err(); err != nil {
			summary.ErrorText = err.Error()
			break
		}
		r.reconcileCertificates(ctx, summary, entry.kind, entry.certType, batch)
	}
	if ctx.Err() == nil {
		r.reconcileCRLs(ctx, summary, batch)
	}

	summary.FinishedAt = r.clock()
	summary.DurationMs = summary.FinishedAt.Sub(start).Milliseconds()
	if ctx.Err() != nil {
		summary.Status = domain.ReconcileFailed
	} else {
		summary.Status = summary.FinalStatus()
	}
	if err := r.runs.UpdateSummary(ctx, summary); err != nil {
		r.logger.Error("reconciliation summary update failed",
			zap.String("summary_id", summary.ID), zap.Error(err))
	}

	if r.audit != nil {
		r.audit.Record(ctx, domain.AuditEntry{
			Operation:  domain.AuditReconcile,
			Username:   opts.TriggeredBy,
			DurationMs: summary.DurationMs,
			Success:    summary.Status == domain.ReconcileCompleted,
			ErrorText:  summary.ErrorText,
			Metadata: map[string]any{
				"summary_id": summary.ID,
				"dry_run":    opts.DryRun,
				"processed":  summary.Processed,
				"succeeded":  summary.Succeeded,
				"failed":     summary.Failed,
			},
			CreatedAt: r.clock(),
		})
	}

	r.logger.Info("reconciliation finished",
		zap.String("summary_id", summary.ID),
		zap.String("status", string(summary.Status)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

func (r *ReconcilerService) reconcileCertificates(ctx context.Context, summary *domain.ReconciliationSummary, kind domain.EntityKind, certType domain.CertificateType, batch int) {
	candidates, err := r.certs.FindNotInLDAP(ctx, certType, batch)
	if err != nil {
		r.logger.Error("reconciliation candidate query failed",
			zap.String("kind", string(kind)), zap.Error(err))
		// Counted as a failure so the run outcome degrades to PARTIAL,
		// or FAILED when nothing else succeeded.
		summary.Failed++
		summary.ErrorText = fmt.Sprintf("%s candidate query: %v", kind, err)
		return
	}

	for _, cert := range candidates {
		if err := ctx.Err(); err != nil {
			summary.ErrorText = err.Error()
			return
		}
		summary.Processed++
		opStart := r.clock()
		dn := r.gateway.CertificateDN(cert)

		// A row can be flagged stale when a concurrent upload already
		// wrote the entry. Confirm before adding.
		exists, err := r.gateway.Exists(ctx, dn)
		if err != nil {
			r.recordOp(ctx, summary, kind, cert.FingerprintSHA256, cert.CountryCode, dn, opStart, err)
			continue
		}
		if exists {
			if !summary.DryRun {
				if err := r.certs.MarkStoredInLDAP(ctx, cert.ID); err != nil {
					r.recordOp(ctx, summary, kind, cert.FingerprintSHA256, cert.CountryCode, dn, opStart, err)
					continue
				}
			}
			r.recordOp(ctx, summary, kind, cert.FingerprintSHA256, cert.CountryCode, dn, opStart, nil)
			continue
		}

		if summary.DryRun {
			r.logger.Info("dry run: would add certificate",
				zap.String("kind", string(kind)), zap.String("dn", dn))
			r.countAdded(summary, kind)
			summary.Succeeded++
			continue
		}

		err = r.addCertificate(ctx, cert)
		r.recordOp(ctx, summary, kind, cert.FingerprintSHA256, cert.CountryCode, dn, opStart, err)
		if err == nil {
			r.countAdded(summary, kind)
		}
	}
}

func (r *ReconcilerService) addCertificate(ctx context.Context, cert *domain.Certificate) error {
	kind := kindForCertType(cert.Type)
	if err := r.gateway.EnsureParentDNs(ctx, cert.CountryCode, kind, cert.Conformance == domain.Conformant); err != nil {
		return err
	}
	if _, err := r.gateway.AddCertificate(ctx, cert); err != nil {
		return err
	}
	return r.certs.MarkStoredInLDAP(ctx, cert.ID)
}

func (r *ReconcilerService) reconcileCRLs(ctx context.Context, summary *domain.ReconciliationSummary, batch int) {
	candidates, err := r.crls.FindNotInLDAP(ctx, batch)
	if err != nil {
		r.logger.Error("reconciliation crl candidate query failed", zap.Error(err))
		summary.Failed++
		summary.ErrorText = fmt.Sprintf("CRL candidate query: %v", err)
		return
	}

	for _, crl := range candidates {
		if err := ctx.Err(); err != nil {
			summary.ErrorText = err.Error()
			return
		}
		summary.Processed++
		opStart := r.clock()
		dn := r.gateway.CRLDN(crl)

		if summary.DryRun {
			r.logger.Info("dry run: would add CRL", zap.String("dn", dn))
			summary.CrlAdded++
			summary.Succeeded++
			continue
		}

		err := r.addCRL(ctx, crl)
		r.recordOp(ctx, summary, domain.KindCRL, crl.FingerprintSHA256, crl.CountryCode, dn, opStart, err)
		if err == nil {
			summary.CrlAdded++
		}
	}
}

func (r *ReconcilerService) addCRL(ctx context.Context, crl *domain.CRL) error {
	if err := r.gateway.EnsureParentDNs(ctx, crl.CountryCode, domain.KindCRL, true); err != nil {
		return err
	}
	if _, err := r.gateway.AddCRL(ctx, crl); err != nil {
		return err
	}
	return r.crls.MarkStoredInLDAP(ctx, crl.ID)
}

// recordOp counts the outcome and appends the per-operation log row.
func (r *ReconcilerService) recordOp(ctx context.Context, summary *domain.ReconciliationSummary, kind domain.EntityKind, fingerprint, country, dn string, opStart time.Time, opErr error) {
	result := "SUCCESS"
	errText := ""
	if opErr != nil {
		result = "FAILED"
		errText = opErr.Error()
		summary.Failed++
		r.logger.Warn("reconciliation operation failed",
			zap.String("kind", string(kind)),
			zap.String("dn", dn),
			zap.Error(opErr))
	} else {
		summary.Succeeded++
	}

	log := &domain.ReconciliationLog{
		SummaryID:   summary.ID,
		Operation:   domain.ReconcileOpAdd,
		Kind:        kind,
		Fingerprint: fingerprint,
		CountryCode: country,
		LdapDN:      dn,
		Result:      result,
		ErrorText:   errText,
		DurationMs:  r.clock().Sub(opStart).Milliseconds(),
		CreatedAt:   r.clock(),
	}
	if err := r.runs.AppendLog(ctx, log); err != nil {
		r.logger.Warn("reconciliation log append failed", zap.Error(err))
	}
}

func (r *ReconcilerService) countAdded(summary *domain.ReconciliationSummary, kind domain.EntityKind) {
	switch kind {
	case domain.KindCSCA:
		summary.CscaAdded++
	case domain.KindMLSC:
		summary.MlscAdded++
	case domain.KindDSC:
		summary.DscAdded++
	case domain.KindCRL:
		summary.CrlAdded++
	}
}

func kindForCertType(certType domain.CertificateType) domain.EntityKind {
	switch certType {
	case domain.CertTypeCSCA:
		return domain.KindCSCA
	case domain.CertTypeMLSC:
		return domain.KindMLSC
	case domain.CertTypeDSCNC:
		return domain.KindDSCNC
	default:
		return domain.KindDSC
	}
}
