package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// SyncService compares the relational and directory populations per entity
// kind and persists the snapshot. Counting is read-only on both stores.
type SyncService struct {
	certs    ports.CertificateStore
	crls     ports.CRLStore
	gateway  ports.DirectoryGateway
	statuses ports.SyncStatusStore
	audit    ports.AuditLog
	clock    func() time.Time
	logger   *zap.Logger
}

// SyncServiceOption configures a SyncService.
type SyncServiceOption func(*SyncService)

// WithSyncClock injects the time source.
func WithSyncClock(clock func() time.Time) SyncServiceOption {
	return func(s *SyncService) { s.clock = clock }
}

// WithSyncLogger sets a structured logger.
func WithSyncLogger(logger *zap.Logger) SyncServiceOption {
	return func(s *SyncService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSyncAudit attaches the audit log.
func WithSyncAudit(audit ports.AuditLog) SyncServiceOption {
	return func(s *SyncService) { s.audit = audit }
}

// NewSyncService wires a sync checker over the two populations.
func NewSyncService(certs ports.CertificateStore, crls ports.CRLStore, gateway ports.DirectoryGateway, statuses ports.SyncStatusStore, opts ...SyncServiceOption) *SyncService {
	s := &SyncService{
		certs:    certs,
		crls:     crls,
		gateway:  gateway,
		statuses: statuses,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunSyncCheck counts both sides, derives the state, and persists the
// snapshot. A counting failure yields an ERROR snapshot that is still saved;
// the snapshot save itself is the only fatal path.
func (s *SyncService) RunSyncCheck(ctx context.Context, triggeredBy string) (*domain.SyncStatus, error) {
	start := s.clock()
	status := &domain.SyncStatus{
		CheckedAt:  start,
		DBCounts:   map[domain.EntityKind]int{},
		LDAPCounts: map[domain.EntityKind]int{},
		PerCountry: map[domain.EntityKind]map[string]int{},
	}

	s.countDB(ctx, status)
	s.countLDAP(ctx, status)
	status.Finalize()

	id, saveErr := s.statuses.Save(ctx, status)
	if saveErr == nil {
		status.ID = id
	}

	if s.audit != nil {
		s.audit.Record(ctx, domain.AuditEntry{
			Operation:  domain.AuditSyncCheck,
			Username:   triggeredBy,
			DurationMs: s.clock().Sub(start).Milliseconds(),
			Success:    status.State != domain.SyncError && saveErr == nil,
			ErrorText:  status.Error,
			Metadata: map[string]any{
				"state":             string(status.State),
				"total_discrepancy": status.TotalDiscrepancy(),
			},
			CreatedAt: s.clock(),
		})
	}

	s.logger.Info("sync check completed",
		zap.String("state", string(status.State)),
		zap.Int("total_discrepancy", status.TotalDiscrepancy()),
		zap.String("triggered_by", triggeredBy))

	if saveErr != nil {
		return status, saveErr
	}
	return status, nil
}

func (s *SyncService) countDB(ctx context.Context, status *domain.SyncStatus) {
	byKind, err := s.certs.CountByKind(ctx)
	if err != nil {
		status.State = domain.SyncError
		status.Error = "certificate count failed: " + err.Error()
		s.logger.Error("sync check: certificate count failed", zap.Error(err))
		return
	}
	for kind, n := range byKind {
		status.DBCounts[kind] = n
	}

	crlCount, err := s.crls.Count(ctx)
	if err != nil {
		status.State = domain.SyncError
		status.Error = "crl count failed: " + err.Error()
		s.logger.Error("sync check: crl count failed", zap.Error(err))
		return
	}
	status.DBCounts[domain.KindCRL] = crlCount

	perCountry, err := s.certs.CountByKindAndCountry(ctx)
	if err != nil {
		s.logger.Warn("sync check: per-country certificate breakdown unavailable", zap.Error(err))
		return
	}
	for kind, counts := range perCountry {
		status.PerCountry[kind] = counts
	}
	crlByCountry, err := s.crls.CountByCountry(ctx)
	if err != nil {
		s.logger.Warn("sync check: per-country crl breakdown unavailable", zap.Error(err))
		return
	}
	status.PerCountry[domain.KindCRL] = crlByCountry
}

func (s *SyncService) countLDAP(ctx context.Context, status *domain.SyncStatus) {
	byKind, _, err := s.gateway.CountByKind(ctx)
	if err != nil {
		status.State = domain.SyncError
		status.Error = "ldap count failed: " + err.Error()
		s.logger.Error("sync check: ldap count failed", zap.Error(err))
		return
	}
	for kind, n := range byKind {
		status.LDAPCounts[kind] = n
	}
}
