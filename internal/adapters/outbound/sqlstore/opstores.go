package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// SyncStatusStore persists sync-check snapshots. The per-country breakdown
// is serialized to JSON alongside the per-kind totals.
type SyncStatusStore struct {
	db *DB
}

// NewSyncStatusStore wires the store.
func NewSyncStatusStore(db *DB) *SyncStatusStore {
	return &SyncStatusStore{db: db}
}

type syncStatusRow struct {
	ID         string         `db:"id"`
	CheckedAt  time.Time      `db:"checked_at"`
	CscaDB     int            `db:"csca_db"`
	CscaLDAP   int            `db:"csca_ldap"`
	MlscDB     int            `db:"mlsc_db"`
	MlscLDAP   int            `db:"mlsc_ldap"`
	DscDB      int            `db:"dsc_db"`
	DscLDAP    int            `db:"dsc_ldap"`
	DscNcDB    int            `db:"dsc_nc_db"`
	DscNcLDAP  int            `db:"dsc_nc_ldap"`
	CrlDB      int            `db:"crl_db"`
	CrlLDAP    int            `db:"crl_ldap"`
	PerCountry sql.NullString `db:"per_country"`
	State      string         `db:"state"`
	ErrorText  sql.NullString `db:"error_text"`
}

func (r syncStatusRow) toDomain() *domain.SyncStatus {
	status := &domain.SyncStatus{
		ID:        r.ID,
		CheckedAt: r.CheckedAt,
		DBCounts: map[domain.EntityKind]int{
			domain.KindCSCA:  r.CscaDB,
			domain.KindMLSC:  r.MlscDB,
			domain.KindDSC:   r.DscDB,
			domain.KindDSCNC: r.DscNcDB,
			domain.KindCRL:   r.CrlDB,
		},
		LDAPCounts: map[domain.EntityKind]int{
			domain.KindCSCA:  r.CscaLDAP,
			domain.KindMLSC:  r.MlscLDAP,
			domain.KindDSC:   r.DscLDAP,
			domain.KindDSCNC: r.DscNcLDAP,
			domain.KindCRL:   r.CrlLDAP,
		},
		PerCountry: map[domain.EntityKind]map[string]int{},
		State:      domain.SyncState(r.State),
		Error:      r.ErrorText.String,
	}
	if r.PerCountry.String != "" {
		_ = json.Unmarshal([]byte(r.PerCountry.String), &status.PerCountry)
	}
	return status
}

func (s *SyncStatusStore) Save(ctx context.Context, status *domain.SyncStatus) (string, error) {
	perCountry, err := json.Marshal(status.PerCountry)
	if err != nil {
		perCountry = []byte("{}")
	}
	id := uuid.NewString()
	query := s.db.rebind(`INSERT INTO sync_status
		(id, checked_at, csca_db, csca_ldap, mlsc_db, mlsc_ldap, dsc_db, dsc_ldap,
		 dsc_nc_db, dsc_nc_ldap, crl_db, crl_ldap, per_country, state, error_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.conn.ExecContext(ctx, query,
		id, status.CheckedAt,
		status.DBCounts[domain.KindCSCA], status.LDAPCounts[domain.KindCSCA],
		status.DBCounts[domain.KindMLSC], status.LDAPCounts[domain.KindMLSC],
		status.DBCounts[domain.KindDSC], status.LDAPCounts[domain.KindDSC],
		status.DBCounts[domain.KindDSCNC], status.LDAPCounts[domain.KindDSCNC],
		status.DBCounts[domain.KindCRL], status.LDAPCounts[domain.KindCRL],
		string(perCountry), string(status.State), status.Error)
	if err != nil {
		return "", fmt.Errorf("%w: saving sync status: %v", ports.ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *SyncStatusStore) Latest(ctx context.Context) (*domain.SyncStatus, error) {
	var row syncStatusRow
	query := fmt.Sprintf(`SELECT id, checked_at, csca_db, csca_ldap, mlsc_db, mlsc_ldap,
		dsc_db, dsc_ldap, dsc_nc_db, dsc_nc_ldap, crl_db, crl_ldap, per_country, state, error_text
		FROM sync_status ORDER BY checked_at DESC%s`, s.db.dialect.Pagination(1, 0))
	err := s.db.conn.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no sync status recorded", ports.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return row.toDomain(), nil
}

// ReconciliationStore persists reconciliation summaries and per-op logs.
type ReconciliationStore struct {
	db *DB
}

// NewReconciliationStore wires the store.
func NewReconciliationStore(db *DB) *ReconciliationStore {
	return &ReconciliationStore{db: db}
}

func (s *ReconciliationStore) CreateSummary(ctx context.Context, summary *domain.ReconciliationSummary) (string, error) {
	id := uuid.NewString()
	query := s.db.rebind(`INSERT INTO reconciliation_summary
		(id, triggered_by, dry_run, sync_status_id, started_at, duration_ms,
		 csca_added, mlsc_added, dsc_added, crl_added, processed, succeeded, failed, status, error_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.conn.ExecContext(ctx, query,
		id, summary.TriggeredBy, summary.DryRun, summary.SyncStatusID,
		summary.StartedAt, summary.DurationMs,
		summary.CscaAdded, summary.MlscAdded, summary.DscAdded, summary.CrlAdded,
		summary.Processed, summary.Succeeded, summary.Failed,
		string(summary.Status), summary.ErrorText)
	if err != nil {
		return "", fmt.Errorf("%w: creating summary: %v", ports.ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *ReconciliationStore) UpdateSummary(ctx context.Context, summary *domain.ReconciliationSummary) error {
	query := s.db.rebind(`UPDATE reconciliation_summary SET
		finished_at = ?, duration_ms = ?, csca_added = ?, mlsc_added = ?,
		dsc_added = ?, crl_added = ?, processed = ?, succeeded = ?, failed = ?,
		status = ?, error_text = ? WHERE id = ?`)
	result, err := s.db.conn.ExecContext(ctx, query,
		summary.FinishedAt, summary.DurationMs,
		summary.CscaAdded, summary.MlscAdded, summary.DscAdded, summary.CrlAdded,
		summary.Processed, summary.Succeeded, summary.Failed,
		string(summary.Status), summary.ErrorText, summary.ID)
	if err != nil {
		return fmt.Errorf("%w: updating summary: %v", ports.ErrStoreUnavailable, err)
	}
	return requireRow(result, ports.ErrInvalidInput, summary.ID)
}

func (s *ReconciliationStore) AppendLog(ctx context.Context, log *domain.ReconciliationLog) error {
	query := s.db.rebind(fmt.Sprintf(`INSERT INTO reconciliation_log
		(id, summary_id, operation, kind, fingerprint, country_code, ldap_dn,
		 result, error_text, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, %s)`, s.db.dialect.CurrentTimestamp()))
	_, err := s.db.conn.ExecContext(ctx, query,
		uuid.NewString(), log.SummaryID, string(log.Operation), string(log.Kind),
		log.Fingerprint, log.CountryCode, log.LdapDN,
		log.Result, log.ErrorText, log.DurationMs)
	if err != nil {
		return fmt.Errorf("%w: appending log: %v", ports.ErrStoreUnavailable, err)
	}
	return nil
}

// RevalidationStore persists revalidation run records.
type RevalidationStore struct {
	db *DB
}

// NewRevalidationStore wires the store.
func NewRevalidationStore(db *DB) *RevalidationStore {
	return &RevalidationStore{db: db}
}

func (s *RevalidationStore) SaveRun(ctx context.Context, run *domain.RevalidationRun) (string, error) {
	id := uuid.NewString()
	query := s.db.rebind(`INSERT INTO revalidation_history
		(id, triggered_by, started_at, finished_at, total, valid, expired, not_yet_valid, invalid, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.conn.ExecContext(ctx, query,
		id, run.TriggeredBy, run.StartedAt, run.FinishedAt,
		run.Total, run.Valid, run.Expired, run.NotYetValid, run.Invalid, run.Errors)
	if err != nil {
		return "", fmt.Errorf("%w: saving run: %v", ports.ErrStoreUnavailable, err)
	}
	return id, nil
}

// VersionStore persists the ICAO collection version ledger.
type VersionStore struct {
	db *DB
}

// NewVersionStore wires the store.
func NewVersionStore(db *DB) *VersionStore {
	return &VersionStore{db: db}
}

func (s *VersionStore) Upsert(ctx context.Context, version *domain.IcaoVersion) (string, error) {
	existing, err := s.Get(ctx, version.Collection, version.Version)
	if err == nil {
		query := s.db.rebind(`UPDATE icao_pkd_versions SET
			file_name = ?, status = ?, downloaded_at = ?, imported_at = ? WHERE id = ?`)
		if _, err := s.db.conn.ExecContext(ctx, query,
			version.FileName, string(version.Status),
			version.DownloadedAt, version.ImportedAt, existing.ID); err != nil {
			return "", fmt.Errorf("%w: updating version: %v", ports.ErrStoreUnavailable, err)
		}
		return existing.ID, nil
	}

	id := uuid.NewString()
	query := s.db.rebind(fmt.Sprintf(`INSERT INTO icao_pkd_versions
		(id, collection, file_name, version, status, detected_at, downloaded_at, imported_at)
		VALUES (?, ?, ?, ?, ?, %s, ?, ?)`, s.db.dialect.CurrentTimestamp()))
	if _, err := s.db.conn.ExecContext(ctx, query,
		id, string(version.Collection), version.FileName, version.Version,
		string(version.Status), version.DownloadedAt, version.ImportedAt); err != nil {
		return "", fmt.Errorf("%w: inserting version: %v", ports.ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *VersionStore) Get(ctx context.Context, collection domain.CollectionType, version int) (*domain.IcaoVersion, error) {
	type versionRow struct {
		ID           string         `db:"id"`
		Collection   string         `db:"collection"`
		FileName     sql.NullString `db:"file_name"`
		Version      int            `db:"version"`
		Status       string         `db:"status"`
		DetectedAt   time.Time      `db:"detected_at"`
		DownloadedAt *time.Time     `db:"downloaded_at"`
		ImportedAt   *time.Time     `db:"imported_at"`
	}
	var row versionRow
	query := s.db.rebind(`SELECT id, collection, file_name, version, status, detected_at, downloaded_at, imported_at
		FROM icao_pkd_versions WHERE collection = ? AND version = ?`)
	err := s.db.conn.GetContext(ctx, &row, query, string(collection), version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s version %d", ports.ErrInvalidInput, collection, version)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return &domain.IcaoVersion{
		ID:           row.ID,
		Collection:   domain.CollectionType(row.Collection),
		FileName:     row.FileName.String,
		Version:      row.Version,
		Status:       domain.VersionStatus(row.Status),
		DetectedAt:   row.DetectedAt,
		DownloadedAt: row.DownloadedAt,
		ImportedAt:   row.ImportedAt,
	}, nil
}

// SyncConfigStore persists the single-row scheduler configuration.
type SyncConfigStore struct {
	db *DB
}

// NewSyncConfigStore wires the store.
func NewSyncConfigStore(db *DB) *SyncConfigStore {
	return &SyncConfigStore{db: db}
}

func (s *SyncConfigStore) Load(ctx context.Context) (ports.SyncConfig, error) {
	type configRow struct {
		DailySyncEnabled      bool `db:"daily_sync_enabled"`
		DailySyncHour         int  `db:"daily_sync_hour"`
		DailySyncMinute       int  `db:"daily_sync_minute"`
		RevalidateCertsOnSync bool `db:"revalidate_certs_on_sync"`
		AutoReconcile         bool `db:"auto_reconcile"`
		MaxReconcileBatchSize int  `db:"max_reconcile_batch_size"`
	}
	var row configRow
	query := s.db.rebind(`SELECT daily_sync_enabled, daily_sync_hour, daily_sync_minute,
		revalidate_certs_on_sync, auto_reconcile, max_reconcile_batch_size
		FROM sync_config WHERE id = ?`)
	err := s.db.conn.GetContext(ctx, &row, query, 1)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.DefaultSyncConfig(), nil
	}
	if err != nil {
		return ports.SyncConfig{}, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return ports.SyncConfig{
		DailySyncEnabled:      row.DailySyncEnabled,
		DailySyncHour:         row.DailySyncHour,
		DailySyncMinute:       row.DailySyncMinute,
		RevalidateCertsOnSync: row.RevalidateCertsOnSync,
		AutoReconcile:         row.AutoReconcile,
		MaxReconcileBatchSize: row.MaxReconcileBatchSize,
	}, nil
}

func (s *SyncConfigStore) Save(ctx context.Context, cfg ports.SyncConfig) error {
	update := s.db.rebind(`UPDATE sync_config SET
		daily_sync_enabled = ?, daily_sync_hour = ?, daily_sync_minute = ?,
		revalidate_certs_on_sync = ?, auto_reconcile = ?, max_reconcile_batch_size = ?
		WHERE id = ?`)
	result, err := s.db.conn.ExecContext(ctx, update,
		cfg.DailySyncEnabled, cfg.DailySyncHour, cfg.DailySyncMinute,
		cfg.RevalidateCertsOnSync, cfg.AutoReconcile, cfg.MaxReconcileBatchSize, 1)
	if err != nil {
		return fmt.Errorf("%w: saving sync config: %v", ports.ErrStoreUnavailable, err)
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected == 0 {
		insert := s.db.rebind(`INSERT INTO sync_config
			(id, daily_sync_enabled, daily_sync_hour, daily_sync_minute,
			 revalidate_certs_on_sync, auto_reconcile, max_reconcile_batch_size)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if _, err := s.db.conn.ExecContext(ctx, insert,
			1, cfg.DailySyncEnabled, cfg.DailySyncHour, cfg.DailySyncMinute,
			cfg.RevalidateCertsOnSync, cfg.AutoReconcile, cfg.MaxReconcileBatchSize); err != nil {
			if s.db.dialect.IsUniqueViolation(err) {
				return nil
			}
			return fmt.Errorf("%w: inserting sync config: %v", ports.ErrStoreUnavailable, err)
		}
	}
	return nil
}

// AuditLog is the relational audit sink. Best-effort by contract: failures
// are logged, never returned.
type AuditLog struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditLog wires the audit sink.
func NewAuditLog(db *DB, logger *zap.Logger) *AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLog{db: db, logger: logger}
}

func (l *AuditLog) Record(ctx context.Context, entry domain.AuditEntry) {
	metadata := "{}"
	if entry.Metadata != nil {
		if encoded, err := json.Marshal(entry.Metadata); err == nil {
			metadata = string(encoded)
		}
	}
	query := l.db.rebind(fmt.Sprintf(`INSERT INTO audit_log
		(id, operation, username, ip_address, duration_ms, success, error_text, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, %s)`, l.db.dialect.CurrentTimestamp()))
	_, err := l.db.conn.ExecContext(ctx, query,
		uuid.NewString(), string(entry.Operation), entry.Username, entry.IPAddress,
		entry.DurationMs, entry.Success, entry.ErrorText, metadata)
	if err != nil {
		l.logger.Warn("audit record not written",
			zap.String("operation", string(entry.Operation)), zap.Error(err))
	}
}

var (
	_ ports.SyncStatusStore     = (*SyncStatusStore)(nil)
	_ ports.ReconciliationStore = (*ReconciliationStore)(nil)
	_ ports.RevalidationStore   = (*RevalidationStore)(nil)
	_ ports.VersionStore        = (*VersionStore)(nil)
	_ ports.SyncConfigStore     = (*SyncConfigStore)(nil)
	_ ports.AuditLog            = (*AuditLog)(nil)
)
