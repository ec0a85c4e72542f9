package domain

import "time"

// AuditOperation names an externally triggered core operation.
type AuditOperation string

const (
	AuditPaVerify     AuditOperation = "PA_VERIFY"
	AuditSyncCheck    AuditOperation = "SYNC_CHECK"
	AuditReconcile    AuditOperation = "RECONCILE"
	AuditRevalidate   AuditOperation = "REVALIDATE"
	AuditConfigChange AuditOperation = "CONFIG_CHANGE"
)

// AuditEntry is one append-only audit record. Writes are best-effort: a
// failed audit insert never fails the originating operation.
type AuditEntry struct {
	ID         string
	Operation  AuditOperation
	Username   string
	IPAddress  string
	DurationMs int64
	Success    bool
	ErrorText  string
	// Metadata is operation-specific and persisted as JSON.
	Metadata  map[string]any
	CreatedAt time.Time
}
