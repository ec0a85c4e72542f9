package domain

import "time"

// ReconciliationStatus tracks a reconciliation run's lifecycle.
type ReconciliationStatus string

const (
	ReconcileInProgress ReconciliationStatus = "IN_PROGRESS"
	ReconcileCompleted  ReconciliationStatus = "COMPLETED"
	ReconcilePartial    ReconciliationStatus = "PARTIAL"
	ReconcileFailed     ReconciliationStatus = "FAILED"
)

// ReconciliationSummary aggregates one DB→LDAP repair run.
type ReconciliationSummary struct {
	ID           string
	TriggeredBy  string
	DryRun       bool
	SyncStatusID string
	StartedAt    time.Time
	FinishedAt   time.Time
	DurationMs   int64

	CscaAdded  int
	MlscAdded  int
	DscAdded   int
	CrlAdded   int
	Processed  int
	Succeeded  int
	Failed     int
	Status     ReconciliationStatus
	ErrorText  string
}

// FinalStatus derives the run outcome: COMPLETED with zero failures, FAILED
// with zero successes (when anything was attempted), PARTIAL otherwise.
func (s *ReconciliationSummary) FinalStatus() ReconciliationStatus {
	switch {
	case s.Failed == 0:
		return ReconcileCompleted
	case s.Succeeded == 0:
		return ReconcileFailed
	default:
		return ReconcilePartial
	}
}

// ReconciliationOp is one attempted directory mutation.
type ReconciliationOp string

const (
	ReconcileOpAdd    ReconciliationOp = "ADD"
	ReconcileOpDelete ReconciliationOp = "DELETE"
)

// ReconciliationLog records a single add/delete attempt within a run.
type ReconciliationLog struct {
	ID          string
	SummaryID   string
	Operation   ReconciliationOp
	Kind        EntityKind
	Fingerprint string
	CountryCode string
	LdapDN      string
	Result      string // SUCCESS or FAILED
	ErrorText   string
	DurationMs  int64
	CreatedAt   time.Time
}
