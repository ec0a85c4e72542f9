package ports

import (
	"time"

	"github.com/sufield/pkdpa/internal/domain"
)

// UploadMeta carries provenance for a Put into the certificate store.
type UploadMeta struct {
	UploadID       string
	SourceType     domain.SourceType
	SourceCountry  string
	SourceEntryDN  string
	SourceFileName string
}

// PARequest is one Passive Authentication submission.
type PARequest struct {
	// SOD is the raw security object: CMS SignedData, optionally inside the
	// ICAO 0x77 wrapper.
	SOD []byte
	// DataGroups maps dg number (1-16) to the raw data-group blob.
	DataGroups map[int][]byte

	// DocumentNumber and CountryCode are optional; when absent and DG1 is
	// supplied, the engine salvages both from the MRZ.
	DocumentNumber string
	CountryCode    string

	// SigningTime enables point-in-time validation when the caller knows
	// when the document was personalized.
	SigningTime *time.Time

	IPAddress string
	UserAgent string
}

// PAResult is the structured outcome of one PA run.
type PAResult struct {
	Verification domain.PaVerification
	DataGroups   []domain.DataGroupResult
	Chain        domain.ChainValidation
}

// VerificationFilter narrows PA history queries.
type VerificationFilter struct {
	Status      domain.VerificationStatus
	CountryCode string
	Limit       int
	Offset      int
}

// PaStatistics aggregates the verification history.
type PaStatistics struct {
	Total     int
	ByStatus  map[domain.VerificationStatus]int
	ByCountry map[string]int
}

// ConformanceInfo is the nc-data probe result for a DSC.
type ConformanceInfo struct {
	NonConformant bool
	Code          string
	Text          string
}

// SyncConfig is the persisted scheduler configuration.
type SyncConfig struct {
	DailySyncEnabled      bool
	DailySyncHour         int
	DailySyncMinute       int
	RevalidateCertsOnSync bool
	AutoReconcile         bool
	MaxReconcileBatchSize int
}

// DefaultSyncConfig matches a fresh deployment: daily check at midnight,
// reconcile only on demand.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		DailySyncEnabled:      true,
		DailySyncHour:         0,
		DailySyncMinute:       0,
		RevalidateCertsOnSync: false,
		AutoReconcile:         false,
		MaxReconcileBatchSize: 500,
	}
}

// ReconcileOptions parameterizes one reconciliation run.
type ReconcileOptions struct {
	DryRun       bool
	TriggeredBy  string
	SyncStatusID string
	// BatchSize caps candidates per entity kind; zero means the configured
	// maxReconcileBatchSize.
	BatchSize int
}
