package domain

import "time"

// EntityKind enumerates the entity populations compared between the
// relational store and the LDAP directory. Link certificates are counted as
// CSCA, so they do not appear here.
type EntityKind string

const (
	KindCSCA  EntityKind = "CSCA"
	KindMLSC  EntityKind = "MLSC"
	KindDSC   EntityKind = "DSC"
	KindDSCNC EntityKind = "DSC_NC"
	KindCRL   EntityKind = "CRL"
)

// SyncedKinds is the fixed comparison order for sync checks.
var SyncedKinds = []EntityKind{KindCSCA, KindMLSC, KindDSC, KindDSCNC, KindCRL}

// SyncState is the outcome of one DB/LDAP comparison.
type SyncState string

const (
	SyncSynced      SyncState = "SYNCED"
	SyncDiscrepancy SyncState = "DISCREPANCY"
	SyncError       SyncState = "ERROR"
)

// SyncStatus is one sync-check snapshot.
//
// State == SYNCED ⇔ TotalDiscrepancy() == 0 (unless the check
// itself errored, in which case State is ERROR).
type SyncStatus struct {
	ID         string
	CheckedAt  time.Time
	DBCounts   map[EntityKind]int
	LDAPCounts map[EntityKind]int
	// PerCountry breaks DB-LDAP deltas down by country for each kind;
	// persisted as JSON alongside the totals.
	PerCountry map[EntityKind]map[string]int
	State      SyncState
	Error      string
}

// Discrepancy returns dbCount - ldapCount for one kind.
func (s *SyncStatus) Discrepancy(kind EntityKind) int {
	return s.DBCounts[kind] - s.LDAPCounts[kind]
}

// TotalDiscrepancy is the sum of absolute per-kind discrepancies.
func (s *SyncStatus) TotalDiscrepancy() int {
	total := 0
	for _, kind := range SyncedKinds {
		d := s.Discrepancy(kind)
		if d < 0 {
			d = -d
		}
		total += d
	}
	return total
}

// Finalize derives State from the counts. An errored check
// keeps SyncError regardless of counts.
func (s *SyncStatus) Finalize() {
	if s.State == SyncError {
		return
	}
	if s.TotalDiscrepancy() == 0 {
		s.State = SyncSynced
	} else {
		s.State = SyncDiscrepancy
	}
}
