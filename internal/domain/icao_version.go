package domain

import (
	"fmt"
	"time"
)

// CollectionType names the ICAO PKD dataset a version record belongs to.
type CollectionType string

const (
	CollectionDscCrl     CollectionType = "DSC_CRL"
	CollectionMasterList CollectionType = "MASTERLIST"
	CollectionDscNc      CollectionType = "DSC_NC"
)

// VersionStatus is the lifecycle of one detected PKD collection version.
type VersionStatus string

const (
	VersionDetected   VersionStatus = "DETECTED"
	VersionNotified   VersionStatus = "NOTIFIED"
	VersionDownloaded VersionStatus = "DOWNLOADED"
	VersionImported   VersionStatus = "IMPORTED"
	VersionFailed     VersionStatus = "FAILED"
)

// versionRank orders the forward progression. FAILED is terminal and
// reachable from anywhere; no other backwards move is allowed.
var versionRank = map[VersionStatus]int{
	VersionDetected:   0,
	VersionNotified:   1,
	VersionDownloaded: 2,
	VersionImported:   3,
}

// IcaoVersion tracks one (collection, version) pair through its lifecycle.
//
// (CollectionType, Version) is unique and status moves
// monotonically forward.
type IcaoVersion struct {
	ID           string
	Collection   CollectionType
	FileName     string
	Version      int
	Status       VersionStatus
	DetectedAt   time.Time
	DownloadedAt *time.Time
	ImportedAt   *time.Time
}

// Transition moves the record to a new status, rejecting backward moves.
func (v *IcaoVersion) Transition(to VersionStatus) error {
	if to == VersionFailed {
		v.Status = VersionFailed
		return nil
	}
	if v.Status == VersionFailed {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidStatusTransition, VersionFailed)
	}
	from, ok := versionRank[v.Status]
	toRank, ok2 := versionRank[to]
	if !ok || !ok2 || toRank <= from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, v.Status, to)
	}
	v.Status = to
	return nil
}
