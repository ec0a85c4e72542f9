package domain

import "time"

// RevocationStatus is the materialized CRL outcome for a stored certificate.
type RevocationStatus string

const (
	RevocationGood    RevocationStatus = "GOOD"
	RevocationRevoked RevocationStatus = "REVOKED"
	RevocationUnknown RevocationStatus = "UNKNOWN"
)

// ValidationResult is the per-certificate row the chain validator writes
// whenever a certificate is revalidated.
type ValidationResult struct {
	ID                  string
	CertificateID       string
	TrustChainValid     bool
	CscaFound           bool
	ValidityPeriodValid bool
	RevocationStatus    RevocationStatus
	CheckedAt           time.Time
}

// RevalidationRun summarizes one pass over all stored certificates.
type RevalidationRun struct {
	ID          string
	TriggeredBy string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Valid       int
	Expired     int
	NotYetValid int
	Invalid     int
	Errors      int
}
