package domain

import (
	"time"
)

// VerificationStatus is the top-level outcome of a PA run.
type VerificationStatus string

const (
	VerificationValid   VerificationStatus = "VALID"
	VerificationInvalid VerificationStatus = "INVALID"
	VerificationError   VerificationStatus = "ERROR"
)

// CrlStatus is the revocation-check outcome for the DSC.
type CrlStatus string

const (
	CrlValid       CrlStatus = "VALID"
	CrlRevoked     CrlStatus = "REVOKED"
	CrlUnavailable CrlStatus = "CRL_UNAVAILABLE"
	CrlExpired     CrlStatus = "CRL_EXPIRED"
	CrlInvalid     CrlStatus = "CRL_INVALID"
	CrlNotChecked  CrlStatus = "NOT_CHECKED"
)

// ExpirationStatus summarizes certificate-window health for the chain.
type ExpirationStatus string

const (
	ExpirationValid   ExpirationStatus = "VALID"
	ExpirationWarning ExpirationStatus = "WARNING"
	ExpirationExpired ExpirationStatus = "EXPIRED"
)

// expiryWarningWindow is how close to NotAfter a DSC may get before the
// expiration status degrades to WARNING.
const expiryWarningWindow = 90 * 24 * time.Hour

// ChainValidation is the chain validator's full result for one DSC.
type ChainValidation struct {
	Valid             bool
	SignatureVerified bool
	ValidationErrors  string

	CountryCode string

	DSCSubject      string
	DSCIssuer       string
	DSCSerialNumber string
	DSCExpired      bool

	CSCASubject      string
	CSCASerialNumber string
	CSCAExpired      bool

	// Point-in-time validation (ICAO Doc 9303: trust is evaluated at the
	// document's signing moment, not now). Nil when no signing time was
	// supplied by the caller.
	SigningTime        *time.Time
	ValidAtSigningTime *bool

	ExpirationStatus  ExpirationStatus
	ExpirationMessage StatusMessage

	CrlChecked    bool
	Revoked       bool
	CrlStatus     CrlStatus
	CrlThisUpdate *time.Time
	CrlNextUpdate *time.Time
	CrlMessage    StatusMessage

	DSCNonConformant   bool
	PkdConformanceCode string
	PkdConformanceText string

	TrustChainPath  string
	TrustChainDepth int
}

// PaVerification is the persisted record of one Passive Authentication run.
// Created once at the end of the pipeline, never mutated.
//
// Status == VALID ⇔ ChainValid ∧ SodSignatureValid ∧
// DgHashesValid ∧ ¬Revoked.
type PaVerification struct {
	ID             string
	DocumentNumber string
	CountryCode    string
	Status         VerificationStatus

	SodHash string // sha-256 over the submitted SOD bytes

	DSCSubject      string
	DSCSerialNumber string
	DSCIssuer       string
	DSCExpired      bool

	CSCASubject      string
	CSCASerialNumber string
	CSCAExpired      bool

	ChainValid        bool
	SodSignatureValid bool
	DgHashesValid     bool

	CrlChecked       bool
	Revoked          bool
	CrlStatus        CrlStatus
	ExpirationStatus ExpirationStatus

	ValidationErrors string

	CreatedAt        time.Time
	IPAddress        string
	UserAgent        string
	ProcessingTimeMs int64
}

// OverallStatus derives the top-level verification status.
func OverallStatus(chainValid, sodSignatureValid, dgHashesValid, revoked bool) VerificationStatus {
	if chainValid && sodSignatureValid && dgHashesValid && !revoked {
		return VerificationValid
	}
	return VerificationInvalid
}

// DataGroupResult is the per-data-group hash comparison outcome.
//
// HashValid ⇔ ExpectedHash == ActualHash under
// case-insensitive hex comparison.
type DataGroupResult struct {
	VerificationID string
	DgNumber       int
	ExpectedHash   string
	ActualHash     string
	HashAlgorithm  string
	HashValid      bool
	DgBinary       []byte
}

// NewDataGroupResult builds a result with HashValid derived, never supplied.
func NewDataGroupResult(dgNumber int, expected, actual, algorithm string, binary []byte) DataGroupResult {
	return DataGroupResult{
		DgNumber:      dgNumber,
		ExpectedHash:  expected,
		ActualHash:    actual,
		HashAlgorithm: algorithm,
		HashValid:     HexEqualConstantTime(expected, actual),
		DgBinary:      binary,
	}
}

// ExpirationStatusFor computes the chain expiration status per the PKD rules:
// EXPIRED whenever the DSC itself is expired; WARNING when the CSCA is
// expired but the DSC still valid, or the DSC is inside the 90-day warning
// window; VALID otherwise.
func ExpirationStatusFor(now, dscNotAfter time.Time, dscExpired, cscaExpired bool) ExpirationStatus {
	switch {
	case dscExpired:
		return ExpirationExpired
	case cscaExpired:
		return ExpirationWarning
	case dscNotAfter.Sub(now) <= expiryWarningWindow:
		return ExpirationWarning
	default:
		return ExpirationValid
	}
}
