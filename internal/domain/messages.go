package domain

// Severity grades a status message for operators and API consumers.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// StatusMessage is the three-field human-readable outcome attached to CRL
// and expiration results: a short code, an English description, and a
// detailed rationale referencing ICAO Doc 9303 Part 11 or RFC 5280.
type StatusMessage struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Detail      string   `json:"detail"`
	Severity    Severity `json:"severity"`
}

var crlStatusMessages = map[CrlStatus]StatusMessage{
	CrlValid: {
		Code:        "CRL_CHECK_PASSED",
		Description: "Certificate Revocation List (CRL) check passed",
		Detail: "The Document Signer Certificate (DSC) was verified against the Certificate " +
			"Revocation List (CRL) as specified in ICAO Doc 9303 Part 11. The certificate is " +
			"not revoked and remains valid for Passive Authentication.",
		Severity: SeverityInfo,
	},
	CrlRevoked: {
		Code:        "DSC_REVOKED",
		Description: "Certificate has been revoked by issuing authority",
		Detail: "The Document Signer Certificate (DSC) appears on the Certificate Revocation " +
			"List (CRL) published by the issuing Country Signing CA (CSCA). According to RFC 5280 " +
			"and ICAO Doc 9303 Part 11, this certificate must not be used for Passive " +
			"Authentication verification.",
		Severity: SeverityCritical,
	},
	CrlUnavailable: {
		Code:        "CRL_UNAVAILABLE",
		Description: "Certificate Revocation List (CRL) not available",
		Detail: "No CRL was found in the LDAP PKD for this issuing country. ICAO Doc 9303 " +
			"Part 11 specifies CRL checking as RECOMMENDED but not mandatory. According to the " +
			"principle of fail-open for unavailable infrastructure, this verification continues " +
			"with a warning.",
		Severity: SeverityWarning,
	},
	CrlExpired: {
		Code:        "CRL_EXPIRED",
		Description: "Certificate Revocation List (CRL) has expired",
		Detail: "The CRL retrieved from the PKD has passed its nextUpdate time as defined in " +
			"RFC 5280. An expired CRL cannot be relied upon for revocation status. ICAO Doc 9303 " +
			"Part 11 recommends treating expired CRLs with caution, as they may not reflect " +
			"recent revocations.",
		Severity: SeverityWarning,
	},
	CrlInvalid: {
		Code:        "CRL_SIGNATURE_INVALID",
		Description: "Certificate Revocation List (CRL) signature verification failed",
		Detail: "The digital signature on the CRL could not be verified against the issuing " +
			"CSCA's public key. This indicates either CRL corruption or a security compromise. " +
			"Per RFC 5280 Section 6.3, an invalid CRL must not be used for certificate validation.",
		Severity: SeverityCritical,
	},
	CrlNotChecked: {
		Code:        "CRL_NOT_CHECKED",
		Description: "Certificate revocation check was not performed",
		Detail: "CRL checking was skipped or could not be completed. ICAO Doc 9303 Part 11 " +
			"considers CRL verification as a SHOULD requirement rather than MUST. This is " +
			"acceptable in environments where CRL infrastructure is not fully deployed.",
		Severity: SeverityInfo,
	},
}

var expirationStatusMessages = map[ExpirationStatus]StatusMessage{
	ExpirationValid: {
		Code:        "CERT_WINDOW_VALID",
		Description: "Certificate validity periods are current",
		Detail: "Both the Document Signer Certificate (DSC) and the Country Signing CA (CSCA) " +
			"certificate are inside their validity windows as defined in RFC 5280 Section 4.1.2.5.",
		Severity: SeverityInfo,
	},
	ExpirationWarning: {
		Code:        "CERT_WINDOW_WARNING",
		Description: "Certificate chain is approaching or partially past expiry",
		Detail: "The CSCA certificate has expired while the DSC remains valid, or the DSC is " +
			"within 90 days of its notAfter date. ICAO Doc 9303 Part 12 permits continued use " +
			"of such chains for Passive Authentication, but the trust material should be renewed.",
		Severity: SeverityWarning,
	},
	ExpirationExpired: {
		Code:        "DSC_EXPIRED",
		Description: "Document Signer Certificate has expired",
		Detail: "The DSC notAfter date is in the past. Under ICAO Doc 9303 Part 11 " +
			"point-in-time validation, a document signed while the DSC was valid remains " +
			"trustworthy; the expiration is reported so relying parties can apply their own policy.",
		Severity: SeverityWarning,
	},
}

// MessageForCrlStatus returns the catalog entry for a CRL outcome.
func MessageForCrlStatus(status CrlStatus) StatusMessage {
	if msg, ok := crlStatusMessages[status]; ok {
		return msg
	}
	return crlStatusMessages[CrlNotChecked]
}

// MessageForExpirationStatus returns the catalog entry for an expiration outcome.
func MessageForExpirationStatus(status ExpirationStatus) StatusMessage {
	if msg, ok := expirationStatusMessages[status]; ok {
		return msg
	}
	return expirationStatusMessages[ExpirationValid]
}
