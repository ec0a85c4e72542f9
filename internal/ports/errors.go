package ports

import "errors"

// Error kinds shared across the core. Adapters translate their library
// errors onto these sentinels so the app layer can branch with errors.Is
// without knowing which backend produced the failure.

var (
	// ErrInvalidInput indicates a caller-supplied value that fails validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrParse indicates malformed SOD/DG1/CMS input
	ErrParse = errors.New("parse error")

	// ErrStoreUnavailable indicates the relational store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPoolExhausted indicates no connection became free within the bounded wait
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrLdapUnreachable indicates the directory cannot be reached or bound
	ErrLdapUnreachable = errors.New("ldap unreachable")

	// ErrLdapSchema indicates the directory rejected an entry on schema grounds
	ErrLdapSchema = errors.New("ldap schema error")

	// ErrCertNotFound indicates no certificate matched the lookup
	ErrCertNotFound = errors.New("certificate not found")

	// ErrCrlNotFound indicates no CRL is published for the country
	ErrCrlNotFound = errors.New("crl not found")

	// ErrSignatureInvalid indicates a cryptographic verification failure
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrRevoked indicates the certificate appears on a valid CRL
	ErrRevoked = errors.New("certificate revoked")

	// ErrConfigMissing indicates a mandatory configuration value is absent;
	// fatal at startup
	ErrConfigMissing = errors.New("configuration missing")

	// ErrOperationTimeout indicates a per-call deadline elapsed
	ErrOperationTimeout = errors.New("operation timeout")
)
