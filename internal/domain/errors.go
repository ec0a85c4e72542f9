package domain

import "errors"

// Sentinel errors for domain failures.
// Use with errors.Is() for checking and fmt.Errorf("%w", ...) for wrapping with context.

var (
	// ErrInvalidCertificate indicates certificate bytes failed to parse or validate
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrInvalidCRL indicates CRL bytes failed to parse or validate
	ErrInvalidCRL = errors.New("invalid certificate revocation list")

	// ErrInvalidDN indicates a distinguished name could not be parsed
	ErrInvalidDN = errors.New("invalid distinguished name")

	// ErrInvalidMRZ indicates DG1 did not contain a decodable TD-3 MRZ
	ErrInvalidMRZ = errors.New("invalid machine readable zone")

	// ErrUnknownCountry indicates a country code with no ISO 3166-1 mapping
	ErrUnknownCountry = errors.New("unknown country code")

	// ErrInvalidStatusTransition indicates an ICAO version record moving backwards
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)
