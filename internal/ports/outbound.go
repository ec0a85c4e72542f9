package ports

import (
	"context"

	"github.com/sufield/pkdpa/internal/domain"
)

// CertificateStore is the content-addressed certificate persistence port.
//
// Put is an upsert keyed by (type, fingerprint): if the fingerprint is new
// the certificate is inserted; if it already exists a duplicate sighting is
// recorded against the existing row and its id is returned. A unique
// violation raced by a concurrent insert collapses to the sighting path,
// never to an error.
type CertificateStore interface {
	Put(ctx context.Context, cert *domain.Certificate, meta UploadMeta) (id string, duplicate bool, err error)
	GetByFingerprint(ctx context.Context, certType domain.CertificateType, fingerprint string) (*domain.Certificate, error)
	FindByCountry(ctx context.Context, certType domain.CertificateType, country string) ([]*domain.Certificate, error)
	// FindByIssuer matches issuer DNs format-independently (both sides
	// normalized before comparison).
	FindByIssuer(ctx context.Context, certType domain.CertificateType, issuerDN, country string) ([]*domain.Certificate, error)
	// FindNotInLDAP returns up to limit rows with storedInLdap = false.
	FindNotInLDAP(ctx context.Context, certType domain.CertificateType, limit int) ([]*domain.Certificate, error)
	List(ctx context.Context, certType domain.CertificateType, limit, offset int) ([]*domain.Certificate, error)
	MarkStoredInLDAP(ctx context.Context, id string) error
	SetValidationStatus(ctx context.Context, id string, status domain.ValidationStatus) error
	// SaveValidationResult materializes the chain validator's outcome.
	SaveValidationResult(ctx context.Context, result *domain.ValidationResult) error
	CountByKind(ctx context.Context) (map[domain.EntityKind]int, error)
	CountByKindAndCountry(ctx context.Context) (map[domain.EntityKind]map[string]int, error)
}

// CRLStore persists revocation lists, content-addressed like certificates.
type CRLStore interface {
	Put(ctx context.Context, crl *domain.CRL) (id string, duplicate bool, err error)
	// FindByCountry returns the freshest CRL (latest thisUpdate) for a country.
	FindByCountry(ctx context.Context, country string) (*domain.CRL, error)
	FindNotInLDAP(ctx context.Context, limit int) ([]*domain.CRL, error)
	MarkStoredInLDAP(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountByCountry(ctx context.Context) (map[string]int, error)
}

// DuplicateLedger is the append-only duplicate sighting record.
// RecordSighting is idempotent only by (certificateID, uploadID,
// sourceFileName); all other repeats are retained.
type DuplicateLedger interface {
	RecordSighting(ctx context.Context, sighting domain.DuplicateSighting) error
	CountByCertificate(ctx context.Context, certificateID string) (int, error)
}

// VerificationStore persists PA outcomes. Insert writes the verification and
// its per-data-group rows atomically.
type VerificationStore interface {
	Insert(ctx context.Context, verification *domain.PaVerification, dataGroups []domain.DataGroupResult) (string, error)
	GetByID(ctx context.Context, id string) (*domain.PaVerification, []domain.DataGroupResult, error)
	List(ctx context.Context, filter VerificationFilter) ([]*domain.PaVerification, error)
	Statistics(ctx context.Context) (*PaStatistics, error)
}

// SyncStatusStore persists sync-check snapshots.
type SyncStatusStore interface {
	Save(ctx context.Context, status *domain.SyncStatus) (string, error)
	Latest(ctx context.Context) (*domain.SyncStatus, error)
}

// ReconciliationStore persists reconciliation summaries and per-operation logs.
type ReconciliationStore interface {
	CreateSummary(ctx context.Context, summary *domain.ReconciliationSummary) (string, error)
	UpdateSummary(ctx context.Context, summary *domain.ReconciliationSummary) error
	AppendLog(ctx context.Context, log *domain.ReconciliationLog) error
}

// RevalidationStore records revalidation passes.
type RevalidationStore interface {
	SaveRun(ctx context.Context, run *domain.RevalidationRun) (string, error)
}

// VersionStore tracks ICAO PKD collection versions (forward-only transitions
// enforced by the domain; the store only persists).
type VersionStore interface {
	Upsert(ctx context.Context, version *domain.IcaoVersion) (string, error)
	Get(ctx context.Context, collection domain.CollectionType, version int) (*domain.IcaoVersion, error)
}

// SyncConfigStore persists the scheduler configuration.
type SyncConfigStore interface {
	Load(ctx context.Context) (SyncConfig, error)
	Save(ctx context.Context, cfg SyncConfig) error
}

// AuditLog records externally triggered operations. Implementations must be
// best-effort: failures are logged and swallowed, never propagated.
type AuditLog interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// TrustMaterialProvider is the capability set the chain validator depends
// on. The LDAP gateway is the production implementation; the in-memory
// adapter serves tests. Results carry DER; callers re-parse.
type TrustMaterialProvider interface {
	// FindCscaByIssuer returns CSCAs whose subject matches the issuer DN
	// (format-independent comparison), scoped to a country.
	FindCscaByIssuer(ctx context.Context, issuerDN, country string) ([]*domain.Certificate, error)
	// FindAllCscasByCountry returns every CSCA for a country, link
	// certificates included.
	FindAllCscasByCountry(ctx context.Context, country string) ([]*domain.Certificate, error)
	// FindCrlByCountry returns the country's CRL or ErrCrlNotFound.
	FindCrlByCountry(ctx context.Context, country string) (*domain.CRL, error)
}

// DirectoryGateway is the LDAP directory port: the fixed data/nc-data DN
// hierarchy, idempotent entry creation, and the counting used by sync checks.
type DirectoryGateway interface {
	TrustMaterialProvider

	// EnsureParentDNs creates c=<CC> and o=<kind> under the conformance
	// branch if absent. Idempotent and safe under concurrent callers.
	EnsureParentDNs(ctx context.Context, country string, kind domain.EntityKind, conformant bool) error
	// AddCertificate writes a pkdDownload entry; ALREADY_EXISTS is success.
	AddCertificate(ctx context.Context, cert *domain.Certificate) (dn string, err error)
	// AddCRL writes a cRLDistributionPoint entry; ALREADY_EXISTS is success.
	AddCRL(ctx context.Context, crl *domain.CRL) (dn string, err error)
	// CertificateDN computes the leaf DN a certificate maps to.
	CertificateDN(cert *domain.Certificate) string
	// CRLDN computes the leaf DN a CRL maps to.
	CRLDN(crl *domain.CRL) string
	// Exists performs a SCOPE_BASE lookup on a DN.
	Exists(ctx context.Context, dn string) (bool, error)
	// CountByKind subtree-counts data and nc-data, attributing entries by
	// the first o= in their DN (lc counts as CSCA). The second return value
	// breaks counts down per country.
	CountByKind(ctx context.Context) (map[domain.EntityKind]int, map[domain.EntityKind]map[string]int, error)
	// ProbeDscConformance checks the nc-data branch for a DSC fingerprint.
	ProbeDscConformance(ctx context.Context, country, fingerprint string) (*ConformanceInfo, error)
}
