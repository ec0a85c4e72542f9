package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// CertificateStore is the relational certificate store.
type CertificateStore struct {
	db     *DB
	ledger ports.DuplicateLedger
}

// NewCertificateStore wires the store. The ledger is optional; duplicate
// Puts record sightings through it when present.
func NewCertificateStore(db *DB, ledger ports.DuplicateLedger) *CertificateStore {
	return &CertificateStore{db: db, ledger: ledger}
}

type certRow struct {
	ID                 string         `db:"id"`
	CertType           string         `db:"cert_type"`
	CountryCode        string         `db:"country_code"`
	SubjectDN          string         `db:"subject_dn"`
	IssuerDN           string         `db:"issuer_dn"`
	SerialNumber       string         `db:"serial_number"`
	NotBefore          time.Time      `db:"not_before"`
	NotAfter           time.Time      `db:"not_after"`
	CertBinary         []byte         `db:"cert_binary"`
	Fingerprint        string         `db:"fingerprint_sha256"`
	SignatureAlgorithm sql.NullString `db:"signature_algorithm"`
	PublicKeyAlgorithm sql.NullString `db:"public_key_algorithm"`
	PublicKeyBits      int            `db:"public_key_bits"`
	SelfSigned         bool           `db:"self_signed"`
	StoredInLDAP       bool           `db:"stored_in_ldap"`
	SourceType         string         `db:"source_type"`
	FirstUploadID      sql.NullString `db:"first_upload_id"`
	ValidationStatus   string         `db:"validation_status"`
	Conformance        string         `db:"conformance"`
	CreatedAt          time.Time      `db:"created_at"`
}

func (r certRow) toDomain() *domain.Certificate {
	return &domain.Certificate{
		ID:                 r.ID,
		Type:               domain.CertificateType(r.CertType),
		CountryCode:        r.CountryCode,
		SubjectDN:          r.SubjectDN,
		IssuerDN:           r.IssuerDN,
		SerialNumber:       r.SerialNumber,
		NotBefore:          r.NotBefore,
		NotAfter:           r.NotAfter,
		DER:                r.CertBinary,
		FingerprintSHA256:  r.Fingerprint,
		SignatureAlgorithm: r.SignatureAlgorithm.String,
		PublicKeyAlgorithm: r.PublicKeyAlgorithm.String,
		PublicKeyBits:      r.PublicKeyBits,
		SelfSigned:         r.SelfSigned,
		StoredInLDAP:       r.StoredInLDAP,
		Source:             domain.SourceType(r.SourceType),
		FirstUploadID:      r.FirstUploadID.String,
		ValidationStatus:   domain.ValidationStatus(r.ValidationStatus),
		Conformance:        domain.Conformance(r.Conformance),
		CreatedAt:          r.CreatedAt,
	}
}

const certColumns = `id, cert_type, country_code, subject_dn, issuer_dn, serial_number,
	not_before, not_after, cert_binary, fingerprint_sha256, signature_algorithm,
	public_key_algorithm, public_key_bits, self_signed, stored_in_ldap, source_type,
	first_upload_id, validation_status, conformance, created_at`

func (s *CertificateStore) Put(ctx context.Context, cert *domain.Certificate, meta ports.UploadMeta) (string, bool, error) {
	existingID, err := s.idByFingerprint(ctx, cert.Type, cert.FingerprintSHA256)
	if err == nil {
		return existingID, true, s.recordSighting(ctx, existingID, meta)
	}
	if !errors.Is(err, ports.ErrCertNotFound) {
		return "", false, err
	}

	id := uuid.NewString()
	query := s.db.rebind(fmt.Sprintf(`INSERT INTO certificates (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, %s)`,
		certColumns, s.db.dialect.CurrentTimestamp()))
	_, err = s.db.conn.ExecContext(ctx, query,
		id, string(cert.Type), cert.CountryCode, cert.SubjectDN, cert.IssuerDN,
		cert.SerialNumber, cert.NotBefore, cert.NotAfter, cert.DER,
		cert.FingerprintSHA256, cert.SignatureAlgorithm, cert.PublicKeyAlgorithm,
		cert.PublicKeyBits, cert.SelfSigned, cert.StoredInLDAP,
		string(cert.Source), meta.UploadID, string(cert.ValidationStatus),
		string(cert.Conformance))
	if err != nil {
		if s.db.dialect.IsUniqueViolation(err) {
			// Raced by a concurrent insert of the same fingerprint.
			existingID, lookupErr := s.idByFingerprint(ctx, cert.Type, cert.FingerprintSHA256)
			if lookupErr != nil {
				return "", false, lookupErr
			}
			return existingID, true, s.recordSighting(ctx, existingID, meta)
		}
		return "", false, fmt.Errorf("%w: inserting certificate: %v", ports.ErrStoreUnavailable, err)
	}
	return id, false, nil
}

func (s *CertificateStore) recordSighting(ctx context.Context, certID string, meta ports.UploadMeta) error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.RecordSighting(ctx, domain.DuplicateSighting{
		CertificateID:  certID,
		UploadID:       meta.UploadID,
		SourceType:     meta.SourceType,
		SourceCountry:  meta.SourceCountry,
		SourceEntryDN:  meta.SourceEntryDN,
		SourceFileName: meta.SourceFileName,
		DetectedAt:     time.Now(),
	})
}

func (s *CertificateStore) idByFingerprint(ctx context.Context, certType domain.CertificateType, fingerprint string) (string, error) {
	var id string
	query := s.db.rebind(`SELECT id FROM certificates WHERE cert_type = ? AND fingerprint_sha256 = ?`)
	err := s.db.conn.GetContext(ctx, &id, query, string(certType), fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s %s", ports.ErrCertNotFound, certType, fingerprint)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *CertificateStore) GetByFingerprint(ctx context.Context, certType domain.CertificateType, fingerprint string) (*domain.Certificate, error) {
	var row certRow
	query := s.db.rebind(fmt.Sprintf(`SELECT %s FROM certificates WHERE cert_type = ? AND fingerprint_sha256 = ?`, certColumns))
	err := s.db.conn.GetContext(ctx, &row, query, string(certType), fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ports.ErrCertNotFound, certType, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return row.toDomain(), nil
}

func (s *CertificateStore) FindByCountry(ctx context.Context, certType domain.CertificateType, country string) ([]*domain.Certificate, error) {
	query := s.db.rebind(fmt.Sprintf(`SELECT %s FROM certificates
		WHERE cert_type = ? AND country_code = ? ORDER BY created_at, id`, certColumns))
	return s.queryMany(ctx, query, string(certType), country)
}

// FindByIssuer fetches the country's certificates of the given type and
// compares issuer DNs in Go: DN normalization is format-independent in a way
// SQL string equality cannot express.
func (s *CertificateStore) FindByIssuer(ctx context.Context, certType domain.CertificateType, issuerDN, country string) ([]*domain.Certificate, error) {
	all, err := s.FindByCountry(ctx, certType, country)
	if err != nil {
		return nil, err
	}
	var out []*domain.Certificate
	for _, cert := range all {
		if domain.DNEqual(cert.SubjectDN, issuerDN) {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (s *CertificateStore) FindNotInLDAP(ctx context.Context, certType domain.CertificateType, limit int) ([]*domain.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates
		WHERE cert_type = ? AND stored_in_ldap = %s ORDER BY created_at, id%s`,
		certColumns, s.db.dialect.BoolLiteral(false), s.db.dialect.Pagination(limit, 0))
	return s.queryMany(ctx, s.db.rebind(query), string(certType))
}

func (s *CertificateStore) List(ctx context.Context, certType domain.CertificateType, limit, offset int) ([]*domain.Certificate, error) {
	query := fmt.Sprintf(`SELECT %s FROM certificates
		WHERE cert_type = ? ORDER BY created_at, id%s`,
		certColumns, s.db.dialect.Pagination(limit, offset))
	return s.queryMany(ctx, s.db.rebind(query), string(certType))
}

func (s *CertificateStore) queryMany(ctx context.Context, query string, args ...any) ([]*domain.Certificate, error) {
	var rows []certRow
	if err := s.db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	out := make([]*domain.Certificate, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (s *CertificateStore) MarkStoredInLDAP(ctx context.Context, id string) error {
	query := s.db.rebind(fmt.Sprintf(`UPDATE certificates SET stored_in_ldap = %s WHERE id = ?`,
		s.db.dialect.BoolLiteral(true)))
	result, err := s.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return requireRow(result, ports.ErrCertNotFound, id)
}

func (s *CertificateStore) SetValidationStatus(ctx context.Context, id string, status domain.ValidationStatus) error {
	query := s.db.rebind(`UPDATE certificates SET validation_status = ? WHERE id = ?`)
	result, err := s.db.conn.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return requireRow(result, ports.ErrCertNotFound, id)
}

func (s *CertificateStore) SaveValidationResult(ctx context.Context, result *domain.ValidationResult) error {
	query := s.db.rebind(`INSERT INTO certificate_validation_results
		(id, certificate_id, trust_chain_valid, csca_found, validity_period_valid, revocation_status, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.conn.ExecContext(ctx, query,
		uuid.NewString(), result.CertificateID, result.TrustChainValid,
		result.CscaFound, result.ValidityPeriodValid, string(result.RevocationStatus),
		result.CheckedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *CertificateStore) CountByKind(ctx context.Context) (map[domain.EntityKind]int, error) {
	type countRow struct {
		CertType string `db:"cert_type"`
		Total    int    `db:"total"`
	}
	var rows []countRow
	query := `SELECT cert_type, COUNT(*) AS total FROM certificates GROUP BY cert_type`
	if err := s.db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	out := map[domain.EntityKind]int{}
	for _, row := range rows {
		out[kindForType(domain.CertificateType(row.CertType))] += row.Total
	}
	return out, nil
}

func (s *CertificateStore) CountByKindAndCountry(ctx context.Context) (map[domain.EntityKind]map[string]int, error) {
	type countRow struct {
		CertType    string `db:"cert_type"`
		CountryCode string `db:"country_code"`
		Total       int    `db:"total"`
	}
	var rows []countRow
	query := `SELECT cert_type, country_code, COUNT(*) AS total FROM certificates GROUP BY cert_type, country_code`
	if err := s.db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	out := map[domain.EntityKind]map[string]int{}
	for _, row := range rows {
		kind := kindForType(domain.CertificateType(row.CertType))
		if out[kind] == nil {
			out[kind] = map[string]int{}
		}
		out[kind][row.CountryCode] += row.Total
	}
	return out, nil
}

func kindForType(certType domain.CertificateType) domain.EntityKind {
	switch certType {
	case domain.CertTypeCSCA:
		return domain.KindCSCA
	case domain.CertTypeMLSC:
		return domain.KindMLSC
	case domain.CertTypeDSCNC:
		return domain.KindDSCNC
	default:
		return domain.KindDSC
	}
}

// requireRow converts a zero-row update into the given sentinel.
func requireRow(result sql.Result, sentinel error, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return nil // driver cannot report; assume success
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %s", sentinel, id)
	}
	return nil
}

var _ ports.CertificateStore = (*CertificateStore)(nil)
