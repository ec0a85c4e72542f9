package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// VerificationStore is the relational PA verification history. Insert writes
// the verification and its data-group rows in one transaction.
type VerificationStore struct {
	db *DB
}

// NewVerificationStore wires the store.
func NewVerificationStore(db *DB) *VerificationStore {
	return &VerificationStore{db: db}
}

type verificationRow struct {
	ID                string         `db:"id"`
	DocumentNumber    sql.NullString `db:"document_number"`
	CountryCode       sql.NullString `db:"country_code"`
	Status            string         `db:"status"`
	SodHash           string         `db:"sod_hash"`
	DSCSubject        sql.NullString `db:"dsc_subject"`
	DSCSerialNumber   sql.NullString `db:"dsc_serial_number"`
	DSCIssuer         sql.NullString `db:"dsc_issuer"`
	DSCExpired        bool           `db:"dsc_expired"`
	CSCASubject       sql.NullString `db:"csca_subject"`
	CSCASerialNumber  sql.NullString `db:"csca_serial_number"`
	CSCAExpired       bool           `db:"csca_expired"`
	ChainValid        bool           `db:"chain_valid"`
	SodSignatureValid bool           `db:"sod_signature_valid"`
	DgHashesValid     bool           `db:"dg_hashes_valid"`
	CrlChecked        bool           `db:"crl_checked"`
	Revoked           bool           `db:"revoked"`
	CrlStatus         sql.NullString `db:"crl_status"`
	ExpirationStatus  sql.NullString `db:"expiration_status"`
	ValidationErrors  sql.NullString `db:"validation_errors"`
	CreatedAt         time.Time      `db:"created_at"`
	IPAddress         sql.NullString `db:"ip_address"`
	UserAgent         sql.NullString `db:"user_agent"`
	ProcessingTimeMs  int64          `db:"processing_time_ms"`
}

func (r verificationRow) toDomain() *domain.PaVerification {
	return &domain.PaVerification{
		ID:                r.ID,
		DocumentNumber:    r.DocumentNumber.String,
		CountryCode:       r.CountryCode.String,
		Status:            domain.VerificationStatus(r.Status),
		SodHash:           r.SodHash,
		DSCSubject:        r.DSCSubject.String,
		DSCSerialNumber:   r.DSCSerialNumber.String,
		DSCIssuer:         r.DSCIssuer.String,
		DSCExpired:        r.DSCExpired,
		CSCASubject:       r.CSCASubject.String,
		CSCASerialNumber:  r.CSCASerialNumber.String,
		CSCAExpired:       r.CSCAExpired,
		ChainValid:        r.ChainValid,
		SodSignatureValid: r.SodSignatureValid,
		DgHashesValid:     r.DgHashesValid,
		CrlChecked:        r.CrlChecked,
		Revoked:           r.Revoked,
		CrlStatus:         domain.CrlStatus(r.CrlStatus.String),
		ExpirationStatus:  domain.ExpirationStatus(r.ExpirationStatus.String),
		ValidationErrors:  r.ValidationErrors.String,
		CreatedAt:         r.CreatedAt,
		IPAddress:         r.IPAddress.String,
		UserAgent:         r.UserAgent.String,
		ProcessingTimeMs:  r.ProcessingTimeMs,
	}
}

const verificationColumns = `id, document_number, country_code, status, sod_hash,
	dsc_subject, dsc_serial_number, dsc_issuer, dsc_expired,
	csca_subject, csca_serial_number, csca_expired,
	chain_valid, sod_signature_valid, dg_hashes_valid,
	crl_checked, revoked, crl_status, expiration_status,
	validation_errors, created_at, ip_address, user_agent, processing_time_ms`

func (s *VerificationStore) Insert(ctx context.Context, verification *domain.PaVerification, dataGroups []domain.DataGroupResult) (string, error) {
	tx, err := s.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: begin: %v", ports.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	query := s.db.rebind(fmt.Sprintf(`INSERT INTO pa_verifications (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, %s, ?, ?, ?)`,
		verificationColumns, s.db.dialect.CurrentTimestamp()))
	_, err = tx.ExecContext(ctx, query,
		id, verification.DocumentNumber, verification.CountryCode,
		string(verification.Status), verification.SodHash,
		verification.DSCSubject, verification.DSCSerialNumber, verification.DSCIssuer,
		verification.DSCExpired,
		verification.CSCASubject, verification.CSCASerialNumber, verification.CSCAExpired,
		verification.ChainValid, verification.SodSignatureValid, verification.DgHashesValid,
		verification.CrlChecked, verification.Revoked,
		string(verification.CrlStatus), string(verification.ExpirationStatus),
		verification.ValidationErrors,
		verification.IPAddress, verification.UserAgent, verification.ProcessingTimeMs)
	if err != nil {
		return "", fmt.Errorf("%w: inserting verification: %v", ports.ErrStoreUnavailable, err)
	}

	dgQuery := s.db.rebind(`INSERT INTO pa_verification_datagroups
		(verification_id, dg_number, expected_hash, actual_hash, hash_algorithm, hash_valid, dg_binary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, dg := range dataGroups {
		if _, err := tx.ExecContext(ctx, dgQuery,
			id, dg.DgNumber, dg.ExpectedHash, dg.ActualHash,
			dg.HashAlgorithm, dg.HashValid, dg.DgBinary); err != nil {
			return "", fmt.Errorf("%w: inserting dg row: %v", ports.ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit: %v", ports.ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *VerificationStore) GetByID(ctx context.Context, id string) (*domain.PaVerification, []domain.DataGroupResult, error) {
	var row verificationRow
	query := s.db.rebind(fmt.Sprintf(`SELECT %s FROM pa_verifications WHERE id = ?`, verificationColumns))
	err := s.db.conn.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: verification %s", ports.ErrInvalidInput, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}

	type dgRow struct {
		VerificationID string         `db:"verification_id"`
		DgNumber       int            `db:"dg_number"`
		ExpectedHash   sql.NullString `db:"expected_hash"`
		ActualHash     sql.NullString `db:"actual_hash"`
		HashAlgorithm  sql.NullString `db:"hash_algorithm"`
		HashValid      bool           `db:"hash_valid"`
		DgBinary       []byte         `db:"dg_binary"`
	}
	var dgRows []dgRow
	dgQuery := s.db.rebind(`SELECT verification_id, dg_number, expected_hash, actual_hash,
		hash_algorithm, hash_valid, dg_binary
		FROM pa_verification_datagroups WHERE verification_id = ? ORDER BY dg_number`)
	if err := s.db.conn.SelectContext(ctx, &dgRows, dgQuery, id); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	dgs := make([]domain.DataGroupResult, len(dgRows))
	for i, dg := range dgRows {
		dgs[i] = domain.DataGroupResult{
			VerificationID: dg.VerificationID,
			DgNumber:       dg.DgNumber,
			ExpectedHash:   dg.ExpectedHash.String,
			ActualHash:     dg.ActualHash.String,
			HashAlgorithm:  dg.HashAlgorithm.String,
			HashValid:      dg.HashValid,
			DgBinary:       dg.DgBinary,
		}
	}
	return row.toDomain(), dgs, nil
}

func (s *VerificationStore) List(ctx context.Context, filter ports.VerificationFilter) ([]*domain.PaVerification, error) {
	var conditions []string
	var args []any
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.CountryCode != "" {
		conditions = append(conditions, "country_code = ?")
		args = append(args, filter.CountryCode)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM pa_verifications%s ORDER BY created_at DESC%s`,
		verificationColumns, where, s.db.dialect.Pagination(limit, filter.Offset))

	var rows []verificationRow
	if err := s.db.conn.SelectContext(ctx, &rows, s.db.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	out := make([]*domain.PaVerification, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (s *VerificationStore) Statistics(ctx context.Context) (*ports.PaStatistics, error) {
	stats := &ports.PaStatistics{
		ByStatus:  map[domain.VerificationStatus]int{},
		ByCountry: map[string]int{},
	}

	type statusRow struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	var statusRows []statusRow
	if err := s.db.conn.SelectContext(ctx, &statusRows,
		`SELECT status, COUNT(*) AS total FROM pa_verifications GROUP BY status`); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	for _, row := range statusRows {
		stats.ByStatus[domain.VerificationStatus(row.Status)] = row.Total
		stats.Total += row.Total
	}

	type countryRow struct {
		CountryCode sql.NullString `db:"country_code"`
		Total       int            `db:"total"`
	}
	var countryRows []countryRow
	if err := s.db.conn.SelectContext(ctx, &countryRows,
		`SELECT country_code, COUNT(*) AS total FROM pa_verifications GROUP BY country_code`); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	for _, row := range countryRows {
		if row.CountryCode.String != "" {
			stats.ByCountry[row.CountryCode.String] = row.Total
		}
	}
	return stats, nil
}

var _ ports.VerificationStore = (*VerificationStore)(nil)
