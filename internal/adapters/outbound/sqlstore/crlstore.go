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

// CRLStore is the relational CRL store, unique by (country, fingerprint).
type CRLStore struct {
	db *DB
}

// NewCRLStore wires the store.
func NewCRLStore(db *DB) *CRLStore {
	return &CRLStore{db: db}
}

type crlRow struct {
	ID           string    `db:"id"`
	CountryCode  string    `db:"country_code"`
	IssuerDN     string    `db:"issuer_dn"`
	ThisUpdate   time.Time `db:"this_update"`
	NextUpdate   time.Time `db:"next_update"`
	CrlBinary    []byte    `db:"crl_binary"`
	Fingerprint  string    `db:"fingerprint_sha256"`
	StoredInLDAP bool      `db:"stored_in_ldap"`
}

func (r crlRow) toDomain() *domain.CRL {
	return &domain.CRL{
		ID:                r.ID,
		CountryCode:       r.CountryCode,
		IssuerDN:          r.IssuerDN,
		ThisUpdate:        r.ThisUpdate,
		NextUpdate:        r.NextUpdate,
		DER:               r.CrlBinary,
		FingerprintSHA256: r.Fingerprint,
		StoredInLDAP:      r.StoredInLDAP,
	}
}

const crlColumns = `id, country_code, issuer_dn, this_update, next_update, crl_binary, fingerprint_sha256, stored_in_ldap`

func (s *CRLStore) Put(ctx context.Context, crl *domain.CRL) (string, bool, error) {
	existingID, err := s.idByFingerprint(ctx, crl.CountryCode, crl.FingerprintSHA256)
	if err == nil {
		return existingID, true, nil
	}
	if !errors.Is(err, ports.ErrCrlNotFound) {
		return "", false, err
	}

	id := uuid.NewString()
	query := s.db.rebind(fmt.Sprintf(`INSERT INTO crls (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, crlColumns))
	_, err = s.db.conn.ExecContext(ctx, query,
		id, crl.CountryCode, crl.IssuerDN, crl.ThisUpdate, crl.NextUpdate,
		crl.DER, crl.FingerprintSHA256, crl.StoredInLDAP)
	if err != nil {
		if s.db.dialect.IsUniqueViolation(err) {
			existingID, lookupErr := s.idByFingerprint(ctx, crl.CountryCode, crl.FingerprintSHA256)
			if lookupErr != nil {
				return "", false, lookupErr
			}
			return existingID, true, nil
		}
		return "", false, fmt.Errorf("%w: inserting crl: %v", ports.ErrStoreUnavailable, err)
	}
	return id, false, nil
}

func (s *CRLStore) idByFingerprint(ctx context.Context, country, fingerprint string) (string, error) {
	var id string
	query := s.db.rebind(`SELECT id FROM crls WHERE country_code = ? AND fingerprint_sha256 = ?`)
	err := s.db.conn.GetContext(ctx, &id, query, country, fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s %s", ports.ErrCrlNotFound, country, fingerprint)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return id, nil
}

func (s *CRLStore) FindByCountry(ctx context.Context, country string) (*domain.CRL, error) {
	var row crlRow
	query := fmt.Sprintf(`SELECT %s FROM crls WHERE country_code = ? ORDER BY this_update DESC%s`,
		crlColumns, s.db.dialect.Pagination(1, 0))
	err := s.db.conn.GetContext(ctx, &row, s.db.rebind(query), country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ports.ErrCrlNotFound, country)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return row.toDomain(), nil
}

func (s *CRLStore) FindNotInLDAP(ctx context.Context, limit int) ([]*domain.CRL, error) {
	query := fmt.Sprintf(`SELECT %s FROM crls WHERE stored_in_ldap = %s ORDER BY this_update%s`,
		crlColumns, s.db.dialect.BoolLiteral(false), s.db.dialect.Pagination(limit, 0))
	var rows []crlRow
	if err := s.db.conn.SelectContext(ctx, &rows, s.db.rebind(query)); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	out := make([]*domain.CRL, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (s *CRLStore) MarkStoredInLDAP(ctx context.Context, id string) error {
	query := s.db.rebind(fmt.Sprintf(`UPDATE crls SET stored_in_ldap = %s WHERE id = ?`,
		s.db.dialect.BoolLiteral(true)))
	result, err := s.db.conn.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return requireRow(result, ports.ErrCrlNotFound, id)
}

func (s *CRLStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM crls`); err != nil {
		return 0, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return count, nil
}

func (s *CRLStore) CountByCountry(ctx context.Context) (map[string]int, error) {
	type countRow struct {
		CountryCode string `db:"country_code"`
		Total       int    `db:"total"`
	}
	var rows []countRow
	query := `SELECT country_code, COUNT(*) AS total FROM crls GROUP BY country_code`
	if err := s.db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	out := map[string]int{}
	for _, row := range rows {
		out[row.CountryCode] = row.Total
	}
	return out, nil
}

var _ ports.CRLStore = (*CRLStore)(nil)
