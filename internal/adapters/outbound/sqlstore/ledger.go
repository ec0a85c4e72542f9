package sqlstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// DuplicateLedger is the relational duplicate sighting record. Idempotence
// by (certificate, upload, file name) rides on the unique constraint: the
// violation is swallowed, everything else inserts.
type DuplicateLedger struct {
	db *DB
}

// NewDuplicateLedger wires the ledger.
func NewDuplicateLedger(db *DB) *DuplicateLedger {
	return &DuplicateLedger{db: db}
}

func (l *DuplicateLedger) RecordSighting(ctx context.Context, sighting domain.DuplicateSighting) error {
	query := l.db.rebind(fmt.Sprintf(`INSERT INTO duplicate_uploads
		(id, certificate_id, upload_id, source_type, source_country, source_entry_dn, source_file_name, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, %s)`, l.db.dialect.CurrentTimestamp()))
	_, err := l.db.conn.ExecContext(ctx, query,
		uuid.NewString(), sighting.CertificateID, sighting.UploadID,
		string(sighting.SourceType), sighting.SourceCountry,
		sighting.SourceEntryDN, sighting.SourceFileName)
	if err != nil {
		if l.db.dialect.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("%w: recording sighting: %v", ports.ErrStoreUnavailable, err)
	}
	return nil
}

func (l *DuplicateLedger) CountByCertificate(ctx context.Context, certificateID string) (int, error) {
	var count int
	query := l.db.rebind(`SELECT COUNT(*) FROM duplicate_uploads WHERE certificate_id = ?`)
	if err := l.db.conn.GetContext(ctx, &count, query, certificateID); err != nil {
		return 0, fmt.Errorf("%w: %v", ports.ErrStoreUnavailable, err)
	}
	return count, nil
}

var _ ports.DuplicateLedger = (*DuplicateLedger)(nil)
