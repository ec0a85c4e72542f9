package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

type certKey struct {
	certType    domain.CertificateType
	fingerprint string
}

// CertificateStore is the in-memory certificate store. Upserts are keyed by
// (type, fingerprint) like the relational unique constraint.
type CertificateStore struct {
	mu      sync.RWMutex
	byKey   map[certKey]*domain.Certificate
	byID    map[string]*domain.Certificate
	ledger  *DuplicateLedger
	results []*domain.ValidationResult
	clock   func() time.Time
}

// NewCertificateStore creates an empty store. The ledger is optional; when
// present, duplicate Puts record sightings through it.
func NewCertificateStore(ledger *DuplicateLedger) *CertificateStore {
	return &CertificateStore{
		byKey:  map[certKey]*domain.Certificate{},
		byID:   map[string]*domain.Certificate{},
		ledger: ledger,
		clock:  time.Now,
	}
}

func (s *CertificateStore) Put(ctx context.Context, cert *domain.Certificate, meta ports.UploadMeta) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := certKey{cert.Type, cert.FingerprintSHA256}
	if existing, ok := s.byKey[key]; ok {
		if s.ledger != nil {
			_ = s.ledger.RecordSighting(ctx, domain.DuplicateSighting{
				CertificateID:  existing.ID,
				UploadID:       meta.UploadID,
				SourceType:     meta.SourceType,
				SourceCountry:  meta.SourceCountry,
				SourceEntryDN:  meta.SourceEntryDN,
				SourceFileName: meta.SourceFileName,
				DetectedAt:     s.clock(),
			})
		}
		return existing.ID, true, nil
	}

	stored := *cert
	stored.ID = uuid.NewString()
	stored.FirstUploadID = meta.UploadID
	stored.CreatedAt = s.clock()
	s.byKey[key] = &stored
	s.byID[stored.ID] = &stored
	return stored.ID, false, nil
}

func (s *CertificateStore) GetByFingerprint(ctx context.Context, certType domain.CertificateType, fingerprint string) (*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byKey[certKey{certType, fingerprint}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ports.ErrCertNotFound, certType, fingerprint)
	}
	copied := *cert
	return &copied, nil
}

func (s *CertificateStore) FindByCountry(ctx context.Context, certType domain.CertificateType, country string) ([]*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Certificate
	for _, cert := range s.sorted() {
		if cert.Type == certType && cert.CountryCode == country {
			copied := *cert
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *CertificateStore) FindByIssuer(ctx context.Context, certType domain.CertificateType, issuerDN, country string) ([]*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Certificate
	for _, cert := range s.sorted() {
		if cert.Type != certType || cert.CountryCode != country {
			continue
		}
		if domain.DNEqual(cert.SubjectDN, issuerDN) {
			copied := *cert
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *CertificateStore) FindNotInLDAP(ctx context.Context, certType domain.CertificateType, limit int) ([]*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Certificate
	for _, cert := range s.sorted() {
		if cert.Type == certType && !cert.StoredInLDAP {
			copied := *cert
			out = append(out, &copied)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *CertificateStore) List(ctx context.Context, certType domain.CertificateType, limit, offset int) ([]*domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*domain.Certificate
	for _, cert := range s.sorted() {
		if cert.Type == certType {
			matched = append(matched, cert)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*domain.Certificate, len(matched))
	for i, cert := range matched {
		copied := *cert
		out[i] = &copied
	}
	return out, nil
}

func (s *CertificateStore) MarkStoredInLDAP(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %s", ports.ErrCertNotFound, id)
	}
	cert.StoredInLDAP = true
	return nil
}

func (s *CertificateStore) SetValidationStatus(ctx context.Context, id string, status domain.ValidationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %s", ports.ErrCertNotFound, id)
	}
	cert.ValidationStatus = status
	return nil
}

func (s *CertificateStore) SaveValidationResult(ctx context.Context, result *domain.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *result
	saved.ID = uuid.NewString()
	s.results = append(s.results, &saved)
	return nil
}

func (s *CertificateStore) CountByKind(ctx context.Context) (map[domain.EntityKind]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[domain.EntityKind]int{}
	for _, cert := range s.byID {
		out[kindOf(cert.Type)]++
	}
	return out, nil
}

func (s *CertificateStore) CountByKindAndCountry(ctx context.Context) (map[domain.EntityKind]map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[domain.EntityKind]map[string]int{}
	for _, cert := range s.byID {
		kind := kindOf(cert.Type)
		if out[kind] == nil {
			out[kind] = map[string]int{}
		}
		out[kind][cert.CountryCode]++
	}
	return out, nil
}

// ValidationResults returns a snapshot of the saved results, oldest first.
func (s *CertificateStore) ValidationResults() []*domain.ValidationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ValidationResult, len(s.results))
	for i, r := range s.results {
		copied := *r
		out[i] = &copied
	}
	return out
}

// sorted returns certificates ordered by creation time then id for
// deterministic iteration.
func (s *CertificateStore) sorted() []*domain.Certificate {
	out := make([]*domain.Certificate, 0, len(s.byID))
	for _, cert := range s.byID {
		out = append(out, cert)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func kindOf(certType domain.CertificateType) domain.EntityKind {
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
