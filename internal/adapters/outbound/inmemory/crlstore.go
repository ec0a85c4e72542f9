package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

type crlKey struct {
	country     string
	fingerprint string
}

// CRLStore is the in-memory CRL store, unique by (country, fingerprint).
type CRLStore struct {
	mu    sync.RWMutex
	byKey map[crlKey]*domain.CRL
	byID  map[string]*domain.CRL
}

// NewCRLStore creates an empty CRL store.
func NewCRLStore() *CRLStore {
	return &CRLStore{
		byKey: map[crlKey]*domain.CRL{},
		byID:  map[string]*domain.CRL{},
	}
}

func (s *CRLStore) Put(ctx context.Context, crl *domain.CRL) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := crlKey{crl.CountryCode, crl.FingerprintSHA256}
	if existing, ok := s.byKey[key]; ok {
		return existing.ID, true, nil
	}
	stored := *crl
	stored.ID = uuid.NewString()
	s.byKey[key] = &stored
	s.byID[stored.ID] = &stored
	return stored.ID, false, nil
}

func (s *CRLStore) FindByCountry(ctx context.Context, country string) (*domain.CRL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var freshest *domain.CRL
	for _, crl := range s.byID {
		if crl.CountryCode != country {
			continue
		}
		if freshest == nil || crl.ThisUpdate.After(freshest.ThisUpdate) {
			freshest = crl
		}
	}
	if freshest == nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrCrlNotFound, country)
	}
	copied := *freshest
	return &copied, nil
}

func (s *CRLStore) FindNotInLDAP(ctx context.Context, limit int) ([]*domain.CRL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.CRL
	for _, crl := range s.byID {
		if !crl.StoredInLDAP {
			copied := *crl
			out = append(out, &copied)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *CRLStore) MarkStoredInLDAP(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	crl, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: id %s", ports.ErrCrlNotFound, id)
	}
	crl.StoredInLDAP = true
	return nil
}

func (s *CRLStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func (s *CRLStore) CountByCountry(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]int{}
	for _, crl := range s.byID {
		out[crl.CountryCode]++
	}
	return out, nil
}
