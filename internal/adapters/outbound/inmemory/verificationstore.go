package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// VerificationStore is the in-memory PA verification history.
type VerificationStore struct {
	mu            sync.RWMutex
	verifications map[string]*domain.PaVerification
	dataGroups    map[string][]domain.DataGroupResult
	order         []string
}

// NewVerificationStore creates an empty history.
func NewVerificationStore() *VerificationStore {
	return &VerificationStore{
		verifications: map[string]*domain.PaVerification{},
		dataGroups:    map[string][]domain.DataGroupResult{},
	}
}

func (s *VerificationStore) Insert(ctx context.Context, verification *domain.PaVerification, dataGroups []domain.DataGroupResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	stored := *verification
	stored.ID = id
	s.verifications[id] = &stored
	s.order = append(s.order, id)

	rows := make([]domain.DataGroupResult, len(dataGroups))
	copy(rows, dataGroups)
	for i := range rows {
		rows[i].VerificationID = id
	}
	s.dataGroups[id] = rows
	return id, nil
}

func (s *VerificationStore) GetByID(ctx context.Context, id string) (*domain.PaVerification, []domain.DataGroupResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	verification, ok := s.verifications[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: verification %s", ports.ErrInvalidInput, id)
	}
	copied := *verification
	rows := make([]domain.DataGroupResult, len(s.dataGroups[id]))
	copy(rows, s.dataGroups[id])
	return &copied, rows, nil
}

func (s *VerificationStore) List(ctx context.Context, filter ports.VerificationFilter) ([]*domain.PaVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	// Newest first, like the SQL ORDER BY created_at DESC.
	var matched []*domain.PaVerification
	for i := len(ids) - 1; i >= 0; i-- {
		v := s.verifications[ids[i]]
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		if filter.CountryCode != "" && v.CountryCode != filter.CountryCode {
			continue
		}
		matched = append(matched, v)
	}

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]*domain.PaVerification, len(matched))
	for i, v := range matched {
		copied := *v
		out[i] = &copied
	}
	return out, nil
}

func (s *VerificationStore) Statistics(ctx context.Context) (*ports.PaStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &ports.PaStatistics{
		ByStatus:  map[domain.VerificationStatus]int{},
		ByCountry: map[string]int{},
	}
	for _, v := range s.verifications {
		stats.Total++
		stats.ByStatus[v.Status]++
		if v.CountryCode != "" {
			stats.ByCountry[v.CountryCode]++
		}
	}
	return stats, nil
}
