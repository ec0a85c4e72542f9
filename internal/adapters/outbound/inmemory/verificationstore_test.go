package inmemory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/adapters/outbound/inmemory"
	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

func seedVerifications(t *testing.T, s *inmemory.VerificationStore) {
	t.Helper()
	rows := []domain.PaVerification{
		{CountryCode: "KR", Status: domain.VerificationValid},
		{CountryCode: "KR", Status: domain.VerificationInvalid},
		{CountryCode: "DE", Status: domain.VerificationValid},
		{CountryCode: "DE", Status: domain.VerificationError},
	}
	for i := range rows {
		_, err := s.Insert(context.Background(), &rows[i], nil)
		require.NoError(t, err)
	}
}

func TestVerificationStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	s := inmemory.NewVerificationStore()
	v := domain.PaVerification{CountryCode: "KR", Status: domain.VerificationValid}
	dgs := []domain.DataGroupResult{{DgNumber: 1, HashValid: true}}

	id, err := s.Insert(context.Background(), &v, dgs)
	require.NoError(t, err)

	got, rows, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationValid, got.Status)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].VerificationID)

	_, _, err = s.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrInvalidInput)
}

func TestVerificationStore_ListFilters(t *testing.T) {
	t.Parallel()

	s := inmemory.NewVerificationStore()
	seedVerifications(t, s)

	all, err := s.List(context.Background(), ports.VerificationFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	// Newest first.
	assert.Equal(t, domain.VerificationError, all[0].Status)

	valid, err := s.List(context.Background(), ports.VerificationFilter{Status: domain.VerificationValid})
	require.NoError(t, err)
	assert.Len(t, valid, 2)

	kr, err := s.List(context.Background(), ports.VerificationFilter{CountryCode: "KR"})
	require.NoError(t, err)
	assert.Len(t, kr, 2)

	page, err := s.List(context.Background(), ports.VerificationFilter{Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, page, 1)
	page, err = s.List(context.Background(), ports.VerificationFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestVerificationStore_Statistics(t *testing.T) {
	t.Parallel()

	s := inmemory.NewVerificationStore()
	seedVerifications(t, s)

	stats, err := s.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[domain.VerificationValid])
	assert.Equal(t, 1, stats.ByStatus[domain.VerificationError])
	assert.Equal(t, 2, stats.ByCountry["KR"])
	assert.Equal(t, 2, stats.ByCountry["DE"])
}
