package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/adapters/outbound/inmemory"
	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
	"github.com/sufield/pkdpa/internal/testpki"
)

func TestCRLStore_FreshestWins(t *testing.T) {
	t.Parallel()

	s := inmemory.NewCRLStore()
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-48*time.Hour), now.Add(24*time.Hour))

	older, err := domain.NewCRLFromDER(csca.SignCRL(nil, now.Add(-24*time.Hour), now.Add(24*time.Hour)))
	require.NoError(t, err)
	newer, err := domain.NewCRLFromDER(csca.SignCRL(nil, now.Add(-time.Hour), now.Add(48*time.Hour)))
	require.NoError(t, err)

	_, _, err = s.Put(context.Background(), older)
	require.NoError(t, err)
	_, _, err = s.Put(context.Background(), newer)
	require.NoError(t, err)

	got, err := s.FindByCountry(context.Background(), "KR")
	require.NoError(t, err)
	assert.Equal(t, newer.FingerprintSHA256, got.FingerprintSHA256)

	_, err = s.FindByCountry(context.Background(), "DE")
	assert.ErrorIs(t, err, ports.ErrCrlNotFound)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	byCountry, err := s.CountByCountry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"KR": 2}, byCountry)
}

func TestCRLStore_DuplicatePut(t *testing.T) {
	t.Parallel()

	s := inmemory.NewCRLStore()
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	crl, err := domain.NewCRLFromDER(csca.SignCRL(nil, now.Add(-time.Hour), now.Add(24*time.Hour)))
	require.NoError(t, err)

	id, duplicate, err := s.Put(context.Background(), crl)
	require.NoError(t, err)
	assert.False(t, duplicate)

	again, duplicate, err := s.Put(context.Background(), crl)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, id, again)
}

func TestCRLStore_LdapFlag(t *testing.T) {
	t.Parallel()

	s := inmemory.NewCRLStore()
	now := time.Now()
	csca := testpki.NewCSCA("KR", "CSCA Korea", now.Add(-time.Hour), now.Add(24*time.Hour))
	crl, err := domain.NewCRLFromDER(csca.SignCRL(nil, now.Add(-time.Hour), now.Add(24*time.Hour)))
	require.NoError(t, err)
	id, _, err := s.Put(context.Background(), crl)
	require.NoError(t, err)

	pending, err := s.FindNotInLDAP(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkStoredInLDAP(context.Background(), id))
	pending, err = s.FindNotInLDAP(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
