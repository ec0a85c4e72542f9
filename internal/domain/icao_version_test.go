package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/pkdpa/internal/domain"
)

func TestIcaoVersion_ForwardTransitions(t *testing.T) {
	t.Parallel()

	v := &domain.IcaoVersion{Collection: domain.CollectionDscCrl, Version: 309, Status: domain.VersionDetected}
	require.NoError(t, v.Transition(domain.VersionNotified))
	require.NoError(t, v.Transition(domain.VersionDownloaded))
	require.NoError(t, v.Transition(domain.VersionImported))
	assert.Equal(t, domain.VersionImported, v.Status)
}

func TestIcaoVersion_SkippingForwardIsAllowed(t *testing.T) {
	t.Parallel()

	v := &domain.IcaoVersion{Status: domain.VersionDetected}
	require.NoError(t, v.Transition(domain.VersionImported))
	assert.Equal(t, domain.VersionImported, v.Status)
}

func TestIcaoVersion_NoBackwardsMove(t *testing.T) {
	t.Parallel()

	v := &domain.IcaoVersion{Status: domain.VersionDownloaded}
	assert.ErrorIs(t, v.Transition(domain.VersionNotified), domain.ErrInvalidStatusTransition)
	assert.ErrorIs(t, v.Transition(domain.VersionDownloaded), domain.ErrInvalidStatusTransition)
	assert.Equal(t, domain.VersionDownloaded, v.Status)
}

func TestIcaoVersion_FailedIsTerminal(t *testing.T) {
	t.Parallel()

	v := &domain.IcaoVersion{Status: domain.VersionNotified}
	require.NoError(t, v.Transition(domain.VersionFailed))
	assert.ErrorIs(t, v.Transition(domain.VersionDownloaded), domain.ErrInvalidStatusTransition)
	assert.Equal(t, domain.VersionFailed, v.Status)
}

func TestReconciliationSummary_FinalStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.ReconcileCompleted, (&domain.ReconciliationSummary{Succeeded: 5}).FinalStatus())
	assert.Equal(t, domain.ReconcileCompleted, (&domain.ReconciliationSummary{}).FinalStatus())
	assert.Equal(t, domain.ReconcileFailed, (&domain.ReconciliationSummary{Failed: 3}).FinalStatus())
	assert.Equal(t, domain.ReconcilePartial, (&domain.ReconciliationSummary{Succeeded: 2, Failed: 1}).FinalStatus())
}
