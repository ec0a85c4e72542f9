package ports

import (
	"context"

	"github.com/sufield/pkdpa/internal/domain"
)

// PassiveAuthenticator runs full Passive Authentication for one document.
// The returned error is reserved for infrastructure failures before the
// pipeline produces a verdict; verification failures are reported in the
// result status, never as an error.
type PassiveAuthenticator interface {
	Verify(ctx context.Context, req PARequest) (*PAResult, error)
}

// SyncChecker compares DB and LDAP populations and persists a snapshot.
type SyncChecker interface {
	RunSyncCheck(ctx context.Context, triggeredBy string) (*domain.SyncStatus, error)
}

// Reconciler repairs missing LDAP entries from the relational store.
// One-way: LDAP is never the source of truth.
type Reconciler interface {
	Reconcile(ctx context.Context, opts ReconcileOptions) (*domain.ReconciliationSummary, error)
}

// Revalidator re-evaluates every stored certificate's validity window and
// revocation status.
type Revalidator interface {
	Revalidate(ctx context.Context, triggeredBy string) (*domain.RevalidationRun, error)
}
