package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/ports"
)

// Container is the process-wide singleton holding every wired service. The
// composition root (cmd or a test harness) constructs the adapters, hands
// them in, and owns the container for the process lifetime.
//
// Shutdown is deterministic: closers run in reverse registration order, so
// dependents close before their dependencies.
type Container struct {
	Logger *zap.Logger

	Certificates  ports.CertificateStore
	CRLs          ports.CRLStore
	Verifications ports.VerificationStore
	SyncStatuses  ports.SyncStatusStore
	SyncConfigs   ports.SyncConfigStore
	Gateway       ports.DirectoryGateway
	Audit         ports.AuditLog

	Validator   *ChainValidator
	PA          *PAEngine
	SyncCheck   *SyncService
	Reconciler  *ReconcilerService
	Revalidator *RevalidationService
	Scheduler   *Scheduler

	mu       sync.Mutex
	closers  []func() error
	shutDown bool
}

// RegisterCloser appends a shutdown hook. Hooks run in reverse order.
func (c *Container) RegisterCloser(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, func() error {
		if err := fn(); err != nil {
			if c.Logger != nil {
				c.Logger.Warn("shutdown hook failed", zap.String("component", name), zap.Error(err))
			}
			return err
		}
		return nil
	})
}

// Shutdown stops the scheduler first, then runs registered closers in
// reverse order. Idempotent.
func (c *Container) Shutdown() {
	c.mu.Lock()
	if c.shutDown {
		c.mu.Unlock()
		return
	}
	c.shutDown = true
	closers := c.closers
	c.mu.Unlock()

	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i]()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}
