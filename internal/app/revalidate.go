package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// revalidatePageSize is how many certificates each store page carries.
const revalidatePageSize = 200

// revalidatedTypes is the fixed order certificates are revalidated in.
var revalidatedTypes = []domain.CertificateType{
	domain.CertTypeCSCA,
	domain.CertTypeMLSC,
	domain.CertTypeDSC,
	domain.CertTypeDSCNC,
}

// RevalidationService re-evaluates every stored certificate: validity
// window, trust chain (for DSCs), and revocation. Work fans out over a
// bounded worker group sized to the database pool so the pass cannot starve
// concurrent PA traffic of connections.
type RevalidationService struct {
	certs       ports.CertificateStore
	validator   *ChainValidator
	runs        ports.RevalidationStore
	audit       ports.AuditLog
	parallelism int
	clock       func() time.Time
	logger      *zap.Logger
}

// RevalidationOption configures a RevalidationService.
type RevalidationOption func(*RevalidationService)

// WithRevalidationClock injects the time source.
func WithRevalidationClock(clock func() time.Time) RevalidationOption {
	return func(r *RevalidationService) { r.clock = clock }
}

// WithRevalidationLogger sets a structured logger.
func WithRevalidationLogger(logger *zap.Logger) RevalidationOption {
	return func(r *RevalidationService) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRevalidationAudit attaches the audit log.
func WithRevalidationAudit(audit ports.AuditLog) RevalidationOption {
	return func(r *RevalidationService) { r.audit = audit }
}

// NewRevalidationService wires the revalidator. parallelism caps concurrent
// workers; values below one collapse to sequential.
func NewRevalidationService(certs ports.CertificateStore, validator *ChainValidator, runs ports.RevalidationStore, parallelism int, opts ...RevalidationOption) *RevalidationService {
	if parallelism < 1 {
		parallelism = 1
	}
	r := &RevalidationService{
		certs:       certs,
		validator:   validator,
		runs:        runs,
		parallelism: parallelism,
		clock:       time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revalidate runs one full pass. Per-certificate failures are counted and
// skipped; only store paging errors or cancellation abort the pass early,
// and even then the partial run record is saved.
func (r *RevalidationService) Revalidate(ctx context.Context, triggeredBy string) (*domain.RevalidationRun, error) {
	start := r.clock()
	run := &domain.RevalidationRun{
		TriggeredBy: triggeredBy,
		StartedAt:   start,
	}

	work := make(chan *domain.Certificate)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < r.parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cert := range work {
				status, err := r.validator.RevalidateCertificate(ctx, cert)
				mu.Lock()
				run.Total++
				if err != nil {
					run.Errors++
					mu.Unlock()
					r.logger.Warn("certificate revalidation failed",
						zap.String("fingerprint", cert.FingerprintSHA256),
						zap.Error(err))
					continue
				}
				switch status {
				case domain.ValidationValid:
					run.Valid++
				case domain.ValidationExpired:
					run.Expired++
				case domain.ValidationNotYetValid:
					run.NotYetValid++
				case domain.ValidationInvalid:
					run.Invalid++
				default:
					run.Errors++
				}
				mu.Unlock()
			}
		}()
	}

	feedErr := r.feed(ctx, work)
	close(work)
	wg.Wait()

	run.FinishedAt = r.clock()
	if id, err := r.runs.SaveRun(ctx, run); err == nil {
		run.ID = id
	} else {
		r.logger.Error("revalidation run record not saved", zap.Error(err))
	}

	if r.audit != nil {
		r.audit.Record(ctx, domain.AuditEntry{
			Operation:  domain.AuditRevalidate,
			Username:   triggeredBy,
			DurationMs: run.FinishedAt.Sub(start).Milliseconds(),
			Success:    feedErr == nil,
			Metadata: map[string]any{
				"total":   run.Total,
				"valid":   run.Valid,
				"expired": run.Expired,
				"invalid": run.Invalid,
				"errors":  run.Errors,
			},
			CreatedAt: r.clock(),
		})
	}

	r.logger.Info("revalidation pass finished",
		zap.Int("total", run.Total),
		zap.Int("valid", run.Valid),
		zap.Int("expired", run.Expired),
		zap.Int("invalid", run.Invalid),
		zap.Int("errors", run.Errors),
		zap.String("triggered_by", triggeredBy))

	return run, feedErr
}

// feed pages every certificate type through the work channel.
func (r *RevalidationService) feed(ctx context.Context, work chan<- *domain.Certificate) error {
	for _, certType := range revalidatedTypes {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := r.certs.List(ctx, certType, revalidatePageSize, offset)
			if err != nil {
				return err
			}
			for _, cert := range page {
				select {
				case work <- cert:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if len(page) < revalidatePageSize {
				break
			}
			offset += revalidatePageSize
		}
	}
	return nil
}
