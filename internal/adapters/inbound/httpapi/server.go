// Package httpapi is the thin inbound HTTP adapter: JSON shaping and
// routing only, all behavior lives behind the inbound ports.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sufield/pkdpa/internal/ports"
)

// Handler carries the wired ports the routes dispatch to.
type Handler struct {
	pa            ports.PassiveAuthenticator
	syncChecker   ports.SyncChecker
	reconciler    ports.Reconciler
	revalidator   ports.Revalidator
	verifications ports.VerificationStore
	syncStatuses  ports.SyncStatusStore
	syncConfigs   ports.SyncConfigStore
	audit         ports.AuditLog
	scheduler     reloader
	logger        *zap.Logger
	maxBodyBytes  int64
}

// reloader decouples the handler from the concrete scheduler.
type reloader interface {
	TriggerNow()
	Reload(ctx context.Context) error
}

// Option configures the Handler.
type Option func(*Handler)

// WithScheduler lets the sync-check trigger endpoint poke the scheduler.
func WithScheduler(s reloader) Option {
	return func(h *Handler) { h.scheduler = s }
}

// WithAudit attaches the audit log for config changes.
func WithAudit(audit ports.AuditLog) Option {
	return func(h *Handler) { h.audit = audit }
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler wires the routes.
func NewHandler(
	pa ports.PassiveAuthenticator,
	syncChecker ports.SyncChecker,
	reconciler ports.Reconciler,
	revalidator ports.Revalidator,
	verifications ports.VerificationStore,
	syncStatuses ports.SyncStatusStore,
	syncConfigs ports.SyncConfigStore,
	logger *zap.Logger,
	opts ...Option,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		pa:            pa,
		syncChecker:   syncChecker,
		reconciler:    reconciler,
		revalidator:   revalidator,
		verifications: verifications,
		syncStatuses:  syncStatuses,
		syncConfigs:   syncConfigs,
		logger:        logger,
		maxBodyBytes:  16 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the chi mux.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/pa", func(r chi.Router) {
			r.Post("/verify", h.verify)
			r.Get("/verifications", h.listVerifications)
			r.Get("/verifications/{id}", h.getVerification)
			r.Get("/statistics", h.statistics)
		})
		r.Route("/sync", func(r chi.Router) {
			r.Post("/check", h.runSyncCheck)
			r.Get("/status", h.latestSyncStatus)
			r.Get("/config", h.getSyncConfig)
			r.Put("/config", h.putSyncConfig)
		})
		r.Post("/reconcile", h.reconcile)
		r.Post("/revalidate", h.revalidate)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
