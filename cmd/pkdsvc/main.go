// Command pkdsvc runs the local PKD and Passive Authentication service:
// HTTP API, daily sync scheduler, and the LDAP/SQL backends (or the
// in-memory adapters in dev mode).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sufield/pkdpa/internal/adapters/inbound/httpapi"
	"github.com/sufield/pkdpa/internal/adapters/outbound/inmemory"
	"github.com/sufield/pkdpa/internal/adapters/outbound/ldapdir"
	"github.com/sufield/pkdpa/internal/adapters/outbound/sqlstore"
	"github.com/sufield/pkdpa/internal/app"
	"github.com/sufield/pkdpa/internal/bg"
	"github.com/sufield/pkdpa/internal/config"
	"github.com/sufield/pkdpa/internal/ports"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pkdsvc:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := buildContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Shutdown()

	if err := container.Scheduler.Start(ctx); err != nil {
		return err
	}

	handler := httpapi.NewHandler(
		container.PA,
		container.SyncCheck,
		container.Reconciler,
		container.Revalidator,
		container.Verifications,
		container.SyncStatuses,
		container.SyncConfigs,
		logger,
		httpapi.WithScheduler(container.Scheduler),
		httpapi.WithAudit(container.Audit),
		httpapi.WithMaxBodyBytes(int64(cfg.MaxBodySizeMB)<<20),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.ServerPort))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// buildContainer constructs the adapters and services in dependency order
// and registers shutdown hooks in that order (the container closes them in
// reverse).
func buildContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.Container, error) {
	container := &app.Container{Logger: logger}

	if cfg.DevMode {
		logger.Warn("dev mode: running on in-memory adapters")
		ledger := inmemory.NewDuplicateLedger()
		container.Certificates = inmemory.NewCertificateStore(ledger)
		container.CRLs = inmemory.NewCRLStore()
		container.Verifications = inmemory.NewVerificationStore()
		container.SyncStatuses = inmemory.NewSyncStatusStore()
		container.SyncConfigs = inmemory.NewSyncConfigStore()
		container.Gateway = inmemory.NewDirectory(cfg.LDAPBaseDN)
		container.Audit = inmemory.NewAuditLog()
		wireServices(container, inmemory.NewReconciliationStore(), inmemory.NewRevalidationStore(), cfg, logger)
		return container, nil
	}

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Type:     cfg.DBType,
		Host:     cfg.DatabaseHost(),
		Port:     cfg.DatabasePort(),
		Name:     cfg.DatabaseName(),
		User:     cfg.DatabaseUser(),
		Password: cfg.DatabasePassword(),
		PoolSize: cfg.DBPoolMax,
	}, logger)
	if err != nil {
		return nil, err
	}
	container.RegisterCloser("database", db.Close)
	if err := db.EnsureSchema(ctx); err != nil {
		container.Shutdown()
		return nil, err
	}

	pool, err := ldapdir.NewPool(ctx, ldapdir.PoolConfig{
		URL:            cfg.LDAPURL(),
		BindDN:         cfg.LDAPBindDN,
		BindPassword:   cfg.LDAPBindPassword,
		Size:           cfg.LDAPPoolSize,
		AcquireTimeout: cfg.LDAPNetworkTimeout,
	}, logger)
	if err != nil {
		container.Shutdown()
		return nil, err
	}
	container.RegisterCloser("ldap pool", pool.Close)

	ledger := sqlstore.NewDuplicateLedger(db)
	container.Certificates = sqlstore.NewCertificateStore(db, ledger)
	container.CRLs = sqlstore.NewCRLStore(db)
	container.Verifications = sqlstore.NewVerificationStore(db)
	container.SyncStatuses = sqlstore.NewSyncStatusStore(db)
	container.SyncConfigs = sqlstore.NewSyncConfigStore(db)
	container.Gateway = ldapdir.NewGateway(pool, cfg.LDAPBaseDN, logger)
	container.Audit = sqlstore.NewAuditLog(db, logger)
	wireServices(container, sqlstore.NewReconciliationStore(db), sqlstore.NewRevalidationStore(db), cfg, logger)
	return container, nil
}

func wireServices(container *app.Container, recon ports.ReconciliationStore, reval ports.RevalidationStore, cfg *config.Config, logger *zap.Logger) {
	container.Validator = app.NewChainValidator(container.Gateway, container.Certificates,
		app.WithChainLogger(logger))
	container.PA = app.NewPAEngine(container.Certificates, container.Verifications, container.Validator,
		app.WithPALogger(logger),
		app.WithPAAudit(container.Audit),
		app.WithConformanceProber(container.Gateway))
	container.SyncCheck = app.NewSyncService(container.Certificates, container.CRLs, container.Gateway,
		container.SyncStatuses,
		app.WithSyncLogger(logger),
		app.WithSyncAudit(container.Audit))
	container.Reconciler = app.NewReconcilerService(container.Certificates, container.CRLs,
		container.Gateway, recon, container.SyncConfigs,
		app.WithReconcilerLogger(logger),
		app.WithReconcilerAudit(container.Audit))
	container.Revalidator = app.NewRevalidationService(container.Certificates, container.Validator,
		reval, cfg.DBPoolMax,
		app.WithRevalidationLogger(logger),
		app.WithRevalidationAudit(container.Audit))
	container.Scheduler = app.NewScheduler(container.SyncCheck, container.Revalidator,
		container.Reconciler, container.SyncConfigs, bg.Async{},
		app.WithSchedulerLogger(logger))
}
