package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
	"github.com/sufield/pkdpa/internal/ports"
)

// SyncStatusStore keeps sync-check snapshots, newest last.
type SyncStatusStore struct {
	mu        sync.Mutex
	snapshots []*domain.SyncStatus
}

// NewSyncStatusStore creates an empty snapshot store.
func NewSyncStatusStore() *SyncStatusStore {
	return &SyncStatusStore{}
}

func (s *SyncStatusStore) Save(ctx context.Context, status *domain.SyncStatus) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *status
	stored.ID = uuid.NewString()
	s.snapshots = append(s.snapshots, &stored)
	return stored.ID, nil
}

func (s *SyncStatusStore) Latest(ctx context.Context) (*domain.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil, fmt.Errorf("%w: no sync status recorded", ports.ErrInvalidInput)
	}
	copied := *s.snapshots[len(s.snapshots)-1]
	return &copied, nil
}

// ReconciliationStore keeps summaries and per-operation logs.
type ReconciliationStore struct {
	mu        sync.Mutex
	summaries map[string]*domain.ReconciliationSummary
	logs      []*domain.ReconciliationLog
}

// NewReconciliationStore creates an empty reconciliation store.
func NewReconciliationStore() *ReconciliationStore {
	return &ReconciliationStore{summaries: map[string]*domain.ReconciliationSummary{}}
}

func (s *ReconciliationStore) CreateSummary(ctx context.Context, summary *domain.ReconciliationSummary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *summary
	stored.ID = uuid.NewString()
	s.summaries[stored.ID] = &stored
	return stored.ID, nil
}

func (s *ReconciliationStore) UpdateSummary(ctx context.Context, summary *domain.ReconciliationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.summaries[summary.ID]; !ok {
		return fmt.Errorf("%w: summary %s", ports.ErrInvalidInput, summary.ID)
	}
	stored := *summary
	s.summaries[summary.ID] = &stored
	return nil
}

func (s *ReconciliationStore) AppendLog(ctx context.Context, log *domain.ReconciliationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *log
	stored.ID = uuid.NewString()
	s.logs = append(s.logs, &stored)
	return nil
}

// Summary returns one stored summary by id, nil when absent.
func (s *ReconciliationStore) Summary(id string) *domain.ReconciliationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[id]
	if !ok {
		return nil
	}
	copied := *summary
	return &copied
}

// Logs returns a snapshot of the appended logs, oldest first.
func (s *ReconciliationStore) Logs() []*domain.ReconciliationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ReconciliationLog, len(s.logs))
	for i, l := range s.logs {
		copied := *l
		out[i] = &copied
	}
	return out
}

// RevalidationStore keeps revalidation run records.
type RevalidationStore struct {
	mu   sync.Mutex
	runs []*domain.RevalidationRun
}

// NewRevalidationStore creates an empty run store.
func NewRevalidationStore() *RevalidationStore {
	return &RevalidationStore{}
}

func (s *RevalidationStore) SaveRun(ctx context.Context, run *domain.RevalidationRun) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *run
	stored.ID = uuid.NewString()
	s.runs = append(s.runs, &stored)
	return stored.ID, nil
}

// Runs returns a snapshot of the saved runs, oldest first.
func (s *RevalidationStore) Runs() []*domain.RevalidationRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.RevalidationRun, len(s.runs))
	for i, r := range s.runs {
		copied := *r
		out[i] = &copied
	}
	return out
}

type versionKey struct {
	collection domain.CollectionType
	version    int
}

// VersionStore keeps the ICAO collection version ledger.
type VersionStore struct {
	mu       sync.Mutex
	versions map[versionKey]*domain.IcaoVersion
}

// NewVersionStore creates an empty version ledger.
func NewVersionStore() *VersionStore {
	return &VersionStore{versions: map[versionKey]*domain.IcaoVersion{}}
}

func (s *VersionStore) Upsert(ctx context.Context, version *domain.IcaoVersion) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := versionKey{version.Collection, version.Version}
	stored := *version
	if existing, ok := s.versions[key]; ok {
		stored.ID = existing.ID
	} else {
		stored.ID = uuid.NewString()
	}
	s.versions[key] = &stored
	return stored.ID, nil
}

func (s *VersionStore) Get(ctx context.Context, collection domain.CollectionType, version int) (*domain.IcaoVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.versions[versionKey{collection, version}]
	if !ok {
		return nil, fmt.Errorf("%w: %s version %d", ports.ErrInvalidInput, collection, version)
	}
	copied := *stored
	return &copied, nil
}

// SyncConfigStore keeps the scheduler configuration.
type SyncConfigStore struct {
	mu  sync.Mutex
	cfg ports.SyncConfig
}

// NewSyncConfigStore creates a store seeded with the default configuration.
func NewSyncConfigStore() *SyncConfigStore {
	return &SyncConfigStore{cfg: ports.DefaultSyncConfig()}
}

func (s *SyncConfigStore) Load(ctx context.Context) (ports.SyncConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (s *SyncConfigStore) Save(ctx context.Context, cfg ports.SyncConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// AuditLog keeps audit entries in memory.
type AuditLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) Record(ctx context.Context, entry domain.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.ID = uuid.NewString()
	l.entries = append(l.entries, entry)
}

// Entries returns a snapshot of the recorded entries, oldest first.
func (l *AuditLog) Entries() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
