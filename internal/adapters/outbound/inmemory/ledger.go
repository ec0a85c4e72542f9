package inmemory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sufield/pkdpa/internal/domain"
)

type sightingKey struct {
	certificateID  string
	uploadID       string
	sourceFileName string
}

// DuplicateLedger is the in-memory append-only duplicate sighting record.
type DuplicateLedger struct {
	mu        sync.Mutex
	sightings []domain.DuplicateSighting
	seen      map[sightingKey]bool
}

// NewDuplicateLedger creates an empty ledger.
func NewDuplicateLedger() *DuplicateLedger {
	return &DuplicateLedger{seen: map[sightingKey]bool{}}
}

func (l *DuplicateLedger) RecordSighting(ctx context.Context, sighting domain.DuplicateSighting) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := sightingKey{sighting.CertificateID, sighting.UploadID, sighting.SourceFileName}
	if l.seen[key] {
		return nil
	}
	l.seen[key] = true
	sighting.ID = uuid.NewString()
	l.sightings = append(l.sightings, sighting)
	return nil
}

func (l *DuplicateLedger) CountByCertificate(ctx context.Context, certificateID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, s := range l.sightings {
		if s.CertificateID == certificateID {
			count++
		}
	}
	return count, nil
}
