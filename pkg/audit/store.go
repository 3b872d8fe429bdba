package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pario-ai/parley/pkg/models"
)

// Appender persists a single audit record. Implementations must insert,
// never upsert: records are append-only.
type Appender interface {
	Append(ctx context.Context, rec models.AuditRecord) error
}

// Store is an audit record backend with read and admin operations.
type Store interface {
	Appender
	// Query returns records matching opts, newest first.
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditRecord, error)
	// Stats returns record counts grouped by UTC day, newest day first.
	Stats(ctx context.Context) ([]models.AuditStat, error)
	// Cleanup deletes records created before the cutoff. It is an explicit
	// administrative operation and is never run automatically.
	Cleanup(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

const defaultQueryLimit = 100

// NewStore opens the backend selected by driver.
func NewStore(ctx context.Context, driver, dbPath, databaseURL string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(dbPath)
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", driver)
	}
}

// MemoryStore keeps audit records in process memory, for local use and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.AuditRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == rec.ID {
			return fmt.Errorf("append audit record: duplicate id %s", rec.ID)
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, opts models.AuditQueryOpts) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	var out []models.AuditRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.records[i]
		if opts.ID != "" && r.ID != opts.ID {
			continue
		}
		if opts.ConversationID != "" && (r.ConversationID == nil || *r.ConversationID != opts.ConversationID) {
			continue
		}
		if !opts.Since.IsZero() && r.CreatedAt.Before(opts.Since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) ([]models.AuditStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]int)
	for _, r := range s.records {
		byDay[r.CreatedAt.UTC().Format(time.DateOnly)]++
	}
	stats := make([]models.AuditStat, 0, len(byDay))
	for day, n := range byDay {
		stats = append(stats, models.AuditStat{Day: day, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Day > stats[j].Day })
	return stats, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var deleted int64
	for _, r := range s.records {
		if r.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
