package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]store.Record
	order   map[string]int64
	seq     int64
	now     func() time.Time
}

func New() *MemoryStore {
	return &MemoryStore{
		records: map[string]store.Record{},
		order:   map[string]int64{},
		now:     time.Now,
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (m *MemoryStore) List(ctx context.Context, query store.Query) ([]store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]store.Record, 0, len(m.records))
	for _, record := range m.records {
		if query.Matches(record) {
			results = append(results, cloneRecord(record))
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if query.Descending {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if query.Descending {
			return m.order[a.ID] > m.order[b.ID]
		}
		return m.order[a.ID] < m.order[b.ID]
	})
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Upsert merges by id. An existing row keeps its creation time.
func (m *MemoryStore) Upsert(ctx context.Context, record store.Record) (store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[record.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = m.now().UTC()
		}
		m.seq++
		m.order[record.ID] = m.seq
	}
	if strings.TrimSpace(string(record.Messages)) == "" {
		record.Messages = json.RawMessage("[]")
	}
	m.records[record.ID] = cloneRecord(record)
	return cloneRecord(record), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	delete(m.order, id)
	return nil
}

func (m *MemoryStore) DeleteContexts(ctx context.Context, companyVariants []string) error {
	if len(companyVariants) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	query := store.Query{Type: store.TypeContext, CompanyVariants: companyVariants}
	for id, record := range m.records {
		if query.Matches(record) {
			delete(m.records, id)
			delete(m.order, id)
		}
	}
	return nil
}

func cloneRecord(record store.Record) store.Record {
	cloned := record
	cloned.Messages = append(json.RawMessage(nil), record.Messages...)
	return cloned
}
