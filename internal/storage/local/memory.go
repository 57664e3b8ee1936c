package local

import (
	"context"
	"slices"
	"sync"

	"github.com/newthinker/nisab/internal/core"
)

const defaultMaxRuns = 1000

type memEntry struct {
	key  core.Key
	blob []byte
}

// MemoryStore is an in-process store. Snapshots are kept encoded so
// readers never share maps with writers.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	runs    []SyncRun
	maxRuns int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		maxRuns: defaultMaxRuns,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key core.Key) (*core.Snapshot, error) {
	key = normalizeKey(key)

	m.mu.RLock()
	e, ok := m.entries[key.String()]
	m.mu.RUnlock()

	if !ok {
		return nil, core.ErrSnapshotNotFound
	}
	snap, err := decodeRecord(e.key, e.blob)
	if err != nil {
		return nil, storeErr("get "+key.String(), err)
	}
	return snap, nil
}

func (m *MemoryStore) Put(ctx context.Context, snap *core.Snapshot) (bool, error) {
	key := normalizeKey(snap.Key())
	blob, err := encodeRecord(snap)
	if err != nil {
		return false, storeErr("put", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key.String()]; exists {
		return false, nil
	}
	m.entries[key.String()] = memEntry{key: key, blob: blob}
	return true, nil
}

func (m *MemoryStore) Replace(ctx context.Context, snap *core.Snapshot) error {
	key := normalizeKey(snap.Key())
	blob, err := encodeRecord(snap)
	if err != nil {
		return storeErr("replace", err)
	}

	m.mu.Lock()
	m.entries[key.String()] = memEntry{key: key, blob: blob}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Has(ctx context.Context, key core.Key) (bool, error) {
	key = normalizeKey(key)

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key.String()]
	return ok, nil
}

func (m *MemoryStore) Coverage(ctx context.Context) ([]Coverage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[core.DataType]*Coverage)
	for _, e := range m.entries {
		c, ok := byType[e.key.DataType]
		if !ok {
			c = &Coverage{DataType: e.key.DataType, Earliest: e.key.Date, Latest: e.key.Date}
			byType[e.key.DataType] = c
		}
		c.Count++
		if e.key.Date.Before(c.Earliest) {
			c.Earliest = e.key.Date
		}
		if e.key.Date.After(c.Latest) {
			c.Latest = e.key.Date
		}
	}

	out := make([]Coverage, 0, len(byType))
	for _, dt := range core.AllDataTypes() {
		if c, ok := byType[dt]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MemoryStore) RecordSyncRun(ctx context.Context, run SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, run)
	// Trim if over capacity (remove oldest)
	if len(m.runs) > m.maxRuns {
		m.runs = m.runs[len(m.runs)-m.maxRuns:]
	}
	return nil
}

// SyncRuns returns the most recent runs first.
func (m *MemoryStore) SyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := slices.Clone(m.runs)
	slices.Reverse(out)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
