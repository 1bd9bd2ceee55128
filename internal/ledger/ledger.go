// Package ledger records files that were downloaded in full so a restarted
// client does not request them again.
package ledger

import (
	"sort"
	"sync"
	"time"
)

// Entry is one completed download.
type Entry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Path        string    `json:"path"`
	CompletedAt time.Time `json:"completed_at"`
}

type Ledger interface {
	Has(name string) (bool, error)
	Record(e Entry) error
	Forget(name string) error
	List() ([]Entry, error)
	Close() error
}

// MemoryLedger keeps entries for the life of the process only.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Entry)}
}

func (m *MemoryLedger) Has(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[name]
	return ok, nil
}

func (m *MemoryLedger) Record(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Name] = e
	return nil
}

func (m *MemoryLedger) Forget(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}

func (m *MemoryLedger) List() ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryLedger) Close() error {
	return nil
}

// Open returns a bolt-backed ledger at path, or an in-memory one when path
// is empty.
func Open(path string) (Ledger, error) {
	if path == "" {
		return NewMemory(), nil
	}
	return NewBolt(path)
}
