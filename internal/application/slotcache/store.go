package slotcache

import (
	"context"
	"sync"
	"time"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// Entry is the latest provider result for one category. It is replaced
// wholesale on refresh.
type Entry struct {
	Category   booking.Category `json:"category"`
	Slots      []booking.Slot   `json:"slots"`
	CapturedAt time.Time        `json:"captured_at"`
}

// FreshAt reports whether the entry may still be served at now.
func (e Entry) FreshAt(now time.Time) bool {
	return now.Sub(e.CapturedAt) < FreshFor
}

// Store holds cache entries. Implementations must be safe for concurrent use.
type Store interface {
	Load(ctx context.Context, category booking.Category) (Entry, bool, error)
	Save(ctx context.Context, e Entry) error
}

// MemoryStore keeps entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[booking.Category]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[booking.Category]Entry)}
}

func (m *MemoryStore) Load(_ context.Context, category booking.Category) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[category]
	return e, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Category] = e
	return nil
}
