package infrastructure

import (
	"sync"

	"github.com/elmyly/whaty/internal/entities"
)

// InboxBuffer keeps the most recent inbox entries per session key so that
// late subscribers can catch up with a pull query. Fixed capacity per key,
// oldest entries evicted on overflow. Entries are ephemeral.
type InboxBuffer struct {
	mu       sync.RWMutex
	capacity int
	byKey    map[string][]entities.InboxEntry
}

func NewInboxBuffer(capacity int) *InboxBuffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &InboxBuffer{
		capacity: capacity,
		byKey:    make(map[string][]entities.InboxEntry),
	}
}

// Add appends an entry for its session key, evicting the oldest if full.
func (b *InboxBuffer) Add(entry entities.InboxEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.byKey[entry.SessionKey]
	entries = append(entries, entry)
	if len(entries) > b.capacity {
		entries = entries[len(entries)-b.capacity:]
	}
	b.byKey[entry.SessionKey] = entries
}

// Recent returns up to limit entries for key, most recent first.
func (b *InboxBuffer) Recent(key string, limit int) []entities.InboxEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := b.byKey[key]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]entities.InboxEntry, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		out = append(out, entries[i])
	}
	return out
}
