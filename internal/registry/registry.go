// Package registry keeps the bounded log of finished playthroughs.
package registry

import "sync"

// DefaultCapacity is the number of entries kept when no capacity is configured.
const DefaultCapacity = 20

// Entry is one finished playthrough. Entries are never modified once recorded.
type Entry struct {
	Player  string `json:"player"`
	Outcome string `json:"outcome"`
}

// Registry is a fixed-capacity, append-only list of entries.
// It is safe for concurrent use; Record calls are serialized so insertion
// order and the capacity bound hold across sessions.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
	dropped  int
}

// New creates an empty registry. A capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Record appends an entry if there is room and reports whether it was kept.
// A full registry silently drops the entry; that is not an error.
func (r *Registry) Record(player, outcome string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.capacity {
		r.dropped++
		return false
	}
	r.entries = append(r.entries, Entry{Player: player, Outcome: outcome})
	return true
}

// Entries returns a copy of all entries in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry{}, r.entries...)
}

// Snapshot is a consistent view of a registry at one instant.
type Snapshot struct {
	Entries  []Entry `json:"entries"`
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Dropped  int     `json:"dropped"`
}

// Snapshot reads entries and counters under one lock.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Entries:  append([]Entry{}, r.entries...),
		Size:     len(r.entries),
		Capacity: r.capacity,
		Dropped:  r.dropped,
	}
}

// Size returns the number of recorded entries.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Capacity returns the maximum number of entries.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Dropped returns how many entries were discarded because the registry was full.
func (r *Registry) Dropped() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

// Full reports whether further entries will be dropped.
func (r *Registry) Full() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries) >= r.capacity
}
