package mqtt

import (
	"sort"
	"sync"
	"time"
)

// Kiosk is a physical terminal and the session it is playing, if any.
type Kiosk struct {
	ID        string
	SessionID string
	Player    string
	LastSeen  time.Time
}

// KioskRegistry maps kiosk ids to their current sessions.
type KioskRegistry struct {
	mu     sync.RWMutex
	kiosks map[string]*Kiosk
}

// NewKioskRegistry creates an empty kiosk registry.
func NewKioskRegistry() *KioskRegistry {
	return &KioskRegistry{
		kiosks: make(map[string]*Kiosk),
	}
}

// Register adds or replaces a kiosk.
func (r *KioskRegistry) Register(k *Kiosk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cpy := *k
	r.kiosks[k.ID] = &cpy
}

// Touch refreshes a kiosk's last-seen time. Unknown kiosks are ignored.
func (r *KioskRegistry) Touch(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.kiosks[id]; ok {
		k.LastSeen = at
	}
}

// Unregister removes a kiosk and returns what it held, or nil.
func (r *KioskRegistry) Unregister(id string) *Kiosk {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.kiosks[id]
	if !ok {
		return nil
	}
	delete(r.kiosks, id)
	return k
}

// Get returns a copy of a kiosk, or nil if not found.
func (r *KioskRegistry) Get(id string) *Kiosk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.kiosks[id]; ok {
		cpy := *k
		return &cpy
	}
	return nil
}

// IdleSince returns the kiosks not seen since cutoff.
func (r *KioskRegistry) IdleSince(cutoff time.Time) []*Kiosk {
	var out []*Kiosk
	for _, k := range r.All() {
		if k.LastSeen.Before(cutoff) {
			out = append(out, k)
		}
	}
	return out
}

// All returns copies of every kiosk, sorted by id.
func (r *KioskRegistry) All() []*Kiosk {
	r.mu.RLock()
	result := make([]*Kiosk, 0, len(r.kiosks))
	for _, k := range r.kiosks {
		cpy := *k
		result = append(result, &cpy)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of kiosks holding a session.
func (r *KioskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kiosks)
}
