package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/story"
)

var (
	// ErrSessionNotFound is returned for ids the manager does not know,
	// including sessions that were ended or expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned by Start when the active session limit is reached.
	ErrTooManySessions = errors.New("too many active sessions")
)

// Manager runs concurrent playthroughs of one story. Every session owns its
// own story.Engine; all of them share the graph and the registry.
type Manager struct {
	graph       *story.Graph
	registry    *registry.Registry
	idleTimeout time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*managed
}

type managed struct {
	mu       sync.Mutex
	engine   *story.Engine
	lastSeen time.Time
}

// NewManager creates a manager. An idleTimeout of zero keeps sessions until
// they are ended explicitly.
func NewManager(g *story.Graph, reg *registry.Registry, idleTimeout time.Duration) *Manager {
	if reg == nil {
		reg = registry.New(registry.DefaultCapacity)
	}
	return &Manager{
		graph:       g,
		registry:    reg,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*managed),
	}
}

// SetMaxSessions caps the number of sessions in play. Finished sessions do
// not count. Zero means no limit.
func (m *Manager) SetMaxSessions(n int) {
	m.mu.Lock()
	m.maxSessions = n
	m.mu.Unlock()
}

// Graph returns the story being played.
func (m *Manager) Graph() *story.Graph {
	return m.graph
}

// Registry returns the shared player registry.
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// Start opens a new session for player at the story's entry scene.
func (m *Manager) Start(player string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	if m.maxSessions > 0 && m.activeLocked() >= m.maxSessions {
		return View{}, ErrTooManySessions
	}

	e := story.NewEngine(m.graph, m.registry)
	s := e.StartSession(player)

	m.sessions[s.ID] = &managed{
		engine:   e,
		lastSeen: m.now(),
	}
	return NewView(e), nil
}

// View returns the current view of a session.
func (m *Manager) View(id string) (View, error) {
	ms, err := m.get(id)
	if err != nil {
		return View{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.lastSeen = m.now()
	return NewView(ms.engine), nil
}

// Choose takes the 1-based choice in the session's current scene.
// An out-of-range index ends the session with the invalid-choice outcome;
// choosing in a finished session returns story.ErrInvalidState.
func (m *Manager) Choose(id string, index int) (View, error) {
	ms, err := m.get(id)
	if err != nil {
		return View{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.lastSeen = m.now()

	if _, err := ms.engine.Choose(index); err != nil {
		return NewView(ms.engine), fmt.Errorf("session %s: %w", id, err)
	}
	return NewView(ms.engine), nil
}

// End discards a session without recording anything.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	ms.mu.Lock()
	ms.engine.EndSession()
	ms.mu.Unlock()
	return nil
}

// Len returns the number of sessions held, finished ones included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Active returns the number of sessions still in play.
func (m *Manager) Active() int {
	n := 0
	for _, s := range m.Sessions() {
		if s.State == story.StateInSession {
			n++
		}
	}
	return n
}

// Sessions returns a summary of every held session, oldest first.
func (m *Manager) Sessions() []Summary {
	m.mu.RLock()
	held := make([]*managed, 0, len(m.sessions))
	for _, ms := range m.sessions {
		held = append(held, ms)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(held))
	for _, ms := range held {
		ms.mu.Lock()
		s := ms.engine.Session()
		state := ms.engine.State()
		lastSeen := ms.lastSeen
		ms.mu.Unlock()

		if s == nil {
			continue
		}
		out = append(out, Summary{
			SessionID: s.ID,
			Player:    s.Player,
			State:     state,
			SceneID:   s.SceneID,
			Outcome:   s.Outcome,
			Steps:     len(s.Path),
			StartedAt: s.StartedAt,
			LastSeen:  lastSeen,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// activeLocked counts sessions still in play. Caller must hold m.mu.
func (m *Manager) activeLocked() int {
	n := 0
	for _, ms := range m.sessions {
		ms.mu.Lock()
		if ms.engine.State() == story.StateInSession {
			n++
		}
		ms.mu.Unlock()
	}
	return n
}

func (m *Manager) get(id string) (*managed, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

// pruneLocked drops sessions idle for longer than the timeout.
// Caller must hold m.mu.
func (m *Manager) pruneLocked() {
	if m.idleTimeout <= 0 {
		return
	}
	cutoff := m.now().Add(-m.idleTimeout)

	for id, ms := range m.sessions {
		ms.mu.Lock()
		idle := ms.lastSeen.Before(cutoff)
		var s *story.Session
		if idle {
			s = ms.engine.Session()
		}
		ms.mu.Unlock()

		if !idle {
			continue
		}
		delete(m.sessions, id)

		fields := map[string]interface{}{
			"session_id": id,
			"story_id":   m.graph.Meta().ID,
		}
		if s != nil {
			fields["player"] = s.Player
			fields["scene_id"] = s.SceneID
			fields["ended"] = s.Ended()
		}
		events.Emit("info", "session.expired", "", fields)
	}
}
