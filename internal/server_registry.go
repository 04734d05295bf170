package internal

import (
	"math"
	"sync"
)

// SessionID identifies a registered session. Ids are never reused.
type SessionID uint64

// Registry is the set of currently connected sessions.
type Registry struct {
	mutex    sync.RWMutex
	sessions map[SessionID]*Session
	lastID   SessionID
	closed   bool
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[SessionID]*Session)}
}

// Register adds session and returns its new id. Once closeAll has run the
// registry admits nobody: session is closed and 0 is returned.
func (registry *Registry) Register(session *Session) SessionID {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if registry.closed {
		session.Close()
		return 0
	}
	if registry.lastID == math.MaxUint64 {
		panic("chatroom: session identifier space exhausted")
	}
	registry.lastID++
	id := registry.lastID
	session.id = id
	registry.sessions[id] = session
	return id
}

// Unregister removes id. It reports whether the session was still registered;
// removing an unknown id is a no-op.
func (registry *Registry) Unregister(id SessionID) bool {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, exists := registry.sessions[id]; !exists {
		return false
	}
	delete(registry.sessions, id)
	return true
}

// Snapshot copies the current membership. The copy is safe to iterate while
// other goroutines register and unregister.
func (registry *Registry) Snapshot() []*Session {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	sessions := make([]*Session, 0, len(registry.sessions))
	for _, session := range registry.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (registry *Registry) Len() int {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return len(registry.sessions)
}

// closeAll unregisters and closes every session and refuses later
// registrations; used on shutdown.
func (registry *Registry) closeAll() int {
	registry.mutex.Lock()
	registry.closed = true
	sessions := registry.sessions
	registry.sessions = make(map[SessionID]*Session)
	registry.mutex.Unlock()
	for _, session := range sessions {
		session.Close()
	}
	return len(sessions)
}
