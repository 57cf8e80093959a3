package quiz

import "sync"

// SessionStore keeps sessions by user ID. Nothing is evicted except by Clear.
type SessionStore interface {
	Get(userID int64) (*Session, bool)
	Set(s *Session)
	Clear(userID int64)
}

// MemoryStore is a process-local SessionStore; sessions are lost on restart
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]Session)}
}

// Get returns a copy of the user's session
func (m *MemoryStore) Get(userID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	return &s, true
}

// Set stores a copy of s under s.UserID
func (m *MemoryStore) Set(s *Session) {
	if s == nil {
		return
	}

	m.mu.Lock()
	m.sessions[s.UserID] = *s
	m.mu.Unlock()
}

// Clear drops the user's session
func (m *MemoryStore) Clear(userID int64) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// Len returns the number of stored sessions
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// userLocks hands out one mutex per user ID and forgets it once nobody holds it.
// Waiters are not served in arrival order.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

// lock blocks until userID is free and returns the matching unlock func
func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()

	return func() {
		ul.Unlock()

		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
