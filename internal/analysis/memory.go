// ABOUTME: Thread-safe in-memory session store with TTL expiry and LRU eviction
// ABOUTME: A background goroutine drops idle sessions; Close stops it

package analysis

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry stores a session and its position in the recency list.
type memoryEntry struct {
	session *Session
	element *list.Element
}

// MemorySessionStore keeps sessions in process memory. Sessions idle longer
// than ttl expire, and when maxSessions is reached the least recently used
// session is evicted. A doubly-linked list keeps eviction O(1).
type MemorySessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*memoryEntry
	order       *list.List // keys, least recently used at front
	ttl         time.Duration
	maxSessions int
	maxHistory  int
	now         func() time.Time
	done        chan struct{}
	closed      bool
}

// NewMemorySessionStore creates a store. A ttl <= 0 disables expiry and a
// maxSessions <= 0 disables eviction. maxHistory caps stored messages per
// session.
func NewMemorySessionStore(ttl time.Duration, maxSessions, maxHistory int) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions:    make(map[string]*memoryEntry),
		order:       list.New(),
		ttl:         ttl,
		maxSessions: maxSessions,
		maxHistory:  maxHistory,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	if ttl > 0 {
		go s.cleanup()
	}
	return s
}

// CreateOrGet returns the live session for key or creates an empty one.
func (s *MemorySessionStore) CreateOrGet(_ context.Context, key string) (*Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.liveLocked(key); e != nil {
		s.order.MoveToBack(e.element)
		return copySession(e.session), false, nil
	}

	e := s.insertLocked(key)
	return copySession(e.session), true, nil
}

// Append adds msgs to the session for key and refreshes its expiry.
func (s *MemorySessionStore) Append(_ context.Context, key string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveLocked(key)
	if e == nil {
		e = s.insertLocked(key)
	}

	e.session.Messages = trimHistory(append(e.session.Messages, msgs...), s.maxHistory)
	e.session.UpdatedAt = s.now()
	s.order.MoveToBack(e.element)
	return nil
}

// Len returns the number of stored sessions, expired ones included until
// the next cleanup.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// liveLocked returns the entry for key, removing it if expired.
// Must be called with mu held.
func (s *MemorySessionStore) liveLocked(key string) *memoryEntry {
	e, ok := s.sessions[key]
	if !ok {
		return nil
	}
	if s.expired(e.session) {
		s.order.Remove(e.element)
		delete(s.sessions, key)
		return nil
	}
	return e
}

// insertLocked adds an empty session for key, evicting the least recently
// used one when full. Must be called with mu held.
func (s *MemorySessionStore) insertLocked(key string) *memoryEntry {
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.evictOldest()
	}

	now := s.now()
	e := &memoryEntry{
		session: &Session{Key: key, CreatedAt: now, UpdatedAt: now},
		element: s.order.PushBack(key),
	}
	s.sessions[key] = e
	return e
}

func (s *MemorySessionStore) expired(sess *Session) bool {
	return s.ttl > 0 && s.now().Sub(sess.UpdatedAt) > s.ttl
}

// evictOldest removes the least recently used session.
// Must be called with mu held.
func (s *MemorySessionStore) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.sessions, key)
}

// cleanup runs in a background goroutine, periodically removing expired sessions.
func (s *MemorySessionStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-s.done:
			return
		}
	}
}

// runCleanup removes all expired sessions.
func (s *MemorySessionStore) runCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.sessions {
		if s.expired(e.session) {
			s.order.Remove(e.element)
			delete(s.sessions, key)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (s *MemorySessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
	return nil
}

func copySession(s *Session) *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return &c
}

var _ SessionStore = (*MemorySessionStore)(nil)
