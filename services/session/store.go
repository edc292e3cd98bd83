package session

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/upb/persona-router/services/providers"
)

// Session is the per-user conversation state kept between chat turns
type Session struct {
	UserID    string              `json:"user_id"`
	Persona   string              `json:"persona,omitempty"`
	History   []providers.Message `json:"history"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func (s *Session) clone() *Session {
	out := *s
	out.History = append([]providers.Message(nil), s.History...)
	return &out
}

// entry represents a single store entry with TTL
type entry struct {
	session *Session
	element *list.Element // For LRU tracking
}

// isExpired checks if the entry has been idle longer than ttl
func (e *entry) isExpired(ttl time.Duration) bool {
	return ttl > 0 && time.Since(e.session.UpdatedAt) > ttl
}

// Store is an in-memory LRU store with idle TTL for user sessions.
// Thread-safe implementation using sync.RWMutex
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*entry // Key: normalized user id
	lruList    *list.List        // Doubly linked list for LRU tracking
	maxSize    int               // Maximum number of sessions, 0 = unbounded
	maxHistory int               // Maximum messages kept per session, 0 = unbounded
	ttl        time.Duration     // Idle time before a session expires, 0 = never
	hits       uint64
	misses     uint64
}

// NewStore creates a new session Store
func NewStore(maxSize int, ttl time.Duration, maxHistory int) *Store {
	return &Store{
		entries:    make(map[string]*entry),
		lruList:    list.New(),
		maxSize:    maxSize,
		maxHistory: maxHistory,
		ttl:        ttl,
	}
}

func normalizeKey(userID string) string {
	return strings.TrimSpace(userID)
}

// Get returns a copy of the user's session.
// Returns false if not found or expired
func (s *Store) Get(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeKey(userID)
	e, exists := s.entries[key]

	if !exists || e.isExpired(s.ttl) {
		s.misses++
		if exists {
			s.removeEntry(key)
		}
		return nil, false
	}

	s.lruList.MoveToFront(e.element)
	s.hits++

	return e.session.clone(), true
}

// SetPersona records the user's persona mode, creating the session if needed
func (s *Store) SetPersona(userID, persona string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.touch(normalizeKey(userID))
	e.session.Persona = persona
	return e.session.clone()
}

// AppendTurn adds a user/assistant exchange to the history and trims it to maxHistory
func (s *Store) AppendTurn(userID, userText, assistantText string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.touch(normalizeKey(userID))
	e.session.History = append(e.session.History,
		providers.Message{Role: providers.RoleUser, Content: userText},
		providers.Message{Role: providers.RoleAssistant, Content: assistantText},
	)
	if s.maxHistory > 0 && len(e.session.History) > s.maxHistory {
		trimmed := make([]providers.Message, s.maxHistory)
		copy(trimmed, e.session.History[len(e.session.History)-s.maxHistory:])
		e.session.History = trimmed
	}
	return e.session.clone()
}

// ResetHistory clears the conversation but keeps the persona mode
func (s *Store) ResetHistory(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[normalizeKey(userID)]
	if !exists {
		return false
	}
	e.session.History = nil
	e.session.UpdatedAt = time.Now()
	return true
}

// Delete removes a session
func (s *Store) Delete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeKey(userID)
	if _, exists := s.entries[key]; !exists {
		return false
	}
	s.removeEntry(key)
	return true
}

// Clear removes all sessions
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.lruList.Init()
}

// Stats returns store statistics
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Size:    s.lruList.Len(),
		MaxSize: s.maxSize,
		Hits:    s.hits,
		Misses:  s.misses,
		HitRate: s.calculateHitRate(),
	}
}

// Stats represents store statistics
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (s *Store) calculateHitRate() float64 {
	total := s.hits + s.misses
	if total == 0 {
		return 0
	}
	return float64(s.hits) / float64(total)
}

// touch returns the live entry for key, creating it and evicting as needed
// (must be called with lock held)
func (s *Store) touch(key string) *entry {
	if e, exists := s.entries[key]; exists && !e.isExpired(s.ttl) {
		e.session.UpdatedAt = time.Now()
		s.lruList.MoveToFront(e.element)
		return e
	} else if exists {
		s.removeEntry(key)
	}

	if s.maxSize > 0 && s.lruList.Len() >= s.maxSize {
		s.evictLRU()
	}

	e := &entry{
		session: &Session{UserID: key, UpdatedAt: time.Now()},
	}
	e.element = s.lruList.PushFront(key)
	s.entries[key] = e
	return e
}

// removeEntry removes an entry (must be called with lock held)
func (s *Store) removeEntry(key string) {
	if e, exists := s.entries[key]; exists {
		s.lruList.Remove(e.element)
		delete(s.entries, key)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (s *Store) evictLRU() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, key)
}

// CleanupExpired removes all expired sessions
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := make([]string, 0)
	for key, e := range s.entries {
		if e.isExpired(s.ttl) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.removeEntry(key)
	}

	return len(expired)
}

// StartCleanupWorker periodically removes expired sessions until stopCh is closed
func (s *Store) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
