package publish

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blacktop/lipost/internal/lipost"
	"github.com/blacktop/lipost/internal/lipost/linkedin"
	"github.com/google/uuid"
)

const previewRunes = 100

// PostRecord is one published post in a session's history.
type PostRecord struct {
	ID          string           `json:"id"`
	URL         string           `json:"url"`
	Preview     string           `json:"preview"`
	Kind        lipost.MediaKind `json:"type"`
	PublishedAt time.Time        `json:"published_at"`
}

// Preview returns the first 100 runes of text, with "..." appended when
// text is longer.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

// Session holds one operator's token, resolved identity and post history.
// It is safe for concurrent use.
type Session struct {
	ID        string
	Token     string
	CreatedAt time.Time

	mu      sync.RWMutex
	author  string
	profile *linkedin.Profile
	history []PostRecord
	last    *PostRecord
}

// NewSession creates a session for token.
func NewSession(token string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Token:     token,
		CreatedAt: time.Now(),
	}
}

// Append records a published post and marks it as the last one.
func (s *Session) Append(rec PostRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	last := rec
	s.last = &last
}

// History returns a copy of the post history, oldest first.
func (s *Session) History() []PostRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PostRecord(nil), s.history...)
}

// Last returns the most recently published post.
func (s *Session) Last() (PostRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return PostRecord{}, false
	}
	return *s.last, true
}

// Remove drops every history entry whose id matches and reports how many
// were removed. The order of the remaining entries is kept.
func (s *Session) Remove(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	for _, rec := range s.history {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	removed := len(s.history) - len(kept)
	clear(s.history[len(kept):])
	s.history = kept

	if s.last != nil && s.last.ID == id {
		s.last = nil
	}
	return removed
}

// Author returns the cached member URN, if resolved.
func (s *Session) Author() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.author
}

func (s *Session) setAuthor(urn string) {
	s.mu.Lock()
	s.author = urn
	s.mu.Unlock()
}

// CachedProfile returns the profile fetched by Connect or Profile.
func (s *Session) CachedProfile() *linkedin.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Session) setProfile(p *linkedin.Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

// Store is an in-memory registry of sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session for token.
func (st *Store) Create(token string) *Session {
	s := NewSession(token)
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
