package conversation

import (
	"sync"
	"time"
)

// Session is the per-chat scratch state accumulated across turns. It is only
// ever touched by the turn currently owning it; the update loop serializes
// turns per chat.
type Session struct {
	State      State
	ChatID int64
	UserID     uint

	Title         string
	Date          time.Time
	RemindAt      time.Time
	PendingDelete uint

	touched time.Time
}

// clearScratch drops the working reminder data but keeps the user identity.
func (s *Session) clearScratch() {
	s.Title = ""
	s.Date = time.Time{}
	s.RemindAt = time.Time{}
	s.PendingDelete = 0
}

// Store keeps sessions keyed by chat id. With ttl > 0, Sweep drops sessions
// idle longer than the ttl; ttl 0 keeps idle sessions forever, which matches
// the historical behavior.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the chat's session, creating a fresh main-menu one on demand.
func (st *Store) Get(chatID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[chatID]
	if !ok {
		sess = &Session{State: StateMainMenu, ChatID: chatID}
		st.sessions[chatID] = sess
	}
	sess.touched = st.now()
	return sess
}

// Sweep removes idle sessions and reports how many were dropped.
func (st *Store) Sweep() int {
	if st.ttl <= 0 {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	cutoff := st.now().Add(-st.ttl)
	dropped := 0
	for chatID, sess := range st.sessions {
		if sess.touched.Before(cutoff) {
			delete(st.sessions, chatID)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
