package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrIncompleteTurn is returned when a turn is missing its human input or model output
var ErrIncompleteTurn = errors.New("turn requires both human input and model output")

// Turn represents one human input paired with the model's reply
type Turn struct {
	Human     string    `json:"human"`
	AI        string    `json:"ai"`
	CreatedAt time.Time `json:"created_at"`
}

// History is the append-only, chronologically ordered log of completed turns.
// All returns the whole log for display; Recent returns the tail replayed as
// model context. Both views read the same slice.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// Append adds a turn to the end of the log
func (h *History) Append(turn Turn) error {
	if turn.Human == "" || turn.AI == "" {
		return ErrIncompleteTurn
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
	return nil
}

// All returns a copy of every turn in chronological order
func (h *History) All() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Recent returns the last min(k, Len()) turns in chronological order
func (h *History) Recent(k int) []Turn {
	if k <= 0 {
		return []Turn{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	start := len(h.turns) - k
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(h.turns)-start)
	copy(out, h.turns[start:])
	return out
}

// Len returns the number of stored turns
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Session represents one isolated conversation
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	History   *History  `json:"-"`

	// dispatch serializes model calls so a session never has two turns in flight
	dispatch sync.Mutex

	mu         sync.Mutex
	lastActive time.Time
}

// New creates an empty session with a fresh UUIDv7 identifier
func New() *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.Must(uuid.NewV7()).String(),
		CreatedAt:  now,
		History:    &History{},
		lastActive: now,
	}
}

// Lock blocks until no other dispatch is running for this session
func (s *Session) Lock() {
	s.dispatch.Lock()
}

// Unlock releases the dispatch lock taken by Lock
func (s *Session) Unlock() {
	s.dispatch.Unlock()
}

// Touch marks the session as active now
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive reports when the session was last touched
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
