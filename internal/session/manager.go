package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrCapacity = errors.New("server at capacity")
)

// Manager is the capacity-bounded registry of live sessions. Ended sessions
// are removed immediately; a session id never comes back.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	idleTimeout time.Duration
	onEvict     func(*Session)
}

func NewManager(maxSessions int, idleTimeout time.Duration) *Manager {
	if maxSessions <= 0 {
		maxSessions = 4
	}
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
	}
}

// SetEvictHook registers a callback invoked (outside the registry lock) for
// every session dropped by the stale sweep.
func (m *Manager) SetEvictHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = hook
}

// Create admits a new session unless the registry is at capacity. Rejection
// mutates nothing.
func (m *Manager) Create(personaID string) (*Session, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.maxSessions {
		return nil, ErrCapacity
	}
	s := &Session{
		ID:             uuid.NewString(),
		Persona:        personaID,
		CreatedAt:      now,
		LastActivityAt: now,
		Active:         true,
	}
	m.sessions[s.ID] = s
	return clone(s), nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Touch advances the activity timestamp.
func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// AppendTurn records a transcript turn and counts as activity.
func (m *Manager) AppendTurn(sessionID, speaker, text string) error {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.Transcript = append(s.Transcript, TranscriptTurn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: now,
	})
	s.LastActivityAt = now
	return nil
}

// RecordAudioIn counts one inbound audio chunk and touches activity.
func (m *Manager) RecordAudioIn(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.AudioChunksIn++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// RecordAudioOut counts one outbound audio chunk.
func (m *Manager) RecordAudioOut(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.AudioChunksOut++
	return nil
}

// End removes the session from the registry and returns its terminal summary.
// A second call for the same id returns ErrNotFound, which callers treat as
// an already-ended no-op.
func (m *Manager) End(sessionID string) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	s.Active = false

	transcript := make([]TranscriptTurn, len(s.Transcript))
	copy(transcript, s.Transcript)
	return &Summary{
		SessionID:       s.ID,
		Persona:         s.Persona,
		DurationSeconds: time.Now().UTC().Sub(s.CreatedAt).Seconds(),
		TurnCount:       len(transcript),
		Transcript:      transcript,
		AudioChunksIn:   s.AudioChunksIn,
		AudioChunksOut:  s.AudioChunksOut,
	}, nil
}

// CleanupStale drops sessions idle past idleTimeout without producing a
// summary; the owning connection is expected to notice the broken transport
// on its own. Returns the number evicted.
func (m *Manager) CleanupStale(idleTimeout time.Duration) int {
	now := time.Now().UTC()
	var evicted []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt) <= idleTimeout {
			continue
		}
		delete(m.sessions, id)
		s.Active = false
		evicted = append(evicted, clone(s))
	}
	hook := m.onEvict
	m.mu.Unlock()

	if hook != nil {
		for _, s := range evicted {
			hook(s)
		}
	}
	return len(evicted)
}

// StartJanitor runs the stale sweep on a fixed interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupStale(m.idleTimeout)
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) MaxSessions() int {
	return m.maxSessions
}

// List returns a snapshot of every live session.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	return out
}

func clone(s *Session) *Session {
	c := *s
	c.Transcript = make([]TranscriptTurn, len(s.Transcript))
	copy(c.Transcript, s.Transcript)
	return &c
}
