package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/mbtivoice/internal/chat"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrEnded        = errors.New("session ended")
	ErrUnknownEntry = errors.New("display entry not found")
)

// Defaults seeds new sessions when a create request leaves a field blank.
type Defaults struct {
	Persona  chat.Persona
	Style    string
	Language string
}

type Session struct {
	ID             string       `json:"session_id"`
	Status         Status       `json:"status"`
	Persona        chat.Persona `json:"persona"`
	Style          string       `json:"tts_style"`
	Language       string       `json:"language"`
	TurnCount      int          `json:"turn_count"`
	StartedAt      time.Time    `json:"started_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
}

type entry struct {
	Session
	history []Turn
	display []DisplayEntry
	nextSeq int
	// turn admits one in-flight turn per session.
	turn chan struct{}
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	defaults          Defaults
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration, defaults Defaults) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		defaults:          defaults,
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// InactivityTimeout is how long an idle session survives.
func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

func (m *Manager) Create(req CreateRequest) *Session {
	now := m.now()
	style := req.TTSStyle
	if style == "" {
		style = m.defaults.Style
	}
	e := &entry{
		Session: Session{
			ID:             uuid.NewString(),
			Status:         StatusActive,
			Persona:        req.Persona().WithDefaults(m.defaults.Persona),
			Style:          style,
			Language:       chat.CanonicalLanguage(req.Language, m.defaults.Language),
			StartedAt:      now,
			LastActivityAt: now,
		},
		turn: make(chan struct{}, 1),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[e.ID] = e
	return clone(e)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.LastActivityAt = m.now()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	e.Status = StatusEnded
	e.LastActivityAt = m.now()
	return clone(e), nil
}

// Acquire takes the session's turn slot, waiting for any in-flight turn.
// The returned release must be called exactly once.
func (m *Manager) Acquire(ctx context.Context, sessionID string) (func(), error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	m.mu.RLock()
	ended := e.Status != StatusActive
	m.mu.RUnlock()
	if ended {
		<-e.turn
		return nil, ErrEnded
	}
	var once sync.Once
	return func() { once.Do(func() { <-e.turn }) }, nil
}

// AppendDisplay adds a Display History row and returns its sequence number.
func (m *Manager) AppendDisplay(sessionID string, d DisplayEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return 0, ErrNotFound
	}
	e.nextSeq++
	d.Seq = e.nextSeq
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}
	e.display = append(e.display, d)
	e.LastActivityAt = m.now()
	return d.Seq, nil
}

// UpdateDisplay replaces the row with sequence seq.
func (m *Manager) UpdateDisplay(sessionID string, seq int, d DisplayEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	i := e.indexOf(seq)
	if i < 0 {
		return ErrUnknownEntry
	}
	d.Seq = seq
	d.CreatedAt = e.display[i].CreatedAt
	e.display[i] = d
	e.LastActivityAt = m.now()
	return nil
}

// Commit resolves the pending row seq and appends t to Session History in one step.
func (m *Manager) Commit(sessionID string, seq int, d DisplayEntry, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	i := e.indexOf(seq)
	if i < 0 {
		return ErrUnknownEntry
	}
	d.Seq = seq
	d.CreatedAt = e.display[i].CreatedAt
	d.Pending = false
	e.display[i] = d
	if t.CreatedAt.IsZero() {
		t.CreatedAt = m.now()
	}
	e.history = append(e.history, t)
	e.TurnCount = len(e.history)
	e.LastActivityAt = m.now()
	return nil
}

// History returns a copy of Session History.
func (m *Manager) History(sessionID string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Turn{}, e.history...), nil
}

// Transcript returns a copy of both histories.
func (m *Manager) Transcript(sessionID string) (Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return Transcript{}, ErrNotFound
	}
	return Transcript{
		History: append([]Turn{}, e.history...),
		Display: append([]DisplayEntry{}, e.display...),
	}, nil
}

// Clear empties both histories.
func (m *Manager) Clear(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.history = nil
	e.display = nil
	e.TurnCount = 0
	e.LastActivityAt = m.now()
	return nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.Status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and forgets ended ones after a second timeout.
func (m *Manager) expireInactive() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, e := range m.sessions {
		idle := now.Sub(e.LastActivityAt)
		if e.Status != StatusActive {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if idle < m.inactivityTimeout {
			continue
		}
		e.Status = StatusEnded
		e.LastActivityAt = now
		expired = append(expired, clone(e))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func (e *entry) indexOf(seq int) int {
	for i := range e.display {
		if e.display[i].Seq == seq {
			return i
		}
	}
	return -1
}

func clone(e *entry) *Session {
	c := e.Session
	return &c
}
