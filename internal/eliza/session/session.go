// Package session keeps one engine per conversation and ends conversations
// that go quiet.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Eliza/internal/eliza/engine"
	"github.com/bdobrica/Eliza/internal/eliza/memory"
	"github.com/bdobrica/Eliza/internal/eliza/script"
)

var (
	// ErrTooManySessions is returned when a new conversation would exceed
	// Config.MaxSessions.
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrClosed is returned once the Manager has been closed.
	ErrClosed = errors.New("session manager closed")
)

// EndReason tells why a session ended.
type EndReason string

const (
	EndQuit     EndReason = "quit"     // the user said a quit phrase
	EndExpired  EndReason = "expired"  // idle past the cooldown
	EndRequest  EndReason = "request"  // ended by a control command or transport
	EndShutdown EndReason = "shutdown" // the Manager was closed
)

// Config holds configuration for the Manager.
type Config struct {
	// Cooldown is the inactivity after which a session is ended on the next
	// sweep. Default: 30 minutes.
	Cooldown time.Duration

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int

	// MemoryCapacity overrides the script's memsize when positive.
	MemoryCapacity int

	// MemoryPolicy is applied when a session's memory queue is full.
	MemoryPolicy memory.Policy
}

// DefaultCooldown is used when Config.Cooldown is not positive.
const DefaultCooldown = 30 * time.Minute

// Info is a snapshot of one session.
type Info struct {
	ID         string
	Key        string
	Script     string
	StartedAt  time.Time
	LastActive time.Time
	Turns      int
	// Final is the closing message of the session's script.
	Final string
}

// Turn is the result of Manager.Turn.
type Turn struct {
	Session Info
	// Greeting is set when this turn opened the session.
	Greeting string
	Reply    engine.Reply
	// Ended is true when the reply closed the conversation.
	Ended bool
}

// Observer is told about session lifecycle events. Implementations must not
// call back into the Manager.
type Observer interface {
	SessionStarted(Info)
	SessionEnded(Info, EndReason)
	TurnCompleted(Info, engine.Outcome)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for lifecycle messages and engine debug output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type session struct {
	mu     sync.Mutex
	info   Info
	engine *engine.Engine
	ended  bool
}

// Manager owns the active sessions. It is safe for concurrent use; turns of
// different sessions run in parallel and turns of one session are
// serialised.
type Manager struct {
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time
	config    Config

	mu       sync.Mutex
	script   *script.Script
	sessions map[string]*session
	closed   bool
}

// New returns a Manager whose new sessions run s. A nil script gives
// sessions that answer with the engine's built-in defaults.
func New(s *script.Script, cfg Config, opts ...Option) *Manager {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	m := &Manager{
		logger:   slog.Default(),
		now:      time.Now,
		config:   cfg,
		script:   s,
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Script returns the script used for new sessions.
func (m *Manager) Script() *script.Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.script
}

// SetScript makes s the script for sessions started from now on. Running
// sessions keep the script they started with.
func (m *Manager) SetScript(s *script.Script) {
	m.mu.Lock()
	m.script = s
	m.mu.Unlock()
	m.logger.Info("session script replaced", "script", scriptName(s))
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns snapshots of the active sessions ordered by start time.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	list := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		out = append(out, s.info)
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Get returns a snapshot of the session for key.
func (m *Manager) Get(key string) (Info, bool) {
	m.mu.Lock()
	s := m.sessions[key]
	m.mu.Unlock()
	if s == nil {
		return Info{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info, true
}

// Open starts the session for key if it does not exist and returns it with
// the greeting. An existing session is returned unchanged with an empty
// greeting.
func (m *Manager) Open(key string) (Info, string, error) {
	s, created, err := m.acquire(key)
	if err != nil {
		return Info{}, "", err
	}
	defer s.mu.Unlock()
	if created {
		return s.info, s.engine.Initial(), nil
	}
	return s.info, "", nil
}

// Turn runs one utterance through the session for key, starting the
// session first if needed. The session ends when the reply is a quit.
func (m *Manager) Turn(key, text string) (Turn, error) {
	s, created, err := m.acquire(key)
	if err != nil {
		return Turn{}, err
	}

	var t Turn
	if created {
		t.Greeting = s.engine.Initial()
	}
	t.Reply = s.engine.Reply(text)
	s.info.Turns++
	s.info.LastActive = m.now()
	t.Ended = s.engine.Closed()
	if t.Ended {
		s.ended = true
	}
	t.Session = s.info
	s.mu.Unlock()

	for _, o := range m.observers {
		o.TurnCompleted(t.Session, t.Reply.Outcome)
	}
	if t.Ended {
		m.remove(key, s)
		m.ended(t.Session, EndQuit)
	}
	return t, nil
}

// Reset clears the memory and rotation state of the session for key and
// reopens it if closed. It reports whether the session existed.
func (m *Manager) Reset(key string) bool {
	m.mu.Lock()
	s := m.sessions[key]
	m.mu.Unlock()
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.engine.Reset()
	s.info.LastActive = m.now()
	m.logger.Info("session reset", "session", s.info.ID, "key", key)
	return true
}

// End ends the session for key and returns its snapshot. The second result
// is false when there was no session.
func (m *Manager) End(key string) (Info, bool) {
	m.mu.Lock()
	s := m.sessions[key]
	if s != nil {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
	if s == nil {
		return Info{}, false
	}

	s.mu.Lock()
	s.ended = true
	info := s.info
	s.mu.Unlock()

	m.ended(info, EndRequest)
	return info, true
}

// SealExpired ends every session idle for longer than the cooldown as of
// now and returns them, so the caller can send each one's Final message.
func (m *Manager) SealExpired(now time.Time) []Info {
	m.mu.Lock()
	var expired []*session
	for key, s := range m.sessions {
		// TryLock skips sessions in the middle of a turn; they are active.
		if !s.mu.TryLock() {
			continue
		}
		if now.Sub(s.info.LastActive) > m.config.Cooldown {
			s.ended = true
			expired = append(expired, s)
			delete(m.sessions, key)
		}
		s.mu.Unlock()
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(expired))
	for _, s := range expired {
		out = append(out, s.info)
		m.ended(s.info, EndExpired)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Sweep calls SealExpired every interval until ctx is done and hands each
// expired session to onExpire, which may be nil.
func (m *Manager) Sweep(ctx context.Context, interval time.Duration, onExpire func(Info)) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, info := range m.SealExpired(m.now()) {
				if onExpire != nil {
					onExpire(info)
				}
			}
		}
	}
}

// Close ends every session. Later calls to Open and Turn return ErrClosed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	all := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range all {
		s.mu.Lock()
		s.ended = true
		info := s.info
		s.mu.Unlock()
		m.ended(info, EndShutdown)
	}
}

// acquire returns the live session for key with its lock held, creating it
// when missing.
func (m *Manager) acquire(key string) (*session, bool, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, false, ErrClosed
		}
		if s := m.sessions[key]; s != nil {
			m.mu.Unlock()
			s.mu.Lock()
			if s.ended {
				// Ended between lookup and lock; the map no longer holds it.
				s.mu.Unlock()
				continue
			}
			return s, false, nil
		}

		if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
			m.mu.Unlock()
			return nil, false, ErrTooManySessions
		}
		s := m.newSession(key)
		s.mu.Lock()
		m.sessions[key] = s
		m.mu.Unlock()

		m.logger.Info("session started", "session", s.info.ID, "key", key, "script", s.info.Script)
		for _, o := range m.observers {
			o.SessionStarted(s.info)
		}
		return s, true, nil
	}
}

// newSession must be called with m.mu held.
func (m *Manager) newSession(key string) *session {
	eng := engine.New(
		engine.WithLogger(m.logger.With("key", key)),
		engine.WithMemoryPolicy(m.config.MemoryPolicy),
		engine.WithMemoryCapacity(m.config.MemoryCapacity),
	)
	if m.script != nil {
		eng.Use(m.script)
	}
	now := m.now()
	return &session{
		engine: eng,
		info: Info{
			ID:         uuid.New().String(),
			Key:        key,
			Script:     scriptName(m.script),
			StartedAt:  now,
			LastActive: now,
			Final:      eng.Final(),
		},
	}
}

func (m *Manager) remove(key string, s *session) {
	m.mu.Lock()
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
}

func (m *Manager) ended(info Info, reason EndReason) {
	m.logger.Info("session ended", "session", info.ID, "key", info.Key, "reason", reason, "turns", info.Turns)
	for _, o := range m.observers {
		o.SessionEnded(info, reason)
	}
}

func scriptName(s *script.Script) string {
	if s == nil {
		return ""
	}
	return s.Name
}
