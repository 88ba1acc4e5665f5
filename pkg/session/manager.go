package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the conversation sessions of one process.
//
// Sessions are stored copy-on-write: every mutation builds a new Session
// and replaces the stored one, so readers never observe a partial update.
// Unknown and expired ids are normal outcomes, never errors.
type Manager struct {
	config  Config
	store   Store
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time

	// mu serializes read-modify-write cycles on the store.
	mu sync.Mutex
}

// NewManager creates a session manager.
//
// Example:
//
//	sessions := session.NewManager(session.Config{MaxMessages: 50}, session.NewMemoryStore(), logger, nil, nil)
//	s := sessions.CreateSession("user-42", session.Context{Day: 3, Topic: "verbs", Language: "es"})
//	sessions.AddMessage(s.ID, session.Message{Role: session.RoleUser, Content: "hola"})
func NewManager(config Config, store Store, logger *slog.Logger, metrics Metrics, now func() time.Time) *Manager {
	if config.MaxMessages <= 0 {
		config.MaxMessages = 50
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = 30 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if now == nil {
		now = time.Now
	}

	return &Manager{
		config:  config,
		store:   store,
		logger:  logger.With("component", "session"),
		metrics: metrics,
		now:     now,
	}
}

// CreateSession opens a new empty session for ownerID.
func (m *Manager) CreateSession(ownerID string, sctx Context) *Session {
	now := m.now()
	s := &Session{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Messages:       []Message{},
		StartedAt:      now,
		LastActivityAt: now,
		Context:        sctx,
	}

	m.store.Set(s)
	m.metrics.SetActiveSessions(m.store.Len())

	m.logger.Debug("session created", "session_id", s.ID, "owner_id", ownerID)

	return s.Clone()
}

// AddMessage appends msg to the session, dropping the oldest messages
// beyond MaxMessages, and marks the session active. ID, SessionID and
// Timestamp are filled when empty. It reports false for unknown or expired
// sessions.
func (m *Manager) AddMessage(sessionID string, msg Message) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	current, ok := m.liveLocked(sessionID, now)
	if !ok {
		return Message{}, false
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.SessionID = sessionID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	stored := cloneMessages([]Message{msg})[0]

	next := *current
	msgs := current.Messages
	if drop := len(msgs) + 1 - m.config.MaxMessages; drop > 0 {
		msgs = msgs[drop:]
	}
	next.Messages = make([]Message, 0, len(msgs)+1)
	next.Messages = append(next.Messages, msgs...)
	next.Messages = append(next.Messages, stored)
	if now.After(next.LastActivityAt) {
		next.LastActivityAt = now
	}

	m.store.Set(&next)

	return cloneMessages([]Message{msg})[0], true
}

// GetSession returns a snapshot of the session. An expired session is
// removed and reported absent.
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.liveLocked(sessionID, m.now())
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// GetRecentMessages returns the last min(n, len) messages in order.
// It returns nil for an absent session and an empty slice for n <= 0.
func (m *Manager) GetRecentMessages(sessionID string, n int) []Message {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return nil
	}
	if n <= 0 {
		return []Message{}
	}
	if n > len(s.Messages) {
		n = len(s.Messages)
	}
	return s.Messages[len(s.Messages)-n:]
}

// ClearSession removes the session. It reports whether it existed.
func (m *Manager) ClearSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.store.Get(sessionID)
	if ok {
		m.store.Delete(sessionID)
		m.metrics.SetActiveSessions(m.store.Len())
	}
	return ok
}

// ClearSessionsForOwner removes every session of ownerID and returns the count.
func (m *Manager) ClearSessionsForOwner(ownerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.store.DeleteWhere(func(s *Session) bool { return s.OwnerID == ownerID })
	if n > 0 {
		m.metrics.SetActiveSessions(m.store.Len())
		m.logger.Info("cleared owner sessions", "owner_id", ownerID, "count", n)
	}
	return n
}

// SessionCount returns the number of stored sessions, including expired
// ones not yet swept.
func (m *Manager) SessionCount() int {
	return m.store.Len()
}

// Sweep removes every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.store.Sweep(m.now().Add(-m.config.SessionTimeout))
	if len(removed) > 0 {
		m.metrics.RecordSessionEvictions("sweep", len(removed))
		m.logger.Debug("swept expired sessions", "count", len(removed))
	}
	m.metrics.SetActiveSessions(m.store.Len())

	return len(removed)
}

// Config returns the manager configuration with defaults applied.
func (m *Manager) Config() Config {
	return m.config
}

// liveLocked returns the stored session if it exists and has not expired,
// deleting it lazily otherwise. Caller must hold mu.
func (m *Manager) liveLocked(sessionID string, now time.Time) (*Session, bool) {
	s, ok := m.store.Get(sessionID)
	if !ok {
		return nil, false
	}
	if s.expired(now, m.config.SessionTimeout) {
		m.store.Delete(sessionID)
		m.metrics.RecordSessionEvictions("lazy", 1)
		m.metrics.SetActiveSessions(m.store.Len())
		return nil, false
	}
	return s, true
}

// Sweeper is a running background sweep loop.
type Sweeper struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartSweeper runs Sweep every SweepInterval until ctx is canceled or
// Stop is called.
func (m *Manager) StartSweeper(ctx context.Context) *Sweeper {
	ctx, cancel := context.WithCancel(ctx)
	s := &Sweeper{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(m.config.SweepInterval)
		defer ticker.Stop()

		m.logger.Info("session sweeper started",
			"interval", m.config.SweepInterval,
			"timeout", m.config.SessionTimeout,
		)

		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-ctx.Done():
				m.logger.Info("session sweeper stopped")
				return
			}
		}
	}()

	return s
}

// Stop stops the loop and waits for it to exit. Stop is idempotent.
func (s *Sweeper) Stop() {
	s.cancel()
	<-s.done
}

// Done is closed once the loop has exited.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}
