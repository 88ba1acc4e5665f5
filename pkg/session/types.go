package session

import (
	"maps"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is one entry in a conversation.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Context is the immutable lesson context a session was opened with.
type Context struct {
	Day      int    `json:"day"`
	Topic    string `json:"topic"`
	Language string `json:"language"`
	TaskID   string `json:"task_id,omitempty"`
}

// Session is a bounded, expiring conversation.
//
// Values handed out by the Manager are snapshots; mutating them has no
// effect on the stored session.
type Session struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Messages       []Message `json:"messages"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Context        Context   `json:"context"`
}

// Clone returns a deep copy of the session. Metadata maps are copied one
// level deep; their values are shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Messages = cloneMessages(s.Messages)
	return &clone
}

// expired reports whether the session has been idle longer than timeout.
func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > timeout
}

func cloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Metadata = maps.Clone(m.Metadata)
		out[i] = m
	}
	return out
}

// Config configures a Manager.
type Config struct {
	// MaxMessages bounds each session's history; the oldest are dropped first.
	// Default: 50
	MaxMessages int

	// SessionTimeout is the idle time after which a session is absent.
	// Default: 30 minutes
	SessionTimeout time.Duration

	// SweepInterval is how often the background sweeper runs.
	// Default: 5 minutes
	SweepInterval time.Duration
}

// Metrics receives session observations. A nil Metrics disables recording.
type Metrics interface {
	SetActiveSessions(n int)
	RecordSessionEvictions(reason string, n int)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveSessions(n int)                     {}
func (noopMetrics) RecordSessionEvictions(reason string, n int) {}
