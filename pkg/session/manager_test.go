package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu        sync.Mutex
	active    int
	evictions map[string]int
}

func (m *recordingMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = n
}

func (m *recordingMetrics) RecordSessionEvictions(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evictions == nil {
		m.evictions = map[string]int{}
	}
	m.evictions[reason] += n
}

func newTestManager(clock *testClock, cfg Config, metrics Metrics) *Manager {
	return NewManager(cfg, NewMemoryStore(), nil, metrics, clock.Now)
}

func TestManager_CreateSession(t *testing.T) {
	clock := newTestClock()
	m := newTestManager(clock, Config{}, nil)

	ctx := Context{Day: 3, Topic: "verbs", Language: "es", TaskID: "t-1"}
	s := m.CreateSession("user-1", ctx)

	if s.ID == "" {
		t.Fatal("expected generated session id")
	}
	if s.OwnerID != "user-1" || s.Context != ctx {
		t.Errorf("unexpected session %+v", s)
	}
	if !s.StartedAt.Equal(clock.Now()) || !s.LastActivityAt.Equal(s.StartedAt) {
		t.Errorf("expected timestamps at creation time, got %+v", s)
	}
	if len(s.Messages) != 0 {
		t.Errorf("expected empty history, got %d messages", len(s.Messages))
	}

	other := m.CreateSession("user-1", ctx)
	if other.ID == s.ID {
		t.Error("expected unique session ids")
	}
	if m.SessionCount() != 2 {
		t.Errorf("expected 2 sessions, got %d", m.SessionCount())
	}
}

func TestManager_AddMessageFillsFields(t *testing.T) {
	clock := newTestClock()
	m := newTestManager(clock, Config{}, nil)
	s := m.CreateSession("user-1", Context{})

	clock.Advance(time.Minute)
	msg, ok := m.AddMessage(s.ID, Message{Role: RoleUser, Content: "hola"})
	if !ok {
		t.Fatal("expected AddMessage to succeed")
	}
	if msg.ID == "" || msg.SessionID != s.ID {
		t.Errorf("expected id and session id filled, got %+v", msg)
	}
	if !msg.Timestamp.Equal(clock.Now()) {
		t.Errorf("expected timestamp %v, got %v", clock.Now(), msg.Timestamp)
	}

	got, _ := m.GetSession(s.ID)
	if !got.LastActivityAt.Equal(clock.Now()) {
		t.Errorf("expected last activity touched, got %v", got.LastActivityAt)
	}
	if got.LastActivityAt.Before(got.StartedAt) {
		t.Error("expected last activity >= started at")
	}
}

func TestManager_WindowBound(t *testing.T) {
	for _, limit := range []int{1, 5, 50} {
		t.Run(fmt.Sprintf("max=%d", limit), func(t *testing.T) {
			m := newTestManager(newTestClock(), Config{MaxMessages: limit}, nil)
			s := m.CreateSession("user-1", Context{})

			for i := 1; i <= limit*2+3; i++ {
				_, ok := m.AddMessage(s.ID, Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
				if !ok {
					t.Fatalf("AddMessage %d failed", i)
				}

				got, _ := m.GetSession(s.ID)
				if len(got.Messages) > limit {
					t.Fatalf("after %d adds: %d messages exceeds max %d", i, len(got.Messages), limit)
				}
				if last := got.Messages[len(got.Messages)-1].Content; last != fmt.Sprintf("m%d", i) {
					t.Fatalf("expected newest message m%d last, got %s", i, last)
				}
			}
		})
	}
}

func TestManager_SixtyMessagesRecentFive(t *testing.T) {
	m := newTestManager(newTestClock(), Config{MaxMessages: 50}, nil)
	s := m.CreateSession("user-1", Context{})

	for i := 1; i <= 60; i++ {
		m.AddMessage(s.ID, Message{Role: RoleUser, Content: fmt.Sprintf("%d", i)})
	}

	got, _ := m.GetSession(s.ID)
	if len(got.Messages) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "11" {
		t.Errorf("expected oldest kept message 11, got %s", got.Messages[0].Content)
	}

	recent := m.GetRecentMessages(s.ID, 5)
	want := []string{"56", "57", "58", "59", "60"}
	if len(recent) != len(want) {
		t.Fatalf("expected %d recent messages, got %d", len(want), len(recent))
	}
	for i, w := range want {
		if recent[i].Content != w {
			t.Errorf("recent[%d] = %s, want %s", i, recent[i].Content, w)
		}
	}
}

func TestManager_GetRecentMessages(t *testing.T) {
	m := newTestManager(newTestClock(), Config{}, nil)
	s := m.CreateSession("user-1", Context{})
	for i := 0; i < 3; i++ {
		m.AddMessage(s.ID, Message{Role: RoleUser, Content: fmt.Sprintf("%d", i)})
	}

	tests := []struct {
		name    string
		id      string
		n       int
		want    int
		wantNil bool
	}{
		{"fewer than stored", s.ID, 2, 2, false},
		{"more than stored", s.ID, 10, 3, false},
		{"zero", s.ID, 0, 0, false},
		{"negative", s.ID, -1, 0, false},
		{"unknown session", "missing", 5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.GetRecentMessages(tt.id, tt.n)
			if (got == nil) != tt.wantNil {
				t.Errorf("expected nil=%v, got %v", tt.wantNil, got)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d messages, got %d", tt.want, len(got))
			}
		})
	}
}

func TestManager_SnapshotsAreIsolated(t *testing.T) {
	m := newTestManager(newTestClock(), Config{}, nil)
	s := m.CreateSession("user-1", Context{})
	m.AddMessage(s.ID, Message{Role: RoleUser, Content: "original", Metadata: map[string]any{"k": "v"}})

	snap, _ := m.GetSession(s.ID)
	snap.Messages[0].Content = "tampered"
	snap.Messages[0].Metadata["k"] = "tampered"
	snap.OwnerID = "someone-else"

	again, _ := m.GetSession(s.ID)
	if again.Messages[0].Content != "original" {
		t.Error("expected stored message unaffected by snapshot mutation")
	}
	if again.Messages[0].Metadata["k"] != "v" {
		t.Error("expected stored metadata unaffected by snapshot mutation")
	}
	if again.OwnerID != "user-1" {
		t.Error("expected stored owner unaffected by snapshot mutation")
	}
}

func TestManager_AddMessageCopiesMetadata(t *testing.T) {
	m := newTestManager(newTestClock(), Config{}, nil)
	s := m.CreateSession("user-1", Context{})

	meta := map[string]any{"source": "primary"}
	returned, ok := m.AddMessage(s.ID, Message{Role: RoleAssistant, Content: "hi", Metadata: meta})
	if !ok {
		t.Fatal("AddMessage reported session absent")
	}

	meta["source"] = "tampered"
	returned.Metadata["source"] = "tampered too"

	got, _ := m.GetSession(s.ID)
	if v := got.Messages[0].Metadata["source"]; v != "primary" {
		t.Errorf("stored metadata source = %v, want primary", v)
	}
}

func TestManager_LazyExpiry(t *testing.T) {
	clock := newTestClock()
	metrics := &recordingMetrics{}
	m := newTestManager(clock, Config{SessionTimeout: 10 * time.Minute}, metrics)
	s := m.CreateSession("user-1", Context{})

	clock.Advance(10 * time.Minute)
	if _, ok := m.GetSession(s.ID); !ok {
		t.Fatal("expected session alive at exactly the timeout")
	}

	clock.Advance(time.Millisecond)
	if _, ok := m.GetSession(s.ID); ok {
		t.Fatal("expected session absent after timeout")
	}
	if m.SessionCount() != 0 {
		t.Errorf("expected expired session deleted on access, count %d", m.SessionCount())
	}
	if _, ok := m.AddMessage(s.ID, Message{Role: RoleUser, Content: "late"}); ok {
		t.Error("expected AddMessage on expired session to report not found")
	}
	if metrics.evictions["lazy"] != 1 {
		t.Errorf("expected 1 lazy eviction, got %v", metrics.evictions)
	}
}

func TestManager_ActivityExtendsLifetime(t *testing.T) {
	clock := newTestClock()
	m := newTestManager(clock, Config{SessionTimeout: 10 * time.Minute}, nil)
	s := m.CreateSession("user-1", Context{})

	for i := 0; i < 5; i++ {
		clock.Advance(8 * time.Minute)
		if _, ok := m.AddMessage(s.ID, Message{Role: RoleUser, Content: "still here"}); !ok {
			t.Fatalf("expected session alive after activity at step %d", i)
		}
	}
}

func TestManager_Sweep(t *testing.T) {
	clock := newTestClock()
	metrics := &recordingMetrics{}
	m := newTestManager(clock, Config{SessionTimeout: 10 * time.Minute}, metrics)

	for i := 0; i < 3; i++ {
		m.CreateSession("old", Context{})
	}
	clock.Advance(6 * time.Minute)
	fresh := m.CreateSession("fresh", Context{})
	clock.Advance(5 * time.Minute)

	removed := m.Sweep()
	if removed != 3 {
		t.Errorf("expected 3 swept sessions, got %d", removed)
	}
	if m.SessionCount() != 1 {
		t.Errorf("expected 1 remaining session, got %d", m.SessionCount())
	}
	if _, ok := m.GetSession(fresh.ID); !ok {
		t.Error("expected fresh session to survive sweep")
	}
	if metrics.evictions["sweep"] != 3 || metrics.active != 1 {
		t.Errorf("unexpected metrics: evictions %v active %d", metrics.evictions, metrics.active)
	}
}

func TestManager_OwnerIsolation(t *testing.T) {
	m := newTestManager(newTestClock(), Config{}, nil)

	a1 := m.CreateSession("alice", Context{})
	a2 := m.CreateSession("alice", Context{})
	b := m.CreateSession("bob", Context{})

	if n := m.ClearSessionsForOwner("alice"); n != 2 {
		t.Errorf("expected 2 sessions cleared, got %d", n)
	}
	for _, id := range []string{a1.ID, a2.ID} {
		if _, ok := m.GetSession(id); ok {
			t.Errorf("expected alice session %s removed", id)
		}
	}
	if _, ok := m.GetSession(b.ID); !ok {
		t.Error("expected bob's session untouched")
	}
	if n := m.ClearSessionsForOwner("nobody"); n != 0 {
		t.Errorf("expected 0 for unknown owner, got %d", n)
	}
}

func TestManager_ClearSession(t *testing.T) {
	m := newTestManager(newTestClock(), Config{}, nil)
	s := m.CreateSession("user-1", Context{})

	if !m.ClearSession(s.ID) {
		t.Error("expected ClearSession to report existing session")
	}
	if m.ClearSession(s.ID) {
		t.Error("expected second ClearSession to report absent")
	}
	if m.ClearSession("never-existed") {
		t.Error("expected unknown id to report absent")
	}
}

func TestManager_ConcurrentAddMessage(t *testing.T) {
	m := newTestManager(newTestClock(), Config{MaxMessages: 1000}, nil)
	s := m.CreateSession("user-1", Context{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				m.AddMessage(s.ID, Message{Role: RoleUser, Content: fmt.Sprintf("%d-%d", i, j)})
				m.GetRecentMessages(s.ID, 3)
			}
		}(i)
	}
	wg.Wait()

	got, _ := m.GetSession(s.ID)
	if len(got.Messages) != 200 {
		t.Errorf("expected 200 messages, got %d", len(got.Messages))
	}
}

func TestSweeper_StopsOnStopAndContext(t *testing.T) {
	m := NewManager(Config{SweepInterval: 5 * time.Millisecond, SessionTimeout: time.Nanosecond}, NewMemoryStore(), nil, nil, nil)
	m.CreateSession("user-1", Context{})

	sweeper := m.StartSweeper(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for m.SessionCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if m.SessionCount() != 0 {
		t.Error("expected background sweep to remove expired session")
	}

	sweeper.Stop()
	sweeper.Stop()
	select {
	case <-sweeper.Done():
	default:
		t.Error("expected Done closed after Stop")
	}

	ctx, cancel := context.WithCancel(context.Background())
	second := m.StartSweeper(ctx)
	cancel()
	select {
	case <-second.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected sweeper to stop on context cancel")
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("expected %q valid", r)
		}
	}
	if Role("tool").Valid() || Role("").Valid() {
		t.Error("expected unknown roles invalid")
	}
}
