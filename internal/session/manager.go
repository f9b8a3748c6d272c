// Package session owns conversation state: the identifier-to-history
// mapping, creation on demand, per-session serialization, and the
// engine's degraded-mode lifecycle.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scope-engine/scope-assistant/internal/agent"
)

// Session is one staff conversation. Its mutex serializes turns; the
// history is append-only and never reordered.
type Session struct {
	ID string

	mu         sync.Mutex
	turns      []agent.Turn
	createdAt  time.Time
	lastActive time.Time
}

// History returns a copy of the session's turns in order.
func (s *Session) History() []agent.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Turn(nil), s.turns...)
}

// Result is the outcome of one processed message, always well-formed
// even when the turn failed.
type Result struct {
	Response     string `json:"response"`
	SessionID    string `json:"session_id"`
	HasToolCalls bool   `json:"has_tool_calls"`
}

// Manager maps session identifiers to sessions and routes messages
// through the engine. The map lock covers only lookup and insert; a
// turn holds only its own session's lock, so distinct sessions proceed
// in parallel.
type Manager struct {
	logger *slog.Logger
	engine *Engine

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager over the given engine.
func NewManager(logger *slog.Logger, engine *Engine) *Manager {
	return &Manager{
		logger:   logger,
		engine:   engine,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for id, or creates a fresh one with a
// newly minted identifier when id is empty or unknown. An unknown id is
// never adopted; the caller learns the real id from the returned session.
func (m *Manager) GetOrCreate(id string) *Session {
	if id != "" {
		m.mu.RLock()
		s, ok := m.sessions[id]
		m.mu.RUnlock()
		if ok {
			return s
		}
	}

	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		createdAt:  now,
		lastActive: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", s.ID, "requested_id", id)
	return s
}

// Process runs one inbound message through the session's conversation.
// It always returns a well-formed result; turn failures are classified
// into user-facing text rather than propagated.
func (m *Manager) Process(ctx context.Context, sessionID, message string) *Result {
	sess := m.GetOrCreate(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	proc := m.engine.Get(ctx)
	res, err := proc.ProcessMessage(ctx, sess.turns, message)
	now := time.Now()
	sess.lastActive = now

	if err != nil {
		category := agent.Classify(err)
		m.logger.Warn("turn failed",
			"session_id", sess.ID,
			"category", int(category),
			"error", err,
		)
		// Never append a malformed assistant turn. For empty-input
		// failures a fixed fallback turn is recorded so the bad state
		// does not recur on the next message.
		if category == agent.CategoryEmptyInput {
			sess.turns = append(sess.turns, agent.Turn{
				Role:    agent.RoleAssistant,
				Content: category.Message(),
				At:      now,
			})
		}
		return &Result{
			Response:  category.Message(),
			SessionID: sess.ID,
		}
	}

	sess.turns = append(sess.turns,
		agent.Turn{Role: agent.RoleHuman, Content: message, At: now},
		agent.Turn{Role: agent.RoleAssistant, Content: res.Response, At: now},
	)

	return &Result{
		Response:     res.Response,
		SessionID:    sess.ID,
		HasToolCalls: res.HasToolCalls,
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Prune removes sessions idle for longer than maxIdle and returns how
// many were removed. Process restart also clears all sessions; history
// is in-memory only.
func (m *Manager) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	// Idleness is checked without holding the map lock, and a session
	// mid-turn holds its own mutex, so it is skipped rather than waited
	// on. A busy session is not idle.
	var stale []string
	for _, s := range candidates {
		if !s.mu.TryLock() {
			continue
		}
		idle := s.lastActive.Before(cutoff)
		s.mu.Unlock()
		if idle {
			stale = append(stale, s.ID)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	m.mu.Lock()
	removed := 0
	for _, id := range stale {
		if _, ok := m.sessions[id]; ok {
			delete(m.sessions, id)
			removed++
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("sessions pruned", "removed", removed, "remaining", remaining)
	return removed
}
