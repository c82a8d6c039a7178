// Package notify fans lifecycle events out to connected dashboard sessions
// over WebSocket.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is a single dashboard WebSocket connection owned by a user.
type Session struct {
	ID          string
	UserID      string
	WS          *websocket.Conn
	ConnectedAt time.Time

	writeMu sync.Mutex
}

// Send writes a frame to the session (thread-safe).
func (s *Session) Send(frame Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.WS.WriteJSON(frame)
}

// Frame is the wire format pushed to sessions.
type Frame struct {
	Event   string `json:"event"`
	Seq     int    `json:"seq"`
	Payload any    `json:"payload,omitempty"`
}

// Manager tracks active sessions keyed by user, so events reach every open
// tab of the owning user and nobody else's.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session            // session id → session
	byUser   map[string]map[string]*Session // user id → session id → session
	seq      int
	closed   bool
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:   logger.With("module", "notify"),
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
	}
}

// Register adds a session. Registration after shutdown is refused.
func (m *Manager) Register(session *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	session.ConnectedAt = time.Now().UTC()
	m.sessions[session.ID] = session

	if m.byUser[session.UserID] == nil {
		m.byUser[session.UserID] = make(map[string]*Session)
	}

	m.byUser[session.UserID][session.ID] = session

	return true
}

// Unregister removes a session.
func (m *Manager) Unregister(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	delete(m.sessions, sessionID)
	delete(m.byUser[session.UserID], sessionID)

	if len(m.byUser[session.UserID]) == 0 {
		delete(m.byUser, session.UserID)
	}
}

// Broadcast pushes an event to every session of a user. Failed writes are
// logged per session and do not affect the others.
func (m *Manager) Broadcast(userID, event string, payload any) {
	m.mu.Lock()
	m.seq++
	frame := Frame{Event: event, Seq: m.seq, Payload: payload}

	targets := make([]*Session, 0, len(m.byUser[userID]))
	for _, session := range m.byUser[userID] {
		targets = append(targets, session)
	}
	m.mu.Unlock()

	for _, session := range targets {
		err := session.Send(frame)
		if err != nil {
			m.logger.Warn("Broadcast failed", "session_id", session.ID, "user_id", userID, "error", err)
		}
	}
}

// SessionCount returns the number of active sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Shutdown refuses further registrations, sends a close frame to every
// session and drops them all.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	for id, session := range m.sessions {
		session.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = session.WS.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		_ = session.WS.Close()
		session.writeMu.Unlock()

		delete(m.sessions, id)
	}

	m.byUser = make(map[string]map[string]*Session)
}
