package assistant

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnectionManager tracks live assistant connections per visitor and
// browser session. A second connection for the same pair replaces the
// first.
type ConnectionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnectionManager creates an empty manager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a visitor and session.
func (m *ConnectionManager) GetActive(visitorID, sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[visitorID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Register adds a connection, closing any connection it replaces. The close
// handshake runs after the lock is released so a slow peer cannot stall
// other callers.
func (m *ConnectionManager) Register(visitorID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	if _, exists := m.active[visitorID]; !exists {
		m.active[visitorID] = make(map[string]*websocket.Conn)
	}
	replaced := m.active[visitorID][sessionID]
	m.active[visitorID][sessionID] = conn
	m.mu.Unlock()

	slog.Info("[ASSISTANT] Connection registered", "visitor_id", visitorID, "session_id", sessionID)
	if replaced != nil && replaced != conn {
		go func() { _ = replaced.Close(websocket.StatusNormalClosure, "session replaced") }()
	}
}

// Unregister removes conn if it is still the registered connection.
func (m *ConnectionManager) Unregister(visitorID, sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessions, ok := m.active[visitorID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			delete(sessions, sessionID)
			if len(sessions) == 0 {
				delete(m.active, visitorID)
			}
			slog.Info("[ASSISTANT] Connection unregistered", "visitor_id", visitorID, "session_id", sessionID)
		}
	}
}

// Count returns the number of live connections.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// CloseAll terminates every connection and waits for the close handshakes.
// Used on shutdown.
func (m *ConnectionManager) CloseAll() {
	m.mu.Lock()
	all := m.active
	m.active = make(map[string]map[string]*websocket.Conn)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for visitorID, sessions := range all {
		for sid, conn := range sessions {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				slog.Info("[ASSISTANT] Connection closed", "visitor_id", visitorID, "session_id", sid)
			}()
		}
	}
	wg.Wait()
}
