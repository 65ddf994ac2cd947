package assistant

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks the websocket of each assistant in each tab. A new
// connection for the same tab and assistant replaces the old one.
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn // userID -> sessionID/assistant -> conn
}

// NewConnManager creates an empty manager.
func NewConnManager() *ConnManager {
	return &ConnManager{active: make(map[string]map[string]*websocket.Conn)}
}

func connKey(sessionID, assistant string) string {
	return sessionID + "/" + assistant
}

// GetActive returns the active connection, or nil.
func (m *ConnManager) GetActive(userID, sessionID, assistant string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID][connKey(sessionID, assistant)]
}

// Register adds conn, closing any connection it replaces.
func (m *ConnManager) Register(userID, sessionID, assistant string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[userID]; !ok {
		m.active[userID] = make(map[string]*websocket.Conn)
	}
	key := connKey(sessionID, assistant)
	if existing, ok := m.active[userID][key]; ok && existing != conn {
		_ = existing.Close(websocket.StatusPolicyViolation, "connection replaced")
	}
	m.active[userID][key] = conn
	slog.Debug("Assistant socket registered", "user_id", userID, "session_id", sessionID, "assistant", assistant)
}

// Unregister removes conn if it is still the active one.
func (m *ConnManager) Unregister(userID, sessionID, assistant string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.active[userID]
	if !ok {
		return
	}
	key := connKey(sessionID, assistant)
	if current, ok := conns[key]; ok && current == conn {
		delete(conns, key)
		if len(conns) == 0 {
			delete(m.active, userID)
		}
	}
}

// CloseSession closes every assistant socket of one tab.
func (m *ConnManager) CloseSession(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.active[userID]
	if !ok {
		return
	}
	for _, name := range assistantNames() {
		key := connKey(sessionID, name)
		if conn, ok := conns[key]; ok {
			_ = conn.Close(websocket.StatusGoingAway, "dashboard expired")
			delete(conns, key)
		}
	}
	if len(conns) == 0 {
		delete(m.active, userID)
	}
}

// Len returns the number of active sockets.
func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, conns := range m.active {
		n += len(conns)
	}
	return n
}
