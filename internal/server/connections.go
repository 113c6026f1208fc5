package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ActiveConn tracks a live WebSocket client.
type ActiveConn struct {
	ID     string
	Conn   *websocket.Conn
	Cancel context.CancelFunc // cancels in-flight requests
	mu     sync.Mutex         // one writer at a time
}

// WriteJSON sends v as a single text frame.
func (ac *ActiveConn) WriteJSON(v any) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return ac.Conn.WriteJSON(v)
}

// ConnManager tracks the open WebSocket connections so shutdown can close them.
type ConnManager struct {
	mu    sync.RWMutex
	conns map[string]*ActiveConn
}

// NewConnManager creates a new ConnManager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		conns: make(map[string]*ActiveConn),
	}
}

// Add registers conn and returns its tracking entry.
func (cm *ConnManager) Add(conn *websocket.Conn, cancel context.CancelFunc) *ActiveConn {
	ac := &ActiveConn{ID: uuid.New().String(), Conn: conn, Cancel: cancel}
	cm.mu.Lock()
	cm.conns[ac.ID] = ac
	cm.mu.Unlock()
	return ac
}

// Get returns a tracked connection if it exists.
func (cm *ConnManager) Get(id string) (*ActiveConn, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	ac, ok := cm.conns[id]
	return ac, ok
}

// Remove stops tracking a connection and cancels its requests.
func (cm *ConnManager) Remove(id string) {
	cm.mu.Lock()
	ac, ok := cm.conns[id]
	delete(cm.conns, id)
	cm.mu.Unlock()

	if ok && ac.Cancel != nil {
		ac.Cancel()
	}
}

// Count returns the number of tracked connections.
func (cm *ConnManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// CloseAll cancels every connection's requests and closes it.
func (cm *ConnManager) CloseAll() {
	cm.mu.Lock()
	conns := cm.conns
	cm.conns = make(map[string]*ActiveConn)
	cm.mu.Unlock()

	for _, ac := range conns {
		if ac.Cancel != nil {
			ac.Cancel()
		}
		ac.mu.Lock()
		ac.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		ac.mu.Unlock()
		ac.Conn.Close()
	}
}
