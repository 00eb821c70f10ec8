// Package registry tracks live transport connections per participant.
// Riders and drivers get separate registries: a connection handle is only
// meaningful within its own socket channel, and keeping the namespaces
// apart prevents cross-role notification bugs.
package registry

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the write side of a live connection. Session wraps a websocket;
// tests substitute their own recording implementations.
type Conn interface {
	Send(v any) error
	Close() error
}

// Session serializes writes to a single websocket connection.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewSession(conn *websocket.Conn) *Session { return &Session{conn: conn} }

func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) Close() error { return s.conn.Close() }

// Registry maps participant ID to its live connection. No persistence:
// state is lost on restart and clients re-register on reconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

func (r *Registry) Register(id string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = c
}

func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// UnregisterConn removes the entry holding this exact connection and
// returns the ID it was registered under. A connection that re-registered
// under a newer handle is left alone.
func (r *Registry) UnregisterConn(c Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, have := range r.conns {
		if have == c {
			delete(r.conns, id)
			return id, true
		}
	}
	return "", false
}

func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
