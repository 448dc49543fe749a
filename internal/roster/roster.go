// Package roster tracks the set of currently connected clients on the
// server side of the transport: an RWMutex-guarded map plus a ForEach that
// holds the read lock for its whole call, so broadcasters see a consistent
// membership list for the duration of a fan-out.
package roster

import "sync"

// Conn is the roster's view of a connected client: a stable ID and the
// underlying writer used by the sender to reach it.
type Conn struct {
	ID   uint64
	Send func(frame []byte) error
}

// Roster is a thread-safe set of currently connected clients. All
// operations are serialized by a single mutex because membership changes
// (connect/disconnect) are rare relative to data traffic.
type Roster struct {
	mu      sync.RWMutex
	clients map[uint64]*Conn
}

// New returns an empty Roster.
func New() *Roster {
	return &Roster{clients: make(map[uint64]*Conn)}
}

// Add registers a client.
func (r *Roster) Add(c *Conn) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
}

// Remove unregisters a client by ID. Safe to call more than once.
func (r *Roster) Remove(id uint64) {
	r.mu.Lock()
	delete(r.clients, id)
	r.mu.Unlock()
}

// Get returns the client registered under id, if any.
func (r *Roster) Get(id uint64) (*Conn, bool) {
	r.mu.RLock()
	c, ok := r.clients[id]
	r.mu.RUnlock()
	return c, ok
}

// ForEach invokes fn for every currently registered client while holding the
// roster's read lock for the whole call, so fn observes a membership
// snapshot consistent for its entire duration.
func (r *Roster) ForEach(fn func(*Conn)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		fn(c)
	}
}

// Count returns the current advisory client count.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clear removes every client, used during server teardown.
func (r *Roster) Clear() {
	r.mu.Lock()
	r.clients = make(map[uint64]*Conn)
	r.mu.Unlock()
}
