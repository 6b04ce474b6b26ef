package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrConnClosed marks a send failure after which the connection is unusable.
var ErrConnClosed = errors.New("connection closed")

// Conn is an opaque handle to one live subscriber.
type Conn interface {
	ID() string
	Send(ctx context.Context, msg []byte) error
	Close() error
}

type entry struct {
	conn Conn
	seq  uint64
}

// Registry tracks the live connections of one channel.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]entry
	seq   uint64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]entry)}
}

// Add registers c. Re-adding an ID replaces the previous handle.
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	r.seq++
	r.conns[c.ID()] = entry{conn: c, seq: r.seq}
	r.mu.Unlock()
}

// Remove drops the connection and reports whether it was present.
func (r *Registry) Remove(id string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	return e.conn, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the connections in attach order.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.conns))
	for _, e := range r.conns {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]Conn, len(entries))
	for i, e := range entries {
		out[i] = e.conn
	}
	return out
}
