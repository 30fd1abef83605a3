// Package registry implements the Connection Registry: the set of
// currently-serving connections, safe under concurrent callers, with a
// wait-until-empty-or-deadline primitive the supervisor uses to drain.
package registry

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// Conn is a registered connection record.
type Conn struct {
	ID         uint64
	RemoteAddr net.Addr
	Conn       net.Conn
}

// Registry tracks live connections by id. The zero value is ready to use.
type Registry struct {
	mu      sync.Mutex
	conns   map[uint64]*Conn
	nextID  uint64
	onEmpty []chan struct{}
}

// New returns a ready-to-use, empty Registry.
func New() *Registry {
	return &Registry{conns: make(map[uint64]*Conn)}
}

// Register adds conn to the set and returns its assigned id. IDs are a
// monotonic counter, unique for the lifetime of the process.
func (r *Registry) Register(conn net.Conn) *Conn {
	id := atomic.AddUint64(&r.nextID, 1)
	rec := &Conn{ID: id, RemoteAddr: conn.RemoteAddr(), Conn: conn}

	r.mu.Lock()
	if r.conns == nil {
		r.conns = make(map[uint64]*Conn)
	}
	r.conns[id] = rec
	r.mu.Unlock()

	return rec
}

// Deregister removes a connection by id. Removing an id that isn't present
// is a no-op. If the registry becomes empty as a result, any pending
// WaitUntilEmpty callers are woken.
func (r *Registry) Deregister(id uint64) {
	r.mu.Lock()
	delete(r.conns, id)
	empty := len(r.conns) == 0
	var waiters []chan struct{}
	if empty {
		waiters, r.onEmpty = r.onEmpty, nil
	}
	r.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// Count returns the number of currently-registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// DrainResult is the outcome of WaitUntilEmpty.
type DrainResult int

const (
	Drained DrainResult = iota
	DeadlineExceeded
)

// WaitUntilEmpty blocks until Count() == 0 or ctx is done, whichever comes
// first. A ctx with no deadline (context.Background()) blocks indefinitely.
// It does not busy-wait: it's woken exactly when the last connection
// deregisters.
func (r *Registry) WaitUntilEmpty(ctx context.Context) DrainResult {
	r.mu.Lock()
	if len(r.conns) == 0 {
		r.mu.Unlock()
		return Drained
	}
	wake := make(chan struct{})
	r.onEmpty = append(r.onEmpty, wake)
	r.mu.Unlock()

	select {
	case <-wake:
		return Drained
	case <-ctx.Done():
		return DeadlineExceeded
	}
}

// CloseAll forcibly closes every currently-registered connection's
// underlying stream, for the forced-stop path. It does not deregister
// them: the owning worker is expected to observe the resulting I/O error
// and deregister itself, exactly as on a graceful close.
func (r *Registry) CloseAll() (closed int) {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Conn.Close()
		closed++
	}
	return closed
}
