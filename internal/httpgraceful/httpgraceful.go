// Package httpgraceful extends net/http.Server with a Shutdown method that
// stops accepting, disables keep-alives, and waits for in-flight requests
// to finish before returning, with an optional timeout that forcibly
// closes whatever is left.
//
// Connection tracking reuses registry.Registry, the same primitive the
// supervisor drains its own handler connections with; the http.Server's
// ConnState hook stands in for the dispatcher's register/deregister call
// pair, and the drain sequence mirrors the supervisor's
// wait-then-force-close shape.
package httpgraceful

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/darkphnx/uninterruptible/registry"
)

// ErrAlreadyRunning is returned by Serve when the server is already
// serving a listener.
var ErrAlreadyRunning = errors.New("httpgraceful: already running")

// Server wraps *http.Server with graceful shutdown.
type Server struct {
	*http.Server

	// Timeout bounds how long outstanding requests may survive Shutdown
	// before being forcibly closed. Zero waits forever.
	Timeout time.Duration

	// OnKilled, if set, is called with the number of connections that had
	// to be forcibly closed after Timeout expired.
	OnKilled func(killed int)

	mu       sync.Mutex
	running  bool
	draining bool
	ln       net.Listener
	reg      *registry.Registry
	ids      map[net.Conn]uint64
	drained  chan struct{}
}

// Serve runs srv.Server.Serve(listener) with connection tracking wired in,
// and blocks until the listener is closed and, if Shutdown initiated the
// close, until draining has completed.
func (srv *Server) Serve(listener net.Listener) error {
	srv.mu.Lock()
	if srv.running {
		srv.mu.Unlock()
		return ErrAlreadyRunning
	}
	srv.running = true
	srv.draining = false
	srv.ln = listener
	srv.reg = registry.New()
	srv.ids = make(map[net.Conn]uint64)
	srv.drained = make(chan struct{})
	srv.mu.Unlock()

	srv.Server.ConnState = func(conn net.Conn, state http.ConnState) {
		switch state {
		case http.StateNew:
			rec := srv.reg.Register(conn)
			srv.mu.Lock()
			srv.ids[conn] = rec.ID
			srv.mu.Unlock()
		case http.StateClosed, http.StateHijacked:
			srv.mu.Lock()
			id, ok := srv.ids[conn]
			delete(srv.ids, conn)
			srv.mu.Unlock()
			if ok {
				srv.reg.Deregister(id)
			}
		}
	}

	err := srv.Server.Serve(listener)
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	srv.mu.Lock()
	draining := srv.draining
	srv.mu.Unlock()
	if draining {
		<-srv.drained
	}

	srv.mu.Lock()
	srv.running = false
	srv.mu.Unlock()

	return err
}

// Shutdown stops accepting, disables keep-alives, and waits for in-flight
// requests to drain. Once Timeout (if nonzero) elapses, the remaining
// connections are closed outright, the same way the supervisor's drain
// deadline forces its own stragglers. Only the first call has any effect;
// it blocks until draining has completed.
func (srv *Server) Shutdown() {
	srv.mu.Lock()
	if !srv.running {
		srv.mu.Unlock()
		return
	}
	if srv.draining {
		drained := srv.drained
		srv.mu.Unlock()
		<-drained
		return
	}
	srv.draining = true
	ln := srv.ln
	srv.mu.Unlock()

	// Closing the listener unblocks Serve; disabling keep-alives also
	// closes currently-idle connections, which deregister via ConnState.
	srv.SetKeepAlivesEnabled(false)
	ln.Close()

	ctx := context.Background()
	var cancel context.CancelFunc
	if srv.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, srv.Timeout)
		defer cancel()
	}

	if srv.reg.WaitUntilEmpty(ctx) == registry.DeadlineExceeded {
		killed := srv.reg.CloseAll()
		if killed > 0 && srv.OnKilled != nil {
			srv.OnKilled(killed)
		}
	}

	close(srv.drained)
}
