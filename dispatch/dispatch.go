// Package dispatch implements the Handler Dispatch Glue: for each accepted
// connection, register it, run the application handler on its own worker,
// and deregister on completion, including on handler failure.
package dispatch

import (
	"context"
	"net"
	"sync"

	"github.com/darkphnx/uninterruptible/handler"
	"github.com/darkphnx/uninterruptible/registry"
)

// ErrorFunc is called with a handler's error, if any, for logging. It must
// not block or panic; dispatch does not otherwise react to handler errors.
type ErrorFunc func(remoteAddr net.Addr, err error)

// Dispatcher spawns one worker per accepted connection.
type Dispatcher struct {
	reg     *registry.Registry
	handle  handler.Func
	onError ErrorFunc
	wg      sync.WaitGroup
}

// New returns a Dispatcher registering connections in reg and invoking
// handle for each. onError may be nil.
func New(reg *registry.Registry, handle handler.Func, onError ErrorFunc) *Dispatcher {
	return &Dispatcher{reg: reg, handle: handle, onError: onError}
}

// Accepted registers conn and spawns its worker. It returns immediately;
// the worker closes conn and deregisters it when handle returns, normally
// or with an error.
func (d *Dispatcher) Accepted(ctx context.Context, conn net.Conn) {
	rec := d.reg.Register(conn)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.reg.Deregister(rec.ID)
		defer conn.Close()

		if err := d.handle(ctx, conn); err != nil {
			if d.onError != nil {
				d.onError(rec.RemoteAddr, err)
			}
		}
	}()
}

// Wait blocks until every worker spawned so far has returned. It does not
// prevent new workers from being spawned concurrently; callers coordinate
// that by closing the listener first so Accepted stops being called.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
