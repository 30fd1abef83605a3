// Package signalrouter installs the supervisor's three signal handlers and
// converts them into internal lifecycle events delivered over a channel.
// Signal delivery happens in a restricted OS context, so the handler here
// only enqueues an event token; all interpretation happens in the
// supervisor goroutine that reads Events().
package signalrouter

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Event is a lifecycle event derived from an OS signal.
type Event int

const (
	// StopRequested is the first graceful-stop signal (SIGTERM).
	StopRequested Event = iota
	// ForceStopRequested is a second (or later) graceful-stop signal,
	// received while already stopping.
	ForceStopRequested
	// RestartRequested is a graceful-restart signal (SIGUSR1).
	RestartRequested
)

// Router installs signal handlers and forwards lifecycle events.
type Router struct {
	events    chan Event
	sigch     chan os.Signal
	stopping  atomic.Bool
	restarted atomic.Bool
}

// New installs handlers for SIGTERM and SIGUSR1 and starts routing them to
// the returned Router's event channel. The channel is large enough that
// the OS-level handler never blocks.
func New() *Router {
	r := &Router{
		events: make(chan Event, 16),
		sigch:  make(chan os.Signal, 16),
	}
	signal.Notify(r.sigch, syscall.SIGTERM, syscall.SIGUSR1)
	go r.run()
	return r
}

func (r *Router) run() {
	for sig := range r.sigch {
		switch sig {
		case syscall.SIGTERM:
			if r.stopping.Swap(true) {
				r.events <- ForceStopRequested
			} else {
				r.events <- StopRequested
			}
		case syscall.SIGUSR1:
			// Idempotent: a restart already requested needs no second event.
			if !r.restarted.Swap(true) {
				r.events <- RestartRequested
			}
		}
	}
}

// Events returns the channel lifecycle events are delivered on.
func (r *Router) Events() <-chan Event {
	return r.events
}

// Stop uninstalls the signal handlers. Safe to call once, at process exit.
func (r *Router) Stop() {
	signal.Stop(r.sigch)
	close(r.sigch)
}

// RequestStop raises SIGTERM against this process, the same graceful-stop
// path an operator's `kill -TERM` would take. Used by ctrlsock's `stop`
// command so the control socket never needs a second code path into the
// supervisor's lifecycle.
func (r *Router) RequestStop() {
	syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

// RequestRestart raises SIGUSR1 against this process, the same
// graceful-restart path an operator's `kill -USR1` would take.
func (r *Router) RequestRestart() {
	syscall.Kill(os.Getpid(), syscall.SIGUSR1)
}

// ResetForNextRestart clears the idempotency guard on graceful-restart so a
// subsequent SIGUSR1 (e.g. a later generation of the daemon) is honored
// again. The stop latch is intentionally never reset: once a stop has
// begun, every process generation is on the shutdown path for good.
func (r *Router) ResetForNextRestart() {
	r.restarted.Store(false)
}
