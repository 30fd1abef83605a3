// Package supervisor implements the signal-driven lifecycle engine: it
// owns the listening socket, tracks live connections via the registry,
// hands the listener to a successor process on graceful restart, and
// orchestrates draining on graceful and forced stop.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/darkphnx/uninterruptible/allowlist"
	"github.com/darkphnx/uninterruptible/dispatch"
	"github.com/darkphnx/uninterruptible/fdtransfer"
	"github.com/darkphnx/uninterruptible/handler"
	"github.com/darkphnx/uninterruptible/listener"
	"github.com/darkphnx/uninterruptible/logging"
	"github.com/darkphnx/uninterruptible/pidfile"
	"github.com/darkphnx/uninterruptible/registry"
	"github.com/darkphnx/uninterruptible/signalrouter"
)

// restartHandoverTimeout bounds how long a predecessor waits for its
// successor to take over the PID file before aborting the restart.
const restartHandoverTimeout = 5 * time.Second

// Options configures a Supervisor.
type Options struct {
	Listen          listener.Spec
	Handler         handler.Func
	PIDPath         string
	AllowedNetworks allowlist.List
	DrainTimeout    time.Duration // zero means unbounded
	StartCommand    []string      // argv used to exec the successor on restart
	Logger          *logging.Logger

	// OnStateChange, if set, is called whenever the lifecycle state
	// changes. Calls come from the event loop, the restart handover
	// goroutine and the drain goroutine, and are not serialized with each
	// other. Used to feed metrics/ctrlsock status reporting.
	OnStateChange func(State)

	// OnAccepted and OnRejected, if set, are called from the accept loop
	// goroutine for every connection that is dispatched to the handler or
	// turned away by the allow-list, respectively.
	OnAccepted func()
	OnRejected func()

	// OnRestartCompleted, if set, is called with the elapsed time from
	// spawning the successor to it taking over the PID file, once a
	// restart handover succeeds.
	OnRestartCompleted func(time.Duration)
}

// Supervisor is the lifecycle state machine: Running, Draining,
// Restarting, Terminating.
type Supervisor struct {
	opts Options
	log  *logging.Logger

	ln  listener.Listener
	reg *registry.Registry
	dsp *dispatch.Dispatcher

	router *signalrouter.Router

	state      atomic.Int32
	generation string

	// handedOver is set once this process has successfully transferred
	// the listener to a successor; it must never touch the PID file
	// again afterwards.
	handedOver atomic.Bool

	terminate chan struct{}
	once      sync.Once

	exitCode int
	exitErr  error
}

// New constructs a Supervisor, binding or inheriting the listener per
// fdtransfer.FromEnvironment(). It does not start serving; call Run.
func New(opts Options) (*Supervisor, error) {
	if opts.Logger == nil {
		opts.Logger = logging.New(nil, logging.LvlInfo)
	}

	s := &Supervisor{
		opts:       opts,
		log:        opts.Logger,
		reg:        registry.New(),
		generation: uuid.NewString(),
		terminate:  make(chan struct{}),
		router:     signalrouter.New(),
	}

	ln, err := s.acquireListener()
	if err != nil {
		s.router.Stop()
		return nil, err
	}
	s.ln = ln

	s.dsp = dispatch.New(s.reg, opts.Handler, func(addr net.Addr, err error) {
		s.log.Warnf("handler failed for %s: %s", addr, err)
	})

	return s, nil
}

// acquireListener decides between a fresh bind and an inherited takeover:
// presence of both handover env vars means inherit, their absence means
// fresh bind, and a half-set pair is a fatal startup error.
func (s *Supervisor) acquireListener() (listener.Listener, error) {
	inherited, ok, err := fdtransfer.FromEnvironment()
	if err != nil {
		return nil, err
	}
	if !ok {
		ln, err := listener.BindAndListen(s.opts.Listen)
		if err != nil {
			return nil, err
		}
		s.log.Infof("bound fresh listener on %s (%s)", ln.Addr(), ln.Kind())
		return ln, nil
	}

	ln, err := listener.InheritFrom(inherited, s.opts.Listen)
	if err != nil {
		return nil, err
	}
	fdtransfer.ClearEnvironment()
	s.log.Infof("inherited listener on %s (%s) from parent", ln.Addr(), ln.Kind())
	return ln, nil
}

// Run starts the accept loop and the signal-driven lifecycle, and blocks
// until the supervisor has reached Terminating. It returns the process
// exit code (0 for any graceful or forced-stop path, non-zero only for
// startup failures the caller should have caught from New already).
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	defer s.router.Stop()

	// The PID file must show this process's PID the instant it owns the
	// listener, whether that's a fresh bind or a restart takeover (the
	// takeover case is how the predecessor learns to stop accepting).
	if err := pidfile.Write(s.opts.PIDPath, os.Getpid()); err != nil {
		return 1, fmt.Errorf("supervisor: write pid file: %w", err)
	}

	acceptDone := make(chan struct{})
	go s.acceptLoop(ctx, acceptDone)

	go s.eventLoop(ctx)

	<-s.terminate
	<-acceptDone
	s.dsp.Wait()

	return s.exitCode, s.exitErr
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Registry exposes the connection registry for status reporting.
func (s *Supervisor) Registry() *registry.Registry { return s.reg }

// Generation returns this process generation's correlation id.
func (s *Supervisor) Generation() string { return s.generation }

// Router exposes the signal router so ctrlsock and the config file watcher
// can raise the same StopRequested/RestartRequested events a SIGTERM or
// SIGUSR1 would, without a second code path into the lifecycle machine.
func (s *Supervisor) Router() *signalrouter.Router { return s.router }

func (s *Supervisor) acceptLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if err == listener.ErrAcceptInterrupted {
				return
			}
			s.log.Warnf("transient accept error: %s", err)
			continue
		}
		// UNIX-domain peers carry no IP address to match; CIDR filtering
		// only applies to the TCP-based bindings.
		if s.ln.Kind() != listener.KindUnix && !s.opts.AllowedNetworks.Allows(conn.RemoteAddr()) {
			s.log.Warnf("rejected disallowed remote %s", conn.RemoteAddr())
			conn.Close()
			if s.opts.OnRejected != nil {
				s.opts.OnRejected()
			}
			continue
		}
		if s.opts.OnAccepted != nil {
			s.opts.OnAccepted()
		}
		s.dsp.Accepted(ctx, conn)
	}
}

func (s *Supervisor) eventLoop(ctx context.Context) {
	for {
		select {
		case ev := <-s.router.Events():
			switch ev {
			case signalrouter.StopRequested:
				s.handleStop()
			case signalrouter.RestartRequested:
				s.handleRestart(ctx)
			case signalrouter.ForceStopRequested:
				s.handleForceStop()
				return
			}
		case <-s.terminate:
			return
		}
	}
}

// handleStop implements Running -> Draining on the first graceful-stop.
func (s *Supervisor) handleStop() {
	if s.State() != Running {
		return // already stopping or restarting; redundant signal
	}
	s.setState(Draining)
	s.log.Infof("graceful stop requested, draining")
	s.closeAcceptSide(true)
	go s.waitForDrain()
}

// handleRestart implements Running -> Restarting and the handover
// procedure. The accept loop keeps running until the handover is
// confirmed, so no connection is ever lost during the wait.
func (s *Supervisor) handleRestart(ctx context.Context) {
	if s.State() != Running {
		return // already stopping or restarting
	}
	s.setState(Restarting)
	s.log.Infof("graceful restart requested")

	go func() {
		ok := s.performHandover()
		if !ok {
			// Abort: revert to Running, accept loop was never touched.
			s.setState(Running)
			s.router.ResetForNextRestart()
			return
		}
		s.handedOver.Store(true)
		s.log.Infof("handover complete, draining predecessor")
		s.closeAcceptSide(false)
		s.waitForDrain()
	}()
}

// performHandover spawns the successor, marks the listener fd
// inheritable, and polls the PID file for the successor's PID within
// restartHandoverTimeout. It returns false (and repairs the PID file) if
// the successor never takes over in time.
func (s *Supervisor) performHandover() bool {
	fd, err := s.ln.FD()
	if err != nil {
		s.log.Errorf("restart handover: get listener fd: %s", err)
		return false
	}

	spawnedAt := time.Now()
	proc, err := fdtransfer.StartSuccessor(s.opts.StartCommand, fd, string(s.ln.Kind()), nil)
	if err != nil {
		s.log.Errorf("restart handover: spawn successor: %s", err)
		return false
	}

	ownPID := os.Getpid()
	deadline := spawnedAt.Add(restartHandoverTimeout)
	for time.Now().Before(deadline) {
		pid, err := pidfile.Read(s.opts.PIDPath)
		if err == nil && pid != ownPID {
			s.log.Infof("successor pid %d took over the pid file", pid)
			if s.opts.OnRestartCompleted != nil {
				s.opts.OnRestartCompleted(time.Since(spawnedAt))
			}
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}

	s.log.Errorf("restart handover: successor (pid %d) did not take over within %s", proc.Pid, restartHandoverTimeout)
	// The ordering invariant demands the pid file never points at a dead
	// process: if the successor partially wrote it, put our own PID back.
	if pid, err := pidfile.Read(s.opts.PIDPath); err != nil || pid != ownPID {
		if werr := pidfile.Write(s.opts.PIDPath, ownPID); werr != nil {
			s.log.Errorf("restart handover: restore pid file: %s", werr)
		}
	}
	return false
}

// closeAcceptSide stops the accept loop. unlink is only meaningful for a
// UNIX listener: true for a pure shutdown (the path is removed), false for
// a handover (the successor already owns the fd and the path).
func (s *Supervisor) closeAcceptSide(unlink bool) {
	type handoverCloser interface{ CloseForHandover() error }
	if !unlink {
		if hc, ok := s.ln.(handoverCloser); ok {
			hc.CloseForHandover()
			return
		}
	}
	s.ln.Close()
}

// waitForDrain blocks until the registry empties or drainTimeout passes,
// then moves to Terminating. A timeout forces the remaining connections
// closed rather than waiting forever, since the accept side is already
// closed and nothing else will ever empty the registry.
func (s *Supervisor) waitForDrain() {
	ctx := context.Background()
	var cancel context.CancelFunc
	if s.opts.DrainTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.opts.DrainTimeout)
		defer cancel()
	}

	if s.reg.WaitUntilEmpty(ctx) == registry.DeadlineExceeded {
		s.log.Warnf("drain timeout exceeded, forcing remaining connections closed")
		s.reg.CloseAll()
	}

	s.finish(0, nil)
}

// handleForceStop implements the second-graceful-stop path: abrupt,
// bounded termination regardless of in-flight handlers.
func (s *Supervisor) handleForceStop() {
	s.log.Warnf("forced stop requested, closing all connections")
	s.setState(Terminating)
	s.closeAcceptSide(!s.handedOver.Load())
	closed := s.reg.CloseAll()
	if closed > 0 {
		s.log.Warnf("forcibly closed %d connection(s)", closed)
	}
	s.finish(0, nil)
}

// finish transitions to Terminating (if not already), removes the PID
// file unless this process handed the listener off to a successor, and
// unblocks Run.
func (s *Supervisor) finish(code int, err error) {
	s.once.Do(func() {
		s.setState(Terminating)
		if !s.handedOver.Load() {
			if rmErr := pidfile.Remove(s.opts.PIDPath); rmErr != nil {
				s.log.Errorf("remove pid file: %s", rmErr)
			}
		}
		s.exitCode = code
		s.exitErr = err
		close(s.terminate)
	})
}
