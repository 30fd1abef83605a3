package listener

import (
	"net"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// unixListener wraps a UNIX-domain socket. The socket path is created on
// bind and unlinked by Close on clean shutdown, whether this process bound
// it or inherited it; a handover (CloseForHandover) leaves it alone, and an
// inherited listener never rebinds.
type unixListener struct {
	ln       *net.UnixListener
	path     string
	unlinker bool // Close unlinks path when set; CloseForHandover never does
	closed   atomic.Bool
}

func bindUnix(path string) (*unixListener, error) {
	// Best-effort: remove a stale socket file left by an unclean exit of a
	// previous, non-handed-over instance. A socket that still accepts a
	// connection is live and is left in place, so the bind below fails.
	if fi, err := os.Stat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if probe, derr := net.Dial("unix", path); derr == nil {
			probe.Close()
		} else {
			os.Remove(path)
		}
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, &ErrBindFailed{Err: err}
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, &ErrBindFailed{Err: err}
	}
	// We manage unlinking ourselves so a restart handover can opt out of it.
	ln.SetUnlinkOnClose(false)
	return &unixListener{ln: ln, path: path, unlinker: true}, nil
}

func inheritUnix(fd uintptr, path string) (*unixListener, error) {
	ln, err := listenerFromFD(fd, "inherited-unix")
	if err != nil {
		return nil, &ErrInheritFailed{Reason: err.Error()}
	}
	unixLn, ok := ln.(*net.UnixListener)
	if !ok {
		return nil, &ErrInheritFailed{Reason: "inherited fd is not a UNIX listener"}
	}
	unixLn.SetUnlinkOnClose(false)
	return &unixListener{ln: unixLn, path: path, unlinker: true}, nil
}

func (u *unixListener) Accept() (net.Conn, error) {
	conn, err := u.ln.Accept()
	if err != nil {
		if u.closed.Load() {
			return nil, ErrAcceptInterrupted
		}
		return nil, err
	}
	return conn, nil
}

func (u *unixListener) FD() (uintptr, error) {
	f, err := u.ln.File()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return 0, err
	}
	return uintptr(fd), nil
}

// CloseForHandover closes the socket object without unlinking the path, so
// the successor (which already holds the inherited fd) keeps a working
// path. Used by the supervisor's restart branch.
func (u *unixListener) CloseForHandover() error {
	u.closed.Store(true)
	return u.ln.Close()
}

// Close closes the socket and unlinks the path, for a clean shutdown of
// either a freshly bound or an inherited listener.
func (u *unixListener) Close() error {
	u.closed.Store(true)
	err := u.ln.Close()
	if u.unlinker {
		os.Remove(u.path)
	}
	return err
}

func (u *unixListener) Addr() net.Addr { return u.ln.Addr() }
func (u *unixListener) Kind() Kind     { return KindUnix }
