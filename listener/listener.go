// Package listener implements the Listener Abstraction: a uniform
// accept-producing source over TCP, UNIX-domain and TLS-wrapped TCP
// bindings, each exposing accept() and an inheritable file handle.
package listener

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/darkphnx/uninterruptible/fdtransfer"
)

// Kind identifies a listener binding.
type Kind string

const (
	KindTCP  Kind = "tcp"
	KindUnix Kind = "unix"
	KindTLS  Kind = "tls"
)

// ErrAcceptInterrupted is returned by Accept when the supervisor has closed
// the listener to stop the accept loop, as opposed to a transient OS error.
var ErrAcceptInterrupted = errors.New("listener: accept interrupted")

// ErrBindFailed wraps an error binding a fresh socket (address in use,
// permission denied, ...).
type ErrBindFailed struct{ Err error }

func (e *ErrBindFailed) Error() string { return fmt.Sprintf("listener: bind failed: %s", e.Err) }
func (e *ErrBindFailed) Unwrap() error { return e.Err }

// ErrInheritFailed is returned by InheritFrom when the inherited handle is
// invalid or its kind disagrees with the configured spec.
type ErrInheritFailed struct{ Reason string }

func (e *ErrInheritFailed) Error() string { return "listener: inherit failed: " + e.Reason }

// Spec describes how to bind or inherit a listener.
type Spec struct {
	Kind Kind
	// Host+Port for tcp/tls, filesystem path for unix.
	Addr string
	// TLS-only.
	TLSConfig *tls.Config
}

// ParseBindURI parses the `bind` configuration URI: tcp://host:port,
// unix:///path/to.sock, or tls://host:port. TLSConfig must be filled in by
// the caller afterwards for the tls scheme.
func ParseBindURI(bind string) (Spec, error) {
	u, err := url.Parse(bind)
	if err != nil {
		return Spec{}, fmt.Errorf("listener: parse bind %q: %w", bind, err)
	}
	switch u.Scheme {
	case "tcp":
		return Spec{Kind: KindTCP, Addr: u.Host}, nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return Spec{Kind: KindUnix, Addr: path}, nil
	case "tls":
		return Spec{Kind: KindTLS, Addr: u.Host}, nil
	default:
		return Spec{}, fmt.Errorf("listener: unknown bind scheme %q", u.Scheme)
	}
}

// Listener is the uniform interface over the three concrete bindings.
type Listener interface {
	// Accept blocks for the next connection. It returns ErrAcceptInterrupted
	// itself (not wrapped) once Close has been called by the supervisor.
	Accept() (net.Conn, error)
	// FD returns the underlying file descriptor's handle, suitable for
	// marking inheritable across a process replacement.
	FD() (uintptr, error)
	Close() error
	Addr() net.Addr
	Kind() Kind
}

// BindAndListen creates a fresh listener for the given Spec.
func BindAndListen(spec Spec) (Listener, error) {
	switch spec.Kind {
	case KindTCP:
		return bindTCP(spec.Addr)
	case KindUnix:
		return bindUnix(spec.Addr)
	case KindTLS:
		inner, err := bindTCP(spec.Addr)
		if err != nil {
			return nil, err
		}
		return wrapTLS(inner, spec.TLSConfig), nil
	default:
		return nil, fmt.Errorf("listener: unknown kind %q", spec.Kind)
	}
}

// InheritFrom reconstructs a listener around an already-bound file handle
// received from a parent process, without rebinding.
func InheritFrom(inherited fdtransfer.Inherited, spec Spec) (Listener, error) {
	if string(spec.Kind) != inherited.Kind {
		return nil, &ErrInheritFailed{Reason: fmt.Sprintf("configured kind %q disagrees with inherited kind %q", spec.Kind, inherited.Kind)}
	}

	switch spec.Kind {
	case KindTCP:
		return inheritTCP(inherited.FD)
	case KindUnix:
		return inheritUnix(inherited.FD, spec.Addr)
	case KindTLS:
		inner, err := inheritTCP(inherited.FD)
		if err != nil {
			return nil, err
		}
		return wrapTLS(inner, spec.TLSConfig), nil
	default:
		return nil, &ErrInheritFailed{Reason: fmt.Sprintf("unknown kind %q", spec.Kind)}
	}
}
