// Package fdtransfer implements the cross-process handover of a listening
// file descriptor during a graceful restart: marking it inheritable,
// encoding its identity into the environment of a successor process, and
// spawning that successor via fork+exec of the same program image.
//
// The environment schema is an interface contract shared with whatever
// supervises or replaces this process: SERVER_INHERITED_FD carries the
// decimal fd number, SERVER_INHERITED_KIND the listener kind ("tcp",
// "unix" or "tls").
package fdtransfer

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

const (
	// EnvInheritedFD is the environment variable carrying the decimal
	// file descriptor number of an inherited listener.
	EnvInheritedFD = "SERVER_INHERITED_FD"
	// EnvInheritedKind is the environment variable carrying the listener
	// kind ("tcp", "unix" or "tls") of an inherited listener.
	EnvInheritedKind = "SERVER_INHERITED_KIND"
)

// Inherited describes a listener file descriptor found in the process
// environment at startup.
type Inherited struct {
	FD   uintptr
	Kind string
}

// FromEnvironment looks for SERVER_INHERITED_FD/SERVER_INHERITED_KIND in the
// current process environment. Absence of both means a fresh start: ok is
// false and err is nil. Presence of only one is a fatal configuration
// error.
func FromEnvironment() (inherited Inherited, ok bool, err error) {
	fdStr, hasFD := os.LookupEnv(EnvInheritedFD)
	kind, hasKind := os.LookupEnv(EnvInheritedKind)

	if !hasFD && !hasKind {
		return Inherited{}, false, nil
	}
	if hasFD != hasKind {
		return Inherited{}, false, fmt.Errorf("fdtransfer: %s and %s must both be set or both unset", EnvInheritedFD, EnvInheritedKind)
	}

	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return Inherited{}, false, fmt.Errorf("fdtransfer: invalid %s=%q: %w", EnvInheritedFD, fdStr, err)
	}
	return Inherited{FD: uintptr(fd), Kind: kind}, true, nil
}

// ClearEnvironment removes the handover variables so that a subsequent
// restart of this process doesn't re-read stale values. Call once the
// inherited fd has been claimed.
func ClearEnvironment() {
	os.Unsetenv(EnvInheritedFD)
	os.Unsetenv(EnvInheritedKind)
}

// MarkInheritable puts fd into blocking mode before it is handed to a
// successor process: Go's runtime leaves listener fds non-blocking, but a
// freshly exec'd process expects to manage blocking mode itself via
// net.FileListener. It does not change the close-on-exec flag;
// StartSuccessor passes fd through os.ProcAttr.Files, which installs it in
// the child as fd 3.
func MarkInheritable(fd uintptr) error {
	return unix.SetNonblock(int(fd), false)
}

// StartSuccessor spawns the successor process from the same program image
// (resolved via the original argv[0] and $PATH, so a replaced symlink is
// picked up), passing fd as an inherited file alongside stdin/stdout/stderr
// and setting SERVER_INHERITED_FD/SERVER_INHERITED_KIND in its environment.
// argv is the start_command to exec; extraEnv is appended to the current
// process environment (with any prior handover variables stripped).
func StartSuccessor(argv []string, fd uintptr, kind string, extraEnv []string) (*os.Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("fdtransfer: empty start command")
	}

	argv0, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("fdtransfer: resolve %s: %w", argv[0], err)
	}

	if err := MarkInheritable(fd); err != nil {
		return nil, fmt.Errorf("fdtransfer: mark fd %d inheritable: %w", fd, err)
	}

	env := make([]string, 0, len(os.Environ())+len(extraEnv)+2)
	for _, v := range os.Environ() {
		if hasPrefix(v, EnvInheritedFD+"=") || hasPrefix(v, EnvInheritedKind+"=") {
			continue
		}
		env = append(env, v)
	}
	env = append(env, extraEnv...)

	// The inherited fd is passed as ExtraFiles-style file 3 (after the
	// standard three), and its number in the *child's* fd table is what
	// we advertise, not its number here.
	const childFD = 3
	env = append(env, fmt.Sprintf("%s=%d", EnvInheritedFD, childFD))
	env = append(env, fmt.Sprintf("%s=%s", EnvInheritedKind, kind))

	listenerFile := os.NewFile(fd, "inherited-listener")
	defer listenerFile.Close()
	files := []*os.File{os.Stdin, os.Stdout, os.Stderr, listenerFile}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("fdtransfer: getwd: %w", err)
	}

	proc, err := os.StartProcess(argv0, argv, &os.ProcAttr{
		Dir:   wd,
		Env:   env,
		Files: files,
	})
	if err != nil {
		return nil, err
	}
	return proc, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
