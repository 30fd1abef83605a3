package listener

import (
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type tcpListener struct {
	ln     *net.TCPListener
	closed atomic.Bool
}

func bindTCP(addr string) (*tcpListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, &ErrBindFailed{Err: err}
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, &ErrBindFailed{Err: err}
	}
	return &tcpListener{ln: ln}, nil
}

func inheritTCP(fd uintptr) (*tcpListener, error) {
	ln, err := listenerFromFD(fd, "inherited-tcp")
	if err != nil {
		return nil, &ErrInheritFailed{Reason: err.Error()}
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, &ErrInheritFailed{Reason: "inherited fd is not a TCP listener"}
	}
	return &tcpListener{ln: tcpLn}, nil
}

func (t *tcpListener) Accept() (net.Conn, error) {
	conn, err := t.ln.Accept()
	if err != nil {
		if t.closed.Load() {
			return nil, ErrAcceptInterrupted
		}
		return nil, err
	}
	return conn, nil
}

func (t *tcpListener) FD() (uintptr, error) {
	f, err := t.ln.File()
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

func (t *tcpListener) Close() error {
	t.closed.Store(true)
	return t.ln.Close()
}

func (t *tcpListener) Addr() net.Addr { return t.ln.Addr() }
func (t *tcpListener) Kind() Kind     { return KindTCP }
