package listener

import (
	"crypto/tls"
	"net"
)

// tlsListener wraps an inner TCP (or inherited-TCP) listener, performing the
// TLS handshake on Accept before returning the connection. Handshake
// failures never propagate as accept errors: the raw connection is closed
// and Accept is retried internally.
type tlsListener struct {
	inner  *tcpListener
	config *tls.Config
}

func wrapTLS(inner *tcpListener, cfg *tls.Config) *tlsListener {
	return &tlsListener{inner: inner, config: cfg}
}

func (t *tlsListener) Accept() (net.Conn, error) {
	for {
		raw, err := t.inner.Accept()
		if err != nil {
			return nil, err
		}
		tlsConn := tls.Server(raw, t.config)
		if err := tlsConn.Handshake(); err != nil {
			raw.Close()
			continue
		}
		return tlsConn, nil
	}
}

func (t *tlsListener) FD() (uintptr, error) { return t.inner.FD() }
func (t *tlsListener) Close() error         { return t.inner.Close() }
func (t *tlsListener) Addr() net.Addr       { return t.inner.Addr() }
func (t *tlsListener) Kind() Kind           { return KindTLS }
