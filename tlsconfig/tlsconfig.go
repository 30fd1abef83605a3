// Package tlsconfig loads a certificate chain and key into a *tls.Config
// pinned to a minimum protocol version, for the tls:// bind scheme.
// Certificate provisioning itself (e.g. ACME) is left to whatever put the
// files on disk.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
)

// Load builds a server-side *tls.Config from a PEM cert chain and key
// file, refusing clients that can't negotiate at least minVersion.
// minVersion defaults to TLS 1.2 when zero.
func Load(certFile, keyFile string, minVersion uint16) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: load key pair: %w", err)
	}
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}, nil
}
