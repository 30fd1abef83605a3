package httpgraceful

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeAndShutdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "pong")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &Server{
		Server:  &http.Server{Handler: mux},
		Timeout: time.Second,
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "pong\n", string(body))

	srv.Shutdown()

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	_, err = http.Get("http://" + ln.Addr().String() + "/ping")
	assert.Error(t, err, "listener must be closed after shutdown")
}

func TestShutdownKillsLingeringConnections(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		<-release
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	killed := make(chan int, 1)
	srv := &Server{
		Server:   &http.Server{Handler: mux},
		Timeout:  100 * time.Millisecond,
		OnKilled: func(n int) { killed <- n },
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	go http.Get("http://" + ln.Addr().String() + "/slow")
	time.Sleep(100 * time.Millisecond) // let the slow request land

	srv.Shutdown()
	close(release)

	select {
	case n := <-killed:
		assert.Greater(t, n, 0)
	case <-time.After(2 * time.Second):
		t.Fatal("lingering connection was never killed")
	}
	<-served
}
