package signalrouter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The tests below raise real signals against the test process; the
// Router's Notify registration keeps them from terminating it.

func expectEvent(t *testing.T, r *Router, want Event) {
	t.Helper()
	select {
	case got := <-r.Events():
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatalf("no %v event delivered", want)
	}
}

func expectNoEvent(t *testing.T, r *Router) {
	t.Helper()
	select {
	case got := <-r.Events():
		t.Fatalf("unexpected event %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSecondStopForcesTermination(t *testing.T) {
	r := New()
	defer r.Stop()

	r.RequestStop()
	expectEvent(t, r, StopRequested)

	r.RequestStop()
	expectEvent(t, r, ForceStopRequested)
}

func TestRestartIsIdempotentUntilReset(t *testing.T) {
	r := New()
	defer r.Stop()

	r.RequestRestart()
	expectEvent(t, r, RestartRequested)

	r.RequestRestart()
	expectNoEvent(t, r)

	r.ResetForNextRestart()
	r.RequestRestart()
	expectEvent(t, r, RestartRequested)
}
