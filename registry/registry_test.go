package registry

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn() net.Conn {
	c, _ := net.Pipe()
	return c
}

func TestRegisterDeregisterCount(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.Count())

	c1 := r.Register(pipeConn())
	c2 := r.Register(pipeConn())
	assert.Equal(t, 2, r.Count())
	assert.NotEqual(t, c1.ID, c2.ID)

	r.Deregister(c1.ID)
	assert.Equal(t, 1, r.Count())

	r.Deregister(c2.ID)
	assert.Equal(t, 0, r.Count())
}

func TestDeregisterUnknownIDIsNoOp(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.Deregister(999) })
}

func TestWaitUntilEmptyAlreadyEmpty(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, Drained, r.WaitUntilEmpty(ctx))
}

func TestWaitUntilEmptyWakesOnLastDeregister(t *testing.T) {
	r := New()
	c := r.Register(pipeConn())

	resultc := make(chan DrainResult, 1)
	go func() {
		resultc <- r.WaitUntilEmpty(context.Background())
	}()

	time.Sleep(20 * time.Millisecond) // let WaitUntilEmpty register its waiter
	r.Deregister(c.ID)

	select {
	case res := <-resultc:
		assert.Equal(t, Drained, res)
	case <-time.After(time.Second):
		t.Fatal("WaitUntilEmpty did not wake up")
	}
}

func TestWaitUntilEmptyDeadlineExceeded(t *testing.T) {
	r := New()
	r.Register(pipeConn())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, DeadlineExceeded, r.WaitUntilEmpty(ctx))
}

func TestCloseAllClosesUnderlyingStreams(t *testing.T) {
	r := New()
	conn := pipeConn()
	r.Register(conn)

	require.Equal(t, 1, r.CloseAll())

	// A closed net.Pipe conn errors on further writes.
	_, err := conn.Write([]byte("x"))
	assert.Error(t, err)
}
