package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/darkphnx/uninterruptible/supervisor"
)

func TestCountersTrackAcceptAndReject(t *testing.T) {
	r := New(nil)

	r.AcceptedConn()
	r.AcceptedConn()
	r.RejectedConn()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.acceptTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejectTotal))
}

func TestOnStateChangeIsOneHot(t *testing.T) {
	r := New(nil)

	r.OnStateChange(supervisor.Draining)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stateGauge.WithLabelValues("draining")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.stateGauge.WithLabelValues("running")))

	r.OnStateChange(supervisor.Running)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.stateGauge.WithLabelValues("draining")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stateGauge.WithLabelValues("running")))
}

func TestRestartCompletedCountsRestart(t *testing.T) {
	r := New(nil)

	r.RestartCompleted(250 * time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.restartTotal))
}

func TestSetActiveConns(t *testing.T) {
	r := New(nil)

	r.SetActiveConns(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(r.activeConns))
}
