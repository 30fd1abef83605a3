package allowlist

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpAddr(ip string) *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: 1234}
}

func TestEmptyListAllowsEverything(t *testing.T) {
	l, err := Parse(nil)
	require.NoError(t, err)
	assert.True(t, l.Allows(tcpAddr("8.8.8.8")))
}

func TestMatchingCIDRAllows(t *testing.T) {
	l, err := Parse([]string{"10.0.0.0/8", "192.168.0.0/16"})
	require.NoError(t, err)
	assert.True(t, l.Allows(tcpAddr("10.1.2.3")))
	assert.True(t, l.Allows(tcpAddr("192.168.1.1")))
}

func TestNonMatchingIsRejected(t *testing.T) {
	l, err := Parse([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.False(t, l.Allows(tcpAddr("203.0.113.5")))
}

func TestInvalidCIDRErrors(t *testing.T) {
	_, err := Parse([]string{"not-a-cidr"})
	assert.Error(t, err)
}
