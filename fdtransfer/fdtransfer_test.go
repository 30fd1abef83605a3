package fdtransfer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvironmentFreshStart(t *testing.T) {
	os.Unsetenv(EnvInheritedFD)
	os.Unsetenv(EnvInheritedKind)

	inherited, ok, err := FromEnvironment()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, inherited)
}

func TestFromEnvironmentInherit(t *testing.T) {
	t.Setenv(EnvInheritedFD, "3")
	t.Setenv(EnvInheritedKind, "tcp")

	inherited, ok, err := FromEnvironment()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uintptr(3), inherited.FD)
	assert.Equal(t, "tcp", inherited.Kind)
}

func TestFromEnvironmentMismatchedPair(t *testing.T) {
	t.Setenv(EnvInheritedFD, "3")
	os.Unsetenv(EnvInheritedKind)

	_, _, err := FromEnvironment()
	assert.Error(t, err)
}

func TestFromEnvironmentInvalidFD(t *testing.T) {
	t.Setenv(EnvInheritedFD, "not-a-number")
	t.Setenv(EnvInheritedKind, "tcp")

	_, _, err := FromEnvironment()
	assert.Error(t, err)
}

func TestStartSuccessorRejectsEmptyCommand(t *testing.T) {
	_, err := StartSuccessor(nil, 3, "tcp", nil)
	assert.Error(t, err)
}
