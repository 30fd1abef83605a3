package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LvlWarn)

	l.Debugf("invisible")
	l.Infof("also invisible")
	l.Warnf("visible warning")
	l.Errorf("visible error")

	out := buf.String()
	assert.NotContains(t, out, "invisible")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "visible error")
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]Level{
		"debug": LvlDebug,
		"info":  LvlInfo,
		"warn":  LvlWarn,
		"error": LvlError,
		"fatal": LvlFatal,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Infof("dropped") })
}
