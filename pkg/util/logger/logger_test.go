package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPrm(t *testing.T) {
	var p Prm

	for _, lvl := range []string{"debug", "info", "warn", "error", "WARN"} {
		require.NoError(t, p.SetLevelString(lvl), lvl)
	}
	for _, lvl := range []string{"verbose", "fatal", "panic"} {
		require.Error(t, p.SetLevelString(lvl), lvl)
	}

	require.NoError(t, p.SetEncoding("json"))
	require.NoError(t, p.SetEncoding("Console"))
	require.Error(t, p.SetEncoding("xml"))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(nil)
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zap.InfoLevel))
	require.False(t, l.Core().Enabled(zap.DebugLevel))

	var p Prm
	require.NoError(t, p.SetLevelString("debug"))
	require.NoError(t, p.SetEncoding("json"))

	l, err = NewLogger(&p)
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zap.DebugLevel))
}
