package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config"
	configtest "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config/test"
	"github.com/stretchr/testify/require"
)

func TestConfigEnv(t *testing.T) {
	t.Setenv("NEOFS_DISKFILE_SECTION_SUB_VALUE", "from env")

	c := configtest.EmptyConfig()
	require.Equal(t, "from env", config.StringSafe(c.Sub("section").Sub("sub"), "value"))
	require.Nil(t, c.Sub("section").Value("missing"))
}

func TestConfigFile(t *testing.T) {
	_, err := config.New(config.WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
values:
  string: some string
  duration: 15m
  bool: true
  uint: 42
  int: -42
  incorrect:
    - 1
`), 0o600))

	c, err := config.New(config.WithConfigFile(path))
	require.NoError(t, err)
	c = c.Sub("values")

	require.Equal(t, "some string", config.StringSafe(c, "string"))
	require.Equal(t, 15*time.Minute, config.DurationSafe(c, "duration"))
	require.True(t, config.BoolSafe(c, "bool"))
	require.EqualValues(t, 42, config.UintSafe(c, "uint"))
	require.EqualValues(t, -42, config.Int(c, "int"))
	require.EqualValues(t, -42, config.IntSafe(c, "int"))

	require.Panics(t, func() { config.Int(c, "incorrect") })

	require.Zero(t, config.DurationSafe(c, "incorrect"))
	require.False(t, config.BoolSafe(c, "incorrect"))
	require.Zero(t, config.UintSafe(c, "incorrect"))
	require.Zero(t, config.IntSafe(c, "incorrect"))
	require.Empty(t, config.StringSafe(c, "incorrect"))
}
