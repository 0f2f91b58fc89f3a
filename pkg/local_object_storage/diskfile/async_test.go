package diskfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsyncUpdates(t *testing.T) {
	metrics := new(countingMetrics)
	e := newTestEnv(t, testEC, WithMetrics(metrics))

	paths, err := e.m.ListAsyncUpdates(testDevice)
	require.NoError(t, err)
	require.Empty(t, paths)

	upd := AsyncUpdate{
		Op:        "PUT",
		Account:   "a",
		Container: "c",
		Object:    "o",
		Headers:   map[string]string{"X-Size": "5", MetaTimestamp: recentTS(0).Internal()},
	}

	path, err := e.m.WriteAsyncUpdate(testDevice, upd, recentTS(0))
	require.NoError(t, err)

	hash := e.m.HashPath("a", "c", "o")
	require.Equal(t, filepath.Join(e.devPath, "async_pending-1", hash[29:], hash+"-"+recentTS(0).Internal()), path)

	got, err := ReadAsyncUpdate(path)
	require.NoError(t, err)
	require.Equal(t, upd, got)

	t.Run("same time replaces", func(t *testing.T) {
		del := upd
		del.Op = "DELETE"
		del.Headers = nil

		p, err := e.m.WriteAsyncUpdate(testDevice, del, recentTS(0))
		require.NoError(t, err)
		require.Equal(t, path, p)

		got, err := ReadAsyncUpdate(path)
		require.NoError(t, err)
		require.Equal(t, del, got)
	})

	_, err = e.m.WriteAsyncUpdate(testDevice, upd, recentTS(1))
	require.NoError(t, err)

	other := upd
	other.Object = "o2"
	_, err = e.m.WriteAsyncUpdate(testDevice, other, recentTS(0))
	require.NoError(t, err)

	paths, err = e.m.ListAsyncUpdates(testDevice)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	require.Contains(t, paths, path)
	require.Equal(t, 4, metrics.get(&metrics.asyncs))

	// no temporary files are left behind
	require.Empty(t, listNames(t, filepath.Join(e.devPath, "tmp-1")))

	t.Run("corrupted", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("garbage"), filePerm))
		_, err := ReadAsyncUpdate(path)
		require.Error(t, err)

		_, err = ReadAsyncUpdate(filepath.Join(e.devPath, "missing"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	_, err = e.m.WriteAsyncUpdate("missing", upd, recentTS(0))
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}
