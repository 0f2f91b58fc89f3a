package diskfile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockPath(t *testing.T) {
	dir := t.TempDir()

	unlock, err := lockPath(context.Background(), dir, lockFileName, time.Second, ErrLockTimeout)
	require.NoError(t, err)

	_, err = lockPath(context.Background(), dir, lockFileName, 20*time.Millisecond, ErrLockTimeout)
	require.ErrorIs(t, err, ErrLockTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = lockPath(ctx, dir, lockFileName, time.Second, ErrLockTimeout)
	require.ErrorIs(t, err, context.Canceled)

	unlock()

	unlock, err = lockPath(context.Background(), dir, lockFileName, 20*time.Millisecond, ErrLockTimeout)
	require.NoError(t, err)
	unlock()
}

func TestReplicationLock(t *testing.T) {
	t.Run("one per device", func(t *testing.T) {
		metrics := new(countingMetrics)
		e := newTestEnv(t, testReplicated,
			WithReplicationLock(true, 20*time.Millisecond),
			WithMetrics(metrics))

		unlock, err := e.m.ReplicationLock(context.Background(), testDevice)
		require.NoError(t, err)

		_, err = e.m.ReplicationLock(context.Background(), testDevice)
		require.ErrorIs(t, err, ErrReplicationLockTimeout)
		require.Equal(t, 1, metrics.get(&metrics.timeouts))

		unlock()

		unlock, err = e.m.ReplicationLock(context.Background(), testDevice)
		require.NoError(t, err)
		unlock()

		_, err = e.m.ReplicationLock(context.Background(), "missing")
		require.ErrorIs(t, err, ErrDeviceUnavailable)
	})

	t.Run("unlimited", func(t *testing.T) {
		e := newTestEnv(t, testReplicated, WithReplicationLock(false, time.Millisecond))

		unlock1, err := e.m.ReplicationLock(context.Background(), testDevice)
		require.NoError(t, err)
		unlock2, err := e.m.ReplicationLock(context.Background(), testDevice)
		require.NoError(t, err)
		unlock1()
		unlock2()
	})
}
