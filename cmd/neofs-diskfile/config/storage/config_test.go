package storageconfig_test

import (
	"testing"
	"time"

	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config"
	storageconfig "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config/storage"
	configtest "github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config/test"
	"github.com/stretchr/testify/require"
)

func TestStorageSection(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := configtest.EmptyConfig()

		_, err := storageconfig.Devices(c)
		require.ErrorIs(t, err, storageconfig.ErrNoDevices)

		require.Equal(t, storageconfig.MountCheckDefault, storageconfig.MountCheck(c))
		require.Equal(t, storageconfig.ReclaimAgeDefault, storageconfig.ReclaimAge(c))
		require.Equal(t, storageconfig.LockTimeoutDefault, storageconfig.LockTimeout(c))
		require.Equal(t, storageconfig.ReplicationOnePerDeviceDefault, storageconfig.ReplicationOnePerDevice(c))
		require.Equal(t, storageconfig.ReplicationLockTimeoutDefault, storageconfig.ReplicationLockTimeout(c))
		require.Zero(t, storageconfig.FallocateReserve(c))
		require.Equal(t, storageconfig.UseLinkatDefault, storageconfig.UseLinkat(c))
		require.False(t, storageconfig.Splice(c))
		require.Empty(t, storageconfig.HashPathPrefix(c))
		require.Empty(t, storageconfig.HashPathSuffix(c))
		require.Equal(t, storageconfig.PoolSizeDefault, storageconfig.PoolSize(c))
		require.Equal(t, storageconfig.MountCacheTTLDefault, storageconfig.MountCacheTTL(c))
	})

	const path = "../../../../config/example/diskfile"

	configtest.ForEachFileType(path, func(c *config.Config) {
		devices, err := storageconfig.Devices(c)
		require.NoError(t, err)
		require.Equal(t, "/srv/node", devices)

		require.False(t, storageconfig.MountCheck(c))
		require.Equal(t, 72*time.Hour, storageconfig.ReclaimAge(c))
		require.Equal(t, 5*time.Second, storageconfig.LockTimeout(c))
		require.True(t, storageconfig.ReplicationOnePerDevice(c))
		require.Equal(t, 20*time.Second, storageconfig.ReplicationLockTimeout(c))
		require.EqualValues(t, 1<<30, storageconfig.FallocateReserve(c))
		require.True(t, storageconfig.UseLinkat(c))
		require.True(t, storageconfig.Splice(c))
		require.Equal(t, "changeme", storageconfig.HashPathPrefix(c))
		require.Equal(t, "changemetoo", storageconfig.HashPathSuffix(c))
		require.Equal(t, 16, storageconfig.PoolSize(c))
		require.Equal(t, time.Minute, storageconfig.MountCacheTTL(c))
	})

	t.Run("ENV", func(t *testing.T) {
		t.Setenv("NEOFS_DISKFILE_STORAGE_DEVICES", "/mnt")
		t.Setenv("NEOFS_DISKFILE_STORAGE_MOUNT_CHECK", "false")

		c := configtest.EmptyConfig()
		devices, err := storageconfig.Devices(c)
		require.NoError(t, err)
		require.Equal(t, "/mnt", devices)
		require.False(t, storageconfig.MountCheck(c))
	})
}
