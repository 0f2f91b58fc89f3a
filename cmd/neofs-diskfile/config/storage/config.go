package storageconfig

import (
	"errors"
	"time"

	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config"
)

const subsection = "storage"

// Defaults of the storage section.
const (
	MountCheckDefault              = true
	ReclaimAgeDefault              = 7 * 24 * time.Hour
	LockTimeoutDefault             = 10 * time.Second
	ReplicationOnePerDeviceDefault = true
	ReplicationLockTimeoutDefault  = 15 * time.Second
	UseLinkatDefault               = true
	PoolSizeDefault                = 8
	MountCacheTTLDefault           = 30 * time.Second
)

// ErrNoDevices is returned by Devices if the devices root is not set.
var ErrNoDevices = errors.New("storage.devices is not set")

// Devices returns the value of "devices" config parameter
// from "storage" section.
func Devices(c *config.Config) (string, error) {
	v := config.StringSafe(c.Sub(subsection), "devices")
	if v == "" {
		return "", ErrNoDevices
	}
	return v, nil
}

func boolOr(c *config.Config, name string, def bool) bool {
	s := c.Sub(subsection)
	if s.Value(name) == nil {
		return def
	}
	return config.BoolSafe(s, name)
}

func durationOr(c *config.Config, name string, def time.Duration) time.Duration {
	if v := config.DurationSafe(c.Sub(subsection), name); v > 0 {
		return v
	}
	return def
}

// MountCheck returns the value of "mount_check" config parameter
// from "storage" section.
//
// Returns MountCheckDefault if the value is missing.
func MountCheck(c *config.Config) bool {
	return boolOr(c, "mount_check", MountCheckDefault)
}

// ReclaimAge returns the value of "reclaim_age" config parameter
// from "storage" section.
//
// Returns ReclaimAgeDefault if the value is not a positive duration.
func ReclaimAge(c *config.Config) time.Duration {
	return durationOr(c, "reclaim_age", ReclaimAgeDefault)
}

// LockTimeout returns the value of "lock_timeout" config parameter
// from "storage" section.
//
// Returns LockTimeoutDefault if the value is not a positive duration.
func LockTimeout(c *config.Config) time.Duration {
	return durationOr(c, "lock_timeout", LockTimeoutDefault)
}

// ReplicationOnePerDevice returns the value of
// "replication_one_per_device" config parameter from "storage" section.
//
// Returns ReplicationOnePerDeviceDefault if the value is missing.
func ReplicationOnePerDevice(c *config.Config) bool {
	return boolOr(c, "replication_one_per_device", ReplicationOnePerDeviceDefault)
}

// ReplicationLockTimeout returns the value of "replication_lock_timeout"
// config parameter from "storage" section.
//
// Returns ReplicationLockTimeoutDefault if the value is not a positive
// duration.
func ReplicationLockTimeout(c *config.Config) time.Duration {
	return durationOr(c, "replication_lock_timeout", ReplicationLockTimeoutDefault)
}

// FallocateReserve returns the value of "fallocate_reserve" config
// parameter from "storage" section in bytes.
func FallocateReserve(c *config.Config) uint64 {
	return config.UintSafe(c.Sub(subsection), "fallocate_reserve")
}

// UseLinkat returns the value of "use_linkat" config parameter
// from "storage" section.
//
// Returns UseLinkatDefault if the value is missing.
func UseLinkat(c *config.Config) bool {
	return boolOr(c, "use_linkat", UseLinkatDefault)
}

// Splice returns the value of "splice" config parameter
// from "storage" section.
func Splice(c *config.Config) bool {
	return config.BoolSafe(c.Sub(subsection), "splice")
}

// HashPathPrefix returns the value of "hash_path_prefix" config parameter
// from "storage" section.
func HashPathPrefix(c *config.Config) string {
	return config.StringSafe(c.Sub(subsection), "hash_path_prefix")
}

// HashPathSuffix returns the value of "hash_path_suffix" config parameter
// from "storage" section.
func HashPathSuffix(c *config.Config) string {
	return config.StringSafe(c.Sub(subsection), "hash_path_suffix")
}

// PoolSize returns the value of "pool_size" config parameter
// from "storage" section.
//
// Returns PoolSizeDefault if the value is not a positive number.
func PoolSize(c *config.Config) int {
	if v := config.IntSafe(c.Sub(subsection), "pool_size"); v > 0 {
		return int(v)
	}
	return PoolSizeDefault
}

// MountCacheTTL returns the value of "mount_cache_ttl" config parameter
// from "storage" section.
//
// Returns MountCacheTTLDefault if the value is not a positive duration.
func MountCacheTTL(c *config.Config) time.Duration {
	return durationOr(c, "mount_cache_ttl", MountCacheTTLDefault)
}
