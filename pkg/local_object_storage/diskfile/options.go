package diskfile

import (
	"time"

	"github.com/nspcc-dev/neofs-diskfile/pkg/util"
	"go.uber.org/zap"
)

// Defaults of Manager options.
const (
	DefaultReclaimAge             = 7 * 24 * time.Hour
	DefaultLockTimeout            = 10 * time.Second
	DefaultReplicationLockTimeout = 15 * time.Second
	DefaultDiskChunkSize          = 64 * 1024
	DefaultMountCacheTTL          = 30 * time.Second
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

type cfg struct {
	log *zap.Logger

	devices    string
	mountCheck bool

	reclaimAge  time.Duration
	lockTimeout time.Duration

	replicationOnePerDevice bool
	replicationLockTimeout  time.Duration

	fallocateReserve uint64
	useLinkat        bool
	splice           bool
	diskChunkSize    int
	mountCacheTTL    time.Duration

	hashPathPrefix string
	hashPathSuffix string

	metrics   MetricRegister
	pool      util.WorkerPool
	clock     func() time.Time
	validator FragmentValidator
}

// Option is an option of Manager and Router constructors.
type Option func(*cfg)

func defaultCfg() *cfg {
	return &cfg{
		log:                     zap.NewNop(),
		mountCheck:              true,
		reclaimAge:              DefaultReclaimAge,
		lockTimeout:             DefaultLockTimeout,
		replicationOnePerDevice: true,
		replicationLockTimeout:  DefaultReplicationLockTimeout,
		useLinkat:               true,
		diskChunkSize:           DefaultDiskChunkSize,
		mountCacheTTL:           DefaultMountCacheTTL,
		metrics:                 noopMetrics{},
		pool:                    util.NewPseudoWorkerPool(),
		clock:                   time.Now,
	}
}

// WithLogger returns option to set logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *cfg) {
		c.log = l
	}
}

// WithDevices returns option to set the root directory holding device
// mount points.
func WithDevices(path string) Option {
	return func(c *cfg) {
		c.devices = path
	}
}

// WithMountCheck returns option to require devices to be mount points.
func WithMountCheck(v bool) Option {
	return func(c *cfg) {
		c.mountCheck = v
	}
}

// WithReclaimAge returns option to set minimal age of tombstones and
// orphaned files before they are removed.
func WithReclaimAge(d time.Duration) Option {
	return func(c *cfg) {
		c.reclaimAge = d
	}
}

// WithLockTimeout returns option to set partition lock timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(c *cfg) {
		c.lockTimeout = d
	}
}

// WithReplicationLock returns option to limit replication jobs to one per
// device with the given admission timeout.
func WithReplicationLock(onePerDevice bool, timeout time.Duration) Option {
	return func(c *cfg) {
		c.replicationOnePerDevice = onePerDevice
		c.replicationLockTimeout = timeout
	}
}

// WithFallocateReserve returns option to keep at least the given number of
// bytes free on a device after preallocation.
func WithFallocateReserve(v uint64) Option {
	return func(c *cfg) {
		c.fallocateReserve = v
	}
}

// WithLinkat returns option to use anonymous temporary files published
// with linkat where supported.
func WithLinkat(v bool) Option {
	return func(c *cfg) {
		c.useLinkat = v
	}
}

// WithSplice returns option to enable zero-copy transfer to sockets.
func WithSplice(v bool) Option {
	return func(c *cfg) {
		c.splice = v
	}
}

// WithDiskChunkSize returns option to set read buffer size.
func WithDiskChunkSize(v int) Option {
	return func(c *cfg) {
		if v > 0 {
			c.diskChunkSize = v
		}
	}
}

// WithMountCacheTTL returns option to set how long mount check results
// are cached. Zero disables caching.
func WithMountCacheTTL(d time.Duration) Option {
	return func(c *cfg) {
		c.mountCacheTTL = d
	}
}

// WithHashPathAffixes returns option to set secret prefix and suffix mixed
// into object name hashes.
func WithHashPathAffixes(prefix, suffix string) Option {
	return func(c *cfg) {
		c.hashPathPrefix = prefix
		c.hashPathSuffix = suffix
	}
}

// WithMetrics returns option to set metrics register.
func WithMetrics(m MetricRegister) Option {
	return func(c *cfg) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithWorkerPool returns option to set pool used to rehash suffixes in
// parallel.
func WithWorkerPool(p util.WorkerPool) Option {
	return func(c *cfg) {
		if p != nil {
			c.pool = p
		}
	}
}

// WithClock returns option to set time source.
func WithClock(f func() time.Time) Option {
	return func(c *cfg) {
		c.clock = f
	}
}

// WithFragmentValidator returns option to set erasure coding fragment
// validator used by readers.
func WithFragmentValidator(v FragmentValidator) Option {
	return func(c *cfg) {
		c.validator = v
	}
}
