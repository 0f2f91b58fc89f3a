package diskfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	lockFileName            = ".lock"
	replicationLockFileName = ".lock-replication"

	maxLockRetryDelay = 100 * time.Millisecond
)

// lockPath takes an exclusive advisory lock on a file in dir. It gives up
// with timeoutErr after timeout or on context cancellation.
func lockPath(ctx context.Context, dir, name string, timeout time.Duration, timeoutErr error) (func(), error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE, filePerm)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", classifyNoSpace(err))
	}
	fd := int(f.Fd())

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	delay := time.Millisecond
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return func() {
				_ = unix.Flock(fd, unix.LOCK_UN)
				_ = f.Close()
			}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("lock %s: %w", dir, err)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		case <-timer.C:
			_ = f.Close()
			return nil, fmt.Errorf("%w: %s", timeoutErr, dir)
		case <-time.After(delay):
		}
		delay = min(2*delay, maxLockRetryDelay)
	}
}

// lockPartition serializes read-modify-write of partition hashes.
func (m *Manager) lockPartition(partDir string) (func(), error) {
	unlock, err := lockPath(context.Background(), partDir, lockFileName, m.lockTimeout, ErrLockTimeout)
	if errors.Is(err, ErrLockTimeout) {
		m.metrics.IncLockTimeouts(m.policy.Index)
	}
	return unlock, err
}

// ReplicationLock admits a replication job on the device. With one job per
// device allowed it waits for the device lock up to the configured timeout
// and fails with ErrReplicationLockTimeout, otherwise it returns at once.
// The returned function releases the lock.
func (m *Manager) ReplicationLock(ctx context.Context, device string) (func(), error) {
	if !m.replicationOnePerDevice {
		return func() {}, nil
	}

	devPath, err := m.DevicePath(device)
	if err != nil {
		return nil, err
	}

	unlock, err := lockPath(ctx, devPath, replicationLockFileName, m.replicationLockTimeout, ErrReplicationLockTimeout)
	if errors.Is(err, ErrReplicationLockTimeout) {
		m.metrics.IncLockTimeouts(m.policy.Index)
	}
	return unlock, err
}
