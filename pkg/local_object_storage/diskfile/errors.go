package diskfile

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	"github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/util/logicerr"
	"golang.org/x/sys/unix"
)

var (
	// ErrNotExist is returned when there is no resolvable object state.
	// DeletedError matches it too.
	ErrNotExist = errors.New("object does not exist")

	// ErrCollision is returned when the object hash directory holds an
	// object with a different name.
	ErrCollision = errors.New("object name collision")

	// ErrDeviceUnavailable is returned when the device is not mounted or
	// its directory is missing.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrNoSpace is returned when space or quota of the device is
	// exhausted.
	ErrNoSpace = errors.New("no space left on device")

	// ErrNotOpen is returned when DiskFile state is accessed before Open.
	ErrNotOpen = errors.New("disk file is not open")

	// ErrDiskFile is a generic disk file error: malformed file names,
	// invalid fragment indexes or preferences, failed commits.
	ErrDiskFile = errors.New("disk file error")

	// ErrLockTimeout is returned when a partition lock is not acquired in
	// time.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrReplicationLockTimeout is returned when replication admission lock
	// of a device is not acquired in time.
	ErrReplicationLockTimeout = errors.New("replication lock timeout")

	// ErrInvalidFragment must be returned (possibly wrapped) by
	// FragmentValidator for corrupted fragments.
	ErrInvalidFragment = errors.New("invalid fragment")
)

// DeletedError is returned when a tombstone is the authoritative state of
// the object.
type DeletedError struct {
	Timestamp timestamp.Timestamp
	Metadata  map[string]string
}

func (e *DeletedError) Error() string {
	return "object deleted at " + e.Timestamp.Internal()
}

// Unwrap makes DeletedError match ErrNotExist.
func (e *DeletedError) Unwrap() error { return ErrNotExist }

// QuarantinedError is returned when the object was moved to quarantine.
type QuarantinedError struct {
	Reason string
}

func (e *QuarantinedError) Error() string {
	return "object quarantined: " + e.Reason
}

// IsErrNotExist checks if err means the object cannot be opened: it is
// either missing or deleted.
func IsErrNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsErrDeleted checks if err is caused by a tombstone.
func IsErrDeleted(err error) bool {
	var e *DeletedError
	return errors.As(err, &e)
}

// IsErrQuarantined checks if err is caused by object quarantine.
func IsErrQuarantined(err error) bool {
	var e *QuarantinedError
	return errors.As(err, &e)
}

// malformed returns a logical ErrDiskFile based error.
func malformed(format string, args ...any) error {
	return logicerr.Wrap(fmt.Errorf("%w: "+format, append([]any{ErrDiskFile}, args...)...))
}

func isNoSpace(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}

// classifyNoSpace turns out-of-space OS errors into ErrNoSpace keeping
// the cause, other errors are returned unchanged.
func classifyNoSpace(err error) error {
	if err != nil && isNoSpace(err) {
		return fmt.Errorf("%w: %w", ErrNoSpace, err)
	}
	return err
}
