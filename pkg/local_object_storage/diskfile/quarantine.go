package diskfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	storagelog "github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/internal/log"
	"github.com/nspcc-dev/neofs-diskfile/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const quarantineDirName = "quarantined"

// QuarantineRenamer moves path, a hash directory or a stray file found in
// its place, to <device>/quarantined/<data dir>/ and invalidates the
// owning suffix. A unique suffix is added if the target is taken. Returns
// the new location.
func (m *Manager) QuarantineRenamer(devicePath, path string) (string, error) {
	to := filepath.Join(devicePath, quarantineDirName, m.policy.DataDir(), filepath.Base(path))

	if err := util.MkdirAllX(filepath.Dir(to), dirPerm); err != nil {
		return "", fmt.Errorf("create quarantine directory: %w", err)
	}

	err := os.Rename(path, to)
	if err != nil && targetTaken(err) {
		to += "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		err = os.Rename(path, to)
	}
	if err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}

	if err := m.InvalidateHash(filepath.Dir(path)); err != nil {
		m.log.Warn("can't invalidate suffix of quarantined path",
			zap.String("path", path), zap.Error(err))
	}

	m.metrics.IncQuarantines(m.policy.Index)
	storagelog.Write(m.log,
		storagelog.HashDirField(path),
		storagelog.OpField("QUARANTINE"),
		zap.String("target", to))

	return to, nil
}

func targetTaken(err error) bool {
	return errors.Is(err, unix.EEXIST) || errors.Is(err, unix.ENOTEMPTY) ||
		errors.Is(err, unix.EISDIR) || errors.Is(err, unix.ENOTDIR)
}
