package diskfile

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/nspcc-dev/neofs-diskfile/pkg/core/storagepolicy"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const mountCacheSize = 1024

// Manager serves objects of a single storage policy on all devices under
// the devices root.
type Manager struct {
	*cfg

	policy  storagepolicy.Policy
	backend Backend

	// set once O_TMPFILE turns out to be unsupported
	noTmpFile atomic.Bool
	noSplice  atomic.Bool

	mounts *expirable.LRU[string, bool]
}

// NewManager creates Manager of the storage policy.
func NewManager(p storagepolicy.Policy, opts ...Option) *Manager {
	c := defaultCfg()
	for i := range opts {
		opts[i](c)
	}
	return newManager(p, c)
}

func newManager(p storagepolicy.Policy, c *cfg) *Manager {
	pc := *c
	pc.log = c.log.With(zap.String("component", "diskfile"), zap.Int("policy", p.Index))

	m := &Manager{
		cfg:     &pc,
		policy:  p,
		backend: NewBackend(p),
	}
	if pc.mountCheck && pc.mountCacheTTL > 0 {
		m.mounts = expirable.NewLRU[string, bool](mountCacheSize, nil, pc.mountCacheTTL)
	}
	return m
}

// Policy returns storage policy of the Manager.
func (m *Manager) Policy() storagepolicy.Policy { return m.policy }

// ParseFilename decodes on-disk file name according to the policy.
func (m *Manager) ParseFilename(name string) (FileInfo, error) {
	return m.backend.ParseFilename(name)
}

// MakeFilename encodes on-disk file name according to the policy.
func (m *Manager) MakeFilename(fi FileInfo) (string, error) {
	return m.backend.MakeFilename(fi)
}

// HashPath returns hash directory name of the object.
func (m *Manager) HashPath(account, container, object string) string {
	sum := md5.Sum([]byte(m.hashPathPrefix + objectName(account, container, object) + m.hashPathSuffix))
	return hex.EncodeToString(sum[:])
}

func objectName(account, container, object string) string {
	return "/" + account + "/" + container + "/" + object
}

// DevicePath returns path to the device directory. With mount check enabled
// the device must be a mount point, otherwise it must be a directory.
func (m *Manager) DevicePath(device string) (string, error) {
	if m.devices == "" {
		return "", fmt.Errorf("%w: devices root is not configured", ErrDeviceUnavailable)
	}
	if device == "" || device != filepath.Base(device) {
		return "", fmt.Errorf("%w: invalid device name %q", ErrDeviceUnavailable, device)
	}

	p := filepath.Join(m.devices, device)
	if m.mountCheck {
		if !m.isMounted(p) {
			return "", fmt.Errorf("%w: %s is not mounted", ErrDeviceUnavailable, p)
		}
		return p, nil
	}

	if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrDeviceUnavailable, p)
	}
	return p, nil
}

func (m *Manager) isMounted(p string) bool {
	if m.mounts != nil {
		if v, ok := m.mounts.Get(p); ok {
			return v
		}
	}
	v, err := isMount(p)
	if err != nil {
		m.log.Debug("mount check failed", zap.String("path", p), zap.Error(err))
	}
	if m.mounts != nil {
		m.mounts.Add(p, v)
	}
	return v
}

// isMount reports whether p is a mount point: it lives on another device
// than its parent or it is the root of its file system.
func isMount(p string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		return false, err
	}
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return false, nil
	}
	if err := unix.Lstat(filepath.Join(p, ".."), &parent); err != nil {
		return false, err
	}
	return st.Dev != parent.Dev || st.Ino == parent.Ino, nil
}

// readDirNames lists directory entry names unsorted.
func readDirNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.Readdirnames(-1)
}

// ListDir lists directory entry names. Missing directory is silently
// treated as empty, other errors are logged and treated as empty too.
func (m *Manager) ListDir(dir string) []string {
	names, err := readDirNames(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.log.Error("skipping directory due to listdir error",
				zap.String("path", dir), zap.Error(err))
		}
		return nil
	}
	return names
}

// removeFile removes a file ignoring errors other than logging them.
func (m *Manager) removeFile(path string) bool {
	err := os.Remove(path)
	if err == nil {
		return true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		m.log.Warn("can't remove file", zap.String("path", path), zap.Error(err))
	}
	return false
}

func isNotDir(err error) bool {
	return errors.Is(err, unix.ENOTDIR)
}

func (m *Manager) isEC() bool {
	return m.policy.Type == storagepolicy.TypeErasureCoding
}
