package diskfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/storagepolicy"
	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

const testDevice = "sda"

var (
	testReplicated = storagepolicy.Policy{Index: 0, Name: "gold", Default: true}
	testEC         = storagepolicy.Policy{
		Index:               1,
		Name:                "ec42",
		Type:                storagepolicy.TypeErasureCoding,
		ECDataFrags:         4,
		ECParityFrags:       2,
		FragmentArchiveSize: 4096,
	}
)

// testNow is far enough from the epoch for reclaim age arithmetic.
var testNow = time.Unix(1_700_000_000, 0)

func ts(sec int64) timestamp.Timestamp { return timestamp.FromSeconds(sec) }

func tsName(sec int64, ext Ext) string { return ts(sec).Internal() + string(ext) }

func fragName(sec int64, idx int) string {
	return ts(sec).Internal() + "#" + strconv.Itoa(idx) + string(ExtData)
}

type testEnv struct {
	root    string
	devPath string
	m       *Manager
}

func newTestEnv(t testing.TB, p storagepolicy.Policy, opts ...Option) *testEnv {
	root := t.TempDir()
	devPath := filepath.Join(root, testDevice)
	require.NoError(t, os.Mkdir(devPath, dirPerm))

	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithDevices(root),
		WithMountCheck(false),
		WithClock(func() time.Time { return testNow }),
	}, opts...)

	return &testEnv{
		root:    root,
		devPath: devPath,
		m:       NewManager(p, opts...),
	}
}

func (e *testEnv) partDir(partition string) string {
	return filepath.Join(e.devPath, e.m.policy.DataDir(), partition)
}

func (e *testEnv) hashDir(partition, hash string) string {
	return filepath.Join(e.partDir(partition), hash[len(hash)-3:], hash)
}

// touch creates empty files in dir.
func touch(t testing.TB, dir string, names ...string) {
	require.NoError(t, os.MkdirAll(dir, dirPerm))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, filePerm))
	}
}

func listNames(t testing.TB, dir string) []string {
	names, err := listDirOrEmpty(dir)
	require.NoError(t, err)
	return names
}

// requireXattrs skips the test if the file system of dir has no user
// extended attributes.
func requireXattrs(t testing.TB, dir string) {
	f, err := os.CreateTemp(dir, "xattr")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	defer f.Close()

	err = unix.Fsetxattr(int(f.Fd()), "user.test", []byte("1"), 0)
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EPERM) {
		t.Skipf("user extended attributes are not supported in %s: %v", dir, err)
	}
	require.NoError(t, err)
}
