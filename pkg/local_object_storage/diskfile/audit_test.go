package diskfile

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/storagepolicy"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testPolicies(t testing.TB) *storagepolicy.Collection {
	c, err := storagepolicy.NewCollection(testReplicated, testEC)
	require.NoError(t, err)
	return c
}

// auditLayout creates hash directories on two devices and returns devices
// root with hash directory paths in walk order.
func auditLayout(t *testing.T) (string, []string) {
	root := t.TempDir()

	var res []string
	for _, p := range []string{
		"sda/objects/0/abc/00000000000000000000000000000abc",
		"sda/objects/0/abc/11111111111111111111111111111abc",
		"sda/objects/1/def/00000000000000000000000000000def",
		"sda/objects-1/5/123/00000000000000000000000000000123",
		"sdb/objects/3/456/00000000000000000000000000000456",
	} {
		dir := filepath.Join(root, p)
		touch(t, dir, tsName(7, ExtData))
		res = append(res, dir)
	}

	// unknown policy
	touch(t, filepath.Join(root, "sda", "objects-2", "0", "fff", "0000000000000000000000000000ffff"))
	// not a data directory
	touch(t, filepath.Join(root, "sda", "async_pending", "abc"))
	// not a device
	require.NoError(t, os.WriteFile(filepath.Join(root, "sdz"), nil, filePerm))

	return root, res
}

func walk(t *testing.T, c *AuditCursor, n int) []AuditLocation {
	var res []AuditLocation
	for n < 0 || len(res) < n {
		loc, err := c.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		res = append(res, loc)
	}
	return res
}

func locPaths(locs []AuditLocation) []string {
	res := make([]string, len(locs))
	for i := range locs {
		res[i] = locs[i].Path
	}
	return res
}

func TestAuditCursor(t *testing.T) {
	root, paths := auditLayout(t)

	now := testNow
	// cursors hold the status store lock of the current device, so every
	// cursor is closed before the next one is opened
	newCursor := func(t *testing.T, auditorType string, devices ...string) *AuditCursor {
		c, err := NewAuditCursor(AuditPrm{
			Devices:     root,
			Policies:    testPolicies(t),
			AuditorType: auditorType,
			DeviceDirs:  devices,
			Logger:      zaptest.NewLogger(t),
			Clock:       func() time.Time { return now },
		})
		require.NoError(t, err)
		return c
	}
	walkAll := func(t *testing.T, auditorType string, devices ...string) []string {
		c := newCursor(t, auditorType, devices...)
		defer c.Close()
		return locPaths(walk(t, c, -1))
	}
	first := func(t *testing.T, auditorType string) string {
		c := newCursor(t, auditorType)
		defer c.Close()
		return walk(t, c, 1)[0].Path
	}

	t.Run("no policies", func(t *testing.T) {
		_, err := NewAuditCursor(AuditPrm{Devices: root})
		require.ErrorIs(t, err, storagepolicy.ErrNoPolicies)
	})

	t.Run("full walk", func(t *testing.T) {
		c := newCursor(t, "full")
		locs := walk(t, c, -1)
		require.NoError(t, c.Close())
		require.Equal(t, paths, locPaths(locs))

		require.Equal(t, "sda", locs[0].Device)
		require.Equal(t, "0", locs[0].Partition)
		require.Equal(t, 0, locs[0].Policy.Index)
		require.Equal(t, "5", locs[3].Partition)
		require.Equal(t, 1, locs[3].Policy.Index)
		require.Equal(t, "sdb", locs[4].Device)

		// final checkpoint is empty, next walk starts over
		require.Equal(t, paths, walkAll(t, "full"))
	})

	t.Run("device filter", func(t *testing.T) {
		require.Equal(t, paths[4:], walkAll(t, "filter", "sdb", "sdx"))
	})

	t.Run("resume", func(t *testing.T) {
		now = testNow
		c := newCursor(t, "resume")
		require.Equal(t, paths[:1], locPaths(walk(t, c, 1)))

		// checkpoint of partition 1 is throttled
		require.Equal(t, paths[1:3], locPaths(walk(t, c, 2)))
		require.NoError(t, c.Close())
		require.Equal(t, paths[0], first(t, "resume"))

		now = testNow.Add(2 * auditStatusInterval)
		c = newCursor(t, "resume")
		require.Equal(t, paths[:2], locPaths(walk(t, c, 2)))
		now = testNow.Add(4 * auditStatusInterval)
		require.Equal(t, paths[2:3], locPaths(walk(t, c, 1)))
		require.NoError(t, c.Close())

		// other auditor types keep their own progress
		require.Equal(t, paths[0], first(t, "other"))

		require.Equal(t, paths[2:], walkAll(t, "resume"))
		require.Equal(t, paths, walkAll(t, "resume"))
	})

	t.Run("clear", func(t *testing.T) {
		now = testNow
		c := newCursor(t, "")
		walk(t, c, 1)
		now = testNow.Add(2 * auditStatusInterval)
		walk(t, c, 2)
		require.NoError(t, c.Close())

		require.Equal(t, paths[2], first(t, DefaultAuditorType))

		require.NoError(t, ClearAuditorStatus(root, ""))
		require.Equal(t, paths[0], first(t, ""))
	})
}

func TestAuditCursorInvalidPolicy(t *testing.T) {
	root, _ := auditLayout(t)

	core, logs := observer.New(zap.DebugLevel)
	c, err := NewAuditCursor(AuditPrm{
		Devices:  root,
		Policies: testPolicies(t),
		Logger:   zap.New(core),
	})
	require.NoError(t, err)
	defer c.Close()

	walk(t, c, -1)

	entries := logs.FilterMessage("directory does not map to a valid policy").All()
	require.Len(t, entries, 1)
	require.Equal(t, "objects-2", entries[0].ContextMap()["dir"])
	require.Equal(t, 1, logs.FilterMessage("skipping device: not a directory").Len())
}

func TestAuditCursorMountCheck(t *testing.T) {
	root, _ := auditLayout(t)

	c, err := NewAuditCursor(AuditPrm{
		Devices:    root,
		MountCheck: true,
		Policies:   testPolicies(t),
	})
	require.NoError(t, err)
	defer c.Close()

	// temporary directories are not mount points
	_, err = c.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestRouterAudit(t *testing.T) {
	e := newTestEnv(t, testReplicated)
	requireXattrs(t, e.devPath)

	data := []byte("audited")
	df := openObject(t, e, ResolvePrm{})
	putObject(t, df, data, map[string]string{MetaTimestamp: recentTS(0).Internal()})

	r := NewRouter(testPolicies(t),
		WithLogger(zaptest.NewLogger(t)),
		WithDevices(e.root),
		WithMountCheck(false),
		WithClock(func() time.Time { return testNow }))

	c, err := r.AuditCursor("router")
	require.NoError(t, err)
	defer c.Close()

	locs := walk(t, c, -1)
	require.Len(t, locs, 1)
	require.Equal(t, df.HashDir(), locs[0].Path)

	audited, err := r.DiskFileFromAuditLocation(locs[0], ResolvePrm{})
	require.NoError(t, err)
	require.NoError(t, audited.Open())
	defer audited.Close()

	require.Equal(t, "/a/c/o", audited.Name())
	got, err := readAll(t, audited)
	require.NoError(t, err)
	require.Equal(t, data, got)

	_, err = r.DiskFileFromAuditLocation(AuditLocation{Policy: storagepolicy.Policy{Index: 9}}, ResolvePrm{})
	require.ErrorIs(t, err, ErrDiskFile)
	require.ErrorAs(t, err, new(storagepolicy.UnknownPolicyError))
}
