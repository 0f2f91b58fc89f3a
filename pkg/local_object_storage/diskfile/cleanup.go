package diskfile

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sort"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
)

// errNotDir is returned when a file is found where a directory is
// expected.
var errNotDir = errors.New("not a directory")

// CleanupResult is the outcome of a hash directory cleanup.
type CleanupResult struct {
	// State after cleanup. Reclaimed tombstone is not reported.
	State *State
	// Files remaining in the directory, newest first.
	Files []string
	// Removed files.
	Removed []string
}

// Cleanup resolves the hash directory state and removes obsolete files,
// as well as tombstones and orphaned files older than the reclaim age.
// A .meta file without data goes away together with a reclaimed tombstone.
// Removal failures are logged and ignored. Missing directory is an empty
// one.
func (m *Manager) Cleanup(hashDir string, prm ResolvePrm) (*CleanupResult, error) {
	files, err := readDirNames(hashDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &CleanupResult{State: m.resolve(hashDir, nil, prm)}, nil
		}
		if isNotDir(err) {
			return nil, fmt.Errorf("%w: %s", errNotDir, hashDir)
		}
		return nil, fmt.Errorf("list %s: %w", hashDir, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	st := m.resolve(hashDir, files, prm)
	res := &CleanupResult{State: st}

	now := m.clock()
	reclaimable := func(ts timestamp.Timestamp) bool {
		return now.Sub(ts.Time()) > m.reclaimAge
	}
	remove := func(fi FileInfo) {
		if m.removeFile(filepath.Join(hashDir, fi.Filename)) {
			res.Removed = append(res.Removed, fi.Filename)
		}
		files = slices.DeleteFunc(files, func(name string) bool { return name == fi.Filename })
	}

	tombstoneReclaimed := false
	if st.Tombstone != nil && reclaimable(st.Tombstone.Timestamp) {
		remove(*st.Tombstone)
		st.Tombstone = nil
		tombstoneReclaimed = true
	}

	for _, fi := range st.PossibleReclaim {
		if reclaimable(fi.Timestamp) || (tombstoneReclaimed && fi.Ext == ExtMeta) {
			st.Obsolete = append(st.Obsolete, fi)
		}
	}
	for _, fi := range st.Obsolete {
		remove(fi)
	}

	if len(res.Removed) > 0 {
		m.metrics.AddReclaimed(m.policy.Index, len(res.Removed))
	}

	res.Files = files
	return res, nil
}
