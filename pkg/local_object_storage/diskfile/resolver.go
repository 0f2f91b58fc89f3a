package diskfile

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	"go.uber.org/zap"
)

// State is the resolved logical state of a hash directory.
type State struct {
	// Data is the chosen data file.
	Data *FileInfo
	// Meta is the newest metadata overlay newer than Data.
	Meta *FileInfo
	// CType is the .meta file providing the content type, it may differ
	// from Meta.
	CType *FileInfo
	// Tombstone is the winning tombstone, never set together with Data.
	Tombstone *FileInfo

	// DurableFragSet holds fragments of the durable generation. Non-nil
	// only when Data is chosen from a durable generation.
	DurableFragSet []FileInfo
	// ChosenFragSet holds fragments of the generation Data belongs to.
	ChosenFragSet []FileInfo
	// FragSets maps each data generation to its fragments in ascending
	// index order.
	FragSets map[timestamp.Timestamp][]FileInfo

	// Obsolete files must be removed.
	Obsolete []FileInfo
	// PossibleReclaim files are removed once older than reclaim age.
	PossibleReclaim []FileInfo
	// Unexpected holds names which could not be decoded.
	Unexpected []string
}

type fileGroups map[Ext][]FileInfo

func newestFirst(a, b FileInfo) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(b.Filename, a.Filename)
}

// splitNewer splits files into strictly newer than ts and the rest.
func splitNewer(files []FileInfo, ts timestamp.Timestamp) ([]FileInfo, []FileInfo) {
	var newer, rest []FileInfo
	for _, fi := range files {
		if fi.Timestamp.After(ts) {
			newer = append(newer, fi)
		} else {
			rest = append(rest, fi)
		}
	}
	return newer, rest
}

// splitNotOlder splits files into newer or equal to ts and the rest.
func splitNotOlder(files []FileInfo, ts timestamp.Timestamp) ([]FileInfo, []FileInfo) {
	var keep, rest []FileInfo
	for _, fi := range files {
		if !fi.Timestamp.Before(ts) {
			keep = append(keep, fi)
		} else {
			rest = append(rest, fi)
		}
	}
	return keep, rest
}

// Resolve turns a listing of the hash directory into its logical state.
// Nothing is touched on disk. Undecodable names are logged and reported in
// State.Unexpected. An error is returned if the resolved state breaks the
// on-disk contract.
func (m *Manager) Resolve(hashDir string, files []string, prm ResolvePrm) (*State, error) {
	st := m.resolve(hashDir, files, prm)
	if !m.backend.verify(st, prm) {
		return nil, malformed("inconsistent file set in %s", hashDir)
	}
	return st, nil
}

func (m *Manager) resolve(hashDir string, files []string, prm ResolvePrm) *State {
	st := new(State)
	g := make(fileGroups)

	for _, name := range files {
		fi, err := m.backend.ParseFilename(name)
		if err != nil {
			st.Unexpected = append(st.Unexpected, name)
			path := filepath.Join(hashDir, name)
			if rsyncTempFile.MatchString(name) {
				m.log.Debug("rsync temporary file", zap.String("path", path))
			} else {
				m.log.Warn("unexpected file", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		g[fi.Ext] = append(g[fi.Ext], fi)
	}
	for _, list := range g {
		slices.SortFunc(list, newestFirst)
	}

	if tss := g[ExtTombstone]; len(tss) > 0 {
		newest := tss[0].Timestamp
		for ext, list := range g {
			if ext == ExtTombstone {
				continue
			}
			keep, older := splitNewer(list, newest)
			g[ext] = keep
			st.Obsolete = append(st.Obsolete, older...)
		}
		st.Obsolete = append(st.Obsolete, tss[1:]...)
		g[ExtTombstone] = tss[:1]
	}

	if metas := g[ExtMeta]; len(metas) > 0 {
		retain := 1
		if len(metas) > 1 {
			rest := metas[1:]
			slices.SortStableFunc(rest, func(a, b FileInfo) int {
				return b.ctype().Compare(a.ctype())
			})
			if rest[0].ctype().After(metas[0].ctype()) {
				if rest[0].Timestamp == metas[0].Timestamp {
					metas[0], metas[1] = metas[1], metas[0]
				} else {
					retain = 2
				}
			}
		}
		st.Obsolete = append(st.Obsolete, metas[retain:]...)
		g[ExtMeta] = metas[:retain]
	}

	m.backend.processFiles(g, st, prm)

	if st.Data != nil {
		if metas := g[ExtMeta]; len(metas) > 0 {
			meta := metas[0]
			st.Meta = &meta
			ctype := metas[len(metas)-1]
			if ctype.CTypeTimestamp != nil && ctype.CTypeTimestamp.After(st.Data.Timestamp) {
				st.CType = &ctype
			}
		}
	} else if tss := g[ExtTombstone]; len(tss) > 0 {
		ts := tss[0]
		st.Tombstone = &ts
	}

	return st
}
