package diskfile

import (
	"errors"
	"path/filepath"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	"go.uber.org/zap"
)

// HashTimestamps holds timestamps of the resolved object state.
type HashTimestamps struct {
	// Data is the timestamp of data or tombstone.
	Data  timestamp.Timestamp
	Meta  *timestamp.Timestamp
	CType *timestamp.Timestamp
	// Durable is false for erasure coded data without durable generation.
	Durable bool
}

// HashEntry is a hash directory with the timestamps of its state.
type HashEntry struct {
	Path       string
	Hash       string
	Timestamps HashTimestamps
}

// YieldHashes resolves every hash directory of the partition suffixes,
// all of them if suffixes is empty, and passes the ones with data or
// tombstone to handler. Handler errors abort the walk.
func (m *Manager) YieldHashes(device, partition string, suffixes []string, prm ResolvePrm, handler func(HashEntry) error) error {
	devPath, err := m.DevicePath(device)
	if err != nil {
		return err
	}
	partDir := filepath.Join(devPath, m.policy.DataDir(), partition)

	if len(suffixes) == 0 {
		if suffixes, err = listDirOrEmpty(partDir); err != nil {
			return err
		}
	}

	for _, suffix := range suffixes {
		if !isSuffix(suffix) {
			continue
		}
		suffixDir := filepath.Join(partDir, suffix)
		hashes, err := listDirOrEmpty(suffixDir)
		if err != nil {
			return err
		}

		for _, hash := range hashes {
			hashDir := filepath.Join(suffixDir, hash)
			res, err := m.Cleanup(hashDir, prm)
			if err != nil {
				if errors.Is(err, errNotDir) {
					m.quarantineStray(devPath, hashDir)
				} else {
					m.log.Error("can't clean up hash directory", zap.String("path", hashDir), zap.Error(err))
				}
				continue
			}

			e, ok := hashEntry(hashDir, res.State)
			if !ok {
				continue
			}
			if err := handler(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func hashEntry(hashDir string, st *State) (HashEntry, bool) {
	e := HashEntry{Path: hashDir, Hash: filepath.Base(hashDir)}
	switch {
	case st.Data != nil:
		e.Timestamps.Data = st.Data.Timestamp
		e.Timestamps.Durable = st.DurableFragSet != nil || st.FragSets == nil
	case st.Tombstone != nil:
		e.Timestamps.Data = st.Tombstone.Timestamp
		e.Timestamps.Durable = true
	default:
		return e, false
	}

	if st.Meta != nil {
		ts := st.Meta.Timestamp
		e.Timestamps.Meta = &ts
	}
	if st.CType != nil {
		ts := st.CType.CTypeTimestamp
		e.Timestamps.CType = ts
	}
	return e, true
}
