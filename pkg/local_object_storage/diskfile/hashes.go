package diskfile

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/nspcc-dev/neofs-diskfile/pkg/util"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// SuffixHash is the digest of a suffix directory.
type SuffixHash struct {
	// Digest is set for replicated policies.
	Digest string `cbor:"1,keyasint,omitempty" json:"digest,omitempty" yaml:"digest,omitempty"`
	// Fragments is set for erasure coded policies: digests of data per
	// fragment index, NoFragIndex key holds the metadata and durability
	// digest.
	Fragments map[int]string `cbor:"2,keyasint,omitempty" json:"fragments,omitempty" yaml:"fragments,omitempty"`
}

// PartitionHashes maps suffixes to their hashes. Nil value marks a suffix
// pending recalculation.
type PartitionHashes map[string]*SuffixHash

type suffixHasher struct {
	byFrag map[int]hash.Hash
}

func newSuffixHasher() *suffixHasher {
	return &suffixHasher{byFrag: make(map[int]hash.Hash)}
}

func (s *suffixHasher) get(idx int) hash.Hash {
	h, ok := s.byFrag[idx]
	if !ok {
		h = blake3.New()
		s.byFrag[idx] = h
	}
	return h
}

func (s *suffixHasher) sum(ec bool) *SuffixHash {
	if !ec {
		return &SuffixHash{Digest: hex.EncodeToString(s.get(NoFragIndex).Sum(nil))}
	}

	res := &SuffixHash{Fragments: make(map[int]string, len(s.byFrag))}
	for idx, h := range s.byFrag {
		res.Fragments[idx] = hex.EncodeToString(h.Sum(nil))
	}
	return res
}

// HashSuffix cleans up every hash directory of the suffix and computes the
// suffix digest over the remaining files. Empty hash directories are
// removed, a suffix left without them is removed too and fs.ErrNotExist is
// returned. A file found in place of a directory is quarantined.
func (m *Manager) HashSuffix(suffixDir string) (*SuffixHash, error) {
	// <device>/<data dir>/<partition>/<suffix>
	devPath := filepath.Dir(filepath.Dir(filepath.Dir(suffixDir)))

	names, err := readDirNames(suffixDir)
	if err != nil {
		if isNotDir(err) {
			m.quarantineStray(devPath, suffixDir)
			return nil, fs.ErrNotExist
		}
		return nil, err
	}
	slices.Sort(names)

	h := newSuffixHasher()
	for _, name := range names {
		hashDir := filepath.Join(suffixDir, name)

		res, err := m.Cleanup(hashDir, ResolvePrm{})
		if err != nil {
			if errors.Is(err, errNotDir) {
				m.quarantineStray(devPath, hashDir)
			} else {
				m.log.Error("can't clean up hash directory", zap.String("path", hashDir), zap.Error(err))
			}
			continue
		}

		if len(res.Files) == 0 {
			if err := os.Remove(hashDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				m.log.Debug("can't remove empty hash directory", zap.String("path", hashDir), zap.Error(err))
			}
			continue
		}

		present := make(map[string]struct{}, len(res.Files))
		for _, f := range res.Files {
			present[f] = struct{}{}
		}
		m.backend.hashState(h, res.State, func(fi FileInfo) bool {
			_, ok := present[fi.Filename]
			return ok
		})
	}

	if err := os.Remove(suffixDir); err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil, fs.ErrNotExist
	}

	return h.sum(m.isEC()), nil
}

func (m *Manager) quarantineStray(devPath, path string) {
	to, err := m.QuarantineRenamer(devPath, path)
	if err != nil {
		m.log.Error("can't quarantine file found in place of directory", zap.String("path", path), zap.Error(err))
		return
	}
	m.log.Warn("quarantined file found in place of directory",
		zap.String("path", path), zap.String("target", to))
}

// InvalidateHash marks the suffix of suffixDir pending recalculation by
// appending it to the partition invalidation log. Nothing is done if the
// partition has no hashes file yet.
func (m *Manager) InvalidateHash(suffixDir string) error {
	suffix := filepath.Base(suffixDir)
	partDir := filepath.Dir(suffixDir)

	if _, err := os.Stat(filepath.Join(partDir, HashesFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) || isNotDir(err) {
			return nil
		}
		return err
	}

	unlock, err := m.lockPartition(partDir)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(filepath.Join(partDir, HashInvalidationsFile), os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return classifyNoSpace(err)
	}

	_, err = f.WriteString(suffix + "\n")
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return classifyNoSpace(err)
}

// ConsolidateHashes applies the invalidation log to the persisted hashes
// and truncates the log. Result is nil if there are no hashes or they are
// corrupted.
func (m *Manager) ConsolidateHashes(partDir string) (PartitionHashes, error) {
	invPath := filepath.Join(partDir, HashInvalidationsFile)

	if _, err := os.Stat(filepath.Join(partDir, HashesFile)); errors.Is(err, fs.ErrNotExist) {
		// everything is invalid anyway
		if err := truncateIfExists(invPath); err != nil {
			return nil, err
		}
		return nil, nil
	}

	unlock, err := m.lockPartition(partDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	hashes, err := readHashes(partDir)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		hashes = make(PartitionHashes)
	case errors.Is(err, errCorruptHashes):
		m.log.Warn("corrupted partition hashes", zap.String("path", partDir), zap.Error(err))
		hashes = nil
	default:
		return nil, err
	}

	suffixes, err := readInvalidations(invPath)
	if err != nil {
		return nil, err
	}

	if hashes != nil && len(suffixes) > 0 {
		for _, s := range suffixes {
			hashes[s] = nil
		}
		if err := writeHashes(partDir, hashes); err != nil {
			return nil, err
		}
	}

	if err := truncateIfExists(invPath); err != nil {
		return nil, err
	}
	return hashes, nil
}

func readInvalidations(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var res []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			res = append(res, s)
		}
	}
	return res, sc.Err()
}

func truncateIfExists(path string) error {
	err := os.Truncate(path, 0)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// GetHashes returns hashes of all suffixes of the partition. Suffixes from
// recalculate, the ones pending after invalidation and the ones missing in
// the persisted map are rehashed, vanished suffixes are dropped. Persisted
// map is rewritten if changed, concurrent rewrites are detected by
// modification time and cause a retry.
func (m *Manager) GetHashes(device, partition string, recalculate []string) (PartitionHashes, error) {
	devPath, err := m.DevicePath(device)
	if err != nil {
		return nil, err
	}

	partDir := filepath.Join(devPath, m.policy.DataDir(), partition)
	if err := util.MkdirAllX(partDir, dirPerm); err != nil {
		return nil, fmt.Errorf("create partition directory: %w", classifyNoSpace(err))
	}

	return m.getHashes(partDir, recalculate)
}

func (m *Manager) getHashes(partDir string, recalculate []string) (PartitionHashes, error) {
	for {
		hashes, err := m.ConsolidateHashes(partDir)
		if err != nil {
			return nil, err
		}

		// consolidation rewrites the file itself
		mtime, err := hashesModTime(partDir)
		if err != nil {
			return nil, err
		}

		forceRewrite := hashes == nil
		if hashes == nil {
			hashes = make(PartitionHashes)
		}
		modified := forceRewrite

		onDisk := make(map[string]struct{})
		for _, name := range m.ListDir(partDir) {
			if isSuffix(name) {
				onDisk[name] = struct{}{}
				if _, ok := hashes[name]; !ok {
					hashes[name] = nil
				}
			}
		}
		for s := range hashes {
			if _, ok := onDisk[s]; !ok {
				delete(hashes, s)
				modified = true
			}
		}
		for _, s := range recalculate {
			if _, ok := onDisk[s]; ok {
				hashes[s] = nil
			}
		}

		if n := m.rehash(partDir, hashes); n > 0 {
			modified = true
			m.metrics.AddSuffixesHashed(m.policy.Index, n)
		}

		if !modified {
			return hashes, nil
		}

		written, err := m.writeHashesIfUnchanged(partDir, hashes, mtime, forceRewrite)
		if err != nil {
			return nil, err
		}
		if written {
			return hashes, nil
		}

		m.metrics.IncHashesRetries(m.policy.Index)
		m.log.Debug("partition hashes changed concurrently, retrying", zap.String("path", partDir))
	}
}

// rehash computes pending suffix hashes in the worker pool and returns the
// number of processed suffixes.
func (m *Manager) rehash(partDir string, hashes PartitionHashes) int {
	var pending []string
	for s, h := range hashes {
		if h == nil {
			pending = append(pending, s)
		}
	}

	var (
		mtx sync.Mutex
		wg  sync.WaitGroup
	)

	for _, s := range pending {
		job := func() {
			defer wg.Done()

			h, err := m.HashSuffix(filepath.Join(partDir, s))

			mtx.Lock()
			defer mtx.Unlock()

			switch {
			case err == nil:
				hashes[s] = h
			case errors.Is(err, fs.ErrNotExist):
				delete(hashes, s)
			default:
				m.log.Error("error hashing suffix", zap.String("path", filepath.Join(partDir, s)), zap.Error(err))
			}
		}

		wg.Add(1)
		if err := m.pool.Submit(job); err != nil {
			job()
		}
	}
	wg.Wait()

	return len(pending)
}

func (m *Manager) writeHashesIfUnchanged(partDir string, hashes PartitionHashes, mtime int64, force bool) (bool, error) {
	unlock, err := m.lockPartition(partDir)
	if err != nil {
		return false, err
	}
	defer unlock()

	cur, err := hashesModTime(partDir)
	if err != nil {
		return false, err
	}
	if !force && cur != -1 && cur != mtime {
		return false, nil
	}

	return true, writeHashes(partDir, hashes)
}

func isSuffix(name string) bool {
	if len(name) != 3 {
		return false
	}
	_, err := hex.DecodeString("0" + name)
	return err == nil && strings.ToLower(name) == name
}

// YieldSuffixes calls handler for every suffix directory of the partition.
func (m *Manager) YieldSuffixes(device, partition string, handler func(suffixDir, suffix string) error) error {
	devPath, err := m.DevicePath(device)
	if err != nil {
		return err
	}

	partDir := filepath.Join(devPath, m.policy.DataDir(), partition)
	names := m.ListDir(partDir)
	slices.Sort(names)

	for _, name := range names {
		if !isSuffix(name) {
			continue
		}
		if err := handler(filepath.Join(partDir, name), name); err != nil {
			return err
		}
	}
	return nil
}
