package diskfile

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"maps"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	storagelog "github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/internal/log"
	"github.com/nspcc-dev/neofs-diskfile/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Writer accumulates a new object file and publishes it atomically with
// Put. Nothing is visible in the hash directory before Put succeeds.
type Writer struct {
	d   *DiskFile
	ext Ext

	f *os.File
	// tmpPath is set for named temporary files, O_TMPFILE files have no
	// name until published.
	tmpPath string

	size        int64
	etag        hash.Hash
	published   string
	publishedTS timestamp.Timestamp
}

// Create starts writing new object data of the expected size. Non-positive
// size means unknown and skips preallocation.
func (d *DiskFile) Create(size int64) (*Writer, error) {
	return d.create(size, ExtData)
}

func (d *DiskFile) create(size int64, ext Ext) (*Writer, error) {
	if d.name == "" {
		return nil, malformed("can't write object with unknown name in %s", d.hashDir)
	}

	if err := util.MkdirAllX(d.hashDir, dirPerm); err != nil {
		return nil, fmt.Errorf("create hash directory: %w", classifyNoSpace(err))
	}

	f, tmpPath, err := d.m.openTemp(d.devPath, d.hashDir)
	if err != nil {
		return nil, err
	}

	w := &Writer{d: d, ext: ext, f: f, tmpPath: tmpPath}
	if ext == ExtData {
		w.etag = md5.New()
	}

	if err := d.m.preallocate(f, size); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// openTmpFile opens an unnamed file in dir.
var openTmpFile = func(dir string) (int, error) {
	return unix.Open(dir, unix.O_TMPFILE|unix.O_WRONLY|unix.O_CLOEXEC, filePerm)
}

// openTemp opens the file for new data. Once O_TMPFILE is found
// unsupported, the manager sticks to named temporary files.
func (m *Manager) openTemp(devPath, hashDir string) (*os.File, string, error) {
	if m.useLinkat && !m.noTmpFile.Load() {
		fd, err := openTmpFile(hashDir)
		if err == nil {
			return os.NewFile(uintptr(fd), hashDir), "", nil
		}
		if isNoSpace(err) {
			return nil, "", fmt.Errorf("%w: %w", ErrNoSpace, err)
		}
		if !errors.Is(err, unix.EOPNOTSUPP) && !errors.Is(err, unix.EISDIR) && !errors.Is(err, unix.EINVAL) {
			return nil, "", fmt.Errorf("open temporary file in %s: %w", hashDir, err)
		}
		if m.noTmpFile.CompareAndSwap(false, true) {
			m.log.Warn("O_TMPFILE is not supported, falling back to named temporary files",
				zap.String("path", hashDir), zap.Error(err))
		}
	}

	tmpDir := filepath.Join(devPath, m.policy.TmpDir())
	if err := util.MkdirAllX(tmpDir, dirPerm); err != nil {
		return nil, "", fmt.Errorf("create temporary directory: %w", classifyNoSpace(err))
	}
	f, err := os.CreateTemp(tmpDir, ".tmp")
	if err != nil {
		return nil, "", fmt.Errorf("create temporary file: %w", classifyNoSpace(err))
	}
	return f, f.Name(), nil
}

// preallocate reserves size bytes for the file, keeping the configured
// reserve of free space on the device.
func (m *Manager) preallocate(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}

	fd := int(f.Fd())
	if m.fallocateReserve > 0 {
		var st unix.Statfs_t
		if err := unix.Fstatfs(fd, &st); err == nil {
			free := st.Bavail * uint64(st.Bsize)
			if free < uint64(size) || free-uint64(size) < m.fallocateReserve {
				return fmt.Errorf("%w: free space %d is below reserve %d after allocating %d bytes",
					ErrNoSpace, free, m.fallocateReserve, size)
			}
		}
	}

	err := unix.Fallocate(fd, 0, 0, size)
	switch {
	case err == nil, errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.ENOSYS):
		return nil
	case isNoSpace(err):
		return fmt.Errorf("%w: preallocate %d bytes: %w", ErrNoSpace, size, err)
	default:
		return fmt.Errorf("preallocate %d bytes: %w", size, err)
	}
}

// Write appends object data.
func (w *Writer) Write(p []byte) (int, error) {
	if w.f == nil {
		return 0, ErrNotOpen
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	if w.etag != nil {
		w.etag.Write(p[:n])
	}
	return n, classifyNoSpace(err)
}

// Size returns number of bytes written.
func (w *Writer) Size() int64 { return w.size }

// Put stores metadata and publishes the file in the hash directory under
// the name derived from X-Timestamp. Object name is always set,
// Content-Length and ETag of data files default to the written data.
func (w *Writer) Put(md map[string]string) error {
	if w.f == nil || w.published != "" {
		return ErrNotOpen
	}

	m := w.d.m
	md = maps.Clone(md)
	md[MetaName] = w.d.name

	fi, err := w.fileInfo(md)
	if err != nil {
		return err
	}
	if w.ext == ExtData {
		if _, ok := md[MetaContentLength]; !ok {
			md[MetaContentLength] = strconv.FormatInt(w.size, 10)
		}
		if _, ok := md[MetaETag]; !ok {
			md[MetaETag] = hex.EncodeToString(w.etag.Sum(nil))
		}
	}

	name, err := m.backend.MakeFilename(fi)
	if err != nil {
		return err
	}

	fd := int(w.f.Fd())
	if err := writeMetadata(fd, md); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, classifyNoSpace(err))
	}
	_ = unix.Fadvise(fd, 0, 0, unix.FADV_DONTNEED)

	suffixDir := filepath.Dir(w.d.hashDir)
	if err := m.InvalidateHash(suffixDir); err != nil {
		return fmt.Errorf("invalidate suffix: %w", err)
	}

	target := filepath.Join(w.d.hashDir, name)
	if err := w.publish(target); err != nil {
		return classifyNoSpace(err)
	}
	w.published = name
	w.publishedTS = fi.Timestamp

	if err := fsyncDir(w.d.hashDir); err != nil {
		return fmt.Errorf("sync %s: %w", w.d.hashDir, err)
	}

	storagelog.Write(m.log,
		storagelog.HashDirField(w.d.hashDir),
		storagelog.OpField("PUT"),
		storagelog.FileField(name))

	if !m.isEC() || w.ext != ExtData {
		if _, err := m.Cleanup(w.d.hashDir, w.d.prm); err != nil {
			m.log.Error("can't clean up hash directory after put",
				zap.String("path", w.d.hashDir), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) fileInfo(md map[string]string) (FileInfo, error) {
	ts, err := timestamp.Parse(md[MetaTimestamp])
	if err != nil {
		return FileInfo{}, malformed("invalid %s metadata %q", MetaTimestamp, md[MetaTimestamp])
	}

	fi := FileInfo{Timestamp: ts, Ext: w.ext, FragIndex: NoFragIndex}
	switch w.ext {
	case ExtMeta:
		if v, ok := md[MetaContentTypeTimestamp]; ok {
			ct, err := timestamp.Parse(v)
			if err != nil {
				return FileInfo{}, malformed("invalid %s metadata %q", MetaContentTypeTimestamp, v)
			}
			fi.CTypeTimestamp = &ct
		}
	case ExtData:
		if !w.d.m.isEC() {
			break
		}
		if v, ok := md[MetaFragIndex]; ok {
			if fi.FragIndex, err = ParseFragIndex(v); err != nil {
				return FileInfo{}, err
			}
		} else if idx, ok := w.d.prm.FragIndex(); ok {
			fi.FragIndex = idx
		} else {
			return FileInfo{}, malformed("fragment index is required for erasure coded data")
		}
		md[MetaFragIndex] = strconv.Itoa(fi.FragIndex)
	}
	return fi, nil
}

func (w *Writer) publish(target string) error {
	if w.tmpPath != "" {
		if err := os.Rename(w.tmpPath, target); err != nil {
			return fmt.Errorf("rename %s to %s: %w", w.tmpPath, target, err)
		}
		w.tmpPath = ""
		return nil
	}

	src := "/proc/self/fd/" + strconv.Itoa(int(w.f.Fd()))
	err := unix.Linkat(unix.AT_FDCWD, src, unix.AT_FDCWD, target, unix.AT_SYMLINK_FOLLOW)
	if errors.Is(err, unix.EEXIST) {
		// same timestamp written again
		if err = os.Remove(target); err == nil || errors.Is(err, os.ErrNotExist) {
			err = unix.Linkat(unix.AT_FDCWD, src, unix.AT_FDCWD, target, unix.AT_SYMLINK_FOLLOW)
		}
	}
	if err != nil {
		return fmt.Errorf("link %s: %w", target, err)
	}
	return nil
}

// Commit makes the data published by Put durable. Erasure coded data
// becomes durable with a .durable marker of the ts generation. ts must be
// the timestamp of the published file, Commit before Put fails with
// ErrNotOpen.
func (w *Writer) Commit(ts timestamp.Timestamp) error {
	if w.published == "" {
		return ErrNotOpen
	}
	if ts != w.publishedTS {
		return malformed("commit timestamp %s does not match published file %s", ts.Internal(), w.published)
	}

	m := w.d.m
	if !m.isEC() {
		if err := fsyncDir(w.d.hashDir); err != nil {
			return fmt.Errorf("%w: problem making data file durable %s: %w", ErrDiskFile, w.d.hashDir, err)
		}
		return nil
	}

	name, err := m.backend.MakeFilename(FileInfo{Timestamp: ts, Ext: ExtDurable})
	if err != nil {
		return err
	}
	path := filepath.Join(w.d.hashDir, name)

	if err := touchSync(path); err != nil {
		if isNoSpace(err) {
			return fmt.Errorf("%w: %w", ErrNoSpace, err)
		}
		return fmt.Errorf("%w: problem making data file durable %s: %w", ErrDiskFile, path, err)
	}
	if err := fsyncDir(w.d.hashDir); err != nil {
		return fmt.Errorf("%w: problem making data file durable %s: %w", ErrDiskFile, path, err)
	}

	storagelog.Write(m.log,
		storagelog.HashDirField(w.d.hashDir),
		storagelog.OpField("COMMIT"),
		storagelog.FileField(name))

	if err := m.InvalidateHash(filepath.Dir(w.d.hashDir)); err != nil {
		m.log.Warn("can't invalidate suffix after commit",
			zap.String("path", w.d.hashDir), zap.Error(err))
	}
	if _, err := m.Cleanup(w.d.hashDir, w.d.prm); err != nil {
		m.log.Error("can't clean up hash directory after commit",
			zap.String("path", w.d.hashDir), zap.Error(err))
	}
	return nil
}

// Close releases the writer. An unpublished file is discarded. Failures
// are logged only.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}

	if err := w.f.Close(); err != nil {
		w.d.m.log.Debug("can't close temporary file", zap.Error(err))
	}
	w.f = nil

	if w.tmpPath != "" {
		if err := os.Remove(w.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.d.m.log.Warn("can't remove temporary file", zap.String("path", w.tmpPath), zap.Error(err))
		}
		w.tmpPath = ""
	}
	return nil
}

func touchSync(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Sync()
}
