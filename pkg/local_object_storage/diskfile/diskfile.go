package diskfile

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	storagelog "github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/internal/log"
	"go.uber.org/zap"
)

// DiskFile is a single object of a device partition.
type DiskFile struct {
	m *Manager

	devPath   string
	partition string
	name      string
	hash      string
	hashDir   string
	prm       ResolvePrm

	opened   bool
	state    *State
	fp       *os.File
	metadata map[string]string
	dataMeta map[string]string
	metaMeta map[string]string
	size     int64
}

// DiskFile returns object handle. Nothing is read until Open.
func (m *Manager) DiskFile(device, partition, account, container, object string, prm ResolvePrm) (*DiskFile, error) {
	devPath, err := m.DevicePath(device)
	if err != nil {
		return nil, err
	}

	hash := m.HashPath(account, container, object)
	return m.newDiskFile(devPath, partition, objectName(account, container, object), hash, prm), nil
}

func (m *Manager) newDiskFile(devPath, partition, name, hash string, prm ResolvePrm) *DiskFile {
	return &DiskFile{
		m:         m,
		devPath:   devPath,
		partition: partition,
		name:      name,
		hash:      hash,
		hashDir:   filepath.Join(devPath, m.policy.DataDir(), partition, hash[len(hash)-3:], hash),
		prm:       prm,
	}
}

// DiskFileFromHash returns handle of the object stored in the hash
// directory. Object name is taken from the metadata of the newest file left
// after cleanup.
func (m *Manager) DiskFileFromHash(device, partition, hash string, prm ResolvePrm) (*DiskFile, error) {
	if len(hash) < 3 {
		return nil, malformed("invalid object hash %q", hash)
	}

	devPath, err := m.DevicePath(device)
	if err != nil {
		return nil, err
	}

	hashDir := filepath.Join(devPath, m.policy.DataDir(), partition, hash[len(hash)-3:], hash)
	res, err := m.Cleanup(hashDir, prm)
	if err != nil {
		if errors.Is(err, errNotDir) {
			m.quarantineStray(devPath, hashDir)
			return nil, ErrNotExist
		}
		return nil, err
	}
	if len(res.Files) == 0 {
		return nil, ErrNotExist
	}

	md, err := readMetadataFile(filepath.Join(hashDir, res.Files[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotExist, err)
	}
	if _, _, _, err := splitObjectName(md[MetaName]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotExist, err)
	}

	return m.newDiskFile(devPath, partition, md[MetaName], hash, prm), nil
}

// diskFileFromHashDir returns handle of the object in hashDir with unknown
// name, Open verifies that the name hashes back to the directory.
func (m *Manager) diskFileFromHashDir(devPath, partition, hashDir string, prm ResolvePrm) *DiskFile {
	df := m.newDiskFile(devPath, partition, "", filepath.Base(hashDir), prm)
	df.hashDir = hashDir
	return df
}

func splitObjectName(name string) (string, string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(name, "/"), "/", 3)
	if !strings.HasPrefix(name, "/") || len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", malformed("invalid object name %q", name)
	}
	return parts[0], parts[1], parts[2], nil
}

// HashDir returns path to the object hash directory.
func (d *DiskFile) HashDir() string { return d.hashDir }

// Name returns object name, it is empty for objects opened by hash
// directory until Open.
func (d *DiskFile) Name() string { return d.name }

// Open resolves the object state and opens the data file. ErrNotExist is
// returned if there is nothing to open, *DeletedError if the object is
// deleted.
func (d *DiskFile) Open() error {
	if d.opened {
		return nil
	}

	files, err := readDirNames(d.hashDir)
	if err != nil {
		switch {
		case isNotDir(err):
			return d.quarantineDir(d.hashDir, "expected directory, found file at "+d.hashDir)
		case errors.Is(err, fs.ErrNotExist):
			files = nil
		default:
			return fmt.Errorf("%w: list %s: %w", ErrDiskFile, d.hashDir, err)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	st, err := d.m.Resolve(d.hashDir, files, d.prm)
	if err != nil {
		return err
	}

	if st.Data == nil {
		return d.notExistError(st)
	}

	if err := d.openDataFile(st); err != nil {
		return err
	}

	d.state = st
	d.opened = true
	return nil
}

func (d *DiskFile) notExistError(st *State) error {
	if st.Tombstone == nil {
		return ErrNotExist
	}

	path := filepath.Join(d.hashDir, st.Tombstone.Filename)
	md, err := readMetadataFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotExist
		}
		return d.quarantineDir(d.hashDir, fmt.Sprintf("exception reading metadata of %s: %v", path, err))
	}
	return &DeletedError{Timestamp: st.Tombstone.Timestamp, Metadata: md}
}

func (d *DiskFile) openDataFile(st *State) error {
	dataPath := filepath.Join(d.hashDir, st.Data.Filename)
	fp, err := os.Open(dataPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotExist
		}
		return fmt.Errorf("%w: open %s: %w", ErrDiskFile, dataPath, err)
	}

	if err := d.loadMetadata(fp, st); err != nil {
		_ = fp.Close()
		return err
	}
	if err := d.verifyDataFile(fp, dataPath); err != nil {
		_ = fp.Close()
		return err
	}

	d.fp = fp
	return nil
}

func (d *DiskFile) readMetadataFailsafe(fd int, path string) (map[string]string, error) {
	md, err := readMetadata(fd)
	if err != nil {
		return nil, d.quarantineDir(d.hashDir, fmt.Sprintf("exception reading metadata of %s: %v", path, err))
	}
	return md, nil
}

func (d *DiskFile) readMetadataPathFailsafe(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrDiskFile, path, err)
	}
	defer f.Close()

	return d.readMetadataFailsafe(int(f.Fd()), path)
}

// loadMetadata merges data file metadata with the .meta overlay. Data file
// system keys are never overridden, content type comes from the newest
// source newer than the data.
func (d *DiskFile) loadMetadata(fp *os.File, st *State) error {
	var err error

	d.dataMeta, err = d.readMetadataFailsafe(int(fp.Fd()), fp.Name())
	if err != nil {
		return err
	}

	if st.Meta == nil {
		d.metaMeta = nil
		d.metadata = maps.Clone(d.dataMeta)
		return nil
	}

	d.metaMeta, err = d.readMetadataPathFailsafe(filepath.Join(d.hashDir, st.Meta.Filename))
	if err != nil {
		return err
	}
	if st.CType != nil && st.CType.Filename != st.Meta.Filename {
		ctypeMeta, err := d.readMetadataPathFailsafe(filepath.Join(d.hashDir, st.CType.Filename))
		if err != nil {
			return err
		}
		d.mergeContentType(ctypeMeta, st.Data.Timestamp)
	}

	d.metadata = maps.Clone(d.metaMeta)
	for k, v := range d.dataMeta {
		if isDataFileMeta(k) {
			d.metadata[k] = v
		}
	}
	delete(d.metaMeta, MetaName)
	if _, ok := d.metadata[MetaName]; !ok {
		if v, ok := d.dataMeta[MetaName]; ok {
			d.metadata[MetaName] = v
		}
	}

	if ct, ok := d.dataMeta[MetaContentType]; ok {
		if st.Data.Timestamp.After(metaTimestamp(d.metaMeta, MetaContentTypeTimestamp)) {
			d.metadata[MetaContentType] = ct
			delete(d.metadata, MetaContentTypeTimestamp)
		}
	}
	return nil
}

func (d *DiskFile) mergeContentType(ctypeMeta map[string]string, dataTS timestamp.Timestamp) {
	ct, ok := ctypeMeta[MetaContentType]
	if !ok {
		return
	}
	ctTS := metaTimestamp(ctypeMeta, MetaContentTypeTimestamp)
	if ctTS.After(metaTimestamp(d.metaMeta, MetaContentTypeTimestamp)) && ctTS.After(dataTS) {
		d.metaMeta[MetaContentType] = ct
		d.metaMeta[MetaContentTypeTimestamp] = ctypeMeta[MetaContentTypeTimestamp]
	}
}

// metaTimestamp parses timestamp metadata value, zero is returned for
// missing or invalid values.
func metaTimestamp(md map[string]string, key string) timestamp.Timestamp {
	ts, _ := timestamp.Parse(md[key])
	return ts
}

func (d *DiskFile) verifyDataFile(fp *os.File, path string) error {
	name, ok := d.metadata[MetaName]
	if !ok {
		return d.quarantineDir(d.hashDir, "missing name metadata in "+path)
	}

	if d.name == "" {
		a, c, o, err := splitObjectName(name)
		if err != nil || d.m.HashPath(a, c, o) != filepath.Base(d.hashDir) {
			return d.quarantineDir(d.hashDir, "hash of name in metadata does not match directory name")
		}
		d.name = name
	} else if name != d.name {
		d.m.log.Error("client path does not match path stored in object metadata",
			zap.String("client", d.name), zap.String("meta", name))
		return fmt.Errorf("%w: client path %s does not match path stored in object metadata %s",
			ErrCollision, d.name, name)
	}

	cl, ok := d.metadata[MetaContentLength]
	if !ok {
		return d.quarantineDir(d.hashDir, "missing content-length in metadata of "+path)
	}
	size, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return d.quarantineDir(d.hashDir, fmt.Sprintf("bad metadata content-length value %q", cl))
	}

	fi, err := fp.Stat()
	if err != nil {
		return d.quarantineDir(d.hashDir, fmt.Sprintf("not stat-able: %v", err))
	}
	if fi.Size() != size {
		return d.quarantineDir(d.hashDir, fmt.Sprintf("metadata content-length %d does not match actual object size %d", size, fi.Size()))
	}

	d.size = size
	return nil
}

// quarantineDir moves the hash directory to quarantine and returns the
// error to report.
func (d *DiskFile) quarantineDir(path, reason string) error {
	to, err := d.m.QuarantineRenamer(d.devPath, path)
	if err != nil {
		d.m.log.Error("can't quarantine object", zap.String("path", path),
			zap.String("reason", reason), zap.Error(err))
	} else {
		d.m.log.Warn("object quarantined", zap.String("path", path),
			zap.String("target", to), zap.String("reason", reason))
	}
	return &QuarantinedError{Reason: reason}
}

// Close releases the data file unless a Reader took it.
func (d *DiskFile) Close() error {
	if d.fp != nil {
		err := d.fp.Close()
		d.fp = nil
		return err
	}
	return nil
}

// ReadMetadata opens the object, returns its metadata and closes it.
func (d *DiskFile) ReadMetadata() (map[string]string, error) {
	if err := d.Open(); err != nil {
		return nil, err
	}
	defer d.Close()

	return d.Metadata()
}

// Metadata returns merged object metadata.
func (d *DiskFile) Metadata() (map[string]string, error) {
	if !d.opened {
		return nil, ErrNotOpen
	}
	return maps.Clone(d.metadata), nil
}

// DataFileMetadata returns metadata of the data file.
func (d *DiskFile) DataFileMetadata() (map[string]string, error) {
	if !d.opened {
		return nil, ErrNotOpen
	}
	return maps.Clone(d.dataMeta), nil
}

// MetaFileMetadata returns metadata of the .meta overlay, empty if there is
// none.
func (d *DiskFile) MetaFileMetadata() (map[string]string, error) {
	if !d.opened {
		return nil, ErrNotOpen
	}
	return maps.Clone(d.metaMeta), nil
}

// State returns resolved state the object was opened with.
func (d *DiskFile) State() (*State, error) {
	if !d.opened {
		return nil, ErrNotOpen
	}
	return d.state, nil
}

// Timestamp returns the newest of data and metadata timestamps.
func (d *DiskFile) Timestamp() (timestamp.Timestamp, error) {
	if !d.opened {
		return timestamp.Timestamp{}, ErrNotOpen
	}
	if d.state.Meta != nil {
		return d.state.Meta.Timestamp, nil
	}
	return d.state.Data.Timestamp, nil
}

// DataTimestamp returns timestamp of the data file.
func (d *DiskFile) DataTimestamp() (timestamp.Timestamp, error) {
	if !d.opened {
		return timestamp.Timestamp{}, ErrNotOpen
	}
	return d.state.Data.Timestamp, nil
}

// DurableTimestamp returns timestamp of the durable generation. It equals
// the data timestamp for replicated policies and is nil for non-durable
// erasure coded data opened with fragment preferences.
func (d *DiskFile) DurableTimestamp() (*timestamp.Timestamp, error) {
	if !d.opened {
		return nil, ErrNotOpen
	}
	if !d.m.isEC() {
		ts := d.state.Data.Timestamp
		return &ts, nil
	}
	if len(d.state.DurableFragSet) == 0 {
		return nil, nil
	}
	ts := d.state.DurableFragSet[0].Timestamp
	return &ts, nil
}

// ContentTypeTimestamp returns time the content type was set at.
func (d *DiskFile) ContentTypeTimestamp() (timestamp.Timestamp, error) {
	if !d.opened {
		return timestamp.Timestamp{}, ErrNotOpen
	}
	if v, ok := d.metadata[MetaContentTypeTimestamp]; ok {
		if ts, err := timestamp.Parse(v); err == nil {
			return ts, nil
		}
	}
	return d.state.Data.Timestamp, nil
}

// Fragments returns available fragment indexes per data generation for
// erasure coded policies, nil otherwise.
func (d *DiskFile) Fragments() (map[timestamp.Timestamp][]int, error) {
	if !d.opened {
		return nil, ErrNotOpen
	}
	if !d.m.isEC() {
		return nil, nil
	}

	res := make(map[timestamp.Timestamp][]int, len(d.state.FragSets))
	for ts, set := range d.state.FragSets {
		for _, fi := range set {
			res[ts] = append(res[ts], fi.FragIndex)
		}
	}
	return res, nil
}

// ContentLength returns data size.
func (d *DiskFile) ContentLength() (int64, error) {
	if !d.opened {
		return 0, ErrNotOpen
	}
	return d.size, nil
}

// Delete publishes a tombstone at ts.
func (d *DiskFile) Delete(ts timestamp.Timestamp) error {
	w, err := d.create(0, ExtTombstone)
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Put(map[string]string{MetaTimestamp: ts.Internal()})
}

// WriteMetadata publishes a .meta overlay. X-Timestamp is required,
// Content-Type-Timestamp is encoded in the file name if present.
func (d *DiskFile) WriteMetadata(md map[string]string) error {
	w, err := d.create(0, ExtMeta)
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Put(md)
}

// Purge removes the tombstone and, for a fragment index, the data file
// of exactly the ts generation. The durable marker at ts goes away once no
// fragment at ts is left. Missing files are not an error.
func (d *DiskFile) Purge(ts timestamp.Timestamp, fragIndex int) error {
	b := d.m.backend

	var names []string
	if name, err := b.MakeFilename(FileInfo{Timestamp: ts, Ext: ExtTombstone}); err == nil {
		names = append(names, name)
	}
	if !d.m.isEC() {
		name, _ := b.MakeFilename(FileInfo{Timestamp: ts, Ext: ExtData})
		names = append(names, name)
	} else if fragIndex != NoFragIndex {
		name, err := b.MakeFilename(FileInfo{Timestamp: ts, Ext: ExtData, FragIndex: fragIndex})
		if err != nil {
			return err
		}
		names = append(names, name)
	}

	for _, name := range names {
		if d.m.removeFile(filepath.Join(d.hashDir, name)) {
			storagelog.Write(d.m.log,
				storagelog.HashDirField(d.hashDir),
				storagelog.OpField("PURGE"),
				storagelog.FileField(name))
		}
	}

	if d.m.isEC() {
		d.purgeOrphanDurable(ts)
	}

	return d.m.InvalidateHash(filepath.Dir(d.hashDir))
}

func (d *DiskFile) purgeOrphanDurable(ts timestamp.Timestamp) {
	for _, name := range d.m.ListDir(d.hashDir) {
		fi, err := d.m.backend.ParseFilename(name)
		if err == nil && fi.Ext == ExtData && fi.Timestamp == ts {
			return
		}
	}

	name, _ := d.m.backend.MakeFilename(FileInfo{Timestamp: ts, Ext: ExtDurable})
	if d.m.removeFile(filepath.Join(d.hashDir, name)) {
		storagelog.Write(d.m.log,
			storagelog.HashDirField(d.hashDir),
			storagelog.OpField("PURGE"),
			storagelog.FileField(name))
	}
}
