package diskfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/storagepolicy"
	"github.com/nspcc-dev/neofs-diskfile/pkg/util/state"
	"go.uber.org/zap"
)

const (
	auditorStatusFile = "auditor_status.db"

	// DefaultAuditorType is the auditor type of checkpoints when none is
	// set.
	DefaultAuditorType = "ALL"

	auditStatusInterval = 60 * time.Second
	auditStatusTimeout  = time.Second
)

// AuditLocation points to a single hash directory.
type AuditLocation struct {
	Path      string
	Device    string
	Partition string
	Policy    storagepolicy.Policy
}

// AuditPrm groups parameters of the audit walk.
type AuditPrm struct {
	// Devices is the devices root.
	Devices    string
	MountCheck bool
	Policies   *storagepolicy.Collection
	// AuditorType separates checkpoints of independent walkers.
	AuditorType string
	// DeviceDirs limits the walk to the listed devices if set.
	DeviceDirs []string
	Logger     *zap.Logger
	Clock      func() time.Time
}

type auditorStatus struct {
	Partitions []string `cbor:"1,keyasint"`
	Updated    int64    `cbor:"2,keyasint"`
}

// AuditCursor walks hash directories of all devices and policies. Progress
// is checkpointed per device and data directory, a new cursor resumes from
// the last checkpointed partition. Dropping a cursor has no side effects
// besides the open checkpoint store, release it with Close.
type AuditCursor struct {
	prm AuditPrm
	log *zap.Logger

	devices []string

	device  string
	devPath string
	store   *state.PersistentStorage

	dataDirs []string

	dataDir    string
	policy     storagepolicy.Policy
	partitions []string
	partIdx    int
	lastSave   time.Time

	partition string
	suffixes  []string

	suffixDir string
	hashes    []string
}

// NewAuditCursor lists devices and returns cursor positioned before the
// first hash directory.
func NewAuditCursor(prm AuditPrm) (*AuditCursor, error) {
	if prm.Policies == nil {
		return nil, storagepolicy.ErrNoPolicies
	}
	if prm.AuditorType == "" {
		prm.AuditorType = DefaultAuditorType
	}
	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}
	if prm.Clock == nil {
		prm.Clock = time.Now
	}

	devices, err := readDirNames(prm.Devices)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if len(prm.DeviceDirs) > 0 {
		devices = slices.DeleteFunc(devices, func(d string) bool {
			return !slices.Contains(prm.DeviceDirs, d)
		})
	}
	slices.Sort(devices)

	return &AuditCursor{
		prm:     prm,
		log:     prm.Logger.With(zap.String("component", "audit")),
		devices: devices,
	}, nil
}

// Next returns the next hash directory, io.EOF is returned after the last
// one.
func (c *AuditCursor) Next() (AuditLocation, error) {
	for {
		switch {
		case len(c.hashes) > 0:
			hash := c.hashes[0]
			c.hashes = c.hashes[1:]
			return AuditLocation{
				Path:      filepath.Join(c.suffixDir, hash),
				Device:    c.device,
				Partition: c.partition,
				Policy:    c.policy,
			}, nil
		case len(c.suffixes) > 0:
			c.suffixDir = filepath.Join(c.devPath, c.dataDir, c.partition, c.suffixes[0])
			c.suffixes = c.suffixes[1:]
			hashes, err := listDirOrEmpty(c.suffixDir)
			if err != nil {
				return AuditLocation{}, err
			}
			c.hashes = hashes
		case c.partIdx < len(c.partitions):
			c.saveStatus(c.partitions[c.partIdx:])
			c.partition = c.partitions[c.partIdx]
			c.partIdx++
			suffixes, err := listDirOrEmpty(filepath.Join(c.devPath, c.dataDir, c.partition))
			if err != nil {
				return AuditLocation{}, err
			}
			c.suffixes = suffixes
		case c.dataDir != "":
			c.saveStatus(nil)
			c.dataDir, c.partitions, c.partIdx = "", nil, 0
		case len(c.dataDirs) > 0:
			dir := c.dataDirs[0]
			c.dataDirs = c.dataDirs[1:]
			if err := c.openDataDir(dir); err != nil {
				return AuditLocation{}, err
			}
		case c.device != "":
			c.closeStore()
			c.device, c.devPath = "", ""
		case len(c.devices) > 0:
			dev := c.devices[0]
			c.devices = c.devices[1:]
			if err := c.openDevice(dev); err != nil {
				return AuditLocation{}, err
			}
		default:
			return AuditLocation{}, io.EOF
		}
	}
}

func (c *AuditCursor) openDevice(dev string) error {
	devPath := filepath.Join(c.prm.Devices, dev)
	if c.prm.MountCheck {
		if ok, _ := isMount(devPath); !ok {
			c.log.Debug("skipping device as it is not mounted", zap.String("device", devPath))
			return nil
		}
	} else if fi, err := os.Stat(devPath); err != nil || !fi.IsDir() {
		c.log.Debug("skipping device: not a directory", zap.String("device", devPath))
		return nil
	}

	names, err := listDirOrEmpty(devPath)
	if err != nil {
		return err
	}

	var dataDirs []string
	for _, name := range names {
		if !strings.HasPrefix(name, storagepolicy.DataDirBase) {
			continue
		}
		base, _, err := c.prm.Policies.FromDirName(name)
		if base != storagepolicy.DataDirBase {
			continue
		}
		if err != nil {
			c.log.Warn("directory does not map to a valid policy",
				zap.String("dir", name), zap.Error(err))
			continue
		}
		dataDirs = append(dataDirs, name)
	}
	slices.Sort(dataDirs)

	c.device, c.devPath, c.dataDirs = dev, devPath, dataDirs
	return nil
}

func (c *AuditCursor) openDataDir(dir string) error {
	_, p, _ := c.prm.Policies.FromDirName(dir)
	c.dataDir, c.policy = dir, p
	c.partIdx = 0
	c.lastSave = time.Time{}

	if st, ok := c.loadStatus(); ok && len(st.Partitions) > 0 {
		c.partitions = st.Partitions
		c.lastSave = time.Unix(st.Updated, 0)
		return nil
	}

	partitions, err := listDirOrEmpty(filepath.Join(c.devPath, dir))
	if err != nil {
		return err
	}
	c.partitions = partitions
	return nil
}

func (c *AuditCursor) openStore() *state.PersistentStorage {
	if c.store == nil {
		s, err := state.NewPersistentStorage(filepath.Join(c.devPath, auditorStatusFile), auditStatusTimeout)
		if err != nil {
			c.log.Warn("can't open auditor status", zap.String("device", c.devPath), zap.Error(err))
			return nil
		}
		c.store = s
	}
	return c.store
}

func (c *AuditCursor) loadStatus() (auditorStatus, bool) {
	var st auditorStatus

	s := c.openStore()
	if s == nil {
		return st, false
	}

	raw, err := s.Get([]byte(c.dataDir), []byte(c.prm.AuditorType))
	if err != nil || raw == nil {
		return st, false
	}
	if err := decMode.Unmarshal(raw, &st); err != nil {
		c.log.Warn("can't decode auditor status", zap.String("dir", c.dataDir), zap.Error(err))
		return st, false
	}
	return st, true
}

// saveStatus stores the remaining partitions. Non-final updates are written
// at most once per interval.
func (c *AuditCursor) saveStatus(partitions []string) {
	now := c.prm.Clock()
	if len(partitions) > 0 && now.Sub(c.lastSave) < auditStatusInterval {
		return
	}

	s := c.openStore()
	if s == nil {
		return
	}

	raw, err := encMode.Marshal(auditorStatus{Partitions: partitions, Updated: now.Unix()})
	if err == nil {
		err = s.Put([]byte(c.dataDir), []byte(c.prm.AuditorType), raw)
	}
	if err != nil {
		c.log.Warn("can't save auditor status", zap.String("dir", c.dataDir), zap.Error(err))
		return
	}
	c.lastSave = now
}

func (c *AuditCursor) closeStore() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.log.Debug("can't close auditor status", zap.Error(err))
		}
		c.store = nil
	}
}

// Close releases the checkpoint store. The cursor can't be used after.
func (c *AuditCursor) Close() error {
	c.closeStore()
	c.devices, c.dataDirs, c.partitions, c.suffixes, c.hashes = nil, nil, nil, nil, nil
	c.device, c.dataDir = "", ""
	return nil
}

// listDirOrEmpty lists directory entries in order, missing directories and
// files in place of them are empty.
func listDirOrEmpty(dir string) ([]string, error) {
	names, err := readDirNames(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isNotDir(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	slices.Sort(names)
	return names, nil
}

// ClearAuditorStatus removes audit checkpoints of the auditor type on all
// devices.
func ClearAuditorStatus(devices, auditorType string) error {
	if auditorType == "" {
		auditorType = DefaultAuditorType
	}

	names, err := readDirNames(devices)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	for _, dev := range names {
		path := filepath.Join(devices, dev, auditorStatusFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		s, err := state.NewPersistentStorage(path, auditStatusTimeout)
		if err != nil {
			return err
		}
		err = s.DeleteFromAll([]byte(auditorType))
		if cerr := s.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("clear auditor status of %s: %w", dev, err)
		}
	}
	return nil
}

// DiskFileFromAuditLocation returns handle of the object in the audited
// hash directory. Object name is verified on Open.
func (m *Manager) DiskFileFromAuditLocation(loc AuditLocation, prm ResolvePrm) *DiskFile {
	// <device>/<data dir>/<partition>/<suffix>/<hash>
	devPath := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(loc.Path))))
	return m.diskFileFromHashDir(devPath, loc.Partition, loc.Path, prm)
}
