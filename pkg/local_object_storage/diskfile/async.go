package diskfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
	storagelog "github.com/nspcc-dev/neofs-diskfile/pkg/local_object_storage/internal/log"
	"github.com/nspcc-dev/neofs-diskfile/pkg/util"
	"go.uber.org/zap"
)

// AsyncUpdate is a container listing update which could not be delivered
// synchronously.
type AsyncUpdate struct {
	Op        string            `cbor:"1,keyasint" json:"op" yaml:"op"`
	Account   string            `cbor:"2,keyasint" json:"account" yaml:"account"`
	Container string            `cbor:"3,keyasint" json:"container" yaml:"container"`
	Object    string            `cbor:"4,keyasint" json:"object" yaml:"object"`
	Headers   map[string]string `cbor:"5,keyasint,omitempty" json:"headers,omitempty" yaml:"headers,omitempty"`
}

// WriteAsyncUpdate drops the update into the deferred updates directory of
// the device and returns path to it. An update of the same object at the
// same time replaces the previous one.
func (m *Manager) WriteAsyncUpdate(device string, upd AsyncUpdate, ts timestamp.Timestamp) (string, error) {
	devPath, err := m.DevicePath(device)
	if err != nil {
		return "", err
	}

	data, err := encMode.Marshal(upd)
	if err != nil {
		return "", fmt.Errorf("encode async update: %w", err)
	}

	hash := m.HashPath(upd.Account, upd.Container, upd.Object)
	dir := filepath.Join(devPath, m.policy.AsyncDir(), hash[len(hash)-3:])
	tmpDir := filepath.Join(devPath, m.policy.TmpDir())

	for _, d := range []string{dir, tmpDir} {
		if err := util.MkdirAllX(d, dirPerm); err != nil {
			return "", fmt.Errorf("create directory: %w", classifyNoSpace(err))
		}
	}

	path := filepath.Join(dir, hash+"-"+ts.Internal())
	if err := writeFileAtomic(tmpDir, path, data); err != nil {
		return "", fmt.Errorf("write async update: %w", err)
	}

	m.metrics.IncAsyncPendings(m.policy.Index)
	storagelog.Write(m.log,
		storagelog.OpField("ASYNC"),
		storagelog.FileField(path),
		zap.String("update", upd.Op))

	return path, nil
}

// ReadAsyncUpdate loads update written by WriteAsyncUpdate.
func ReadAsyncUpdate(path string) (AsyncUpdate, error) {
	var upd AsyncUpdate

	data, err := os.ReadFile(path)
	if err != nil {
		return upd, err
	}
	if err := decMode.Unmarshal(data, &upd); err != nil {
		return upd, fmt.Errorf("decode async update %s: %w", path, err)
	}
	return upd, nil
}

// ListAsyncUpdates returns paths of deferred updates stored on the device.
func (m *Manager) ListAsyncUpdates(device string) ([]string, error) {
	devPath, err := m.DevicePath(device)
	if err != nil {
		return nil, err
	}

	root := filepath.Join(devPath, m.policy.AsyncDir())
	suffixes, err := listDirOrEmpty(root)
	if err != nil {
		return nil, err
	}

	var res []string
	for _, s := range suffixes {
		names, err := listDirOrEmpty(filepath.Join(root, s))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			res = append(res, filepath.Join(root, s, n))
		}
	}
	return res, nil
}
