package diskfile

import (
	"fmt"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/storagepolicy"
)

// Router holds a Manager per storage policy sharing the same options.
type Router struct {
	cfg      *cfg
	policies *storagepolicy.Collection
	managers map[int]*Manager
}

// NewRouter creates managers of all policies of the collection.
func NewRouter(policies *storagepolicy.Collection, opts ...Option) *Router {
	c := defaultCfg()
	for i := range opts {
		opts[i](c)
	}

	r := &Router{
		cfg:      c,
		policies: policies,
		managers: make(map[int]*Manager),
	}
	for _, p := range policies.List() {
		r.managers[p.Index] = newManager(p, c)
	}
	return r
}

// Get returns manager of the policy.
func (r *Router) Get(index int) (*Manager, error) {
	m, ok := r.managers[index]
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrDiskFile, storagepolicy.UnknownPolicyError{Index: fmt.Sprint(index)})
	}
	return m, nil
}

// Default returns manager of the default policy.
func (r *Router) Default() *Manager {
	return r.managers[r.policies.Default().Index]
}

// Policies returns the policy collection served.
func (r *Router) Policies() *storagepolicy.Collection { return r.policies }

// AuditCursor returns cursor over all hash directories of the devices
// root of the router.
func (r *Router) AuditCursor(auditorType string, deviceDirs ...string) (*AuditCursor, error) {
	return NewAuditCursor(AuditPrm{
		Devices:     r.cfg.devices,
		MountCheck:  r.cfg.mountCheck,
		Policies:    r.policies,
		AuditorType: auditorType,
		DeviceDirs:  deviceDirs,
		Logger:      r.cfg.log,
		Clock:       r.cfg.clock,
	})
}

// DiskFileFromAuditLocation returns object handle of the audited location
// using the manager of its policy.
func (r *Router) DiskFileFromAuditLocation(loc AuditLocation, prm ResolvePrm) (*DiskFile, error) {
	m, err := r.Get(loc.Policy.Index)
	if err != nil {
		return nil, err
	}
	return m.DiskFileFromAuditLocation(loc, prm), nil
}

// ClearAuditorStatus drops audit checkpoints of the auditor type on all
// devices of the router.
func (r *Router) ClearAuditorStatus(auditorType string) error {
	return ClearAuditorStatus(r.cfg.devices, auditorType)
}
