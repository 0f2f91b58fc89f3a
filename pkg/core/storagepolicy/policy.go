package storagepolicy

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Base names of per-policy device directories.
const (
	DataDirBase  = "objects"
	AsyncDirBase = "async_pending"
	TmpDirBase   = "tmp"
)

// DefaultFragmentArchiveSize is used for erasure coded policies without an
// explicit fragment archive size.
const DefaultFragmentArchiveSize = 64 * 1024

// Type is a storage policy type.
type Type uint8

const (
	// TypeReplication stores full object replicas.
	TypeReplication Type = iota
	// TypeErasureCoding stores one erasure coded fragment per device.
	TypeErasureCoding
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeReplication:
		return "replication"
	case TypeErasureCoding:
		return "erasure_coding"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseType parses policy type from its String form.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "replication":
		return TypeReplication, nil
	case "erasure_coding", "ec":
		return TypeErasureCoding, nil
	default:
		return 0, fmt.Errorf("invalid policy type %q", s)
	}
}

// Policy describes a single storage policy.
type Policy struct {
	Index int
	Name  string
	Type  Type

	// Erasure coding parameters, ignored for replication.
	ECDataFrags         int
	ECParityFrags       int
	FragmentArchiveSize int

	Default bool
}

// DataDir returns object directory name of the policy.
func (p Policy) DataDir() string { return DirName(DataDirBase, p.Index) }

// AsyncDir returns deferred updates directory name of the policy.
func (p Policy) AsyncDir() string { return DirName(AsyncDirBase, p.Index) }

// TmpDir returns temporary files directory name of the policy.
func (p Policy) TmpDir() string { return DirName(TmpDirBase, p.Index) }

// DirName returns per-policy directory name: base for policy 0 and
// base-N otherwise.
func DirName(base string, index int) string {
	if index == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(index)
}

// UnknownPolicyError is returned when a directory name refers to a policy
// missing from the Collection.
type UnknownPolicyError struct {
	Index string
}

func (e UnknownPolicyError) Error() string {
	return fmt.Sprintf("unknown policy, for index '%s'", e.Index)
}

// Collection is a validated set of storage policies.
type Collection struct {
	byIndex map[int]Policy
	def     int
}

// ErrNoPolicies is returned by NewCollection called without policies.
var ErrNoPolicies = errors.New("no storage policies")

// NewCollection validates policies and returns a collection of them. The
// default policy is the one marked as such, or the policy 0.
func NewCollection(policies ...Policy) (*Collection, error) {
	if len(policies) == 0 {
		return nil, ErrNoPolicies
	}

	c := &Collection{byIndex: make(map[int]Policy, len(policies)), def: -1}
	names := make(map[string]struct{}, len(policies))

	for _, p := range policies {
		if p.Index < 0 {
			return nil, fmt.Errorf("negative policy index %d", p.Index)
		}
		if _, ok := c.byIndex[p.Index]; ok {
			return nil, fmt.Errorf("duplicate policy index %d", p.Index)
		}
		if p.Name == "" {
			p.Name = "Policy-" + strconv.Itoa(p.Index)
		}
		if _, ok := names[strings.ToLower(p.Name)]; ok {
			return nil, fmt.Errorf("duplicate policy name %q", p.Name)
		}
		if p.Type == TypeErasureCoding {
			if p.ECDataFrags <= 0 || p.ECParityFrags <= 0 {
				return nil, fmt.Errorf("policy %d: invalid erasure coding parameters %d+%d",
					p.Index, p.ECDataFrags, p.ECParityFrags)
			}
			if p.FragmentArchiveSize <= 0 {
				p.FragmentArchiveSize = DefaultFragmentArchiveSize
			}
		}
		if p.Default {
			if c.def >= 0 {
				return nil, fmt.Errorf("more than one default policy: %d and %d", c.def, p.Index)
			}
			c.def = p.Index
		}

		names[strings.ToLower(p.Name)] = struct{}{}
		c.byIndex[p.Index] = p
	}

	if c.def < 0 {
		if _, ok := c.byIndex[0]; !ok {
			return nil, errors.New("no default policy and no policy 0")
		}
		c.def = 0
	}

	return c, nil
}

// Get returns policy by index.
func (c *Collection) Get(index int) (Policy, bool) {
	p, ok := c.byIndex[index]
	return p, ok
}

// Default returns the default policy.
func (c *Collection) Default() Policy {
	return c.byIndex[c.def]
}

// List returns all policies ordered by index.
func (c *Collection) List() []Policy {
	res := make([]Policy, 0, len(c.byIndex))
	for _, p := range c.byIndex {
		res = append(res, p)
	}
	slices.SortFunc(res, func(a, b Policy) int { return a.Index - b.Index })
	return res
}

// FromDirName resolves policy from a per-policy directory name such as
// "objects-1", returning the directory base too.
func (c *Collection) FromDirName(name string) (string, Policy, error) {
	base, idx, found := strings.Cut(name, "-")
	if !found {
		return base, c.byIndex[0], c.checkZero(name)
	}

	n, err := strconv.Atoi(idx)
	if err != nil {
		return base, Policy{}, UnknownPolicyError{Index: idx}
	}
	p, ok := c.byIndex[n]
	if !ok || DirName(base, p.Index) != name {
		return base, Policy{}, UnknownPolicyError{Index: idx}
	}
	return base, p, nil
}

func (c *Collection) checkZero(name string) error {
	if _, ok := c.byIndex[0]; !ok {
		return UnknownPolicyError{Index: ""}
	}
	if name == "" {
		return UnknownPolicyError{Index: ""}
	}
	return nil
}

// FromPath extracts policy from any path beneath a data directory, e.g.
// "/srv/node/sda/objects-1/179/485/<hash>".
func (c *Collection) FromPath(path string) (Policy, bool) {
	i := strings.LastIndex(path, DataDirBase)
	if i < 0 {
		return Policy{}, false
	}

	dir := path[i:]
	if j := strings.IndexByte(dir, '/'); j >= 0 {
		dir = dir[:j]
	}

	_, p, err := c.FromDirName(dir)
	if err != nil {
		return Policy{}, false
	}
	return p, true
}
