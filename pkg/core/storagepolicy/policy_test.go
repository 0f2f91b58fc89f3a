package storagepolicy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testCollection(t *testing.T) *Collection {
	c, err := NewCollection(
		Policy{Index: 0, Name: "gold", Default: true},
		Policy{Index: 1, Name: "ec42", Type: TypeErasureCoding, ECDataFrags: 4, ECParityFrags: 2},
		Policy{Index: 3, Name: "silver"},
	)
	require.NoError(t, err)
	return c
}

func TestDirNames(t *testing.T) {
	c := testCollection(t)

	p0, _ := c.Get(0)
	require.Equal(t, "objects", p0.DataDir())
	require.Equal(t, "async_pending", p0.AsyncDir())
	require.Equal(t, "tmp", p0.TmpDir())

	p1, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "objects-1", p1.DataDir())
	require.Equal(t, "async_pending-1", p1.AsyncDir())
	require.Equal(t, "tmp-1", p1.TmpDir())
	require.Equal(t, DefaultFragmentArchiveSize, p1.FragmentArchiveSize)
}

func TestNewCollection(t *testing.T) {
	_, err := NewCollection()
	require.ErrorIs(t, err, ErrNoPolicies)

	for name, ps := range map[string][]Policy{
		"duplicate index": {{Index: 0}, {Index: 0, Name: "x"}},
		"duplicate name":  {{Index: 0, Name: "a"}, {Index: 1, Name: "A"}},
		"bad ec":          {{Index: 0, Type: TypeErasureCoding}},
		"two defaults":    {{Index: 0, Default: true}, {Index: 1, Default: true}},
		"no default":      {{Index: 2}},
		"negative index":  {{Index: -1}},
	} {
		_, err := NewCollection(ps...)
		require.Error(t, err, name)
	}

	c, err := NewCollection(Policy{Index: 0}, Policy{Index: 2, Default: true})
	require.NoError(t, err)
	require.Equal(t, 2, c.Default().Index)
	require.Equal(t, "Policy-0", c.List()[0].Name)
}

func TestFromDirName(t *testing.T) {
	c := testCollection(t)

	base, p, err := c.FromDirName("objects")
	require.NoError(t, err)
	require.Equal(t, "objects", base)
	require.Equal(t, 0, p.Index)

	_, p, err = c.FromDirName("objects-1")
	require.NoError(t, err)
	require.Equal(t, TypeErasureCoding, p.Type)

	for _, name := range []string{"objects-2", "objects-X", "objects-0", "objects-01"} {
		_, _, err = c.FromDirName(name)
		require.ErrorAs(t, err, new(UnknownPolicyError), name)
	}

	_, _, err = c.FromDirName("objects-X")
	require.EqualError(t, err, "unknown policy, for index 'X'")
}

func TestFromPath(t *testing.T) {
	c := testCollection(t)

	p, ok := c.FromPath("/srv/node/sda/objects-1/179/485/abcdef")
	require.True(t, ok)
	require.Equal(t, 1, p.Index)

	p, ok = c.FromPath("/srv/node/sda/objects/179")
	require.True(t, ok)
	require.Equal(t, 0, p.Index)

	_, ok = c.FromPath("/srv/node/sda/objects-7/179")
	require.False(t, ok)

	_, ok = c.FromPath("/srv/node/sda/tmp")
	require.False(t, ok)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("erasure_coding")
	require.NoError(t, err)
	require.Equal(t, TypeErasureCoding, typ)
	require.Equal(t, "erasure_coding", typ.String())

	typ, err = ParseType("")
	require.NoError(t, err)
	require.Equal(t, TypeReplication, typ)

	_, err = ParseType("mirror")
	require.Error(t, err)
}
