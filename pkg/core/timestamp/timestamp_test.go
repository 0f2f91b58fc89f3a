package timestamp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in       string
		internal string
		short    string
	}{
		{"0000000007.00000", "0000000007.00000", "0000000007.00000"},
		{"7", "0000000007.00000", "0000000007.00000"},
		{"7.5", "0000000007.50000", "0000000007.50000"},
		{"1402436408.91203", "1402436408.91203", "1402436408.91203"},
		{"1402436408.912034", "1402436408.91203", "1402436408.91203"},
		{"1402436408.912035", "1402436408.91204", "1402436408.91204"},
		{"0000000007.00000_000000000000000f", "0000000007.00000_000000000000000f", "0000000007.00000_f"},
		{"0000000007.00000_f", "0000000007.00000_000000000000000f", "0000000007.00000_f"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			ts, err := Parse(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.internal, ts.Internal())
			require.Equal(t, tc.short, ts.Short())
		})
	}

	for _, in := range []string{"", "junk", "1.2.3", "-1", "7_", "7_zz", "12345678901", "1e5"} {
		_, err := Parse(in)
		require.ErrorIs(t, err, ErrInvalid, in)
	}
}

func TestCompare(t *testing.T) {
	a := FromSeconds(7)
	b := FromSeconds(7).WithOffset(1)
	c := FromSeconds(8)

	require.True(t, a.Before(b))
	require.True(t, b.Before(c))
	require.True(t, c.After(a))
	require.Equal(t, 0, a.Compare(FromRaw(7*Precision)))
	require.Equal(t, "0000000007.00000", a.String())
}

func TestTime(t *testing.T) {
	now := time.Unix(1500000000, 123456789)
	ts := New(now)
	require.Equal(t, "1500000000.12345", ts.Internal())
	require.Equal(t, time.Unix(1500000000, 123450000), ts.Time())
}

func TestDelta(t *testing.T) {
	t1 := FromSeconds(10)

	t.Run("implicit zero", func(t *testing.T) {
		s := EncodeWithDelta(t1, t1, false)
		require.Equal(t, "0000000010.00000", s)

		a, b, ok, err := DecodeWithDelta(s, false)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, t1, a)
		require.Equal(t, t1, b)

		_, _, ok, err = DecodeWithDelta(s, true)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("explicit zero", func(t *testing.T) {
		s := EncodeWithDelta(t1, t1, true)
		require.Equal(t, "0000000010.00000+0", s)

		a, b, ok, err := DecodeWithDelta(s, true)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, t1, a)
		require.Equal(t, t1, b)
	})

	t.Run("older and newer", func(t *testing.T) {
		older := FromSeconds(9)
		s := EncodeWithDelta(t1, older, true)
		require.Equal(t, "0000000010.00000-186a0", s)
		_, b, ok, err := DecodeWithDelta(s, true)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, older, b)

		newer := FromRaw(t1.Raw() + 31)
		s = EncodeWithDelta(t1, newer, false)
		require.Equal(t, "0000000010.00000+1f", s)
		_, b, _, err = DecodeWithDelta(s, false)
		require.NoError(t, err)
		require.Equal(t, newer, b)
	})

	t.Run("offset", func(t *testing.T) {
		withOff := t1.WithOffset(3)
		s := EncodeWithDelta(withOff, t1, true)
		require.Equal(t, "0000000010.00000_3+0", s)
		a, b, ok, err := DecodeWithDelta(s, true)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, withOff, a)
		require.Equal(t, t1, b)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, s := range []string{"0000000010.00000+", "0000000010.00000+zz", "0000000010.00000+1-2"} {
			_, _, _, err := DecodeWithDelta(s, true)
			require.Error(t, err, s)
		}
	})
}
