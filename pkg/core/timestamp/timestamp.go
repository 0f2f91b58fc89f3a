package timestamp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Precision is the number of timestamp units in one second.
const Precision = 100000

// maxSeconds bounds the integer part so every timestamp fits the
// fixed-width encoding.
const maxSeconds = 9999999999

// ErrInvalid is returned for strings which are not valid timestamps.
var ErrInvalid = errors.New("invalid timestamp")

// Timestamp is an object generation time with 10µs resolution and an
// optional offset ordering generations created at the same instant.
//
// Zero value is the zero timestamp "0000000000.00000".
type Timestamp struct {
	raw    int64
	offset uint64
}

// New returns Timestamp of t truncated to the timestamp resolution.
func New(t time.Time) Timestamp {
	return Timestamp{raw: t.UnixNano() / (int64(time.Second) / Precision)}
}

// FromRaw returns Timestamp from its raw value in 1/Precision seconds.
func FromRaw(raw int64) Timestamp {
	return Timestamp{raw: raw}
}

// FromSeconds returns Timestamp of integer number of seconds.
func FromSeconds(sec int64) Timestamp {
	return Timestamp{raw: sec * Precision}
}

// WithOffset returns a copy of t with the offset set.
func (t Timestamp) WithOffset(offset uint64) Timestamp {
	t.offset = offset
	return t
}

// Raw returns timestamp value in 1/Precision seconds.
func (t Timestamp) Raw() int64 { return t.raw }

// Offset returns timestamp offset.
func (t Timestamp) Offset() uint64 { return t.offset }

// IsZero checks whether t is a zero timestamp without offset.
func (t Timestamp) IsZero() bool { return t.raw == 0 && t.offset == 0 }

// Time returns t as time.Time, offset is lost.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, t.raw*(int64(time.Second)/Precision))
}

// Normal returns fixed-width seconds form, e.g. "0000000007.00000".
// Offset is not included.
func (t Timestamp) Normal() string {
	return fmt.Sprintf("%010d.%05d", t.raw/Precision, t.raw%Precision)
}

// Internal returns the form used in file names: Normal with a 16-digit hex
// offset appended when offset is non-zero.
func (t Timestamp) Internal() string {
	if t.offset == 0 {
		return t.Normal()
	}
	return fmt.Sprintf("%s_%016x", t.Normal(), t.offset)
}

// Short is like Internal but the offset is not zero-padded.
func (t Timestamp) Short() string {
	if t.offset == 0 {
		return t.Normal()
	}
	return fmt.Sprintf("%s_%x", t.Normal(), t.offset)
}

// String implements fmt.Stringer.
func (t Timestamp) String() string { return t.Internal() }

// Compare returns -1, 0 or 1 if t is less, equal or greater than u.
func (t Timestamp) Compare(u Timestamp) int {
	switch {
	case t.raw < u.raw:
		return -1
	case t.raw > u.raw:
		return 1
	case t.offset < u.offset:
		return -1
	case t.offset > u.offset:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is older than u.
func (t Timestamp) Before(u Timestamp) bool { return t.Compare(u) < 0 }

// After reports whether t is newer than u.
func (t Timestamp) After(u Timestamp) bool { return t.Compare(u) > 0 }

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	return []byte(t.Internal()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Timestamp) UnmarshalText(data []byte) error {
	v, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parse decodes any of the Normal, Internal or Short forms. Plain integers
// and decimals with arbitrary fraction length are accepted too, extra
// fractional digits are rounded.
func Parse(s string) (Timestamp, error) {
	var res Timestamp

	sec, off, hasOff := strings.Cut(s, "_")
	if hasOff {
		if off == "" {
			return res, fmt.Errorf("%w: empty offset in %q", ErrInvalid, s)
		}
		v, err := strconv.ParseUint(off, 16, 64)
		if err != nil {
			return res, fmt.Errorf("%w: offset of %q: %v", ErrInvalid, s, err)
		}
		res.offset = v
	}

	intPart, frac, _ := strings.Cut(sec, ".")
	if intPart == "" && frac == "" {
		return res, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if !isDigits(intPart) || !isDigits(frac) {
		return res, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	var whole int64
	if intPart != "" {
		v, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil || v > maxSeconds {
			return res, fmt.Errorf("%w: %q is out of range", ErrInvalid, s)
		}
		whole = v
	}

	var units int64
	roundUp := false
	if len(frac) > 5 {
		roundUp = frac[5] >= '5'
		frac = frac[:5]
	}
	if frac != "" {
		frac += strings.Repeat("0", 5-len(frac))
		units, _ = strconv.ParseInt(frac, 10, 64)
	}

	res.raw = whole*Precision + units
	if roundUp {
		res.raw++
	}
	if res.raw > maxSeconds*Precision+Precision-1 {
		return res, fmt.Errorf("%w: %q is out of range", ErrInvalid, s)
	}

	return res, nil
}

func isDigits(s string) bool {
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// EncodeWithDelta encodes t1 together with t2 as a signed hex delta in raw
// units appended to t1.Short(). The delta is omitted when it is zero and
// explicit is false, so "+0" always means an explicit zero delta.
func EncodeWithDelta(t1, t2 Timestamp, explicit bool) string {
	delta := t2.raw - t1.raw
	if delta == 0 && !explicit {
		return t1.Short()
	}

	sign := byte('+')
	if delta < 0 {
		sign = '-'
		delta = -delta
	}
	return t1.Short() + string(sign) + strconv.FormatInt(delta, 16)
}

// DecodeWithDelta is the reverse of EncodeWithDelta. The second result is
// valid only if ok is true. Without a delta ok is false in explicit mode and
// t2 equals t1 otherwise. A decoded second timestamp never has an offset.
func DecodeWithDelta(s string, explicit bool) (t1, t2 Timestamp, ok bool, err error) {
	base, delta := s, ""
	if i := strings.IndexAny(s, "+-"); i >= 0 {
		base, delta = s[:i], s[i:]
	}

	t1, err = Parse(base)
	if err != nil {
		return t1, t2, false, err
	}

	if delta == "" {
		if explicit {
			return t1, t2, false, nil
		}
		return t1, t1, true, nil
	}

	v, err := strconv.ParseInt(delta[1:], 16, 64)
	if err != nil || delta[1:] == "" || strings.ContainsAny(delta[1:], "+-") {
		return t1, t2, false, fmt.Errorf("%w: bad delta in %q", ErrInvalid, s)
	}
	if delta[0] == '-' {
		v = -v
	}

	if v == 0 && !explicit {
		return t1, t1, true, nil
	}
	return t1, FromRaw(t1.raw + v), true, nil
}
