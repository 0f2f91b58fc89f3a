package diskfile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nspcc-dev/neofs-diskfile/pkg/core/timestamp"
)

// Ext is an on-disk file extension.
type Ext string

// Known file extensions.
const (
	ExtData      Ext = ".data"
	ExtMeta      Ext = ".meta"
	ExtTombstone Ext = ".ts"
	ExtDurable   Ext = ".durable"
)

// NoFragIndex marks absence of a fragment index.
const NoFragIndex = -1

// rsync leaves files like ".0000000007.00000.data.6MbL6r" behind.
var rsyncTempFile = regexp.MustCompile(`^\..*\.([a-zA-Z0-9_]){6}$`)

// FileInfo is a decoded on-disk file name.
type FileInfo struct {
	Filename  string
	Timestamp timestamp.Timestamp
	Ext       Ext
	// FragIndex is set for erasure coded .data files only, it is
	// NoFragIndex otherwise.
	FragIndex int
	// CTypeTimestamp is set for .meta files carrying content type time.
	CTypeTimestamp *timestamp.Timestamp
}

// ctype returns content type timestamp or the zero one.
func (fi FileInfo) ctype() timestamp.Timestamp {
	if fi.CTypeTimestamp == nil {
		return timestamp.Timestamp{}
	}
	return *fi.CTypeTimestamp
}

func splitExt(name string) (string, Ext) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], Ext(name[i:])
}

// parseCommon decodes file names shared by all policies. Data names are
// not handled here.
func parseCommon(name string, stem string, ext Ext) (FileInfo, error) {
	fi := FileInfo{Filename: name, Ext: ext, FragIndex: NoFragIndex}

	if ext == ExtMeta {
		ts, ctype, ok, err := timestamp.DecodeWithDelta(stem, true)
		if err != nil {
			return fi, malformed("invalid timestamp value in filename '%s'", name)
		}
		fi.Timestamp = ts
		if ok {
			fi.CTypeTimestamp = &ctype
		}
		return fi, nil
	}

	ts, err := timestamp.Parse(stem)
	if err != nil {
		return fi, malformed("invalid timestamp value in filename '%s'", name)
	}
	fi.Timestamp = ts
	return fi, nil
}

func makeCommon(fi FileInfo) string {
	if fi.Ext == ExtMeta && fi.CTypeTimestamp != nil {
		return timestamp.EncodeWithDelta(fi.Timestamp, *fi.CTypeTimestamp, true) + string(ExtMeta)
	}
	return fi.Timestamp.Internal() + string(fi.Ext)
}

// ParseFragIndex parses fragment index from its decimal string form.
func ParseFragIndex(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return NoFragIndex, malformed("bad fragment index %q", s)
	}
	if v < 0 {
		return NoFragIndex, malformed("negative fragment index %d", v)
	}
	return v, nil
}
