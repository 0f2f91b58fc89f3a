package diskfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sys/unix"
)

// Well-known metadata keys.
const (
	MetaName                 = "name"
	MetaTimestamp            = "X-Timestamp"
	MetaETag                 = "ETag"
	MetaContentLength        = "Content-Length"
	MetaContentType          = "Content-Type"
	MetaContentTypeTimestamp = "Content-Type-Timestamp"
	MetaDeleted              = "deleted"
	// MetaFragIndex is the fragment index of erasure coded data, it is
	// system metadata and is never changed by .meta overlays.
	MetaFragIndex = "X-Object-Sysmeta-Ec-Frag-Index"

	sysMetaPrefix = "x-object-sysmeta-"
)

const (
	metadataXattr = "user.neofs.diskfile.metadata"
	// Values up to 254 bytes are stored inline by XFS.
	xattrChunkSize = 254
)

var errNoMetadata = errors.New("no metadata")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoder: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decoder: %v", err))
	}
}

// isDataFileMeta tells whether the key always comes from the data file and
// is never overridden by .meta overlays.
func isDataFileMeta(key string) bool {
	k := strings.ToLower(key)
	switch k {
	case "content-length", "etag", MetaDeleted:
		return true
	}
	return strings.HasPrefix(k, sysMetaPrefix)
}

func xattrKey(i int) string {
	if i == 0 {
		return metadataXattr
	}
	return metadataXattr + strconv.Itoa(i)
}

// writeMetadata stores metadata in extended attributes of the open file,
// splitting it into chunks.
func writeMetadata(fd int, md map[string]string) error {
	data, err := encMode.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	for i := 0; len(data) > 0; i++ {
		n := min(len(data), xattrChunkSize)
		if err := unix.Fsetxattr(fd, xattrKey(i), data[:n], 0); err != nil {
			if isNoSpace(err) {
				return fmt.Errorf("%w: write metadata: %w", ErrNoSpace, err)
			}
			return fmt.Errorf("write metadata: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// readMetadata loads metadata written by writeMetadata.
func readMetadata(fd int) (map[string]string, error) {
	var data []byte
	for i := 0; ; i++ {
		chunk, err := getxattr(fd, xattrKey(i))
		if err != nil {
			if errors.Is(err, unix.ENODATA) {
				if i == 0 {
					return nil, errNoMetadata
				}
				break
			}
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		data = append(data, chunk...)
	}

	var md map[string]string
	if err := decMode.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if md == nil {
		return nil, errNoMetadata
	}
	return md, nil
}

func getxattr(fd int, key string) ([]byte, error) {
	for {
		sz, err := unix.Fgetxattr(fd, key, nil)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, sz)
		n, err := unix.Fgetxattr(fd, key, buf)
		if errors.Is(err, unix.ERANGE) {
			// grown concurrently
			continue
		}
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}

// readMetadataFile loads metadata of a file by path.
func readMetadataFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readMetadata(int(f.Fd()))
}
