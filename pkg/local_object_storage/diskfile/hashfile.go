package diskfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Partition hash index files.
const (
	HashesFile            = "hashes.bin"
	HashInvalidationsFile = "hashes.invalid"
)

const hashesVersion = 1

var hashesMagic = []byte("NFDH")

var errCorruptHashes = errors.New("corrupted hashes file")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
}

type hashesRecord struct {
	Hashes PartitionHashes `cbor:"1,keyasint"`
}

// encodeHashes serializes hashes as magic, version byte and compressed
// CBOR body.
func encodeHashes(h PartitionHashes) ([]byte, error) {
	body, err := encMode.Marshal(hashesRecord{Hashes: h})
	if err != nil {
		return nil, err
	}

	res := make([]byte, 0, len(hashesMagic)+1+len(body))
	res = append(res, hashesMagic...)
	res = append(res, hashesVersion)
	return zstdEncoder.EncodeAll(body, res), nil
}

func decodeHashes(data []byte) (PartitionHashes, error) {
	if len(data) < len(hashesMagic)+1 || !bytes.Equal(data[:len(hashesMagic)], hashesMagic) {
		return nil, fmt.Errorf("%w: bad header", errCorruptHashes)
	}
	if v := data[len(hashesMagic)]; v != hashesVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorruptHashes, v)
	}

	body, err := zstdDecoder.DecodeAll(data[len(hashesMagic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptHashes, err)
	}

	var rec hashesRecord
	if err := decMode.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptHashes, err)
	}
	if rec.Hashes == nil {
		rec.Hashes = make(PartitionHashes)
	}
	return rec.Hashes, nil
}

// readHashes loads persisted partition hashes. Missing file results in
// fs.ErrNotExist, undecodable one in errCorruptHashes.
func readHashes(partDir string) (PartitionHashes, error) {
	data, err := os.ReadFile(filepath.Join(partDir, HashesFile))
	if err != nil {
		return nil, err
	}
	return decodeHashes(data)
}

// writeHashes atomically replaces persisted partition hashes.
func writeHashes(partDir string, h PartitionHashes) error {
	data, err := encodeHashes(h)
	if err != nil {
		return fmt.Errorf("encode hashes: %w", err)
	}
	return writeFileAtomic(partDir, filepath.Join(partDir, HashesFile), data)
}

// writeFileAtomic writes data to a temporary file in tmpDir, syncs it and
// renames it to target.
func writeFileAtomic(tmpDir, target string, data []byte) error {
	f, err := os.CreateTemp(tmpDir, ".tmp-")
	if err != nil {
		return classifyNoSpace(err)
	}
	tmp := f.Name()

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, target)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return classifyNoSpace(err)
	}
	return nil
}

// hashesModTime returns modification time of the hashes file in
// nanoseconds or -1 if there is no such file.
func hashesModTime(partDir string) (int64, error) {
	fi, err := os.Stat(filepath.Join(partDir, HashesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return -1, nil
		}
		return 0, err
	}
	return fi.ModTime().UnixNano(), nil
}
