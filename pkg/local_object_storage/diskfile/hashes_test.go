package diskfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testSuffix = "abc"
	testHash   = "0123456789abcdef0123456789abcabc"
)

func TestGetHashesReplicated(t *testing.T) {
	metrics := new(countingMetrics)
	e := newTestEnv(t, testReplicated, WithMetrics(metrics))
	partDir := e.partDir("0")
	suffixDir := filepath.Join(partDir, testSuffix)

	t.Run("empty partition", func(t *testing.T) {
		hashes, err := e.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.Empty(t, hashes)

		_, err = os.Stat(filepath.Join(partDir, HashesFile))
		require.NoError(t, err)
	})

	touch(t, filepath.Join(suffixDir, testHash), tsName(7, ExtData), tsName(6, ExtData))

	var digest string
	t.Run("new suffix", func(t *testing.T) {
		hashes, err := e.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.Len(t, hashes, 1)
		require.NotNil(t, hashes[testSuffix])
		require.NotEmpty(t, hashes[testSuffix].Digest)
		require.Nil(t, hashes[testSuffix].Fragments)
		digest = hashes[testSuffix].Digest

		require.Equal(t, []string{tsName(7, ExtData)}, listNames(t, filepath.Join(suffixDir, testHash)))

		persisted, err := readHashes(partDir)
		require.NoError(t, err)
		require.Equal(t, hashes, persisted)
	})

	t.Run("deterministic", func(t *testing.T) {
		other := newTestEnv(t, testReplicated)
		touch(t, filepath.Join(other.partDir("0"), testSuffix, testHash), tsName(7, ExtData))

		hashes, err := other.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.Equal(t, digest, hashes[testSuffix].Digest)
	})

	t.Run("stale without invalidation", func(t *testing.T) {
		touch(t, filepath.Join(suffixDir, testHash), tsName(8, ExtMeta))

		hashes, err := e.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.Equal(t, digest, hashes[testSuffix].Digest)

		hashes, err = e.m.GetHashes(testDevice, "0", []string{testSuffix, "fff"})
		require.NoError(t, err)
		require.NotEqual(t, digest, hashes[testSuffix].Digest)
		require.NotContains(t, hashes, "fff")
		digest = hashes[testSuffix].Digest
	})

	t.Run("invalidation", func(t *testing.T) {
		touch(t, filepath.Join(suffixDir, testHash), tsName(9, ExtMeta))

		require.NoError(t, e.m.InvalidateHash(suffixDir))
		require.NoError(t, e.m.InvalidateHash(suffixDir))

		log, err := os.ReadFile(filepath.Join(partDir, HashInvalidationsFile))
		require.NoError(t, err)
		require.Equal(t, "abc\nabc\n", string(log))

		hashes, err := e.m.ConsolidateHashes(partDir)
		require.NoError(t, err)
		require.Equal(t, PartitionHashes{testSuffix: nil}, hashes)

		log, err = os.ReadFile(filepath.Join(partDir, HashInvalidationsFile))
		require.NoError(t, err)
		require.Empty(t, log)

		hashes, err = e.m.ConsolidateHashes(partDir)
		require.NoError(t, err)
		require.Equal(t, PartitionHashes{testSuffix: nil}, hashes)

		hashes, err = e.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.NotEqual(t, digest, hashes[testSuffix].Digest)
	})

	t.Run("vanished suffix", func(t *testing.T) {
		touch(t, filepath.Join(partDir, "def", "0123456789abcdef0123456789abcdef"), tsName(7, ExtData))
		hashes, err := e.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.Len(t, hashes, 2)

		require.NoError(t, os.RemoveAll(filepath.Join(partDir, "def")))
		hashes, err = e.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.Len(t, hashes, 1)
		require.Contains(t, hashes, testSuffix)
	})

	t.Run("reclaimed suffix", func(t *testing.T) {
		hashDir := filepath.Join(partDir, "fed", "0123456789abcdef0123456789abcfed")
		touch(t, hashDir, tsName(7, ExtTombstone))

		hashes, err := e.m.GetHashes(testDevice, "0", []string{"fed"})
		require.NoError(t, err)
		require.NotContains(t, hashes, "fed")

		_, err = os.Stat(filepath.Join(partDir, "fed"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("corrupted hashes", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(partDir, HashesFile), []byte("garbage"), filePerm))

		hashes, err := e.m.ConsolidateHashes(partDir)
		require.NoError(t, err)
		require.Nil(t, hashes)

		hashes, err = e.m.GetHashes(testDevice, "0", nil)
		require.NoError(t, err)
		require.Equal(t, suffixDigest(t, e), hashes[testSuffix].Digest)

		_, err = readHashes(partDir)
		require.NoError(t, err)
	})

	t.Run("concurrent rewrite", func(t *testing.T) {
		written, err := e.m.writeHashesIfUnchanged(partDir, PartitionHashes{}, 1, false)
		require.NoError(t, err)
		require.False(t, written)

		mtime, err := hashesModTime(partDir)
		require.NoError(t, err)
		written, err = e.m.writeHashesIfUnchanged(partDir, PartitionHashes{}, mtime, false)
		require.NoError(t, err)
		require.True(t, written)
	})

	require.Positive(t, metrics.get(&metrics.hashed))
}

func TestGetHashesInvalidatedSuffix(t *testing.T) {
	metrics := new(countingMetrics)
	core, logs := observer.New(zap.DebugLevel)
	e := newTestEnv(t, testReplicated, WithMetrics(metrics), WithLogger(zap.New(core)))
	partDir := e.partDir("0")
	suffixDir := filepath.Join(partDir, testSuffix)

	touch(t, filepath.Join(suffixDir, testHash), tsName(7, ExtData))
	touch(t, filepath.Join(partDir, "def", "0123456789abcdef0123456789abcdef"), tsName(7, ExtData))

	initial, err := e.m.GetHashes(testDevice, "0", nil)
	require.NoError(t, err)
	require.Len(t, initial, 2)
	require.Equal(t, 2, metrics.get(&metrics.hashed))

	touch(t, filepath.Join(suffixDir, testHash), tsName(8, ExtMeta))
	require.NoError(t, e.m.InvalidateHash(suffixDir))

	hashes, err := e.m.GetHashes(testDevice, "0", nil)
	require.NoError(t, err)
	require.NotEqual(t, initial[testSuffix].Digest, hashes[testSuffix].Digest)
	require.Equal(t, initial["def"], hashes["def"])

	require.Equal(t, 3, metrics.get(&metrics.hashed))
	require.Zero(t, metrics.get(&metrics.retries))
	require.Zero(t, logs.FilterMessage("partition hashes changed concurrently, retrying").Len())

	persisted, err := readHashes(partDir)
	require.NoError(t, err)
	require.Equal(t, hashes, persisted)
}

// suffixDigest hashes the test suffix from scratch.
func suffixDigest(t *testing.T, e *testEnv) string {
	h, err := e.m.HashSuffix(filepath.Join(e.partDir("0"), testSuffix))
	require.NoError(t, err)
	return h.Digest
}

func TestInvalidateWithoutHashes(t *testing.T) {
	e := newTestEnv(t, testReplicated)
	suffixDir := filepath.Join(e.partDir("0"), testSuffix)
	touch(t, filepath.Join(suffixDir, testHash), tsName(7, ExtData))

	require.NoError(t, e.m.InvalidateHash(suffixDir))
	_, err := os.Stat(filepath.Join(e.partDir("0"), HashInvalidationsFile))
	require.ErrorIs(t, err, os.ErrNotExist)

	hashes, err := e.m.ConsolidateHashes(e.partDir("0"))
	require.NoError(t, err)
	require.Nil(t, hashes)
}

func TestHashSuffixEC(t *testing.T) {
	hashSuffix := func(t *testing.T, files ...string) *SuffixHash {
		e := newTestEnv(t, testEC)
		suffixDir := filepath.Join(e.partDir("0"), testSuffix)
		touch(t, filepath.Join(suffixDir, testHash), files...)

		h, err := e.m.HashSuffix(suffixDir)
		require.NoError(t, err)
		require.Empty(t, h.Digest)
		return h
	}

	// non-durable fragments must not be reclaimed
	r := testNow.Unix() - 60

	full := hashSuffix(t, fragName(r, 1), fragName(r, 2), tsName(r, ExtDurable))
	require.Len(t, full.Fragments, 3)
	require.Contains(t, full.Fragments, NoFragIndex)

	one := hashSuffix(t, fragName(r, 1), tsName(r, ExtDurable))
	require.Len(t, one.Fragments, 2)
	require.Equal(t, full.Fragments[NoFragIndex], one.Fragments[NoFragIndex])
	require.Equal(t, full.Fragments[1], one.Fragments[1])

	pending := hashSuffix(t, fragName(r, 1))
	require.NotEqual(t, one.Fragments[NoFragIndex], pending.Fragments[NoFragIndex])
	require.Equal(t, one.Fragments[1], pending.Fragments[1])
}

func TestHashSuffixStray(t *testing.T) {
	e := newTestEnv(t, testReplicated)
	suffixDir := filepath.Join(e.partDir("0"), testSuffix)
	touch(t, filepath.Join(suffixDir, testHash), tsName(7, ExtData))
	touch(t, suffixDir, "0123456789abcdef0123456789abcaaa")

	h, err := e.m.HashSuffix(suffixDir)
	require.NoError(t, err)
	require.NotEmpty(t, h.Digest)

	require.Equal(t, []string{testHash}, listNames(t, suffixDir))
	require.Equal(t, []string{"0123456789abcdef0123456789abcaaa"},
		listNames(t, filepath.Join(e.devPath, quarantineDirName, testReplicated.DataDir())))
}

func TestYieldSuffixes(t *testing.T) {
	e := newTestEnv(t, testReplicated)
	for _, s := range []string{"fff", "abc", "ABC", "xyz", "0000"} {
		require.NoError(t, os.MkdirAll(filepath.Join(e.partDir("7"), s), dirPerm))
	}

	var res []string
	require.NoError(t, e.m.YieldSuffixes(testDevice, "7", func(suffixDir, suffix string) error {
		require.Equal(t, filepath.Join(e.partDir("7"), suffix), suffixDir)
		res = append(res, suffix)
		return nil
	}))
	require.Equal(t, []string{"abc", "fff"}, res)
}

func TestHashesCodec(t *testing.T) {
	h := PartitionHashes{
		"abc": {Digest: "00"},
		"def": nil,
		"fed": {Fragments: map[int]string{NoFragIndex: "01", 3: "02"}},
	}

	data, err := encodeHashes(h)
	require.NoError(t, err)
	require.Equal(t, hashesMagic, data[:len(hashesMagic)])

	res, err := decodeHashes(data)
	require.NoError(t, err)
	require.Equal(t, h, res)

	data[len(hashesMagic)] = 2
	_, err = decodeHashes(data)
	require.ErrorIs(t, err, errCorruptHashes)
}
