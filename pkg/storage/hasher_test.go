package storage

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsstore-go/pkg/errkind"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestHashDataMatchesDecompressedBytes(t *testing.T) {
	data := bytes.Repeat([]byte("SIMPLE  =                    T"), 200)
	compressed := gzipBytes(t, data)

	fileMD5, fileSize, err := HashFile(bytes.NewReader(compressed))
	require.NoError(t, err)
	assert.Equal(t, md5hex(compressed), fileMD5)
	assert.Equal(t, int64(len(compressed)), fileSize)

	dataMD5, dataSize, err := HashData(bytes.NewReader(compressed), true)
	require.NoError(t, err)
	assert.Equal(t, md5hex(data), dataMD5)
	assert.Equal(t, int64(len(data)), dataSize)
}

func TestHashLocalUncompressedDataEqualsFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "N20200115S0001.fits")
	require.NoError(t, os.WriteFile(p, []byte("plain bytes"), 0o644))

	hs, err := HashLocal(p, false)
	require.NoError(t, err)
	assert.Equal(t, hs.FileMD5, hs.DataMD5)
	assert.Equal(t, hs.FileSize, hs.DataSize)
}

func TestHashLocalGzipped(t *testing.T) {
	data := []byte("logical content")
	p := filepath.Join(t.TempDir(), "N20200115S0001.fits.gz")
	require.NoError(t, os.WriteFile(p, gzipBytes(t, data), 0o644))

	hs, err := HashLocal(p, true)
	require.NoError(t, err)
	assert.Equal(t, md5hex(data), hs.DataMD5)
	assert.Equal(t, int64(len(data)), hs.DataSize)
	assert.NotEqual(t, hs.FileMD5, hs.DataMD5)
}

func TestHashDataCorruptGzip(t *testing.T) {
	_, _, err := HashData(bytes.NewReader([]byte("not a gzip stream")), true)
	require.Error(t, err)
	assert.True(t, errkind.Corrupt.Has(err))
}

func TestDecompressTo(t *testing.T) {
	data := []byte("uncompressed cache")
	dst := filepath.Join(t.TempDir(), "cache.fits")
	require.NoError(t, DecompressTo(bytes.NewReader(gzipBytes(t, data)), dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNames(t *testing.T) {
	assert.True(t, IsGzipped("a.fits.gz"))
	assert.False(t, IsGzipped("a.fits"))
	assert.Equal(t, "a.fits", CanonicalName("a.fits.gz"))
	assert.Equal(t, "a.fits", CanonicalName("a.fits"))
	assert.Equal(t, "a.fits", Join("", "a.fits"))
	assert.Equal(t, "2020/a.fits", Join("/2020/", "a.fits"))
}
