package storage

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"fitsstore-go/pkg/errkind"
)

// HashFile 计算 r 中原始字节的 md5 与长度。
func HashFile(r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashData 计算逻辑内容的 md5 与长度。gzipped 时边解压边计算，不会把解压结果落地。
func HashData(r io.Reader, gzipped bool) (string, int64, error) {
	if !gzipped {
		return HashFile(r)
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return "", 0, errkind.Corrupt.Wrap(err)
	}
	defer zr.Close()
	h := md5.New()
	n, err := io.Copy(h, zr)
	if err != nil {
		return "", 0, errkind.Corrupt.Wrap(err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Hashes 是一次读取同时得到的文件哈希与数据哈希。
type Hashes struct {
	FileMD5  string
	FileSize int64
	DataMD5  string
	DataSize int64
}

// HashLocal 对本地文件计算文件哈希，gzipped 时再计算数据哈希；否则数据哈希等于文件哈希。
func HashLocal(path string, gzipped bool) (Hashes, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hashes{}, err
	}
	defer f.Close()

	var hs Hashes
	hs.FileMD5, hs.FileSize, err = HashFile(f)
	if err != nil {
		return Hashes{}, err
	}
	if !gzipped {
		hs.DataMD5, hs.DataSize = hs.FileMD5, hs.FileSize
		return hs, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Hashes{}, err
	}
	hs.DataMD5, hs.DataSize, err = HashData(f, true)
	if err != nil {
		return Hashes{}, err
	}
	return hs, nil
}

// DecompressTo 把 gzip 流解压写入 path，作为本次 ingest 的未压缩缓存。
func DecompressTo(r io.Reader, path string) (err error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return errkind.Corrupt.Wrap(err)
	}
	defer zr.Close()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if _, err = io.Copy(out, zr); err != nil {
		return errkind.Corrupt.Wrap(err)
	}
	return nil
}
