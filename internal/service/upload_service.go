package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"

	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/storage"
)

// UploadResult 是 upload_file 回显给发送端的一项，发送端据此核对传输结果。
type UploadResult struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MD5      string `json:"md5"`
}

// UploadService 接收对端导出或运维上传的文件，写入存储后登记 ingest。
type UploadService struct {
	store          storage.Store
	queues         *QueueService
	reducedCalsDir string
}

// NewUploadService 创建 UploadService。reducedCalsDir 是处理后定标文件的存储前缀。
func NewUploadService(store storage.Store, queues *QueueService, reducedCalsDir string) *UploadService {
	return &UploadService{store: store, queues: queues, reducedCalsDir: reducedCalsDir}
}

// Upload 边写入存储边计算 md5 与长度。processedCal 为 true 时写到处理后定标目录。
// size 为 -1 表示长度未知。
func (s *UploadService) Upload(ctx context.Context, filename string, body io.Reader, size int64, processedCal bool) (*UploadResult, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	path := ""
	if processedCal {
		path = s.reducedCalsDir
	}
	name := storage.Join(path, filename)

	h := md5.New()
	cr := &countingReader{r: io.TeeReader(body, h)}
	if err := s.store.Put(ctx, name, cr, size); err != nil {
		log.Errorf("[UploadService] 写入 %s 失败: %v", name, err)
		return nil, errkind.Transient.Wrap(err)
	}
	if size >= 0 && cr.n != size {
		_ = s.store.Delete(ctx, name)
		return nil, errkind.Validation.New("received %d bytes, expected %d", cr.n, size)
	}
	res := &UploadResult{Filename: filename, Size: cr.n, MD5: hex.EncodeToString(h.Sum(nil))}
	log.Infof("[UploadService] 收到 %s: %d 字节, md5=%s", name, res.Size, res.MD5)

	if _, err := s.queues.EnqueueIngest(ctx, IngestRequest{Filename: filename, Path: path}); err != nil {
		return nil, err
	}
	return res, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
