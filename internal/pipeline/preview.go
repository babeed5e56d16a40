package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fitsstore-go/internal/model"
	"fitsstore-go/internal/queue"
	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/fits"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/metrics"
	"fitsstore-go/pkg/storage"
)

// PreviewWorker 为 DiskFile 生成 jpeg 预览图并写回 blob store。
type PreviewWorker struct {
	queue   *queue.Preview
	files   repository.FileRepository
	store   storage.Store
	prefix  string
	staging string
	metrics *metrics.Collector
}

// NewPreviewWorker 创建 preview worker；预览图写在 store 的 prefix 之下。
func NewPreviewWorker(db *gorm.DB, store storage.Store, prefix, staging string, m *metrics.Collector) *PreviewWorker {
	return &PreviewWorker{
		queue:   queue.NewPreview(db),
		files:   repository.NewFileRepository(db),
		store:   store,
		prefix:  prefix,
		staging: staging,
		metrics: m,
	}
}

func (w *PreviewWorker) Name() string { return QueuePreview }

func (w *PreviewWorker) Length(ctx context.Context) (int64, error) {
	return w.queue.Length(ctx)
}

func (w *PreviewWorker) Step(ctx context.Context) (bool, error) {
	e, err := w.queue.Pop(ctx, false)
	if err != nil {
		return false, errkind.Transient.Wrap(err)
	}
	if e == nil {
		return false, nil
	}
	start := time.Now()
	made, err := w.Preview(ctx, e)
	if err != nil {
		log.Errorf("[Preview] diskfile_id=%d 失败: %v", e.DiskFileID, err)
		if ferr := w.queue.Fail(ctx, e.ID, err); ferr != nil {
			log.Errorf("[Preview] 记录失败状态出错, id=%d: %v", e.ID, ferr)
		}
		w.metrics.Processed(QueuePreview, metrics.OutcomeFailed, time.Since(start))
		return true, nil
	}
	if err := w.queue.Done(ctx, e.ID); err != nil {
		log.Errorf("[Preview] 删除队列行失败, id=%d: %v", e.ID, err)
	}
	outcome := metrics.OutcomeDone
	if !made {
		outcome = metrics.OutcomeSkipped
	}
	w.metrics.Processed(QueuePreview, outcome, time.Since(start))
	return true, nil
}

// PreviewName 返回 DiskFile 预览图的对象名。
func PreviewName(prefix, filename string) string {
	base := strings.TrimSuffix(storage.CanonicalName(filename), ".fits")
	return storage.Join(prefix, base+".jpg")
}

// Preview 生成预览图。已有预览且未要求 force 时返回 false。
func (w *PreviewWorker) Preview(ctx context.Context, e *model.PreviewQueue) (bool, error) {
	df, err := w.files.FindDiskFileByID(ctx, e.DiskFileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Preview] diskfile_id=%d 不存在，跳过", e.DiskFileID)
		return false, nil
	}
	if err != nil {
		return false, errkind.Transient.Wrap(err)
	}
	if !e.Force {
		_, err := w.files.FindPreview(ctx, df.ID)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, errkind.Transient.Wrap(err)
		}
	}

	staging := w.staging
	if staging == "" {
		staging = os.TempDir()
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return false, err
	}
	local, err := errkind.Retry(ctx, func() (string, error) {
		return w.store.FetchToLocal(ctx, df.FullPath(), staging)
	})
	if err != nil {
		return false, err
	}
	if w.store.Remote() {
		defer os.Remove(local)
	}
	if df.Gzipped {
		cache := filepath.Join(staging, uuid.NewString()+".fits")
		if err := decompressFile(local, cache); err != nil {
			return false, err
		}
		defer os.Remove(cache)
		local = cache
	}

	img, err := fits.RenderPreview(ctx, local)
	if err != nil {
		return false, err
	}
	var buf bytes.Buffer
	if err := fits.EncodeJPEG(&buf, img); err != nil {
		return false, err
	}
	name := PreviewName(w.prefix, df.Filename)
	size := int64(buf.Len())
	if err := errkind.RetryDo(ctx, func() error {
		return w.store.Put(ctx, name, bytes.NewReader(buf.Bytes()), size)
	}); err != nil {
		return false, err
	}
	if err := w.files.SavePreview(ctx, &model.Preview{DiskFileID: df.ID, Filename: name}); err != nil {
		return false, errkind.Transient.Wrap(err)
	}
	log.Infof("[Preview] %s -> %s (%d 字节)", df.Filename, name, size)
	return true, nil
}
