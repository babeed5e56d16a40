package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"fitsstore-go/internal/model"
	"fitsstore-go/internal/pipeline"
	"fitsstore-go/internal/queue"
	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/storage"
	"fitsstore-go/pkg/tasks"
)

// IngestRequest 是 ingest 入队请求。
type IngestRequest struct {
	Filename string     `json:"filename" binding:"required"`
	Path     string     `json:"path"`
	Force    bool       `json:"force"`
	ForceMD5 bool       `json:"force_md5"`
	After    *time.Time `json:"after"`
}

// ExportRequest 是 export 入队请求。
type ExportRequest struct {
	Filename    string `json:"filename" binding:"required"`
	Path        string `json:"path"`
	Destination string `json:"destination" binding:"required"`
}

// QueueStatus 是某个队列的长度与前若干行（包括卡住与失败的行）。
type QueueStatus struct {
	Queue   string      `json:"queue"`
	Length  int64       `json:"length"`
	Entries interface{} `json:"entries"`
}

// QueueService 负责四个队列的入队与状态查询，同时消费 Kafka 的 ingest 通知。
type QueueService struct {
	ingest   *queue.Ingest
	export   *queue.Export
	preview  *queue.Preview
	calcache *queue.CalCache
	headers  repository.HeaderRepository
	files    repository.FileRepository
}

// NewQueueService 创建 QueueService。
func NewQueueService(db *gorm.DB) *QueueService {
	return &QueueService{
		ingest:   queue.NewIngest(db),
		export:   queue.NewExport(db),
		preview:  queue.NewPreview(db),
		calcache: queue.NewCalCache(db),
		headers:  repository.NewHeaderRepository(db),
		files:    repository.NewFileRepository(db),
	}
}

// ValidateFilename 拒绝空文件名以及包含路径分隔符的文件名。
func ValidateFilename(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errkind.Validation.New("invalid filename %q", name)
	}
	return nil
}

func validatePath(path string) error {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return errkind.Validation.New("invalid path %q", path)
		}
	}
	return nil
}

// EnqueueIngest 登记一次 ingest。
func (s *QueueService) EnqueueIngest(ctx context.Context, req IngestRequest) (uint, error) {
	if err := ValidateFilename(req.Filename); err != nil {
		return 0, err
	}
	if err := validatePath(req.Path); err != nil {
		return 0, err
	}
	row := &model.IngestQueue{
		Filename: req.Filename,
		Path:     strings.Trim(req.Path, "/"),
		Force:    req.Force,
		ForceMD5: req.ForceMD5,
	}
	if req.After != nil {
		row.After = req.After.UTC()
	}
	id, err := s.ingest.Enqueue(ctx, row)
	if err != nil {
		return 0, errkind.Transient.Wrap(err)
	}
	log.Infof("[QueueService] ingest 入队: %s (id=%d)", storage.Join(row.Path, row.Filename), id)
	return id, nil
}

// EnqueueExport 登记一次向对端的导出。
func (s *QueueService) EnqueueExport(ctx context.Context, req ExportRequest) (uint, error) {
	if err := ValidateFilename(req.Filename); err != nil {
		return 0, err
	}
	if err := validatePath(req.Path); err != nil {
		return 0, err
	}
	if strings.TrimSpace(req.Destination) == "" {
		return 0, errkind.Validation.New("destination is required")
	}
	id, err := s.export.Enqueue(ctx, &model.ExportQueue{
		Filename:    req.Filename,
		Path:        strings.Trim(req.Path, "/"),
		Destination: req.Destination,
	})
	if err != nil {
		return 0, errkind.Transient.Wrap(err)
	}
	log.Infof("[QueueService] export 入队: %s -> %s (id=%d)", req.Filename, req.Destination, id)
	return id, nil
}

// EnqueuePreview 登记一次预览生成，按 DiskFile 的文件名排序。DiskFile 必须存在。
func (s *QueueService) EnqueuePreview(ctx context.Context, diskFileID uint, force bool) (uint, error) {
	if diskFileID == 0 {
		return 0, errkind.Validation.New("diskfile_id is required")
	}
	df, err := s.files.FindDiskFileByID(ctx, diskFileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errkind.NotFound.New("diskfile %d", diskFileID)
	}
	if err != nil {
		return 0, errkind.Transient.Wrap(err)
	}
	id, err := s.preview.Enqueue(ctx, &model.PreviewQueue{
		DiskFileID:  diskFileID,
		Force:       force,
		QueueFields: model.QueueFields{SortKey: df.Filename},
	})
	if err != nil {
		return 0, errkind.Transient.Wrap(err)
	}
	return id, nil
}

// EnqueueCalCache 登记一次定标缓存重算。header 必须存在。
func (s *QueueService) EnqueueCalCache(ctx context.Context, obsHID uint) (uint, error) {
	if obsHID == 0 {
		return 0, errkind.Validation.New("obs_hid is required")
	}
	h, err := s.headers.FindByID(ctx, obsHID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errkind.NotFound.New("header %d", obsHID)
	}
	if err != nil {
		return 0, errkind.Transient.Wrap(err)
	}
	id, err := s.calcache.Enqueue(ctx, &model.CalCacheQueue{
		ObsHID:      obsHID,
		QueueFields: model.QueueFields{SortKey: pipeline.CalCacheSortKey(h)},
	})
	if err != nil {
		return 0, errkind.Transient.Wrap(err)
	}
	return id, nil
}

// Status 返回队列长度与前 limit 行。
func (s *QueueService) Status(ctx context.Context, name string, limit int) (*QueueStatus, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		n       int64
		entries interface{}
		err     error
	)
	switch name {
	case pipeline.QueueIngest:
		n, entries, err = status(ctx, s.ingest, limit)
	case pipeline.QueueExport:
		n, entries, err = status(ctx, s.export, limit)
	case pipeline.QueuePreview:
		n, entries, err = status(ctx, s.preview, limit)
	case pipeline.QueueCalCache:
		n, entries, err = status(ctx, s.calcache, limit)
	default:
		return nil, errkind.Validation.New("unknown queue %q", name)
	}
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	return &QueueStatus{Queue: name, Length: n, Entries: entries}, nil
}

func status[T any, PT interface {
	*T
	queue.Entry
}](ctx context.Context, q *queue.Queue[T, PT], limit int) (int64, []T, error) {
	n, err := q.Length(ctx)
	if err != nil {
		return 0, nil, err
	}
	rows, err := q.List(ctx, limit)
	return n, rows, err
}

// HandleNotification 把山顶写入端的 Kafka 通知转换为 ingest 入队。
func (s *QueueService) HandleNotification(ctx context.Context, n tasks.IngestNotification) error {
	_, err := s.EnqueueIngest(ctx, IngestRequest{
		Filename: n.Filename,
		Path:     n.Path,
		Force:    n.Force,
		ForceMD5: n.ForceMD5,
	})
	return err
}
