package pipeline

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"fitsstore-go/internal/calibration"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/queue"
	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/metrics"
)

// CacheInvalidator 丢弃某个观测已缓存的定标查询响应。
type CacheInvalidator interface {
	Invalidate(ctx context.Context, obsHID uint) error
}

// CalCacheWorker 为科学观测重新计算并物化定标关联结果。
type CalCacheWorker struct {
	db         *gorm.DB
	queue      *queue.CalCache
	headers    repository.HeaderRepository
	cache      repository.CalCacheRepository
	invalidate CacheInvalidator
	metrics    *metrics.Collector
}

// NewCalCacheWorker 创建 calcache worker。inv 与 m 可以为空。
func NewCalCacheWorker(db *gorm.DB, inv CacheInvalidator, m *metrics.Collector) *CalCacheWorker {
	return &CalCacheWorker{
		db:         db,
		queue:      queue.NewCalCache(db),
		headers:    repository.NewHeaderRepository(db),
		cache:      repository.NewCalCacheRepository(db),
		invalidate: inv,
		metrics:    m,
	}
}

func (w *CalCacheWorker) Name() string { return QueueCalCache }

func (w *CalCacheWorker) Length(ctx context.Context) (int64, error) {
	return w.queue.Length(ctx)
}

func (w *CalCacheWorker) Step(ctx context.Context) (bool, error) {
	e, err := w.queue.Pop(ctx, false)
	if err != nil {
		return false, errkind.Transient.Wrap(err)
	}
	if e == nil {
		return false, nil
	}
	start := time.Now()
	if err := w.Compute(ctx, e.ObsHID); err != nil {
		log.Errorf("[CalCache] obs_hid=%d 失败: %v", e.ObsHID, err)
		if ferr := w.queue.Fail(ctx, e.ID, err); ferr != nil {
			log.Errorf("[CalCache] 记录失败状态出错, id=%d: %v", e.ID, ferr)
		}
		w.metrics.Processed(QueueCalCache, metrics.OutcomeFailed, time.Since(start))
		return true, nil
	}
	if err := w.queue.Done(ctx, e.ID); err != nil {
		log.Errorf("[CalCache] 删除队列行失败, id=%d: %v", e.ID, err)
	}
	w.metrics.Processed(QueueCalCache, metrics.OutcomeDone, time.Since(start))
	return true, nil
}

// Compute 对观测的每个适用定标类型求候选，并在一个事务中替换其缓存行。
func (w *CalCacheWorker) Compute(ctx context.Context, obsHID uint) error {
	h, err := w.headers.FindByID(ctx, obsHID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[CalCache] header_id=%d 不存在，跳过", obsHID)
		return nil
	}
	if err != nil {
		return errkind.Transient.Wrap(err)
	}
	c, err := calibration.FromHeader(ctx, w.db, h)
	if err != nil {
		return err
	}
	results, err := calibration.All(ctx, c)
	if err != nil {
		return err
	}
	byType := make(map[string][]uint, len(results))
	total := 0
	for _, r := range results {
		ids := make([]uint, 0, len(r.Headers))
		for _, cal := range r.Headers {
			ids = append(ids, cal.ID)
		}
		byType[r.CalType] = ids
		total += len(ids)
	}
	if err := w.cache.Replace(ctx, obsHID, byType); err != nil {
		return errkind.Transient.Wrap(err)
	}
	log.Infof("[CalCache] obs_hid=%d: %d 种定标类型, %d 行", obsHID, len(byType), total)
	if w.invalidate != nil {
		if err := w.invalidate.Invalidate(ctx, obsHID); err != nil {
			log.Warnf("[CalCache] 清除 obs_hid=%d 的响应缓存失败: %v", obsHID, err)
		}
	}
	return nil
}

// EnqueueHeaders 为给定的 header 登记重算任务，供批量重建使用。
func EnqueueHeaders(ctx context.Context, q *queue.CalCache, hs []model.Header) error {
	for i := range hs {
		row := &model.CalCacheQueue{ObsHID: hs[i].ID, QueueFields: model.QueueFields{SortKey: CalCacheSortKey(&hs[i])}}
		if _, err := q.Enqueue(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
