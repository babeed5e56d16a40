package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fitsstore-go/internal/config"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/queue"
	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/es"
	"fitsstore-go/pkg/fits"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/metrics"
	"fitsstore-go/pkg/notify"
	"fitsstore-go/pkg/storage"
	"fitsstore-go/pkg/tasks"
	"fitsstore-go/pkg/verify"
)

// Verifier 运行外部校验程序，未配置的程序返回 nil 报告。
type Verifier interface {
	Fitsverify(ctx context.Context, path string) (*verify.FitsverifyReport, error)
	MDValidate(ctx context.Context, path string) (*verify.MDReport, error)
}

// EventPublisher 发布归档事件。
type EventPublisher interface {
	Publish(ctx context.Context, ev tasks.ArchiveEvent) error
}

// HeaderIndexer 把全文头信息写入检索引擎。
type HeaderIndexer interface {
	IndexHeader(ctx context.Context, doc es.HeaderDocument) error
}

// IngestConfig 是 ingest worker 的业务配置。
type IngestConfig struct {
	DeferSeconds       int
	ExportDestinations []string
	MakePreviews       bool
	PopulateCalCache   bool
	StagingDir         string
}

// IngestConfigFrom 从全局配置中取出 ingest 相关的部分。
func IngestConfigFrom(cfg *config.Config) IngestConfig {
	return IngestConfig{
		DeferSeconds:       cfg.Archive.DeferSeconds,
		ExportDestinations: cfg.Archive.ExportDestinations,
		MakePreviews:       cfg.Archive.MakePreviews,
		PopulateCalCache:   cfg.Archive.PopulateCalCache,
		StagingDir:         cfg.Storage.StagingDir,
	}
}

// IngestDeps 汇总 IngestWorker 的依赖。Verifier、Events、Indexer、Notifier、Metrics 可以为空。
type IngestDeps struct {
	DB        *gorm.DB
	Store     storage.Store
	Extractor fits.Extractor
	Verifier  Verifier
	Events    EventPublisher
	Indexer   HeaderIndexer
	Notifier  notify.Notifier
	Metrics   *metrics.Collector
}

// 单个 ingest 条目的处理结果。
const (
	IngestAdded     = "added"
	IngestUnchanged = "unchanged"
	IngestMissing   = "missing"
	IngestDeferred  = "deferred"
)

// IngestResult 描述一次 ingest 的结果。
type IngestResult struct {
	Outcome    string
	DiskFile   *model.DiskFile
	Header     *model.Header
	Superseded *model.DiskFile
}

// IngestWorker 消费 ingest 队列，把 blob store 中的文件登记为 DiskFile/Header。
type IngestWorker struct {
	db         *gorm.DB
	queue      *queue.Ingest
	exports    *queue.Export
	previews   *queue.Preview
	calcaches  *queue.CalCache
	files      repository.FileRepository
	headers    repository.HeaderRepository
	footprints repository.FootprintRepository
	store      storage.Store
	extractor  fits.Extractor
	verifier   Verifier
	events     EventPublisher
	indexer    HeaderIndexer
	notifier   notify.Notifier
	metrics    *metrics.Collector
	cfg        IngestConfig
	now        func() time.Time
}

// NewIngestWorker 创建 ingest worker。
func NewIngestWorker(deps IngestDeps, cfg IngestConfig) *IngestWorker {
	n := deps.Notifier
	if n == nil {
		n = notify.LogOnly{}
	}
	return &IngestWorker{
		db:         deps.DB,
		queue:      queue.NewIngest(deps.DB),
		exports:    queue.NewExport(deps.DB),
		previews:   queue.NewPreview(deps.DB),
		calcaches:  queue.NewCalCache(deps.DB),
		files:      repository.NewFileRepository(deps.DB),
		headers:    repository.NewHeaderRepository(deps.DB),
		footprints: repository.NewFootprintRepository(deps.DB),
		store:      deps.Store,
		extractor:  deps.Extractor,
		verifier:   deps.Verifier,
		events:     deps.Events,
		indexer:    deps.Indexer,
		notifier:   n,
		metrics:    deps.Metrics,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock 替换时间源，同时作用于内部队列，仅用于测试。
func (w *IngestWorker) SetClock(now func() time.Time) {
	w.now = now
	w.queue.SetClock(now)
	w.exports.SetClock(now)
	w.previews.SetClock(now)
	w.calcaches.SetClock(now)
}

func (w *IngestWorker) Name() string { return QueueIngest }

func (w *IngestWorker) Length(ctx context.Context) (int64, error) {
	return w.queue.Length(ctx)
}

// Step 取出一行并处理。成功删除该行；推迟则释放并设置 after；
// 失败时行保持 inprogress=true，等待运维处理。
func (w *IngestWorker) Step(ctx context.Context) (bool, error) {
	e, err := w.queue.Pop(ctx, false)
	if err != nil {
		return false, errkind.Transient.Wrap(err)
	}
	if e == nil {
		return false, nil
	}
	start := w.now()
	res, err := w.Ingest(ctx, e)
	if err != nil {
		w.metrics.Processed(QueueIngest, metrics.OutcomeFailed, w.now().Sub(start))
		log.Errorf("[Ingest] 处理 %s 失败: %v", e.Filename, err)
		if ferr := w.queue.Fail(ctx, e.ID, err); ferr != nil {
			log.Errorf("[Ingest] 记录失败状态出错, id=%d: %v", e.ID, ferr)
		}
		if errkind.Conflict.Has(err) {
			subject := fmt.Sprintf("fitsstore ingest conflict: %s", e.Filename)
			if nerr := w.notifier.Notify(ctx, subject, err.Error()); nerr != nil {
				log.Errorf("[Ingest] 发送通知失败: %v", nerr)
			}
			return true, err
		}
		return true, nil
	}

	if res.Outcome == IngestDeferred {
		until := w.now().Add(time.Duration(w.cfg.DeferSeconds) * time.Second)
		if err := w.queue.Defer(ctx, e.ID, until); err != nil {
			log.Errorf("[Ingest] 推迟 %s 失败: %v", e.Filename, err)
		}
		w.metrics.Processed(QueueIngest, metrics.OutcomeDeferred, w.now().Sub(start))
		return true, nil
	}
	if err := w.queue.Done(ctx, e.ID); err != nil {
		log.Errorf("[Ingest] 删除队列行失败, id=%d: %v", e.ID, err)
	}
	outcome := metrics.OutcomeDone
	if res.Outcome != IngestAdded {
		outcome = metrics.OutcomeSkipped
	}
	w.metrics.Processed(QueueIngest, outcome, w.now().Sub(start))
	return true, nil
}

// Ingest 处理一个 ingest 条目，不涉及队列行本身的状态。
func (w *IngestWorker) Ingest(ctx context.Context, e *model.IngestQueue) (*IngestResult, error) {
	name := storage.Join(e.Path, e.Filename)
	fileName := storage.CanonicalName(e.Filename)
	log.Infof("[Ingest] 开始处理 %s (force=%t, force_md5=%t)", name, e.Force, e.ForceMD5)

	// 1. 探测
	info, err := errkind.Retry(ctx, func() (storage.ObjectInfo, error) {
		return w.store.Stat(ctx, name)
	})
	if errkind.NotFound.Has(err) {
		return w.vanished(ctx, fileName)
	}
	if err != nil {
		return nil, err
	}
	if w.cfg.DeferSeconds > 0 {
		age := w.now().Sub(info.LastMod)
		if age < time.Duration(w.cfg.DeferSeconds)*time.Second {
			log.Infof("[Ingest] %s 在 %s 前刚被修改，推迟处理", name, age)
			return &IngestResult{Outcome: IngestDeferred}, nil
		}
	}

	// 2. File 行
	file, err := w.files.FindOrCreateFile(ctx, fileName)
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}

	// 3. 变更检测
	present, err := w.files.PresentDiskFiles(ctx, file.ID)
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	if len(present) > 1 {
		return nil, errkind.Conflict.New("file %s has %d present diskfiles", fileName, len(present))
	}
	var old *model.DiskFile
	if len(present) == 1 {
		old = &present[0]
		changed, err := w.changed(ctx, e, name, info, old)
		if err != nil {
			return nil, err
		}
		if !changed {
			log.Infof("[Ingest] %s 未变化，diskfile_id=%d", name, old.ID)
			return &IngestResult{Outcome: IngestUnchanged, DiskFile: old}, nil
		}
	}

	// 4. 替换旧版本
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		files := w.files.WithTx(tx)
		if old != nil {
			if err := files.MarkNotPresent(ctx, old.ID); err != nil {
				return err
			}
		}
		return files.ClearCanonical(ctx, file.ID)
	})
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	if old != nil {
		log.Infof("[Ingest] %s 已变化，diskfile_id=%d 不再 present", name, old.ID)
	}

	// 5-8. 取回、提取并登记
	df, h, err := w.create(ctx, e, file, name, info)
	if err != nil {
		return nil, err
	}
	log.Infof("[Ingest] %s 登记完成, diskfile_id=%d, header_id=%d", name, df.ID, h.ID)

	// 9. 后续队列
	w.chain(ctx, e, df, h, old)
	return &IngestResult{Outcome: IngestAdded, DiskFile: df, Header: h, Superseded: old}, nil
}

// vanished 处理 blob store 中已不存在的文件：把仍 present 的版本置为不存在。
func (w *IngestWorker) vanished(ctx context.Context, fileName string) (*IngestResult, error) {
	file, err := w.files.FindFileByName(ctx, fileName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Ingest] %s 不存在且从未登记", fileName)
			return &IngestResult{Outcome: IngestMissing}, nil
		}
		return nil, errkind.Transient.Wrap(err)
	}
	present, err := w.files.PresentDiskFiles(ctx, file.ID)
	if err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	ids := make([]uint, 0, len(present))
	for _, df := range present {
		ids = append(ids, df.ID)
	}
	if err := w.files.MarkNotPresent(ctx, ids...); err != nil {
		return nil, errkind.Transient.Wrap(err)
	}
	log.Warnf("[Ingest] %s 已从存储中消失，%d 个 diskfile 标记为不存在", fileName, len(ids))
	return &IngestResult{Outcome: IngestMissing}, nil
}

// changed 判断存储中的字节是否与 present 版本不同。
func (w *IngestWorker) changed(ctx context.Context, e *model.IngestQueue, name string, info storage.ObjectInfo, old *model.DiskFile) (bool, error) {
	if e.Force {
		return true, nil
	}
	if w.store.Remote() {
		sum := info.ETagMD5
		if sum == "" {
			var err error
			if sum, err = w.fileMD5(ctx, name); err != nil {
				return false, err
			}
		}
		return sum != old.FileMD5, nil
	}
	if sameSecond(info.LastMod, old.LastMod) && !e.ForceMD5 {
		return false, nil
	}
	sum, err := w.fileMD5(ctx, name)
	if err != nil {
		return false, err
	}
	return sum != old.FileMD5, nil
}

func (w *IngestWorker) fileMD5(ctx context.Context, name string) (string, error) {
	return errkind.Retry(ctx, func() (string, error) {
		rc, err := w.store.Open(ctx, name)
		if err != nil {
			return "", err
		}
		defer rc.Close()
		sum, _, err := storage.HashFile(rc)
		if err != nil {
			return "", errkind.Transient.Wrap(err)
		}
		return sum, nil
	})
}

// sameSecond 按秒比较时间，数据库可能不保留亚秒精度。
func sameSecond(a, b time.Time) bool {
	return a.UTC().Truncate(time.Second).Equal(b.UTC().Truncate(time.Second))
}

func (w *IngestWorker) stagingDir() (string, error) {
	dir := w.cfg.StagingDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// create 执行取回、哈希、外部校验与描述符提取，然后在一个事务里写入全部行。
func (w *IngestWorker) create(ctx context.Context, e *model.IngestQueue, file *model.File, name string, info storage.ObjectInfo) (*model.DiskFile, *model.Header, error) {
	staging, err := w.stagingDir()
	if err != nil {
		return nil, nil, err
	}
	local, err := errkind.Retry(ctx, func() (string, error) {
		return w.store.FetchToLocal(ctx, name, staging)
	})
	if err != nil {
		return nil, nil, err
	}
	if w.store.Remote() {
		defer os.Remove(local)
	}

	gzipped := storage.IsGzipped(e.Filename)
	hs, err := storage.HashLocal(local, gzipped)
	var corrupt error
	if gzipped && errkind.Corrupt.Has(err) {
		// 压缩流损坏：只记录文件哈希，数据哈希留空
		corrupt = err
		hs, err = storage.HashLocal(local, false)
		hs.DataMD5, hs.DataSize = "", 0
	}
	if err != nil {
		return nil, nil, err
	}

	df := &model.DiskFile{
		FileID:    file.ID,
		Filename:  e.Filename,
		Path:      e.Path,
		Present:   true,
		Canonical: true,
		Gzipped:   gzipped,
		FileMD5:   hs.FileMD5,
		FileSize:  hs.FileSize,
		DataMD5:   hs.DataMD5,
		DataSize:  hs.DataSize,
		LastMod:   info.LastMod.UTC(),
		EntryTime: w.now(),
	}

	var (
		report *model.DiskFileReport
		desc   *fits.Descriptors
		insp   *fits.Inspection
	)
	if corrupt != nil {
		log.Warnf("[Ingest] %s 解压失败，跳过校验与描述符提取: %v", name, corrupt)
		report = &model.DiskFileReport{FVReport: fmt.Sprintf("gzip: %v\n", corrupt)}
		desc, insp = &fits.Descriptors{}, &fits.Inspection{}
	} else {
		inspect := local
		if gzipped {
			cache := filepath.Join(staging, uuid.NewString()+".fits")
			if err := decompressFile(local, cache); err != nil {
				return nil, nil, err
			}
			defer os.Remove(cache)
			inspect = cache
		}
		report = w.verify(ctx, inspect, df)

		desc, insp, err = w.extractor.Extract(ctx, inspect)
		if err != nil {
			if !errkind.Corrupt.Has(err) {
				return nil, nil, err
			}
			log.Warnf("[Ingest] %s 描述符提取失败，头信息字段留空: %v", name, err)
			report.FVReport += fmt.Sprintf("\nextract: %v\n", err)
			desc, insp = &fits.Descriptors{}, &fits.Inspection{}
		}
	}

	var h *model.Header
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		files := w.files.WithTx(tx)
		if err := files.CreateDiskFile(ctx, df); err != nil {
			return err
		}
		if report.FVReport != "" || report.MDReport != "" {
			report.DiskFileID = df.ID
			if err := files.SaveReport(ctx, report); err != nil {
				return err
			}
		}
		h = model.NewHeader(desc, df.ID)
		if err := w.headers.WithTx(tx).Create(ctx, h, model.NewInstrumentRow(desc)); err != nil {
			return err
		}
		if err := files.SaveFullText(ctx, &model.FullTextHeader{DiskFileID: df.ID, FullText: insp.FullText}); err != nil {
			return err
		}
		return w.footprint(ctx, tx, h, insp)
	})
	if err != nil {
		return nil, nil, errkind.Transient.Wrap(err)
	}
	h.DiskFile = df
	w.index(ctx, df, h, insp)
	return df, h, nil
}

func decompressFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return storage.DecompressTo(f, dst)
}

// verify 运行外部校验程序。失败只记录日志，不影响 ingest。
func (w *IngestWorker) verify(ctx context.Context, path string, df *model.DiskFile) *model.DiskFileReport {
	report := &model.DiskFileReport{}
	if w.verifier == nil {
		return report
	}
	fv, err := w.verifier.Fitsverify(ctx, path)
	switch {
	case err != nil:
		log.Warnf("[Ingest] fitsverify 失败 %s: %v", df.Filename, err)
	case fv != nil:
		errs := fv.Errors
		df.FVErrors = &errs
		report.FVReport = fv.Text
	}
	md, err := w.verifier.MDValidate(ctx, path)
	switch {
	case err != nil:
		log.Warnf("[Ingest] 元数据校验失败 %s: %v", df.Filename, err)
	case md != nil:
		ready := md.Ready
		df.MDReady = &ready
		report.MDReport = md.Text
	}
	return report
}

// footprint 写入每个扩展的覆盖区域，并登记落在其中的测光标准星。
func (w *IngestWorker) footprint(ctx context.Context, tx *gorm.DB, h *model.Header, insp *fits.Inspection) error {
	fps := w.footprints.WithTx(tx)
	std := false
	for _, fp := range fits.Footprints(insp.WCS) {
		row := &model.Footprint{HeaderID: h.ID, Extension: fp.Extension, Area: fp.Area()}
		if err := fps.CreateFootprint(ctx, row); err != nil {
			return err
		}
		raMin, raMax, decMin, decMax := fp.Bounds()
		stars, err := fps.PhotStandardsInBox(ctx, raMin, raMax, decMin, decMax)
		if err != nil {
			return err
		}
		for _, s := range stars {
			if !fp.Contains(fits.Point{RA: s.RA, Dec: s.Dec}) {
				continue
			}
			if err := fps.CreatePhotStandardObs(ctx, &model.PhotStandardObs{PhotStandardID: s.ID, FootprintID: row.ID}); err != nil {
				return err
			}
			std = true
		}
	}
	if !std {
		return nil
	}
	h.PhotStandard = true
	return w.headers.WithTx(tx).SetPhotStandard(ctx, h.ID, true)
}

func (w *IngestWorker) index(ctx context.Context, df *model.DiskFile, h *model.Header, insp *fits.Inspection) {
	if w.indexer == nil {
		return
	}
	doc := es.HeaderDocument{
		DiskFileID: df.ID,
		Filename:   df.Filename,
		Instrument: h.Instrument,
		DataLabel:  h.DataLabel,
		UTDateTime: h.UTDateTime,
		FullText:   insp.FullText,
	}
	if err := w.indexer.IndexHeader(ctx, doc); err != nil {
		log.Warnf("[Ingest] 索引全文头信息失败, diskfile_id=%d: %v", df.ID, err)
	}
}

// chain 在提交成功后登记导出、预览与定标缓存任务，并发布事件。失败只记录日志。
func (w *IngestWorker) chain(ctx context.Context, e *model.IngestQueue, df *model.DiskFile, h *model.Header, old *model.DiskFile) {
	for _, dest := range w.cfg.ExportDestinations {
		row := &model.ExportQueue{Filename: e.Filename, Path: e.Path, Destination: dest}
		if _, err := w.exports.Enqueue(ctx, row); err != nil {
			log.Errorf("[Ingest] 登记导出 %s -> %s 失败: %v", e.Filename, dest, err)
		}
	}
	if w.cfg.MakePreviews {
		row := &model.PreviewQueue{DiskFileID: df.ID, QueueFields: model.QueueFields{SortKey: e.Filename}}
		if _, err := w.previews.Enqueue(ctx, row); err != nil {
			log.Errorf("[Ingest] 登记预览 %s 失败: %v", e.Filename, err)
		}
	}
	if w.cfg.PopulateCalCache {
		row := &model.CalCacheQueue{ObsHID: h.ID, QueueFields: model.QueueFields{SortKey: CalCacheSortKey(h)}}
		if _, err := w.calcaches.Enqueue(ctx, row); err != nil {
			log.Errorf("[Ingest] 登记定标缓存 header_id=%d 失败: %v", h.ID, err)
		}
	}

	if w.events == nil {
		return
	}
	now := w.now()
	if old != nil {
		ev := tasks.ArchiveEvent{Type: tasks.EventDiskFileSuperseded, Filename: e.Filename, DiskFileID: old.ID, DataMD5: old.DataMD5, Time: now}
		if err := w.events.Publish(ctx, ev); err != nil {
			log.Warnf("[Ingest] 发布事件失败: %v", err)
		}
	}
	ev := tasks.ArchiveEvent{Type: tasks.EventDiskFileAdded, Filename: e.Filename, DiskFileID: df.ID, DataMD5: df.DataMD5, Time: now}
	if err := w.events.Publish(ctx, ev); err != nil {
		log.Warnf("[Ingest] 发布事件失败: %v", err)
	}
}

// CalCacheSortKey 让观测时间较新的 header 先被处理。
func CalCacheSortKey(h *model.Header) string {
	if h.UTDateTime == nil {
		return "0000-00-00T00:00:00"
	}
	return h.UTDateTime.UTC().Format("2006-01-02T15:04:05")
}
