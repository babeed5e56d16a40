package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/sony/gobreaker"
	"github.com/zeebo/errs"
	"gorm.io/gorm"

	"fitsstore-go/internal/config"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/queue"
	"fitsstore-go/internal/repository"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/metrics"
	"fitsstore-go/pkg/storage"
	"fitsstore-go/pkg/tasks"
)

// PeerBusy 表示对端暂时拒绝接收（HTTP 503 或熔断打开）。该行记录 lastfailed，由清扫器稍后重置。
var PeerBusy = errs.Class("peer busy")

// ExportConfig 是 export worker 的配置。
type ExportConfig struct {
	// Gzip 为 nil 时以未压缩形式发送；否则以该级别压缩发送。
	Gzip         *int
	Timeout      time.Duration
	StagingDir   string
	UploadCookie string
}

// ExportConfigFrom 从全局配置中取出导出相关的部分。
func ExportConfigFrom(cfg *config.Config) ExportConfig {
	return ExportConfig{
		Gzip:         cfg.Archive.ExportGzip,
		Timeout:      cfg.Archive.ExportTimeout,
		StagingDir:   cfg.Storage.StagingDir,
		UploadCookie: cfg.Archive.UploadAuthCookie,
	}
}

// ExportWorker 把 present 文件复制到对端归档。
type ExportWorker struct {
	queue   *queue.Export
	files   repository.FileRepository
	store   storage.Store
	client  *http.Client
	events  EventPublisher
	metrics *metrics.Collector
	cfg     ExportConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewExportWorker 创建 export worker。events 与 m 可以为空。
func NewExportWorker(db *gorm.DB, store storage.Store, events EventPublisher, m *metrics.Collector, cfg ExportConfig) *ExportWorker {
	return &ExportWorker{
		queue:    queue.NewExport(db),
		files:    repository.NewFileRepository(db),
		store:    store,
		client:   &http.Client{Timeout: cfg.Timeout},
		events:   events,
		metrics:  m,
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (w *ExportWorker) Name() string { return QueueExport }

func (w *ExportWorker) Length(ctx context.Context) (int64, error) {
	return w.queue.Length(ctx)
}

// Step 取出一行并导出。失败的行保持 inprogress=true 并记录 lastfailed。
func (w *ExportWorker) Step(ctx context.Context) (bool, error) {
	e, err := w.queue.Pop(ctx, false)
	if err != nil {
		return false, errkind.Transient.Wrap(err)
	}
	if e == nil {
		return false, nil
	}
	start := time.Now()
	sent, err := w.Export(ctx, e)
	switch {
	case errkind.NotFound.Has(err):
		log.Warnf("[Export] %s 已不在归档中，丢弃导出请求: %v", e.Filename, err)
		w.done(ctx, e)
		w.metrics.Processed(QueueExport, metrics.OutcomeSkipped, time.Since(start))
	case err != nil:
		log.Errorf("[Export] %s -> %s 失败: %v", e.Filename, e.Destination, err)
		if ferr := w.queue.Fail(ctx, e.ID, err); ferr != nil {
			log.Errorf("[Export] 记录失败状态出错, id=%d: %v", e.ID, ferr)
		}
		w.metrics.Processed(QueueExport, metrics.OutcomeFailed, time.Since(start))
	default:
		w.done(ctx, e)
		outcome := metrics.OutcomeDone
		if !sent {
			outcome = metrics.OutcomeSkipped
		}
		w.metrics.Processed(QueueExport, outcome, time.Since(start))
	}
	return true, nil
}

// SweepStuckExports 把失败后超过 interval 仍为 inprogress 的导出行重新置为可执行。
// 有行被重置时返回 QueueStuck 错误，调用方据此告警。
func SweepStuckExports(ctx context.Context, q *queue.Export, interval time.Duration) error {
	n, err := q.RetryStuck(ctx, interval)
	if err != nil {
		return errkind.Transient.Wrap(err)
	}
	if n > 0 {
		return errkind.QueueStuck.New("%d export rows in progress longer than %s were reset", n, interval)
	}
	return nil
}

func (w *ExportWorker) done(ctx context.Context, e *model.ExportQueue) {
	if err := w.queue.Done(ctx, e.ID); err != nil {
		log.Errorf("[Export] 删除队列行失败, id=%d: %v", e.ID, err)
	}
}

// Export 把 e 指向的文件发送到 e.Destination。对端已有相同 data_md5 时不发送，返回 sent=false。
func (w *ExportWorker) Export(ctx context.Context, e *model.ExportQueue) (bool, error) {
	df, err := w.files.FindPresentByFilename(ctx, e.Filename)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, errkind.NotFound.New("no present diskfile for %s", e.Filename)
	}
	if err != nil {
		return false, errkind.Transient.Wrap(err)
	}
	base := peerURL(e.Destination)

	has, err := w.peerHas(ctx, base, df)
	if err != nil {
		log.Warnf("[Export] 查询对端 %s 的 %s 失败，继续上传: %v", e.Destination, df.Filename, err)
	}
	if has {
		log.Infof("[Export] 对端 %s 已有 %s (data_md5=%s)，跳过", e.Destination, df.Filename, df.DataMD5)
		return false, nil
	}

	p, err := w.prepare(ctx, df)
	if err != nil {
		return false, err
	}
	defer p.cleanup()

	cb := w.breaker(e.Destination)
	_, err = errkind.Retry(ctx, func() (struct{}, error) {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, w.post(ctx, base, p)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return struct{}{}, PeerBusy.Wrap(err)
		}
		return struct{}{}, err
	})
	if err != nil {
		return false, err
	}
	log.Infof("[Export] %s -> %s 完成, %d 字节, md5=%s", p.name, e.Destination, p.size, p.md5)
	w.metrics.ExportBytes(e.Destination, p.size)
	if w.events != nil {
		ev := tasks.ArchiveEvent{Type: tasks.EventExportDone, Filename: df.Filename, DiskFileID: df.ID, DataMD5: df.DataMD5, Destination: e.Destination, Time: time.Now().UTC()}
		if err := w.events.Publish(ctx, ev); err != nil {
			log.Warnf("[Export] 发布事件失败: %v", err)
		}
	}
	return true, nil
}

func peerURL(dest string) string {
	dest = strings.TrimRight(dest, "/")
	if strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://") {
		return dest
	}
	return "http://" + dest
}

func (w *ExportWorker) breaker(dest string) *gobreaker.CircuitBreaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cb, ok := w.breakers[dest]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        dest,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[Export] 对端 %s 熔断状态 %s -> %s", name, from, to)
		},
	})
	w.breakers[dest] = cb
	return cb
}

// peerFile 是对端 jsonfilelist 中我们关心的字段。
type peerFile struct {
	Filename string `json:"filename"`
	DataMD5  string `json:"data_md5"`
}

// peerHas 询问对端是否已经有 data_md5 相同的同名文件。
func (w *ExportWorker) peerHas(ctx context.Context, base string, df *model.DiskFile) (bool, error) {
	u := base + "/jsonfilelist/present/filename=" + url.PathEscape(storage.CanonicalName(df.Filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	var list []peerFile
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return false, fmt.Errorf("decode %s: %w", u, err)
	}
	for _, f := range list {
		if f.DataMD5 == df.DataMD5 {
			return true, nil
		}
	}
	return false, nil
}

// payload 是待发送的本地文件及其哈希。
type payload struct {
	name    string
	path    string
	size    int64
	md5     string
	cleanup func()
}

// prepare 取回文件并按配置做压缩转换，计算实际发送字节的哈希。
func (w *ExportWorker) prepare(ctx context.Context, df *model.DiskFile) (*payload, error) {
	staging := w.cfg.StagingDir
	if staging == "" {
		staging = os.TempDir()
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, err
	}
	local, err := errkind.Retry(ctx, func() (string, error) {
		return w.store.FetchToLocal(ctx, df.FullPath(), staging)
	})
	if err != nil {
		return nil, err
	}
	var temps []string
	cleanup := func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}
	if w.store.Remote() {
		temps = append(temps, local)
	}

	p := &payload{name: df.Filename, path: local, cleanup: cleanup}
	switch {
	case w.cfg.Gzip != nil && !df.Gzipped:
		out := filepath.Join(staging, uuid.NewString()+".fits.gz")
		temps = append(temps, out)
		if err := compressFile(local, out, *w.cfg.Gzip); err != nil {
			cleanup()
			return nil, err
		}
		p.name, p.path = df.Filename+".gz", out
	case w.cfg.Gzip == nil && df.Gzipped:
		out := filepath.Join(staging, uuid.NewString()+".fits")
		temps = append(temps, out)
		if err := decompressFile(local, out); err != nil {
			cleanup()
			return nil, err
		}
		p.name, p.path = storage.CanonicalName(df.Filename), out
	}

	f, err := os.Open(p.path)
	if err != nil {
		cleanup()
		return nil, err
	}
	p.md5, p.size, err = storage.HashFile(f)
	_ = f.Close()
	if err != nil {
		cleanup()
		return nil, err
	}
	return p, nil
}

func compressFile(src, dst string, level int) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		err = errs.Combine(err, out.Close())
	}()
	zw, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		return err
	}
	if _, err := io.Copy(zw, in); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// uploadEcho 是对端 upload_file 返回的一项。
type uploadEcho struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MD5      string `json:"md5"`
}

// post 上传 payload 并核对对端回显的 (filename, size, md5)。
func (w *ExportWorker) post(ctx context.Context, base string, p *payload) error {
	f, err := os.Open(p.path)
	if err != nil {
		return err
	}
	defer f.Close()

	u := base + "/upload_file/" + url.PathEscape(p.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, f)
	if err != nil {
		return err
	}
	req.ContentLength = p.size
	req.Header.Set("Content-Type", "application/octet-stream")
	if w.cfg.UploadCookie != "" {
		req.AddCookie(&http.Cookie{Name: config.UploadCookieName, Value: w.cfg.UploadCookie})
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return errkind.Transient.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errkind.Transient.Wrap(err)
	}
	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return PeerBusy.New("POST %s: status 503", u)
	case resp.StatusCode >= 500:
		return errkind.Transient.New("POST %s: status %d: %s", u, resp.StatusCode, body)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("POST %s: status %d: %s", u, resp.StatusCode, body)
	}

	var echo []uploadEcho
	if err := json.Unmarshal(body, &echo); err != nil {
		return fmt.Errorf("POST %s: invalid response %q: %w", u, body, err)
	}
	if len(echo) != 1 {
		return fmt.Errorf("POST %s: expected one entry, got %d", u, len(echo))
	}
	got := echo[0]
	if got.Filename != p.name || got.Size != p.size || got.MD5 != p.md5 {
		return errkind.Changed.New("peer echoed (%s, %d, %s), sent (%s, %d, %s)",
			got.Filename, got.Size, got.MD5, p.name, p.size, p.md5)
	}
	return nil
}
