// Package pipeline 实现 ingest/export/preview/calcache 四类 worker 以及驱动它们的循环。
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/metrics"
)

// 队列名，同时用作指标标签与命令行参数。
const (
	QueueIngest   = "ingest"
	QueueExport   = "export"
	QueuePreview  = "preview"
	QueueCalCache = "calcache"
)

// Processor 是某个队列上的一次 "取出-处理-提交"。
type Processor interface {
	// Name 返回队列名。
	Name() string
	// Step 取出并处理一行。队列为空时返回 false。
	// 返回的错误只在需要停止整个 worker 时非空（例如 Conflict）。
	Step(ctx context.Context) (bool, error)
	// Length 返回当前可执行的行数。
	Length(ctx context.Context) (int64, error)
}

// Loop 以 threads 个协作循环驱动一个 Processor。
type Loop struct {
	proc    Processor
	threads int
	poll    time.Duration
	metrics *metrics.Collector
}

// NewLoop 创建循环；threads 小于 1 时按 1 处理。
func NewLoop(proc Processor, threads int, poll time.Duration, m *metrics.Collector) *Loop {
	if threads < 1 {
		threads = 1
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Loop{proc: proc, threads: threads, poll: poll, metrics: m}
}

// Run 阻塞直到 ctx 被取消或某个线程遇到致命错误。
// ctx 只在两次取出之间检查；正在处理的行使用不可取消的 context 跑完。
func (l *Loop) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < l.threads; i++ {
		thread := i
		g.Go(func() error {
			return l.thread(gctx, thread)
		})
	}
	err := g.Wait()
	log.Infof("[Worker] %s 队列的 %d 个线程已退出", l.proc.Name(), l.threads)
	return err
}

func (l *Loop) thread(ctx context.Context, thread int) error {
	name := l.proc.Name()
	log.Infof("[Worker] %s 线程 %d 启动", name, thread)
	for {
		if ctx.Err() != nil {
			return nil
		}
		worked, err := l.proc.Step(context.WithoutCancel(ctx))
		if err != nil {
			if errkind.Conflict.Has(err) {
				log.Errorf("[Worker] %s 线程 %d 遇到致命错误，停止: %v", name, thread, err)
				return err
			}
			log.Errorf("[Worker] %s 线程 %d 出错: %v", name, thread, err)
		}
		if worked {
			continue
		}
		if n, err := l.proc.Length(ctx); err == nil {
			l.metrics.SetQueueLength(name, n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.poll):
		}
	}
}
