// Package main 是队列 worker 进程的入口点：每个进程服务一个队列，以 --threads 个协作循环运行。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"fitsstore-go/internal/config"
	"fitsstore-go/internal/pipeline"
	"fitsstore-go/internal/queue"
	"fitsstore-go/internal/repository"
	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/database"
	"fitsstore-go/pkg/es"
	"fitsstore-go/pkg/fits"
	"fitsstore-go/pkg/kafka"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/metrics"
	"fitsstore-go/pkg/notify"
	"fitsstore-go/pkg/storage"
	"fitsstore-go/pkg/verify"
)

func main() {
	configPath := pflag.String("config", "./configs/config.yaml", "配置文件路径")
	queueName := pflag.String("queue", pipeline.QueueIngest, "要服务的队列: ingest|export|preview|calcache")
	threads := pflag.Int("threads", 1, "并发处理的线程数")
	rebuild := pflag.String("rebuild-calcache", "", "启动前为该选择路径下的观测登记 calcache 重算任务")
	pflag.Parse()

	config.Init(*configPath)
	cfg := config.Conf
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		// 第一次信号让循环在当前行处理完后退出，第二次信号立即退出
		<-ctx.Done()
		again := make(chan os.Signal, 1)
		signal.Notify(again, syscall.SIGINT, syscall.SIGTERM)
		<-again
		log.Info("[Worker] 再次收到停机信号，立即退出")
		log.Sync()
		os.Exit(1)
	}()

	db, err := database.Open(cfg.Database.FitsDatabase)
	if err != nil {
		log.Fatal("连接数据库失败", err)
	}
	collector := metrics.NewCollector()

	proc, cleanup, err := buildProcessor(ctx, *queueName, db, &cfg, collector)
	if err != nil {
		log.Fatal("初始化 worker 失败", err)
	}
	defer cleanup()

	if *rebuild != "" {
		if err := enqueueCalCache(ctx, db, &cfg, *rebuild); err != nil {
			log.Fatal("登记 calcache 重算任务失败", err)
		}
	}

	log.Infof("[Worker] 启动 %s 队列, %d 个线程", *queueName, *threads)
	loop := pipeline.NewLoop(proc, *threads, cfg.Archive.PollInterval, collector)
	if err := loop.Run(ctx); err != nil {
		log.Fatalf("[Worker] %s 队列异常退出: %v", *queueName, err)
	}
	log.Info("[Worker] 已优雅退出")
}

// buildProcessor 按队列名组装 worker 及其可选依赖，返回的 cleanup 关闭打开的客户端。
func buildProcessor(ctx context.Context, name string, db *gorm.DB, cfg *config.Config, m *metrics.Collector) (pipeline.Processor, func(), error) {
	cleanup := func() {}
	switch name {
	case pipeline.QueueIngest:
		store, err := storage.New(ctx, cfg.Storage, cfg.MinIO)
		if err != nil {
			return nil, cleanup, err
		}
		deps := pipeline.IngestDeps{
			DB:        db,
			Store:     store,
			Extractor: fits.NewExtractor(),
			Verifier: verify.Runner{
				FitsverifyPath:  cfg.Archive.FitsverifyPath,
				MDValidatorPath: cfg.Archive.MDValidatorPath,
				Timeout:         cfg.Archive.ExternalTimeout,
			},
			Notifier: notify.New(cfg.Notify, cfg.Archive.Demon),
			Metrics:  m,
		}
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka)
			deps.Events = producer
			cleanup = func() {
				if err := producer.Close(); err != nil {
					log.Warnf("[Worker] 关闭 Kafka producer 失败: %v", err)
				}
			}
		}
		if cfg.Elasticsearch.Enabled {
			client, err := es.NewClient(cfg.Elasticsearch)
			if err != nil {
				log.Errorf("[Worker] es 初始化失败，跳过全文索引: %v", err)
			} else {
				deps.Indexer = client
			}
		}
		return pipeline.NewIngestWorker(deps, pipeline.IngestConfigFrom(cfg)), cleanup, nil

	case pipeline.QueueExport:
		store, err := storage.New(ctx, cfg.Storage, cfg.MinIO)
		if err != nil {
			return nil, cleanup, err
		}
		if !cfg.Kafka.Enabled {
			return pipeline.NewExportWorker(db, store, nil, m, pipeline.ExportConfigFrom(cfg)), cleanup, nil
		}
		producer := kafka.NewProducer(cfg.Kafka)
		cleanup = func() { _ = producer.Close() }
		return pipeline.NewExportWorker(db, store, producer, m, pipeline.ExportConfigFrom(cfg)), cleanup, nil

	case pipeline.QueuePreview:
		store, err := storage.New(ctx, cfg.Storage, cfg.MinIO)
		if err != nil {
			return nil, cleanup, err
		}
		return pipeline.NewPreviewWorker(db, store, cfg.Storage.PreviewPrefix, cfg.Storage.StagingDir, m), cleanup, nil

	case pipeline.QueueCalCache:
		// Redis 不可用时不清除响应缓存，缓存按 TTL 自然过期
		var rdb *redis.Client
		client, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			log.Warnf("[Worker] 连接 Redis 失败，不清除定标响应缓存: %v", err)
		} else {
			rdb = client
			cleanup = func() { _ = client.Close() }
		}
		files := service.NewFileService(repository.NewHeaderRepository(db), cfg.Archive.FitsOpenResultLimit, cfg.Archive.FitsClosedResultLimit)
		cals := service.NewCalibrationService(db, files, rdb, cfg.Archive.CalCacheDepth)
		return pipeline.NewCalCacheWorker(db, cals, m), cleanup, nil
	}
	return nil, cleanup, fmt.Errorf("unknown queue %q", name)
}

// enqueueCalCache 为选择路径匹配的每个观测登记 calcache 重算任务。
func enqueueCalCache(ctx context.Context, db *gorm.DB, cfg *config.Config, path string) error {
	files := service.NewFileService(repository.NewHeaderRepository(db), cfg.Archive.FitsClosedResultLimit, cfg.Archive.FitsClosedResultLimit)
	sel, err := files.Parse(path)
	if err != nil {
		return err
	}
	hs, err := files.Headers(ctx, sel)
	if err != nil {
		return err
	}
	if err := pipeline.EnqueueHeaders(ctx, queue.NewCalCache(db), hs); err != nil {
		return err
	}
	log.Infof("[Worker] 为选择 %q 登记了 %d 个 calcache 任务", sel.String(), len(hs))
	return nil
}
