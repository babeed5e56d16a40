// Package main 是归档 HTTP 服务的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"fitsstore-go/internal/config"
	"fitsstore-go/internal/handler"
	"fitsstore-go/internal/middleware"
	"fitsstore-go/internal/model"
	"fitsstore-go/internal/pipeline"
	"fitsstore-go/internal/queue"
	"fitsstore-go/internal/repository"
	"fitsstore-go/internal/service"
	"fitsstore-go/pkg/database"
	"fitsstore-go/pkg/errkind"
	"fitsstore-go/pkg/es"
	"fitsstore-go/pkg/kafka"
	"fitsstore-go/pkg/log"
	"fitsstore-go/pkg/metrics"
	"fitsstore-go/pkg/storage"
	"fitsstore-go/pkg/token"
)

func main() {
	configPath := pflag.String("config", "./configs/config.yaml", "配置文件路径")
	migrate := pflag.Bool("migrate", false, "启动前创建或升级数据库表")
	pflag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库、Redis 与 blob store
	database.InitDB(cfg.Database.FitsDatabase)
	if *migrate {
		if err := database.Migrate(database.DB, model.All()...); err != nil {
			log.Fatal("数据库迁移失败", err)
		}
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	store, err := storage.New(ctx, cfg.Storage, cfg.MinIO)
	if err != nil {
		log.Fatal("初始化 blob store 失败", err)
	}

	var searcher service.HeaderSearcher
	if cfg.Elasticsearch.Enabled {
		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			log.Errorf("es 初始化失败，全文检索不可用: %v", err)
		} else {
			searcher = esClient
		}
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	headerRepository := repository.NewHeaderRepository(database.DB)
	fileRepository := repository.NewFileRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	blacklist := token.Blacklist{RDB: database.RDB}
	userService := service.NewUserService(userRepository, jwtManager, blacklist)
	adminService := service.NewAdminService(userRepository)
	accessController := service.NewAccessController(userRepository, cfg.Archive.MagicDownloadCookie)
	queueService := service.NewQueueService(database.DB)
	fileService := service.NewFileService(headerRepository, cfg.Archive.FitsOpenResultLimit, cfg.Archive.FitsClosedResultLimit)
	downloadService := service.NewDownloadService(fileService, fileRepository, headerRepository, accessController, store, cfg.Archive.FitsOpenResultLimit)
	uploadService := service.NewUploadService(store, queueService, cfg.Storage.ReducedCalsDir)
	calibrationService := service.NewCalibrationService(database.DB, fileService, database.RDB, cfg.Archive.CalCacheDepth)
	searchService := service.NewSearchService(searcher, fileRepository, headerRepository, accessController)

	collector := metrics.NewCollector()
	metricsHandler, err := metrics.Handler(collector)
	if err != nil {
		log.Fatal("注册 Prometheus 指标失败", err)
	}

	// 6. 启动后台任务：Kafka 通知消费者、导出清扫器、队列长度上报
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, queueService, kafka.RedisCounter{RDB: database.RDB})
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Errorf("[Kafka] 消费者退出: %v", err)
			}
		}()
	}
	go sweepExports(ctx, database.DB, cfg.Archive.ExportRetryInterval)
	go reportQueueLengths(ctx, queueService, collector, cfg.Archive.PollInterval)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	queueHandler := handler.NewQueueHandler(queueService)
	r.POST("/ingest_queue", queueHandler.Ingest)
	r.POST("/export_queue", queueHandler.Export)
	r.POST("/preview_queue", queueHandler.Preview)
	r.POST("/calcache_queue", queueHandler.CalCache)
	r.GET("/queuestatus/:queue", queueHandler.Status)
	r.POST("/upload_file/:filename", handler.NewUploadHandler(uploadService, cfg.Archive.UploadAuthCookie).Upload)
	r.GET("/metrics", gin.WrapH(metricsHandler))

	// 归档数据路由：匿名可访问，携带 token 时按登录用户做访问控制
	archive := r.Group("/")
	archive.Use(middleware.OptionalAuthMiddleware(jwtManager, blacklist, userService))
	{
		fileHandler := handler.NewFileHandler(fileService, calibrationService)
		archive.GET("/jsonfilelist/*selection", fileHandler.FileList)
		archive.GET("/jsonsummary/*selection", fileHandler.Summary)
		archive.GET("/calibrations/:header_id", fileHandler.Calibrations)
		archive.GET("/associated_cals/*selection", fileHandler.AssociatedCals)

		downloadHandler := handler.NewDownloadHandler(fileService, downloadService)
		archive.GET("/download/*selection", downloadHandler.Selection)
		archive.POST("/download", downloadHandler.Files)

		searchHandler := handler.NewSearchHandler(searchService)
		archive.GET("/fullheader/search", searchHandler.Search)
		archive.GET("/fullheader/:diskfile_id", searchHandler.FullHeader)
	}

	apiV1 := r.Group("/api/v1")
	{
		userHandler := handler.NewUserHandler(userService)
		apiV1.POST("/auth/refreshToken", userHandler.RefreshToken)

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, blacklist, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// 工作人员路由组，需要同时通过认证和工作人员授权两个中间件
		adminHandler := handler.NewAdminHandler(adminService)
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager, blacklist, userService), middleware.StaffAuthMiddleware())
		{
			admin.GET("/users/list", adminHandler.ListUsers)
			admin.PUT("/users/:id/programs", adminHandler.AssignPrograms)
			admin.PUT("/users/:id/staff", adminHandler.SetStaff)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	if err := database.RDB.Close(); err != nil {
		log.Warnf("关闭 Redis 连接失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// sweepExports 周期性地把卡住的导出行重新置为可执行，周期为重试窗口的六分之一。
func sweepExports(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if interval <= 0 {
		return
	}
	exports := queue.NewExport(db)
	ticker := time.NewTicker(interval / 6)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := pipeline.SweepStuckExports(ctx, exports, interval)
			switch {
			case errkind.QueueStuck.Has(err):
				log.Warnf("[Sweeper] %v", err)
			case err != nil:
				log.Errorf("[Sweeper] 重置卡住的导出行失败: %v", err)
			}
		}
	}
}

// reportQueueLengths 定期把四个队列的可执行行数写入指标。
func reportQueueLengths(ctx context.Context, queues *service.QueueService, c *metrics.Collector, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	names := []string{pipeline.QueueIngest, pipeline.QueueExport, pipeline.QueuePreview, pipeline.QueueCalCache}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range names {
				st, err := queues.Status(ctx, name, 1)
				if err != nil {
					log.Warnf("[Metrics] 读取 %s 队列长度失败: %v", name, err)
					continue
				}
				c.SetQueueLength(name, st.Length)
			}
		}
	}
}
