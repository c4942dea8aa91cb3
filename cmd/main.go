package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/api"
	"github.com/fyerfyer/pdf-vector-ingest/api/handler"
	"github.com/fyerfyer/pdf-vector-ingest/api/middleware"
	appconfig "github.com/fyerfyer/pdf-vector-ingest/config"
	"github.com/fyerfyer/pdf-vector-ingest/internal/cache"
	"github.com/fyerfyer/pdf-vector-ingest/internal/database"
	"github.com/fyerfyer/pdf-vector-ingest/internal/document"
	"github.com/fyerfyer/pdf-vector-ingest/internal/embedding"
	"github.com/fyerfyer/pdf-vector-ingest/internal/repository"
	"github.com/fyerfyer/pdf-vector-ingest/internal/services"
	"github.com/fyerfyer/pdf-vector-ingest/internal/vectordb"
	"github.com/fyerfyer/pdf-vector-ingest/pkg/storage"
	"github.com/fyerfyer/pdf-vector-ingest/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 命令行选项
type options struct {
	ConfigFile string // 配置文件路径
	Mode       string // 运行模式 (debug/release)
	LogLevel   string // 日志级别
	LogFile    string // 日志文件路径，为空则只输出到标准输出
	WorkerMode bool   // 以队列工作者模式运行
}

func main() {
	// 加载.env文件(如果存在)
	_ = godotenv.Load()

	// 解析命令行参数
	opts := parseFlags()

	// 加载配置文件
	cfg, err := appconfig.Load(opts.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置Gin模式
	gin.SetMode(opts.Mode)

	// 初始化日志
	logger := setupLogger(opts.LogLevel, opts.LogFile)
	logger.Info("Starting PDF vector ingestion service...")

	// 初始化数据库
	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// 创建文件存储服务
	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建向量存储
	vectorStore, err := setupVectorStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize vector store: %v", err)
	}
	defer vectorStore.Close()

	// 创建嵌入客户端
	embeddingClient, err := setupEmbedding(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	// 初始化任务队列（如果启用）
	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	// 创建文本分段器
	splitter := document.NewRecursiveSplitter(document.SplitterConfig{
		ChunkSize:     cfg.Document.ChunkSize,
		ChunkOverlap:  cfg.Document.ChunkOverlap,
		TruncateBytes: cfg.Document.TruncateBytes,
	})

	// 初始化摄取状态管理器
	repo := repository.NewIngestionRepositoryWithDB(database.MustDB())
	statusManager := services.NewIngestionStatusManager(repo, logger)

	// 创建协程池，摄取流水线内的并发任务共用
	pool, err := ants.NewPool(cfg.Ingest.PoolSize)
	if err != nil {
		logger.Fatalf("Failed to create worker pool: %v", err)
	}

	// 创建摄取服务
	ingestOptions := []services.IngestOption{
		services.WithStatusManager(statusManager),
		services.WithLogger(logger),
		services.WithTimeout(time.Duration(cfg.Ingest.Timeout) * time.Second),
		services.WithPool(pool),
	}
	if queue != nil {
		ingestOptions = append(ingestOptions, services.WithTaskQueue(queue))
	}

	ingestService, err := services.NewIngestService(
		fileStorage,
		splitter,
		embeddingClient,
		vectorStore,
		ingestOptions...,
	)
	if err != nil {
		logger.Fatalf("Failed to initialize ingest service: %v", err)
	}
	defer ingestService.Close()

	// 工作者模式：只消费队列任务，不提供HTTP服务
	if opts.WorkerMode {
		runWorker(cfg, queue, ingestService, logger)
		return
	}

	// 初始化API处理器
	ingestHandler := handler.NewIngestHandler(ingestService, fileStorage, vectorStore)

	// 设置路由
	r := api.SetupRouter(ingestHandler)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// 优雅关闭
	go func() {
		// 启动服务
		logger.Infof("Server is running on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() options {
	opts := options{}

	flag.StringVar(&opts.ConfigFile, "config", "", "Path to config file")
	flag.StringVar(&opts.Mode, "mode", "debug", "Run mode (debug/release)")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.StringVar(&opts.LogFile, "log-file", "", "Log file path (rotated), empty for stdout only")
	flag.BoolVar(&opts.WorkerMode, "worker", false, "Run as queue worker instead of HTTP server")

	flag.Parse()
	return opts
}

// setupLogger 设置日志系统
// 指定日志文件时同时输出到标准输出和滚动日志文件
func setupLogger(level string, logFile string) *logrus.Logger {
	logger := middleware.GetLogger()

	// 设置日志级别
	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // 天
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return logger
}

// setupDatabase 设置数据库
func setupDatabase(cfg *appconfig.Config, logger *logrus.Logger) error {
	// 确保数据目录存在
	if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %v", err)
	}

	dbConfig := &database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}

	return database.Setup(dbConfig, logger)
}

// setupStorage 设置文件存储服务
func setupStorage(cfg *appconfig.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
	default:
		// 确保存储目录存在
		if err := os.MkdirAll(cfg.Storage.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %v", err)
		}
		return storage.NewLocalStorage(storage.LocalConfig{
			Path: cfg.Storage.Path,
		})
	}
}

// setupVectorStore 设置向量存储
func setupVectorStore(cfg *appconfig.Config) (vectordb.Store, error) {
	store, err := vectordb.NewStore(vectordb.Config{
		Type:      cfg.VectorDB.Type,
		Path:      cfg.VectorDB.Path,
		Dimension: cfg.VectorDB.Dim,
	})
	if err != nil {
		// 持久化实现初始化失败时回退到内存实现
		log.Printf("Warning: Failed to initialize %s vector store: %v", cfg.VectorDB.Type, err)
		log.Printf("Falling back to in-memory vector store")

		return vectordb.NewStore(vectordb.Config{
			Type:      "memory",
			Dimension: cfg.VectorDB.Dim,
		})
	}
	return store, nil
}

// setupEmbedding 设置嵌入模型客户端
// 启用缓存时用缓存装饰器包装原始客户端
func setupEmbedding(cfg *appconfig.Config) (embedding.Client, error) {
	if cfg.Embed.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	client, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enable {
		return client, nil
	}

	cacheService, err := cache.NewCache(cache.Config{
		Type:          cfg.Cache.Type,
		Prefix:        "embed",
		RedisAddr:     cfg.Cache.Address,
		RedisPassword: cfg.Cache.Password,
		RedisDB:       cfg.Cache.DB,
		DefaultTTL:    time.Duration(cfg.Cache.TTL) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return embedding.NewCachedClient(client, cacheService,
		time.Duration(cfg.Cache.TTL)*time.Second), nil
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg *appconfig.Config, logger *logrus.Logger) (taskqueue.Queue, error) {
	queueConfig := &taskqueue.Config{
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Concurrency:   cfg.Queue.Concurrency,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"type":        cfg.Queue.Type,
		"redis_addr":  cfg.Queue.RedisAddr,
		"concurrency": cfg.Queue.Concurrency,
		"retry_limit": cfg.Queue.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue(cfg.Queue.Type, queueConfig)
}

// runWorker 以队列工作者模式运行，消费摄取任务直到收到终止信号
func runWorker(cfg *appconfig.Config, queue taskqueue.Queue, ingestService *services.IngestService, logger *logrus.Logger) {
	if queue == nil {
		logger.Fatal("Worker mode requires the task queue to be enabled")
	}

	redisQueue, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		logger.Fatal("Worker mode requires a redis task queue")
	}

	worker := taskqueue.NewRedisWorker(redisQueue, &taskqueue.Config{
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Concurrency:   cfg.Queue.Concurrency,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
	})

	// 工作者直接驱动摄取流水线
	ingestHandler := taskqueue.NewIngestTaskHandler(
		func(ctx context.Context, recordID string, fileKey string) error {
			_, err := ingestService.IngestExisting(ctx, recordID, fileKey)
			return err
		},
		logger,
	)
	worker.RegisterHandler(taskqueue.TaskIngestDocument, ingestHandler)

	if err := worker.Start(); err != nil {
		logger.Fatalf("Failed to start worker: %v", err)
	}
	logger.Info("Worker is running")

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	worker.Stop()
	logger.Info("Worker exited")
}
