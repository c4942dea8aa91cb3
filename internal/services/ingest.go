package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/internal/document"
	"github.com/fyerfyer/pdf-vector-ingest/internal/embedding"
	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
	"github.com/fyerfyer/pdf-vector-ingest/internal/vectordb"
	"github.com/fyerfyer/pdf-vector-ingest/pkg/storage"
	"github.com/fyerfyer/pdf-vector-ingest/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// ChunkSummary 摄取结果摘要
// 返回文档顺序上第一个块，供调用方展示
type ChunkSummary struct {
	PageNumber int    `json:"page_number"` // 来源页码
	Text       string `json:"text"`        // 块原始文本
	ContentID  string `json:"content_id"`  // 内容寻址标识符
}

// IngestService 摄取服务
// 负责协调下载、解析、分块、向量化和入库
type IngestService struct {
	storage       storage.Storage         // 对象存储
	splitter      document.Splitter       // 文本分段器
	embedder      embedding.Client        // 嵌入模型客户端
	store         vectordb.Store          // 向量存储
	parser        document.Parser         // 文档解析器，为空时按扩展名选择
	statusManager *IngestionStatusManager // 状态管理器，可选
	taskQueue     taskqueue.Queue         // 任务队列，可选
	pool          *ants.Pool              // 分块和向量化共享的协程池
	timeout       time.Duration           // 单次摄取超时时间
	logger        *logrus.Logger          // 日志记录器
}

// IngestOption 摄取服务配置选项
type IngestOption func(*IngestService)

// NewIngestService 创建摄取服务
// 所有外部客户端由调用方构造后注入，服务自身不做惰性初始化
func NewIngestService(
	storage storage.Storage,
	splitter document.Splitter,
	embedder embedding.Client,
	store vectordb.Store,
	opts ...IngestOption,
) (*IngestService, error) {
	srv := &IngestService{
		storage:  storage,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		timeout:  time.Minute * 5, // 默认超时时间
		logger:   logrus.New(),    // 默认日志记录器
	}

	// 应用配置选项
	for _, opt := range opts {
		opt(srv)
	}

	// 创建协程池，分块和向量化的并发任务共用
	poolSize := defaultPoolSize
	if srv.pool == nil {
		pool, err := ants.NewPool(poolSize)
		if err != nil {
			return nil, err
		}
		srv.pool = pool
	}

	return srv, nil
}

// defaultPoolSize 协程池默认大小
const defaultPoolSize = 16

// WithTimeout 设置单次摄取超时时间
func WithTimeout(timeout time.Duration) IngestOption {
	return func(s *IngestService) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) IngestOption {
	return func(s *IngestService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithParser 设置固定的文档解析器
// 未设置时根据文件扩展名选择解析器
func WithParser(parser document.Parser) IngestOption {
	return func(s *IngestService) {
		s.parser = parser
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *IngestionStatusManager) IngestOption {
	return func(s *IngestService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列，启用异步摄取
func WithTaskQueue(queue taskqueue.Queue) IngestOption {
	return func(s *IngestService) {
		s.taskQueue = queue
	}
}

// WithPool 设置外部协程池
func WithPool(pool *ants.Pool) IngestOption {
	return func(s *IngestService) {
		if pool != nil {
			s.pool = pool
		}
	}
}

// Close 释放服务持有的协程池
func (s *IngestService) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Ingest 摄取一个已上传的文档
// 同步执行完整流水线：下载、解析、分块、向量化、入库
// 返回文档顺序上的第一个块；文档无可提取内容时返回(nil, nil)
func (s *IngestService) Ingest(ctx context.Context, fileKey string) (*ChunkSummary, error) {
	if fileKey == "" {
		return nil, errors.New("fileKey cannot be empty")
	}

	runID := uuid.New().String()
	namespace := vectordb.NamespaceForKey(fileKey)

	s.logger.WithFields(logrus.Fields{
		"run_id":    runID,
		"file_key":  fileKey,
		"namespace": namespace,
	}).Info("Starting document ingestion")

	// 创建摄取记录
	if s.statusManager != nil {
		if err := s.statusManager.StartRun(ctx, runID, fileKey, namespace); err != nil {
			s.logger.WithError(err).Warn("Failed to create ingestion record")
			// 继续处理，状态跟踪失败不中断摄取
		}
	}

	return s.run(ctx, runID, fileKey, namespace)
}

// IngestExisting 对已有摄取记录执行流水线
// 供异步队列的工作者调用，记录由入队方预先创建
func (s *IngestService) IngestExisting(ctx context.Context, recordID string, fileKey string) (*ChunkSummary, error) {
	if fileKey == "" {
		return nil, errors.New("fileKey cannot be empty")
	}

	namespace := vectordb.NamespaceForKey(fileKey)
	return s.run(ctx, recordID, fileKey, namespace)
}

// run 执行一次摄取流水线
// 阶段机：fetching → parsing → chunking → embedding → upserting → done
// 任一阶段失败即终止整个运行，不存在部分入库
func (s *IngestService) run(ctx context.Context, runID, fileKey, namespace string) (*ChunkSummary, error) {
	// 设置上下文超时
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.markProcessing(ctx, runID)

	// 下载文件到本地临时路径
	s.enterStage(ctx, runID, models.StageFetching, 5)
	localPath, cleanup, err := s.storage.Fetch(ctx, fileKey)
	if err != nil {
		return nil, s.failRun(ctx, runID, models.StageFetching, err)
	}
	// 无论成功失败都释放临时文件
	defer cleanup()

	// 解析文档为有序页面
	s.enterStage(ctx, runID, models.StageParsing, 20)
	parser := s.parser
	if parser == nil {
		parser, err = document.ParserFactory(localPath)
		if err != nil {
			return nil, s.failRun(ctx, runID, models.StageParsing, err)
		}
	}

	pages, err := parser.Parse(localPath)
	if err != nil {
		return nil, s.failRun(ctx, runID, models.StageParsing, err)
	}

	// 零页文档不是错误，按无可提取内容完成
	if len(pages) == 0 {
		s.finishRun(ctx, runID, 0, 0)
		s.logger.WithField("run_id", runID).Info("Document has no extractable pages")
		return nil, nil
	}

	// 按页并发分块
	s.enterStage(ctx, runID, models.StageChunking, 35)
	chunksByPage, err := s.splitPages(pages)
	if err != nil {
		return nil, s.failRun(ctx, runID, models.StageChunking, err)
	}

	// 按文档顺序展平块序列
	var chunks []document.Chunk
	for _, pageChunks := range chunksByPage {
		chunks = append(chunks, pageChunks...)
	}

	// 所有页面都为空时同样按无内容完成
	if len(chunks) == 0 {
		s.finishRun(ctx, runID, len(pages), 0)
		s.logger.WithField("run_id", runID).Info("Document produced no chunks")
		return nil, nil
	}

	// 按块并发向量化
	s.enterStage(ctx, runID, models.StageEmbedding, 50)
	records, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, s.failRun(ctx, runID, models.StageEmbedding, err)
	}

	// 单批次写入向量库
	s.enterStage(ctx, runID, models.StageUpserting, 85)
	if err := s.store.Upsert(ctx, namespace, records); err != nil {
		return nil, s.failRun(ctx, runID, models.StageUpserting, err)
	}

	s.finishRun(ctx, runID, len(pages), len(chunks))

	s.logger.WithFields(logrus.Fields{
		"run_id":      runID,
		"page_count":  len(pages),
		"chunk_count": len(chunks),
		"namespace":   namespace,
	}).Info("Document ingestion completed successfully")

	// 返回文档顺序上的第一个块
	first := chunks[0]
	return &ChunkSummary{
		PageNumber: first.PageNumber,
		Text:       first.Text,
		ContentID:  document.ContentID(first.Text),
	}, nil
}

// splitPages 并发分块所有页面
// 每页一个任务提交到协程池，等待全部完成后按页序返回
func (s *IngestService) splitPages(pages []document.Page) ([][]document.Chunk, error) {
	results := make([][]document.Chunk, len(pages))

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for i := range pages {
		i := i
		page := pages[i]
		wg.Add(1)

		task := func() {
			defer wg.Done()
			chunks, err := s.splitter.SplitPage(page)
			if err != nil {
				once.Do(func() { firstErr = err })
				return
			}
			results[i] = chunks
		}

		// 池不可用时在当前协程执行
		if err := s.pool.Submit(task); err != nil {
			task()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// embedChunks 并发向量化所有块
// 只记录第一个错误；任一块失败时结果整体丢弃，调用方不会执行入库
func (s *IngestService) embedChunks(ctx context.Context, chunks []document.Chunk) ([]vectordb.Record, error) {
	records := make([]vectordb.Record, len(chunks))

	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for i := range chunks {
		i := i
		chunk := chunks[i]
		wg.Add(1)

		task := func() {
			defer wg.Done()

			// 兄弟任务已失败时尽早放弃
			if ctx.Err() != nil {
				once.Do(func() { firstErr = ctx.Err() })
				return
			}

			vector, err := s.embedder.Embed(ctx, chunk.Text)
			if err != nil {
				once.Do(func() { firstErr = err })
				return
			}

			records[i] = vectordb.Record{
				ID:     document.ContentID(chunk.Text),
				Values: vector,
				Metadata: vectordb.Metadata{
					Text:       chunk.Truncated,
					PageNumber: chunk.PageNumber,
				},
			}
		}

		if err := s.pool.Submit(task); err != nil {
			task()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}

// failRun 将运行标记为失败并返回包装后的流水线错误
func (s *IngestService) failRun(ctx context.Context, runID string, stage models.IngestStage, err error) error {
	perr := NewPipelineError(stage, err)

	s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"stage":  stage,
		"error":  err,
	}).Error("Document ingestion failed")

	if s.statusManager != nil {
		if merr := s.statusManager.MarkAsFailed(ctx, runID, stage, perr.Error()); merr != nil {
			s.logger.WithError(merr).Error("Failed to mark ingestion run as failed")
		}
	}

	return perr
}

// markProcessing 将运行标记为处理中
func (s *IngestService) markProcessing(ctx context.Context, runID string) {
	if s.statusManager == nil {
		return
	}
	if err := s.statusManager.MarkAsProcessing(ctx, runID); err != nil {
		s.logger.WithError(err).Warn("Failed to mark ingestion run as processing")
	}
}

// enterStage 记录运行进入新阶段
func (s *IngestService) enterStage(ctx context.Context, runID string, stage models.IngestStage, progress int) {
	if s.statusManager == nil {
		return
	}
	if err := s.statusManager.EnterStage(ctx, runID, stage, progress); err != nil {
		s.logger.WithError(err).Warn("Failed to update ingestion stage")
	}
}

// finishRun 将运行标记为完成并记录统计结果
func (s *IngestService) finishRun(ctx context.Context, runID string, pageCount, chunkCount int) {
	if s.statusManager == nil {
		return
	}
	if err := s.statusManager.MarkAsCompleted(ctx, runID, pageCount, chunkCount); err != nil {
		s.logger.WithError(err).Error("Failed to mark ingestion run as completed")
	}
}

// GetStatusManager 返回状态管理器实例
func (s *IngestService) GetStatusManager() *IngestionStatusManager {
	return s.statusManager
}

// GetTaskQueue 返回任务队列实例
func (s *IngestService) GetTaskQueue() taskqueue.Queue {
	return s.taskQueue
}
