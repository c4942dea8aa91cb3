package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
	"github.com/fyerfyer/pdf-vector-ingest/internal/repository"
	"github.com/sirupsen/logrus"
)

// IngestionStatusManager 摄取状态管理器
// 负责管理摄取运行的生命周期状态
type IngestionStatusManager struct {
	repo   repository.IngestionRepository // 摄取记录仓储接口
	logger *logrus.Logger                 // 日志记录器
	mu     sync.Mutex                     // 互斥锁，保证状态转换的原子性
}

// NewIngestionStatusManager 创建摄取状态管理器
func NewIngestionStatusManager(repo repository.IngestionRepository, logger *logrus.Logger) *IngestionStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &IngestionStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// StartRun 创建一条新的摄取记录，初始状态为等待处理
func (m *IngestionStatusManager) StartRun(ctx context.Context, runID, fileKey, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"file_key": fileKey,
	}).Info("Creating ingestion record")

	rec := &models.IngestionRecord{
		ID:        runID,
		FileKey:   fileKey,
		FileName:  fileNameFromKey(fileKey),
		Namespace: namespace,
		Status:    models.StatusPending,
		Stage:     models.StageFetching,
		Progress:  0,
	}

	return m.repo.Create(rec)
}

// MarkAsProcessing 将运行标记为处理中状态
func (m *IngestionStatusManager) MarkAsProcessing(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 获取当前记录
	rec, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get ingestion record: %w", err)
	}

	// 检查状态转换的有效性，失败的运行允许重试
	if rec.Status != models.StatusPending && rec.Status != models.StatusFailed {
		return fmt.Errorf("invalid state transition: run %s is in %s state, expected %s",
			runID, rec.Status, models.StatusPending)
	}

	m.logger.WithField("run_id", runID).Info("Marking ingestion run as processing")

	return m.repo.UpdateStatus(runID, models.StatusProcessing, "")
}

// EnterStage 记录运行进入新的流水线阶段并更新进度
func (m *IngestionStatusManager) EnterStage(ctx context.Context, runID string, stage models.IngestStage, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"stage":    stage,
		"progress": progress,
	}).Debug("Ingestion run entering stage")

	if err := m.repo.UpdateStage(runID, stage); err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}

	return m.repo.UpdateProgress(runID, progress)
}

// MarkAsCompleted 将运行标记为处理完成状态并记录统计结果
func (m *IngestionStatusManager) MarkAsCompleted(ctx context.Context, runID string, pageCount, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 获取当前记录
	rec, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get ingestion record: %w", err)
	}

	// 检查状态转换的有效性
	if rec.Status != models.StatusProcessing && rec.Status != models.StatusPending {
		return fmt.Errorf("invalid state transition: run %s is in %s state, expected %s or %s",
			runID, rec.Status, models.StatusProcessing, models.StatusPending)
	}

	m.logger.WithFields(logrus.Fields{
		"run_id":      runID,
		"page_count":  pageCount,
		"chunk_count": chunkCount,
	}).Info("Marking ingestion run as completed")

	if err := m.repo.SetResult(runID, pageCount, chunkCount); err != nil {
		return err
	}

	if err := m.repo.UpdateStage(runID, models.StageDone); err != nil {
		return err
	}

	if err := m.repo.UpdateProgress(runID, 100); err != nil {
		return err
	}

	return m.repo.UpdateStatus(runID, models.StatusCompleted, "")
}

// MarkAsFailed 将运行标记为处理失败状态
// stage记录失败时所处的流水线阶段
func (m *IngestionStatusManager) MarkAsFailed(ctx context.Context, runID string, stage models.IngestStage, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 获取当前记录
	_, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get ingestion record: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"stage":  stage,
		"error":  errorMsg,
	}).Error("Marking ingestion run as failed")

	if stage != "" {
		if err := m.repo.UpdateStage(runID, stage); err != nil {
			return err
		}
	}

	return m.repo.UpdateStatus(runID, models.StatusFailed, errorMsg)
}

// AttachTask 将队列任务ID关联到摄取记录
func (m *IngestionStatusManager) AttachTask(ctx context.Context, runID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get ingestion record: %w", err)
	}

	rec.TaskID = taskID
	return m.repo.Update(rec)
}

// GetStatus 获取运行当前状态
func (m *IngestionStatusManager) GetStatus(ctx context.Context, runID string) (models.IngestionStatus, error) {
	rec, err := m.repo.GetByID(runID)
	if err != nil {
		return "", fmt.Errorf("failed to get ingestion status: %w", err)
	}
	return rec.Status, nil
}

// GetRecord 获取完整的摄取记录
func (m *IngestionStatusManager) GetRecord(ctx context.Context, runID string) (*models.IngestionRecord, error) {
	return m.repo.GetByID(runID)
}

// ListRuns 获取摄取记录列表
func (m *IngestionStatusManager) ListRuns(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.IngestionRecord, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeleteRun 删除摄取记录
func (m *IngestionStatusManager) DeleteRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("run_id", runID).Info("Deleting ingestion record")
	return m.repo.Delete(runID)
}

// fileNameFromKey 从存储键中提取文件名
func fileNameFromKey(fileKey string) string {
	name := fileKey
	for i := len(fileKey) - 1; i >= 0; i-- {
		if fileKey[i] == '/' {
			name = fileKey[i+1:]
			break
		}
	}
	return name
}
