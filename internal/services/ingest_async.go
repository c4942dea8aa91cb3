package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/internal/vectordb"
	"github.com/fyerfyer/pdf-vector-ingest/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IngestAsync 将摄取任务加入队列并立即返回
// 实际流水线由工作者进程通过IngestExisting执行
// 返回摄取记录ID和队列任务ID
func (s *IngestService) IngestAsync(ctx context.Context, fileKey string) (string, string, error) {
	if fileKey == "" {
		return "", "", errors.New("fileKey cannot be empty")
	}
	if s.taskQueue == nil {
		return "", "", errors.New("task queue not configured")
	}
	if s.statusManager == nil {
		return "", "", errors.New("status manager required for async ingestion")
	}

	runID := uuid.New().String()
	namespace := vectordb.NamespaceForKey(fileKey)

	s.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"file_key": fileKey,
	}).Info("Enqueuing document for async ingestion")

	// 入队前先创建摄取记录，工作者按记录ID执行
	if err := s.statusManager.StartRun(ctx, runID, fileKey, namespace); err != nil {
		return "", "", fmt.Errorf("failed to create ingestion record: %w", err)
	}

	payload := taskqueue.IngestPayload{
		FileKey: fileKey,
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskIngestDocument, runID, payload)
	if err != nil {
		if merr := s.statusManager.MarkAsFailed(ctx, runID, "", fmt.Sprintf("failed to enqueue task: %v", err)); merr != nil {
			s.logger.WithError(merr).Error("Failed to mark ingestion run as failed")
		}
		return "", "", fmt.Errorf("failed to enqueue ingest task: %w", err)
	}

	// 将队列任务ID关联到摄取记录
	if err := s.statusManager.AttachTask(ctx, runID, taskID); err != nil {
		s.logger.WithError(err).Warn("Failed to attach task id to ingestion record")
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"task_id": taskID,
	}).Info("Ingest task enqueued successfully")

	return runID, taskID, nil
}

// WaitForRun 等待异步摄取任务完成
func (s *IngestService) WaitForRun(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, errors.New("task queue not configured")
	}

	task, err := s.taskQueue.WaitForTask(ctx, taskID, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for ingest task: %w", err)
	}

	if task.Status == taskqueue.StatusFailed {
		return task, fmt.Errorf("ingest task failed: %s", task.Error)
	}

	return task, nil
}
