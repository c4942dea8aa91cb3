package taskqueue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// IngestFunc 摄取执行函数
// 由服务层提供，对指定记录和文件键执行完整的摄取流水线
type IngestFunc func(ctx context.Context, recordID string, fileKey string) error

// IngestTaskHandler 文档摄取任务处理器
// 将队列任务载荷转换为服务层的摄取调用
type IngestTaskHandler struct {
	ingest IngestFunc     // 摄取执行函数
	logger *logrus.Logger // 日志记录器
}

// NewIngestTaskHandler 创建文档摄取任务处理器
func NewIngestTaskHandler(ingest IngestFunc, logger *logrus.Logger) *IngestTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &IngestTaskHandler{
		ingest: ingest,
		logger: logger,
	}
}

// ProcessTask 处理摄取任务
func (h *IngestTaskHandler) ProcessTask(ctx context.Context, task *Task) error {
	// 解析任务载荷
	var payload IngestPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		h.logger.WithError(err).WithField("task_id", task.ID).Error("Failed to unmarshal ingest payload")
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if payload.FileKey == "" {
		return fmt.Errorf("%w: file key is empty", ErrInvalidPayload)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"record_id": task.RecordID,
		"file_key":  payload.FileKey,
	}).Info("Processing ingest task")

	// 执行摄取流水线
	if err := h.ingest(ctx, task.RecordID, payload.FileKey); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"task_id":   task.ID,
			"record_id": task.RecordID,
		}).Error("Ingest task failed")
		return err
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"record_id": task.RecordID,
	}).Info("Ingest task completed")

	return nil
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *IngestTaskHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskIngestDocument}
}
