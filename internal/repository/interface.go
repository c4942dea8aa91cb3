package repository

import "github.com/fyerfyer/pdf-vector-ingest/internal/models"

// IngestionRepository 摄取记录仓储接口
// 负责摄取任务元数据的存储和检索
type IngestionRepository interface {
	// Create 创建摄取记录
	Create(rec *models.IngestionRecord) error

	// Update 更新摄取记录
	Update(rec *models.IngestionRecord) error

	// GetByID 根据ID获取摄取记录
	GetByID(id string) (*models.IngestionRecord, error)

	// GetByFileKey 根据文件键获取最近一次的摄取记录
	GetByFileKey(fileKey string) (*models.IngestionRecord, error)

	// List 列出摄取记录，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.IngestionRecord, int64, error)

	// Delete 删除摄取记录
	Delete(id string) error

	// UpdateStatus 更新任务状态
	UpdateStatus(id string, status models.IngestionStatus, errorMsg string) error

	// UpdateStage 更新任务所处的流水线阶段
	UpdateStage(id string, stage models.IngestStage) error

	// UpdateProgress 更新任务处理进度
	UpdateProgress(id string, progress int) error

	// SetResult 记录任务的最终统计结果
	SetResult(id string, pageCount, chunkCount int) error
}
