package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/internal/database"
	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
	"gorm.io/gorm"
)

// ingestionRepository 摄取记录仓储实现
type ingestionRepository struct {
	db *gorm.DB // 数据库连接
}

// NewIngestionRepository 创建摄取记录仓储实例
func NewIngestionRepository() IngestionRepository {
	return &ingestionRepository{
		db: database.MustDB(),
	}
}

// NewIngestionRepositoryWithDB 使用指定的数据库连接创建仓储实例
func NewIngestionRepositoryWithDB(db *gorm.DB) IngestionRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &ingestionRepository{
		db: db,
	}
}

// Create 创建摄取记录
func (r *ingestionRepository) Create(rec *models.IngestionRecord) error {
	if rec.ID == "" {
		return errors.New("ingestion record ID cannot be empty")
	}

	return r.db.Create(rec).Error
}

// Update 更新摄取记录
func (r *ingestionRepository) Update(rec *models.IngestionRecord) error {
	if rec.ID == "" {
		return errors.New("ingestion record ID cannot be empty")
	}

	return r.db.Save(rec).Error
}

// GetByID 根据ID获取摄取记录
func (r *ingestionRepository) GetByID(id string) (*models.IngestionRecord, error) {
	var rec models.IngestionRecord
	err := r.db.Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrIngestionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetByFileKey 根据文件键获取最近一次的摄取记录
func (r *ingestionRepository) GetByFileKey(fileKey string) (*models.IngestionRecord, error) {
	var rec models.IngestionRecord
	err := r.db.Where("file_key = ?", fileKey).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrIngestionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List 列出摄取记录，支持分页和筛选
func (r *ingestionRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.IngestionRecord, int64, error) {
	var recs []*models.IngestionRecord
	var total int64

	// 创建查询构造器
	query := r.db.Model(&models.IngestionRecord{})

	// 应用筛选条件
	if filters != nil {
		// 状态过滤
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.IngestionStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			default:
				statusStr := fmt.Sprintf("%v", status)
				if statusStr != "" {
					query = query.Where("status = ?", statusStr)
				}
			}
		}

		// 文件键过滤
		if fileKey, ok := filters["file_key"].(string); ok && fileKey != "" {
			query = query.Where("file_key = ?", fileKey)
		}

		// 命名空间过滤
		if namespace, ok := filters["namespace"].(string); ok && namespace != "" {
			query = query.Where("namespace = ?", namespace)
		}

		// 时间范围过滤
		if startTime, ok := filters["start_time"].(string); ok && startTime != "" {
			query = query.Where("created_at >= ?", startTime)
		}

		if endTime, ok := filters["end_time"].(string); ok && endTime != "" {
			query = query.Where("created_at <= ?", endTime)
		}

		// 文件名过滤
		if fileName, ok := filters["file_name"].(string); ok && fileName != "" {
			query = query.Where("file_name LIKE ?", "%"+fileName+"%")
		}
	}

	// 获取总数
	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	// 应用排序、分页并执行查询
	err = query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error

	if err != nil {
		return nil, 0, err
	}

	return recs, total, nil
}

// Delete 删除摄取记录
func (r *ingestionRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.IngestionRecord{}).Error
}

// UpdateStatus 更新任务状态
func (r *ingestionRepository) UpdateStatus(id string, status models.IngestionStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	// 如果有错误消息，更新错误字段
	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	// 如果状态是已完成或失败，设置完成时间
	if status == models.StatusCompleted || status == models.StatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}

	return r.db.Model(&models.IngestionRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateStage 更新任务所处的流水线阶段
func (r *ingestionRepository) UpdateStage(id string, stage models.IngestStage) error {
	return r.db.Model(&models.IngestionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stage":      stage,
			"updated_at": time.Now(),
		}).Error
}

// UpdateProgress 更新任务处理进度
func (r *ingestionRepository) UpdateProgress(id string, progress int) error {
	// 确保进度在0-100范围内
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return r.db.Model(&models.IngestionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

// SetResult 记录任务的最终统计结果
func (r *ingestionRepository) SetResult(id string, pageCount, chunkCount int) error {
	return r.db.Model(&models.IngestionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"page_count":  pageCount,
			"chunk_count": chunkCount,
			"updated_at":  time.Now(),
		}).Error
}
