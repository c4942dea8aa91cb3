package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IngestionStatus 摄取任务状态类型
type IngestionStatus string

const (
	// StatusPending 任务已创建，等待处理
	StatusPending IngestionStatus = "pending"
	// StatusProcessing 任务处理中
	StatusProcessing IngestionStatus = "processing"
	// StatusCompleted 任务处理完成
	StatusCompleted IngestionStatus = "completed"
	// StatusFailed 任务处理失败
	StatusFailed IngestionStatus = "failed"
)

// IngestStage 摄取流水线阶段
type IngestStage string

const (
	// StageFetching 下载阶段
	StageFetching IngestStage = "fetching"
	// StageParsing 解析阶段
	StageParsing IngestStage = "parsing"
	// StageChunking 分块阶段
	StageChunking IngestStage = "chunking"
	// StageEmbedding 向量化阶段
	StageEmbedding IngestStage = "embedding"
	// StageUpserting 写入向量库阶段
	StageUpserting IngestStage = "upserting"
	// StageDone 处理完成
	StageDone IngestStage = "done"
)

// IngestionRecord 摄取任务数据模型
// 记录一次文档摄取从下载到写入向量库的全过程
type IngestionRecord struct {
	ID          string          `gorm:"primaryKey"`         // 任务ID，主键
	FileKey     string          `gorm:"not null;index"`     // 对象存储中的文件键
	FileName    string          `gorm:"not null"`           // 原始文件名
	FileSize    int64           `gorm:"not null;default:0"` // 文件大小（字节）
	Namespace   string          `gorm:"not null;index"`     // 向量库命名空间
	Status      IngestionStatus `gorm:"not null;index"`     // 处理状态
	Stage       IngestStage     `gorm:"size:20"`            // 当前处理阶段
	Progress    int             `gorm:"not null;default:0"` // 处理进度（0-100）
	PageCount   int             `gorm:"not null;default:0"` // 文档页数
	ChunkCount  int             `gorm:"not null;default:0"` // 分块数量
	Error       string          `gorm:"type:text"`          // 错误信息
	CreatedAt   time.Time       `gorm:"not null;index"`     // 创建时间
	UpdatedAt   time.Time       `gorm:"not null;index"`     // 更新时间
	CompletedAt *time.Time      `gorm:"index"`              // 完成时间
	TaskID      string          `gorm:"size:50;index"`      // 异步队列的任务ID
	RetryCount  int             `gorm:"default:0"`          // 重试次数
	Metadata    datatypes.JSON  `gorm:"type:json"`          // 扩展元数据，JSON格式
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *IngestionRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (r *IngestionRecord) BeforeUpdate(tx *gorm.DB) (err error) {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (IngestionRecord) TableName() string {
	return "ingestion_records"
}
