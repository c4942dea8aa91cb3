package model

import (
	"mime/multipart"
	"time"
)

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// IngestRequest 摄取请求
// 针对存储中已存在的对象触发摄取
type IngestRequest struct {
	FileKey string `json:"file_key" binding:"required"` // 存储对象键
	Async   bool   `json:"async" binding:"omitempty"`   // 是否异步执行
}

// UploadRequest 上传并摄取请求
type UploadRequest struct {
	File  *multipart.FileHeader `form:"file" binding:"required"` // 文件对象
	Async bool                  `form:"async" binding:"omitempty"`
}

// IngestStatusRequest 摄取状态查询请求
type IngestStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 摄取记录ID
}

// IngestListRequest 摄取记录列表请求
type IngestListRequest struct {
	PaginationRequest
	StartTime *time.Time `form:"start_time" json:"start_time" binding:"omitempty"` // 开始时间
	EndTime   *time.Time `form:"end_time" json:"end_time" binding:"omitempty"`     // 结束时间
	Status    string     `form:"status" json:"status" binding:"omitempty"`         // 摄取状态
	FileKey   string     `form:"file_key" json:"file_key" binding:"omitempty"`     // 对象键过滤
	Namespace string     `form:"namespace" json:"namespace" binding:"omitempty"`   // 命名空间过滤
}

// IngestDeleteRequest 摄取记录删除请求
type IngestDeleteRequest struct {
	ID string `uri:"id" binding:"required"` // 摄取记录ID
}

// NamespaceRequest 命名空间推导请求
type NamespaceRequest struct {
	FileKey string `form:"file_key" binding:"required"` // 存储对象键
}
