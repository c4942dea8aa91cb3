package model

import (
	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// ChunkInfo 首个分块信息
type ChunkInfo struct {
	PageNumber int    `json:"page_number"` // 分块所在页码
	Text       string `json:"text"`        // 截断后的分块文本
	ContentID  string `json:"content_id"`  // 内容哈希ID
}

// IngestResponse 同步摄取响应
type IngestResponse struct {
	RecordID   string     `json:"record_id"`             // 摄取记录ID
	FileKey    string     `json:"file_key"`              // 存储对象键
	Namespace  string     `json:"namespace"`             // 向量命名空间
	Status     string     `json:"status"`                // 摄取状态
	PageCount  int        `json:"page_count"`            // 解析页数
	ChunkCount int        `json:"chunk_count"`           // 写入分块数
	FirstChunk *ChunkInfo `json:"first_chunk,omitempty"` // 首个分块（空文档时缺省）
}

// IngestAsyncResponse 异步摄取响应
type IngestAsyncResponse struct {
	RecordID string `json:"record_id"` // 摄取记录ID
	TaskID   string `json:"task_id"`   // 队列任务ID
	FileKey  string `json:"file_key"`  // 存储对象键
	Status   string `json:"status"`    // 摄取状态
}

// IngestStatusResponse 摄取状态查询响应
type IngestStatusResponse struct {
	RecordID   string `json:"record_id"`             // 摄取记录ID
	FileKey    string `json:"file_key"`              // 存储对象键
	FileName   string `json:"filename"`              // 文件名
	Namespace  string `json:"namespace"`             // 向量命名空间
	Status     string `json:"status"`                // 摄取状态
	Stage      string `json:"stage"`                 // 当前阶段
	Progress   int    `json:"progress"`              // 进度(0-100)
	PageCount  int    `json:"page_count"`            // 解析页数
	ChunkCount int    `json:"chunk_count"`           // 写入分块数
	Error      string `json:"error,omitempty"`       // 错误信息（如果有）
	TaskID     string `json:"task_id,omitempty"`     // 队列任务ID（异步时）
	CreatedAt  string `json:"created_at"`            // 创建时间
	UpdatedAt  string `json:"updated_at"`            // 更新时间
	FinishedAt string `json:"finished_at,omitempty"` // 完成时间
}

// IngestListResponse 摄取记录列表响应
type IngestListResponse struct {
	Total    int64                  `json:"total"`     // 总数量
	Page     int                    `json:"page"`      // 当前页码
	PageSize int                    `json:"page_size"` // 每页大小
	Records  []IngestStatusResponse `json:"records"`   // 摄取记录列表
}

// IngestDeleteResponse 摄取记录删除响应
type IngestDeleteResponse struct {
	Success  bool   `json:"success"`   // 是否成功
	RecordID string `json:"record_id"` // 摄取记录ID
}

// NamespaceResponse 命名空间推导响应
type NamespaceResponse struct {
	FileKey   string `json:"file_key"`  // 存储对象键
	Namespace string `json:"namespace"` // 推导出的命名空间
}

// ConvertRecord 将摄取记录转换为状态响应
func ConvertRecord(rec *models.IngestionRecord) IngestStatusResponse {
	resp := IngestStatusResponse{
		RecordID:   rec.ID,
		FileKey:    rec.FileKey,
		FileName:   rec.FileName,
		Namespace:  rec.Namespace,
		Status:     string(rec.Status),
		Stage:      string(rec.Stage),
		Progress:   rec.Progress,
		PageCount:  rec.PageCount,
		ChunkCount: rec.ChunkCount,
		Error:      rec.Error,
		TaskID:     rec.TaskID,
		CreatedAt:  rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:  rec.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if rec.CompletedAt != nil {
		resp.FinishedAt = rec.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}
