package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fyerfyer/pdf-vector-ingest/api/middleware"
	"github.com/fyerfyer/pdf-vector-ingest/api/model"
	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
	"github.com/fyerfyer/pdf-vector-ingest/internal/services"
	"github.com/fyerfyer/pdf-vector-ingest/internal/vectordb"
	"github.com/fyerfyer/pdf-vector-ingest/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IngestHandler 处理摄取相关的API请求
type IngestHandler struct {
	ingestService *services.IngestService // 摄取流水线服务
	fileStorage   storage.Storage         // 文件存储服务
	vectorStore   vectordb.Store          // 向量存储
	logger        *logrus.Logger          // 日志记录器
}

// NewIngestHandler 创建新的摄取处理器
func NewIngestHandler(ingestService *services.IngestService, fileStorage storage.Storage, vectorStore vectordb.Store) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		fileStorage:   fileStorage,
		vectorStore:   vectorStore,
		logger:        middleware.GetLogger(),
	}
}

// Ingest 对存储中已有对象触发摄取
// POST /api/ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Invalid ingest request")

		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	if !isValidFileType(filepath.Ext(req.FileKey)) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"不支持的文件类型，仅支持 .pdf, .md, .markdown, .txt",
		))
		return
	}

	if req.Async {
		h.ingestAsync(c, req.FileKey)
		return
	}

	h.ingestSync(c, req.FileKey)
}

// Upload 上传文件并触发摄取
// POST /api/ingest/upload
func (h *IngestHandler) Upload(c *gin.Context) {
	var req model.UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Invalid upload request")

		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	if req.File == nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"未提供文件",
		))
		return
	}

	// 检查文件类型
	filename := req.File.Filename
	if !isValidFileType(filepath.Ext(filename)) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"不支持的文件类型，仅支持 .pdf, .md, .markdown, .txt",
		))
		return
	}

	// 打开上传的文件
	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to open uploaded file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	// 保存文件到存储
	fileInfo, err := h.fileStorage.Save(c.Request.Context(), file, filename)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to save file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"保存文件失败",
		))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"file_key": fileInfo.Key,
		"filename": fileInfo.Name,
		"size":     fileInfo.Size,
	}).Info("File uploaded successfully")

	if req.Async {
		h.ingestAsync(c, fileInfo.Key)
		return
	}

	h.ingestSync(c, fileInfo.Key)
}

// ingestSync 同步执行摄取流水线并返回结果
func (h *IngestHandler) ingestSync(c *gin.Context, fileKey string) {
	summary, err := h.ingestService.Ingest(c.Request.Context(), fileKey)
	if err != nil {
		stage := services.FailedStage(err)

		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"file_key": fileKey,
			"stage":    stage,
		}).Error("Ingestion failed")

		if storage.IsNotFound(err) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(
				http.StatusNotFound,
				"存储中未找到对象",
			))
			return
		}

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"摄取失败: "+err.Error(),
		))
		return
	}

	resp := model.IngestResponse{
		FileKey:   fileKey,
		Namespace: vectordb.NamespaceForKey(fileKey),
		Status:    string(models.StatusCompleted),
	}

	if summary != nil {
		resp.FirstChunk = &model.ChunkInfo{
			PageNumber: summary.PageNumber,
			Text:       summary.Text,
			ContentID:  summary.ContentID,
		}
	}

	// 状态管理器可用时补充记录信息
	if mgr := h.ingestService.GetStatusManager(); mgr != nil {
		records, _, err := mgr.ListRuns(c.Request.Context(), 0, 1, map[string]interface{}{
			"file_key": fileKey,
		})
		if err == nil && len(records) > 0 {
			resp.RecordID = records[0].ID
			resp.PageCount = records[0].PageCount
			resp.ChunkCount = records[0].ChunkCount
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ingestAsync 将摄取任务入队并立刻返回
func (h *IngestHandler) ingestAsync(c *gin.Context, fileKey string) {
	recordID, taskID, err := h.ingestService.IngestAsync(c.Request.Context(), fileKey)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"file_key": fileKey,
		}).Error("Failed to enqueue ingestion task")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"提交摄取任务失败: "+err.Error(),
		))
		return
	}

	resp := model.IngestAsyncResponse{
		RecordID: recordID,
		TaskID:   taskID,
		FileKey:  fileKey,
		Status:   string(models.StatusPending),
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(resp))
}

// GetStatus 获取摄取记录状态
// GET /api/ingest/:id/status
func (h *IngestHandler) GetStatus(c *gin.Context) {
	var req model.IngestStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的记录ID"))
		return
	}

	mgr := h.ingestService.GetStatusManager()
	if mgr == nil {
		c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
			http.StatusServiceUnavailable,
			"状态跟踪未启用",
		))
		return
	}

	record, err := mgr.GetRecord(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrIngestionNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到摄取记录"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"record_id": req.ID,
		}).Error("Failed to get ingestion record")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取摄取状态失败",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ConvertRecord(record)))
}

// List 获取摄取记录列表
// GET /api/ingest
func (h *IngestHandler) List(c *gin.Context) {
	var req model.IngestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	mgr := h.ingestService.GetStatusManager()
	if mgr == nil {
		c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
			http.StatusServiceUnavailable,
			"状态跟踪未启用",
		))
		return
	}

	// 构建过滤条件
	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.FileKey != "" {
		filters["file_key"] = req.FileKey
	}
	if req.Namespace != "" {
		filters["namespace"] = req.Namespace
	}
	if req.StartTime != nil {
		filters["start_time"] = req.StartTime.Format(time.RFC3339)
	}
	if req.EndTime != nil {
		filters["end_time"] = req.EndTime.Format(time.RFC3339)
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()

	records, total, err := mgr.ListRuns(c.Request.Context(), (page-1)*pageSize, pageSize, filters)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Error("Failed to list ingestion records")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取摄取记录列表失败",
		))
		return
	}

	resp := model.IngestListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Records:  make([]model.IngestStatusResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, model.ConvertRecord(rec))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// Delete 删除摄取记录及其向量数据
// DELETE /api/ingest/:id
func (h *IngestHandler) Delete(c *gin.Context) {
	var req model.IngestDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的记录ID"))
		return
	}

	mgr := h.ingestService.GetStatusManager()
	if mgr == nil {
		c.JSON(http.StatusServiceUnavailable, model.NewErrorResponse(
			http.StatusServiceUnavailable,
			"状态跟踪未启用",
		))
		return
	}

	record, err := mgr.GetRecord(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrIngestionNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到摄取记录"))
			return
		}

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取摄取记录失败",
		))
		return
	}

	// 先清理命名空间下的向量，失败时只记录日志
	if h.vectorStore != nil && record.Namespace != "" {
		if err := h.vectorStore.DeleteNamespace(c.Request.Context(), record.Namespace); err != nil {
			h.logger.WithFields(logrus.Fields{
				"error":     err.Error(),
				"namespace": record.Namespace,
			}).Warn("Failed to delete vector namespace")
		}
	}

	if err := mgr.DeleteRun(c.Request.Context(), req.ID); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"record_id": req.ID,
		}).Error("Failed to delete ingestion record")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除摄取记录失败",
		))
		return
	}

	h.logger.WithField("record_id", req.ID).Info("Ingestion record deleted successfully")

	resp := model.IngestDeleteResponse{
		Success:  true,
		RecordID: req.ID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// Namespace 根据对象键推导向量命名空间
// GET /api/namespace?file_key=
func (h *IngestHandler) Namespace(c *gin.Context) {
	var req model.NamespaceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "缺少file_key参数"))
		return
	}

	resp := model.NamespaceResponse{
		FileKey:   req.FileKey,
		Namespace: vectordb.NamespaceForKey(req.FileKey),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// isValidFileType 检查文件类型是否有效
func isValidFileType(ext string) bool {
	validTypes := map[string]bool{
		".pdf":      true,
		".md":       true,
		".markdown": true,
		".txt":      true,
	}
	return validTypes[ext]
}
