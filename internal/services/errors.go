package services

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/pdf-vector-ingest/internal/models"
)

// PipelineError 流水线错误
// 包装失败阶段的底层错误，调用方据此定位失败环节
type PipelineError struct {
	Stage models.IngestStage // 失败的流水线阶段
	Err   error              // 底层错误
}

// Error 实现error接口
func (e *PipelineError) Error() string {
	return fmt.Sprintf("ingestion failed at %s stage: %v", e.Stage, e.Err)
}

// Unwrap 返回底层错误，支持errors.Is/As链
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError 创建流水线错误
func NewPipelineError(stage models.IngestStage, err error) *PipelineError {
	return &PipelineError{
		Stage: stage,
		Err:   err,
	}
}

// FailedStage 提取错误中的失败阶段
// 非流水线错误返回空字符串
func FailedStage(err error) models.IngestStage {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return perr.Stage
	}
	return ""
}
