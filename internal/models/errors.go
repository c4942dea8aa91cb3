package models

import "errors"

var (
	// ErrIngestionNotFound 摄取记录不存在错误
	ErrIngestionNotFound = errors.New("ingestion record not found")

	// ErrInvalidIngestionStatus 无效的任务状态错误
	ErrInvalidIngestionStatus = errors.New("invalid ingestion status")
)
