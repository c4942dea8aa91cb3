package document

import "fmt"

// ParseError 文档解析错误类型
type ParseError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e ParseError) Error() string {
	return fmt.Sprintf("parse error (code=%d): %s", e.Code, e.Message)
}

// ChunkError 文本分块错误类型
// 只在分割不变量被破坏时出现，例如文本无法编码
type ChunkError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk error (code=%d): %s", e.Code, e.Message)
}

// 解析错误码常量
const (
	ErrCodeUnsupportedType = 3001 // 不支持的文档类型
	ErrCodeCorruptDocument = 3002 // 文档损坏或不可解码
	ErrCodeEncrypted       = 3003 // 文档已加密
	ErrCodeReadFailure     = 3004 // 读取文档失败
)

// 分块错误码常量
const (
	ErrCodeInvalidEncoding = 3101 // 文本不是合法UTF-8
	ErrCodeInvalidConfig   = 3102 // 分段器配置无效
)

// NewParseError 创建新的解析错误
func NewParseError(code int, message string) ParseError {
	return ParseError{Code: code, Message: message}
}

// NewChunkError 创建新的分块错误
func NewChunkError(code int, message string) ChunkError {
	return ChunkError{Code: code, Message: message}
}
