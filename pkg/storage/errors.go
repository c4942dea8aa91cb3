package storage

import (
	"errors"
	"fmt"
)

// FetchError 对象取回错误类型
// 对象缺失、访问被拒绝或传输中断都属于此类错误
type FetchError struct {
	Code    int    // 错误码
	Key     string // 涉及的对象键
	Message string // 错误消息
}

// Error 实现error接口
func (e FetchError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("fetch error (code=%d, key=%s): %s", e.Code, e.Key, e.Message)
	}
	return fmt.Sprintf("fetch error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeObjectNotFound = 2001 // 对象不存在
	ErrCodeAccessDenied   = 2002 // 访问被拒绝(含凭证缺失)
	ErrCodeTransferFailed = 2003 // 传输中断
	ErrCodeUnreadableBody = 2004 // 响应体不可读取
	ErrCodeInvalidConfig  = 2005 // 存储配置无效
)

// NewFetchError 创建新的取回错误
func NewFetchError(code int, key string, message string) FetchError {
	return FetchError{
		Code:    code,
		Key:     key,
		Message: message,
	}
}

// IsNotFound 判断错误是否为对象不存在
// 错误可能被上层包装，这里沿错误链查找
func IsNotFound(err error) bool {
	var fe FetchError
	return errors.As(err, &fe) && fe.Code == ErrCodeObjectNotFound
}
