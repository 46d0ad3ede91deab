package embedding

import "fmt"

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
	Err     error  // 底层错误(可选)
}

// Error 实现error接口
func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding error (code=%d): %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// Is 错误码相同即视为同一类错误
func (e *EmbeddingError) Is(target error) bool {
	t, ok := target.(*EmbeddingError)
	return ok && t.Code == e.Code
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeBatchTooLarge  = 1008 // 批次过大
	ErrCodeBadResponse    = 1009 // 响应内容不完整
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgBatchTooLarge  = "batch size exceeds the configured limit"
	ErrMsgBadResponse    = "embedding response does not match the request"
)

// 常用错误，可用errors.Is判断
var (
	ErrEmptyText     = NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	ErrRateLimited   = NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
	ErrBatchTooLarge = NewEmbeddingError(ErrCodeBatchTooLarge, ErrMsgBatchTooLarge)
	ErrInvalidAPIKey = NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) *EmbeddingError {
	return &EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// wrapError 创建带底层错误的嵌入错误
func wrapError(code int, message string, err error) *EmbeddingError {
	return &EmbeddingError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
