package codec

import (
	"fmt"

	"github.com/chenxilol/hubbot/pkg/protocol"
)

// 错误码定义
const (
	// 系统相关错误码 (1000-1999)
	ErrCodeUnknown          = 1000
	ErrCodeInvalidFormat    = 1001
	ErrCodeInvalidMessageID = 1002
	ErrCodeServerError      = 1003
	ErrCodeTimeout          = 1004
	ErrCodeRateLimited      = 1005

	// 认证相关错误码 (2000-2999)
	ErrCodeUnauthorized = 2000
	ErrCodeForbidden    = 2001
	ErrCodeTokenExpired = 2002
	ErrCodeInvalidToken = 2003

	// 房间相关错误码 (3000-3999)
	ErrCodeRoomNotFound = 3000
	ErrCodeNotInRoom    = 3003

	// 客户端相关错误码 (4000-4999)
	ErrCodeClientNotFound  = 4000
	ErrCodeClientOffline   = 4001
	ErrCodeMessageTooLarge = 4002
)

// ErrorResponse 服务端错误帧的内容
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID int    `json:"request_id"`
	Details   any    `json:"details,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("error code: %d, message: %s, details: %v", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("error code: %d, message: %s", e.Code, e.Message)
}

// Unwrap 按错误码归类到 protocol 的错误类型
func (e *ErrorResponse) Unwrap() error {
	return KindForCode(e.Code)
}

// KindForCode 把服务端错误码映射为 protocol 错误类型
func KindForCode(code int) error {
	switch {
	case code >= 2000 && code < 3000:
		return protocol.ErrAuthorization
	case code == ErrCodeTimeout, code == ErrCodeServerError:
		return protocol.ErrIO
	default:
		return protocol.ErrInvocation
	}
}
