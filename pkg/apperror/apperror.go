package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind 是应用级错误的分类。
// 每个分类对应一个稳定的机器可读错误码和一个HTTP状态码。
type Kind string

const (
	// KindValidation 表示请求输入不合法或违反业务不变量 (HTTP 400)。
	KindValidation Kind = "validation_error"
	// KindAuthentication 表示会话缺失/过期，或WebAuthn仪式验证失败 (HTTP 401)。
	KindAuthentication Kind = "authentication_error"
	// KindForbidden 表示已认证但无权执行该操作 (HTTP 403)。
	KindForbidden Kind = "forbidden"
	// KindNotFound 表示目标实体不存在 (HTTP 404)。
	KindNotFound Kind = "not_found"
	// KindConflict 表示与现有状态冲突，如用户名重复、重复投票 (HTTP 409)。
	KindConflict Kind = "conflict"
	// KindInternal 表示存储或其他意外故障 (HTTP 500)。
	KindInternal Kind = "internal_error"
)

// Error 是携带分类信息的应用级错误。
// Message 面向用户，Err 保留底层原因供日志和errors.Is/As使用。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建一个不携带底层原因的应用级错误。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 将底层错误包装为应用级错误。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 提取错误的分类。非应用级错误一律视为内部错误。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// statusOf 将错误分类映射到HTTP状态码。
func statusOf(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody 是所有错误响应的统一JSON结构。
type errorBody struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Respond 将错误写入gin响应。
// 内部错误不向客户端暴露底层细节，只记录到服务端日志。
func Respond(c *gin.Context, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Wrap(KindInternal, "服务器内部错误", err)
	}

	body := errorBody{
		Error:   appErr.Kind,
		Message: appErr.Message,
	}
	if appErr.Kind == KindInternal {
		fmt.Printf("内部错误: %v\n", err)
	} else if appErr.Err != nil {
		body.Details = appErr.Err.Error()
	}

	c.AbortWithStatusJSON(statusOf(appErr.Kind), body)
}
