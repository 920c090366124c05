// Package apperr 定义带分类的领域错误，HTTP 层据此映射状态码
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindUnavailable
	KindInternal
)

// Error 领域错误
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WithOp 设置出错的操作名
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, fmt.Sprintf(format, args...))
}

// KindOf 取出错误链中第一个 *Error 的分类
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is 判断错误链中是否包含指定分类
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Status 返回错误对应的 HTTP 状态码，未分类的错误视为 500
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
