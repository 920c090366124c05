// Package logger 提供结构化日志（基于 log/slog）
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New 根据运行环境创建日志器：开发环境输出文本 + Debug 级别，其余输出 JSON
func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter 同 New，但写入指定的 io.Writer
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard 丢弃所有输出的日志器（测试用）
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
