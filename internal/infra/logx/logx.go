// Package logx 提供进程级日志器。
//
// 约束：日志一律写 stderr（stdout 保留给 RunReport JSON 的输出契约）。
// 交互终端用 tint 彩色输出，非交互环境退化为 JSON 行。
package logx

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New 按级别与终端形态构造日志器。
func New(w io.Writer, level string, interactive bool) *slog.Logger {
	lv := parseLevel(level)

	if interactive {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lv,
			TimeFormat: time.TimeOnly,
		}))
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
