package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

const echoKey = "logger"

var (
	once sync.Once
	base *slog.Logger
)

// Init はグローバルloggerを1回だけ作る。stdoutとローテーションファイルの両方に書く。
// filePathが空ならstdoutだけ。
func Init(service, filePath, level string) *slog.Logger {
	once.Do(func() {
		var w io.Writer = os.Stdout
		if filePath != "" {
			_ = os.MkdirAll(filepath.Dir(filePath), 0o755)
			rot := &lumberjack.Logger{
				Filename:   filePath,
				MaxSize:    50, // MB
				MaxBackups: 3,
				MaxAge:     7, // days
			}
			w = io.MultiWriter(os.Stdout, rot)
		}

		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
		base = slog.New(h).With("service", service)
	})
	return base
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Base はグローバルloggerを返す（未初期化ならstdoutだけで作る）
func Base() *slog.Logger {
	return Init("storefront", "", "info")
}

// New は同じhandlerを使う子loggerを返す
func New(component string) *slog.Logger {
	return Base().With("component", component)
}

func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx はctxのloggerを返す。無ければグローバル。
func FromCtx(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}

// With はリクエスト単位のloggerをecho.Contextとrequest ctxの両方に入れる
func With(c echo.Context, l *slog.Logger) {
	c.Set(echoKey, l)
	c.SetRequest(c.Request().WithContext(WithCtx(c.Request().Context(), l)))
}

func From(c echo.Context) *slog.Logger {
	if l, ok := c.Get(echoKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return Base()
}
