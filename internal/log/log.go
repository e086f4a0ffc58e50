package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config 是全局 logger 的配置。
type Config struct {
	Level   string    // "debug" / "info" / "warn" / "error"；空或非法时为 info
	Output  io.Writer // 默认 os.Stderr（stdout 留给 JSON report）
	Console bool      // true 时输出人类可读格式
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Configure 重新配置全局 logger；可以多次调用（CLI 解析完 flag 后会再调用一次）。
func Configure(cfg Config) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	if cfg.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: true}
	}

	mu.Lock()
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	mu.Unlock()
}

// Base 返回当前全局 logger。
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent 返回带 component 字段的子 logger。
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str("component", component).Logger()
}

// Nop 返回丢弃一切输出的 logger（测试用）。
func Nop() zerolog.Logger { return zerolog.Nop() }
