// Package logger builds the process-wide structured logger. Grounded on
// gateway-controller/pkg/logger/logger.go.
package logger

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	Level string // "debug", "info", "warn", "error"
	JSON  bool   // true for slog.JSONHandler, false for slog.TextHandler
}

// New creates a new slog logger with configurable level and format, trimming
// source file paths down to the path under the module root for readability.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					file := src.File
					if idx := strings.Index(file, "gateway-core/"); idx != -1 {
						file = file[idx+len("gateway-core/"):]
					}
					return slog.String("source", fmt.Sprintf("%s:%d", file, src.Line))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// XDSAdapter adapts a slog.Logger to the go-control-plane Logger interface
// consumed by the cache and server packages.
type XDSAdapter struct {
	Logger *slog.Logger
}

func (a XDSAdapter) Debugf(format string, args ...interface{}) { a.Logger.Debug(fmt.Sprintf(format, args...)) }
func (a XDSAdapter) Infof(format string, args ...interface{})  { a.Logger.Info(fmt.Sprintf(format, args...)) }
func (a XDSAdapter) Warnf(format string, args ...interface{})  { a.Logger.Warn(fmt.Sprintf(format, args...)) }
func (a XDSAdapter) Errorf(format string, args ...interface{}) { a.Logger.Error(fmt.Sprintf(format, args...)) }
