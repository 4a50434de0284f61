package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"scan-licences/internal/config"

	"gopkg.in/lumberjack.v2"
)

// keys whose values never reach the log
var secretKeys = map[string]bool{"password": true, "token": true, "authorization": true, "jwt_secret": true}

// Init installs the process-wide JSON logger for app. Output goes to stdout,
// to a rotated file, or both.
func Init(cfg config.LogConfig, app string) {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, os.Stdout)
	}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	slog.SetDefault(New(io.MultiWriter(writers...), cfg.Level).With("app", app))
	Info("logger initialized", "level", cfg.Level, "file", cfg.File)
}

// New builds a JSON logger writing UTC timestamps to w, with secrets masked.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: replaceAttr,
	}))
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	switch {
	case a.Key == slog.TimeKey && len(groups) == 0:
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
		}
	case secretKeys[strings.ToLower(a.Key)]:
		a.Value = slog.StringValue("***")
	}
	return a
}

func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }
func Debug(msg string, args ...any) { slog.Debug(msg, args...) }

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
