// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects the handler format, level and destination.
type LogOptions struct {
	Level  string
	Format string // "json" or "text"; empty picks json in production
	File   string // rotated log file; empty logs to stdout
	Env    string
}

// ParseLevel maps a configured level name onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// LogWriter returns the destination for log output. When a file is configured
// it is rotated by size.
func LogWriter(file string) io.Writer {
	if strings.TrimSpace(file) == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// NewHandler builds the base slog handler for opts.
func NewHandler(opts LogOptions) slog.Handler {
	w := LogWriter(opts.File)
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "text"
		if opts.Env == "production" || opts.Env == "prod" || opts.File != "" {
			format = "json"
		}
	}
	if format == "json" {
		return slog.NewJSONHandler(w, hopts)
	}
	return slog.NewTextHandler(w, hopts)
}

// WSLogger provides structured logging for websocket sessions.
type WSLogger struct {
	gateway string
	logger  *slog.Logger
}

// NewWSLogger creates a WSLogger that tags records with the gateway name.
func NewWSLogger(gateway string, logger *slog.Logger) *WSLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSLogger{gateway: gateway, logger: logger}
}

// LogConnect logs a websocket connection event.
func (l *WSLogger) LogConnect(ctx context.Context, userID string) {
	l.logger.InfoContext(ctx, "websocket connected",
		slog.String("gateway", l.gateway),
		slog.String("user_id", userID),
	)
}

// LogDisconnect logs a websocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID, reason string) {
	l.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("gateway", l.gateway),
		slog.String("user_id", userID),
		slog.String("reason", reason),
	)
}

// LogError logs a websocket error event.
func (l *WSLogger) LogError(ctx context.Context, userID string, err error, eventType string) {
	l.logger.ErrorContext(ctx, "websocket error",
		slog.String("gateway", l.gateway),
		slog.String("user_id", userID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}
