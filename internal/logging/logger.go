package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogFileName is the name of the log file written inside an episode directory.
const LogFileName = "episode.log"

// Logger provides structured logging with context propagation.
// It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	file   *os.File
	mu     *sync.Mutex // Protects file operations, shared with children
	attrs  []slog.Attr // Persistent attributes (episode, fleet, vehicle, phase)
}

// NewLogger creates a new Logger that writes JSON-formatted logs to
// {dir}/episode.log. If dir is empty, logs are written to stderr.
//
// The level parameter controls which messages are logged:
//   - DEBUG: All messages
//   - INFO: Info, Warn, and Error messages
//   - WARN: Warn and Error messages
//   - ERROR: Only Error messages
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return NewLoggerTo(os.Stderr, level), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewLoggerTo(file, level)
	l.file = file
	return l, nil
}

// NewLoggerTo creates a Logger writing JSON lines to w.
func NewLoggerTo(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{
		logger: slog.New(handler),
		mu:     &sync.Mutex{},
		attrs:  make([]slog.Attr, 0),
	}
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithEpisode returns a child Logger tagging every entry with the episode ID.
func (l *Logger) WithEpisode(episodeID string) *Logger {
	return l.withAttrs(slog.String("episode_id", episodeID))
}

// WithFleet returns a child Logger tagging every entry with a fleet key.
func (l *Logger) WithFleet(lane, fleet int) *Logger {
	return l.withAttrs(slog.Int("lane", lane), slog.Int("fleet", fleet))
}

// WithVehicle returns a child Logger tagging every entry with a vehicle ID
// within its fleet.
func (l *Logger) WithVehicle(vehicle int) *Logger {
	return l.withAttrs(slog.Int("vehicle", vehicle))
}

// WithPhase returns a child Logger tagging every entry with a consensus phase.
func (l *Logger) WithPhase(phase string) *Logger {
	return l.withAttrs(slog.String("phase", phase))
}

// With returns a new Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments; non-string keys
// are skipped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return l.withAttrs(attrs...)
}

func (l *Logger) withAttrs(attrs ...slog.Attr) *Logger {
	newAttrs := make([]slog.Attr, 0, len(l.attrs)+len(attrs))
	newAttrs = append(newAttrs, l.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &Logger{
		logger: l.logger,
		file:   l.file,
		mu:     l.mu,
		attrs:  newAttrs,
	}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	allArgs := make([]any, 0, len(l.attrs)+len(args))
	for _, attr := range l.attrs {
		allArgs = append(allArgs, attr)
	}
	allArgs = append(allArgs, args...)

	l.logger.Log(ctx, level, msg, allArgs...)
}

// Close flushes and closes the log file.
// If the logger writes to stderr or an injected writer, Close is a no-op.
func (l *Logger) Close() error {
	if l.mu == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync log file: %w", err)
		}
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		l.file = nil
	}
	return nil
}

// NopLogger returns a Logger that discards all log output.
// Useful for testing or when logging is disabled.
func NopLogger() *Logger {
	return NewLoggerTo(io.Discard, LevelError)
}

// ParseLevel converts a string level to the corresponding constant.
// Returns LevelInfo if the level string is not recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
